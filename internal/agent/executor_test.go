package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"fleetmaster/internal/config"
	"fleetmaster/internal/models"
	clienthttp "fleetmaster/pkg/http"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	client, err := clienthttp.NewClient(config.CircuitBreakerConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return NewExecutor(client)
}

func TestExecutePing(t *testing.T) {
	e := newTestExecutor(t)
	params, _ := json.Marshal(models.PingTaskParams{Message: "hello"})

	payload := e.Execute(context.Background(), &models.DelegateTask{
		TaskID:     "t-1",
		TaskType:   models.TaskTypePing,
		Parameters: params,
	})

	var result map[string]string
	if err := json.Unmarshal(payload, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result["message"] != "hello" || result["status"] != "PONG" {
		t.Errorf("result = %v, want echoed message and PONG", result)
	}
}

func TestExecuteHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("X-Test"); got != "yes" {
			t.Errorf("X-Test header = %q, want yes", got)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("created"))
	}))
	defer server.Close()

	e := newTestExecutor(t)
	params, _ := json.Marshal(models.HTTPTaskParams{
		Method:  http.MethodPost,
		URL:     server.URL,
		Headers: map[string]string{"X-Test": "yes"},
		Body:    "payload",
	})

	payload := e.Execute(context.Background(), &models.DelegateTask{
		TaskID:     "t-1",
		TaskType:   models.TaskTypeHTTP,
		Parameters: params,
	})

	var result httpTaskResult
	if err := json.Unmarshal(payload, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.StatusCode != http.StatusCreated {
		t.Errorf("statusCode = %d, want 201", result.StatusCode)
	}
	if result.Body != "created" {
		t.Errorf("body = %q, want created", result.Body)
	}
}

func TestExecuteShell(t *testing.T) {
	e := newTestExecutor(t)
	params, _ := json.Marshal(models.ShellTaskParams{Script: "echo fleet"})

	payload := e.Execute(context.Background(), &models.DelegateTask{
		TaskID:     "t-1",
		TaskType:   models.TaskTypeShell,
		Parameters: params,
	})

	var result shellTaskResult
	if err := json.Unmarshal(payload, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("exitCode = %d, want 0", result.ExitCode)
	}
	if !strings.Contains(result.Output, "fleet") {
		t.Errorf("output = %q, want echoed text", result.Output)
	}
}

func TestExecuteShellNonZeroExit(t *testing.T) {
	e := newTestExecutor(t)
	params, _ := json.Marshal(models.ShellTaskParams{Script: "exit 3"})

	payload := e.Execute(context.Background(), &models.DelegateTask{
		TaskID:     "t-1",
		TaskType:   models.TaskTypeShell,
		Parameters: params,
	})

	var result shellTaskResult
	if err := json.Unmarshal(payload, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("exitCode = %d, want 3", result.ExitCode)
	}
}

func TestExecuteUnknownTaskType(t *testing.T) {
	e := newTestExecutor(t)
	payload := e.Execute(context.Background(), &models.DelegateTask{
		TaskID:   "t-1",
		TaskType: models.TaskType("FTP"),
	})

	var result map[string]string
	if err := json.Unmarshal(payload, &result); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !strings.Contains(result["error"], "unknown task type") {
		t.Errorf("error = %q, want unknown task type", result["error"])
	}
}
