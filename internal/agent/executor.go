package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"fleetmaster/internal/models"
	clienthttp "fleetmaster/pkg/http"
)

// Executor turns a queued task into a response payload. Execution errors are
// part of the payload, not Go errors: the orchestrator side must always get
// a response so the waiter resolves.
type Executor struct {
	httpClient *clienthttp.Client
}

// NewExecutor creates a new Executor. The HTTP client carries the circuit
// breaker shared by all HTTP tasks on this agent.
func NewExecutor(httpClient *clienthttp.Client) *Executor {
	return &Executor{httpClient: httpClient}
}

// httpTaskResult is the response payload of an HTTP task.
type httpTaskResult struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
}

// shellTaskResult is the response payload of a SHELL task.
type shellTaskResult struct {
	ExitCode int    `json:"exitCode"`
	Output   string `json:"output,omitempty"`
	TimedOut bool   `json:"timedOut,omitempty"`
}

func errorPayload(err error) json.RawMessage {
	payload, _ := json.Marshal(map[string]string{"error": err.Error()})
	return payload
}

// Execute runs the task and returns the response payload to send back.
func (e *Executor) Execute(ctx context.Context, task *models.DelegateTask) json.RawMessage {
	params, err := task.DecodeParameters()
	if err != nil {
		return errorPayload(err)
	}

	switch p := params.(type) {
	case *models.HTTPTaskParams:
		return e.executeHTTP(ctx, p)
	case *models.ShellTaskParams:
		return e.executeShell(ctx, p)
	case *models.PingTaskParams:
		payload, _ := json.Marshal(map[string]string{"message": p.Message, "status": "PONG"})
		return payload
	default:
		return errorPayload(fmt.Errorf("no executor for task type %q", task.TaskType))
	}
}

func (e *Executor) executeHTTP(ctx context.Context, p *models.HTTPTaskParams) json.RawMessage {
	method := p.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if p.Body != "" {
		body = strings.NewReader(p.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.URL, body)
	if err != nil {
		return errorPayload(err)
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return errorPayload(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errorPayload(err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	payload, _ := json.Marshal(httpTaskResult{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       string(respBody),
	})
	return payload
}

func (e *Executor) executeShell(ctx context.Context, p *models.ShellTaskParams) json.RawMessage {
	if p.Script == "" {
		return errorPayload(fmt.Errorf("shell task has an empty script"))
	}

	timeout := 60 * time.Second
	if p.TimeoutSeconds > 0 {
		timeout = time.Duration(p.TimeoutSeconds) * time.Second
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "/bin/sh", "-c", p.Script)
	output, err := cmd.CombinedOutput()

	result := shellTaskResult{Output: string(output)}
	if cmdCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = -1
	} else if exitErr, ok := err.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
	} else if err != nil {
		return errorPayload(err)
	}

	payload, _ := json.Marshal(result)
	return payload
}
