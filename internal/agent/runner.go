package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"fleetmaster/internal/config"
	"fleetmaster/internal/models"
	"fleetmaster/pkg/logger"
)

// Runner is the delegate agent loop. It registers with the orchestrator,
// polls for pending tasks on a fixed cadence and sends responses back.
//
// The queue guarantees at-least-once visibility: a task stays pending until
// its response is processed, so consecutive polls may return the same task.
// The in-flight set keeps the agent from executing it twice concurrently.
type Runner struct {
	cfg        config.AgentConfig
	executor   *Executor
	logger     *logger.Logger
	httpClient *http.Client

	delegateID string

	mu       sync.Mutex
	inFlight map[string]struct{}
	sem      chan struct{}
}

// NewRunner creates a new Runner.
func NewRunner(cfg config.AgentConfig, executor *Executor, logger *logger.Logger) *Runner {
	maxParallel := cfg.MaxParallelTasks
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &Runner{
		cfg:        cfg,
		executor:   executor,
		logger:     logger,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		inFlight:   make(map[string]struct{}),
		sem:        make(chan struct{}, maxParallel),
	}
}

func (r *Runner) baseURL() string {
	return fmt.Sprintf("%s/api/v1/accounts/%s", r.cfg.OrchestratorAddress, r.cfg.AccountID)
}

func (r *Runner) postJSON(ctx context.Context, url string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("orchestrator answered %d for %s", resp.StatusCode, url)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// Register announces this host to the orchestrator. Registration is
// idempotent on (account, hostName, ip), so restarting the agent keeps its
// delegate identity.
func (r *Runner) Register(ctx context.Context) error {
	hostName, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("resolve hostname: %w", err)
	}

	var registered models.Delegate
	err = r.postJSON(ctx, r.baseURL()+"/delegates/register", map[string]string{
		"hostName": hostName,
		"ip":       localIP(),
	}, &registered)
	if err != nil {
		return fmt.Errorf("register delegate: %w", err)
	}

	r.delegateID = registered.ID
	r.logger.WithPayload(map[string]interface{}{
		"delegateId": r.delegateID,
		"hostName":   hostName,
	}).Info("Registered with orchestrator")
	return nil
}

// Run polls until the context is cancelled. Register must have succeeded.
func (r *Runner) Run(ctx context.Context) error {
	if r.delegateID == "" {
		return fmt.Errorf("runner is not registered")
	}

	interval := time.Duration(r.cfg.PollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping delegate agent...")
			return nil
		case <-ticker.C:
			r.pollOnce(ctx)
		}
	}
}

// localIP returns the host's preferred outbound IP, or empty when offline.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return ""
}

// pollOnce fetches pending tasks and dispatches the ones not already running.
func (r *Runner) pollOnce(ctx context.Context) {
	url := fmt.Sprintf("%s/delegates/%s/tasks", r.baseURL(), r.delegateID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Poll failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.WithPayload(map[string]interface{}{"status": resp.StatusCode}).Warn("Poll rejected by orchestrator")
		return
	}

	var body struct {
		Tasks []*models.DelegateTask `json:"tasks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		r.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Failed to decode poll response")
		return
	}

	for _, task := range body.Tasks {
		r.dispatch(ctx, task)
	}
}

// dispatch runs the task in a worker slot unless it is already in flight.
func (r *Runner) dispatch(ctx context.Context, task *models.DelegateTask) {
	r.mu.Lock()
	if _, running := r.inFlight[task.TaskID]; running {
		r.mu.Unlock()
		return
	}
	r.inFlight[task.TaskID] = struct{}{}
	r.mu.Unlock()

	r.sem <- struct{}{}
	go func() {
		defer func() {
			<-r.sem
			r.mu.Lock()
			delete(r.inFlight, task.TaskID)
			r.mu.Unlock()
		}()

		payload := r.executor.Execute(ctx, task)
		url := fmt.Sprintf("%s/tasks/%s/response", r.baseURL(), task.TaskID)
		if err := r.postJSON(ctx, url, json.RawMessage(payload), nil); err != nil {
			r.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
				"taskId": task.TaskID,
			}).Error("Failed to submit task response")
			return
		}
		r.logger.WithPayload(map[string]interface{}{"taskId": task.TaskID}).Info("Task completed")
	}()
}
