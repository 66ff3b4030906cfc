package service

import (
	"context"

	"fleetmaster/internal/models"
	"fleetmaster/internal/orchestrator/store"
	"fleetmaster/pkg/logger"
)

// Correlator matches an incoming task response to its original waiting
// caller and resolves it exactly once. It owns no persistent state: the
// transient waiter map lives in the WaitRegistry and task lookup/removal is
// delegated to the task store.
type Correlator struct {
	tasks  store.TaskStore
	waits  *WaitRegistry
	logger *logger.Logger
}

// NewCorrelator creates a new Correlator.
func NewCorrelator(tasks store.TaskStore, waits *WaitRegistry, logger *logger.Logger) *Correlator {
	return &Correlator{
		tasks:  tasks,
		waits:  waits,
		logger: logger,
	}
}

// Waits exposes the wait registry so callers can suspend on a wait id.
func (c *Correlator) Waits() *WaitRegistry {
	return c.waits
}

// ProcessDelegateResponse completes a task: it atomically removes the task
// record keyed by the response's task id, then notifies the waiter bound to
// the task's wait id with the response payload.
//
// The removal doubles as the duplicate filter. The transport may retry and
// deliver the same response more than once; only the first removal wins the
// record, so every later delivery is a benign no-op and the waiter is
// notified at most once. A poller can never observe the task as pending
// after its response has been accepted, because the record is gone before
// the notification fires.
func (c *Correlator) ProcessDelegateResponse(ctx context.Context, resp *models.DelegateTaskResponse) error {
	if resp.TaskID == "" {
		return models.NewValidationError("taskId", "must not be empty")
	}

	task, err := c.tasks.Remove(ctx, resp.TaskID)
	if err != nil {
		return models.NewStorageError("task.remove", err)
	}
	if task == nil {
		// Duplicate or already-completed response.
		c.logger.WithPayload(map[string]interface{}{"taskId": resp.TaskID}).Debug("Ignoring response for unknown task id")
		return nil
	}

	if delivered := c.waits.Notify(task.WaitID, resp.Response); !delivered {
		// The caller stopped waiting (timeout or crash). The task is still
		// complete; the result just has nowhere to go.
		c.logger.WithPayload(map[string]interface{}{
			"taskId": task.TaskID,
			"waitId": task.WaitID,
		}).Warn("No waiter bound for completed task")
	}
	return nil
}
