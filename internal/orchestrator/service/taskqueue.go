package service

import (
	"context"
	"time"

	"fleetmaster/internal/models"
	"fleetmaster/internal/orchestrator/store"
	"fleetmaster/pkg/logger"

	"github.com/google/uuid"
)

// TaskNotifier is pinged after a successful enqueue so connected delegates
// can poll immediately instead of waiting for the next cadence tick.
type TaskNotifier interface {
	TaskQueued(accountID, taskID string)
}

// noopNotifier is used when no websocket fan-out is wired.
type noopNotifier struct{}

func (noopNotifier) TaskQueued(accountID, taskID string) {}

// TaskQueue owns pending-task storage. Enqueueing is the request half of a
// request/response split: the caller suspends on the task's waitId through
// the correlator, never on the enqueue call itself.
type TaskQueue struct {
	store    store.TaskStore
	notifier TaskNotifier
	logger   *logger.Logger
}

// NewTaskQueue creates a new TaskQueue. notifier may be nil.
func NewTaskQueue(store store.TaskStore, notifier TaskNotifier, logger *logger.Logger) *TaskQueue {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &TaskQueue{
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

// SendTaskWaitNotify validates and persists the task, then returns without
// blocking on execution. A unique id is assigned when absent.
func (q *TaskQueue) SendTaskWaitNotify(ctx context.Context, task *models.DelegateTask) (*models.DelegateTask, error) {
	if task.AccountID == "" {
		return nil, models.NewValidationError("accountId", "must not be empty")
	}
	if task.TaskType == "" {
		return nil, models.NewValidationError("taskType", "must not be empty")
	}

	queued := *task
	if queued.TaskID == "" {
		queued.TaskID = uuid.New().String()
	}
	queued.CreatedAt = time.Now()

	if err := q.store.Create(ctx, &queued); err != nil {
		q.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to create task in store")
		return nil, models.NewStorageError("task.create", err)
	}

	q.notifier.TaskQueued(queued.AccountID, queued.TaskID)
	return &queued, nil
}

// GetDelegateTasks returns all currently pending tasks visible to a delegate
// in the tenant. Every delegate in the tenant sees every pending task until
// a response completes it: the queue guarantees at-least-once visibility,
// not at-most-once assignment.
func (q *TaskQueue) GetDelegateTasks(ctx context.Context, accountID, delegateID string) ([]*models.DelegateTask, error) {
	tasks, err := q.store.ListPending(ctx, accountID)
	if err != nil {
		return nil, models.NewStorageError("task.listPending", err)
	}
	return tasks, nil
}

// ListTasks returns a filtered page of tasks with the total count.
func (q *TaskQueue) ListTasks(ctx context.Context, req models.PageRequest) (*models.TaskPage, error) {
	page, err := q.store.List(ctx, req)
	if err != nil {
		return nil, models.NewStorageError("task.list", err)
	}
	return page, nil
}
