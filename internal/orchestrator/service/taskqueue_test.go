package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"fleetmaster/internal/models"
	"fleetmaster/internal/orchestrator/store"
	"fleetmaster/pkg/logger"
)

type recordingNotifier struct {
	mu      sync.Mutex
	taskIDs []string
}

func (n *recordingNotifier) TaskQueued(accountID, taskID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.taskIDs = append(n.taskIDs, taskID)
}

func TestSendTaskWaitNotifyAssignsIDAndNotifies(t *testing.T) {
	notifier := &recordingNotifier{}
	q := NewTaskQueue(store.NewMemoryTaskStore(), notifier, logger.New("queue-test", "", ""))
	ctx := context.Background()

	params, _ := json.Marshal(models.PingTaskParams{Message: "hello"})
	queued, err := q.SendTaskWaitNotify(ctx, &models.DelegateTask{
		AccountID:  "acc-1",
		TaskType:   models.TaskTypePing,
		WaitID:     "w-1",
		Parameters: params,
	})
	if err != nil {
		t.Fatalf("SendTaskWaitNotify: %v", err)
	}
	if queued.TaskID == "" {
		t.Error("no task id assigned")
	}
	if queued.CreatedAt.IsZero() {
		t.Error("createdAt not set")
	}
	if len(notifier.taskIDs) != 1 || notifier.taskIDs[0] != queued.TaskID {
		t.Errorf("notifier calls = %v, want exactly the queued task id", notifier.taskIDs)
	}
}

func TestSendTaskWaitNotifyValidation(t *testing.T) {
	q := NewTaskQueue(store.NewMemoryTaskStore(), nil, logger.New("queue-test", "", ""))
	ctx := context.Background()

	if _, err := q.SendTaskWaitNotify(ctx, &models.DelegateTask{TaskType: models.TaskTypePing}); !models.IsValidation(err) {
		t.Errorf("missing accountId: err = %v, want validation error", err)
	}
	if _, err := q.SendTaskWaitNotify(ctx, &models.DelegateTask{AccountID: "acc-1"}); !models.IsValidation(err) {
		t.Errorf("missing taskType: err = %v, want validation error", err)
	}
}

func TestGetDelegateTasksReturnsPendingFIFO(t *testing.T) {
	taskStore := store.NewMemoryTaskStore()
	q := NewTaskQueue(taskStore, nil, logger.New("queue-test", "", ""))
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"t-1", "t-2", "t-3"} {
		err := taskStore.Create(ctx, &models.DelegateTask{
			TaskID:    id,
			AccountID: "acc-1",
			TaskType:  models.TaskTypePing,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}
	// A task in another tenant must stay invisible.
	if err := taskStore.Create(ctx, &models.DelegateTask{
		TaskID:    "t-other",
		AccountID: "acc-2",
		TaskType:  models.TaskTypePing,
		CreatedAt: base,
	}); err != nil {
		t.Fatalf("Create t-other: %v", err)
	}

	tasks, err := q.GetDelegateTasks(ctx, "acc-1", "d-1")
	if err != nil {
		t.Fatalf("GetDelegateTasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("pending tasks = %d, want 3", len(tasks))
	}
	for i, want := range []string{"t-1", "t-2", "t-3"} {
		if tasks[i].TaskID != want {
			t.Errorf("tasks[%d] = %s, want %s (FIFO order)", i, tasks[i].TaskID, want)
		}
	}
}

func TestListTasksPagination(t *testing.T) {
	taskStore := store.NewMemoryTaskStore()
	q := NewTaskQueue(taskStore, nil, logger.New("queue-test", "", ""))
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 4; i++ {
		err := taskStore.Create(ctx, &models.DelegateTask{
			TaskID:    string(rune('a' + i)),
			AccountID: "acc-1",
			TaskType:  models.TaskTypePing,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	page, err := q.ListTasks(ctx, models.PageRequest{
		Start:    1,
		PageSize: 2,
		Filters:  map[string]string{"accountId": "acc-1"},
	})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if page.Total != 4 {
		t.Errorf("total = %d, want 4 regardless of page bounds", page.Total)
	}
	if len(page.Tasks) != 2 {
		t.Fatalf("page size = %d, want 2", len(page.Tasks))
	}
	if page.Tasks[0].TaskID != "b" || page.Tasks[1].TaskID != "c" {
		t.Errorf("page = [%s %s], want [b c]", page.Tasks[0].TaskID, page.Tasks[1].TaskID)
	}
}
