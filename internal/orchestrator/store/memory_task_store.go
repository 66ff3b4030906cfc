package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"fleetmaster/internal/models"
)

// MemoryTaskStore is a mutex-guarded in-memory TaskStore.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]*models.DelegateTask
}

// NewMemoryTaskStore creates an empty MemoryTaskStore.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks: make(map[string]*models.DelegateTask),
	}
}

func copyTask(t *models.DelegateTask) *models.DelegateTask {
	cp := *t
	return &cp
}

// Create stores a copy of the task record.
func (s *MemoryTaskStore) Create(ctx context.Context, t *models.DelegateTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.TaskID] = copyTask(t)
	return nil
}

// GetByID retrieves a task by its id.
func (s *MemoryTaskStore) GetByID(ctx context.Context, id string) (*models.DelegateTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	return copyTask(t), nil
}

func sortTasks(tasks []*models.DelegateTask) {
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].TaskID < tasks[j].TaskID
	})
}

// ListPending returns all pending tasks in the account, FIFO by arrival.
func (s *MemoryTaskStore) ListPending(ctx context.Context, accountID string) ([]*models.DelegateTask, error) {
	s.mu.RLock()
	pending := make([]*models.DelegateTask, 0)
	for _, t := range s.tasks {
		if t.AccountID == accountID {
			pending = append(pending, copyTask(t))
		}
	}
	s.mu.RUnlock()

	sortTasks(pending)
	return pending, nil
}

func taskMatches(t *models.DelegateTask, filters map[string]string) bool {
	for name, value := range filters {
		switch name {
		case "accountId":
			if t.AccountID != value {
				return false
			}
		case "appId":
			if t.AppID != value {
				return false
			}
		case "taskType":
			if string(t.TaskType) != value {
				return false
			}
		case "waitId":
			if t.WaitID != value {
				return false
			}
		}
	}
	return true
}

// List returns a filtered page of tasks with the total match count.
func (s *MemoryTaskStore) List(ctx context.Context, req models.PageRequest) (*models.TaskPage, error) {
	s.mu.RLock()
	matched := make([]*models.DelegateTask, 0)
	for _, t := range s.tasks {
		if taskMatches(t, req.Filters) {
			matched = append(matched, copyTask(t))
		}
	}
	s.mu.RUnlock()

	sortTasks(matched)

	total := int64(len(matched))
	start := req.Start
	if start < 0 {
		start = 0
	}
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if req.PageSize > 0 && start+req.PageSize < end {
		end = start + req.PageSize
	}

	return &models.TaskPage{
		PageResponse: models.PageResponse{Start: req.Start, PageSize: req.PageSize, Total: total},
		Tasks:        matched[start:end],
	}, nil
}

// Remove deletes the task and returns it; (nil, nil) when already gone.
func (s *MemoryTaskStore) Remove(ctx context.Context, id string) (*models.DelegateTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, nil
	}
	delete(s.tasks, id)
	return t, nil
}

// ListCreatedBefore returns tasks older than the cutoff.
func (s *MemoryTaskStore) ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]*models.DelegateTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var old []*models.DelegateTask
	for _, t := range s.tasks {
		if t.CreatedAt.Before(cutoff) {
			old = append(old, copyTask(t))
		}
	}
	return old, nil
}
