package store

import (
	"context"
	"testing"
	"time"

	"fleetmaster/internal/models"
)

func TestTaskRemoveHappensOnce(t *testing.T) {
	s := NewMemoryTaskStore()
	ctx := context.Background()

	task := &models.DelegateTask{
		TaskID:    "t-1",
		AccountID: "acc-1",
		WaitID:    "w-1",
		TaskType:  models.TaskTypePing,
		CreatedAt: time.Now(),
	}
	if err := s.Create(ctx, task); err != nil {
		t.Fatalf("Create: %v", err)
	}

	removed, err := s.Remove(ctx, "t-1")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed == nil || removed.WaitID != "w-1" {
		t.Fatalf("Remove = %+v, want the stored task", removed)
	}

	again, err := s.Remove(ctx, "t-1")
	if err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if again != nil {
		t.Errorf("second Remove = %+v, want nil", again)
	}
}

func TestTaskListCreatedBefore(t *testing.T) {
	s := NewMemoryTaskStore()
	ctx := context.Background()
	now := time.Now()

	old := &models.DelegateTask{TaskID: "t-old", AccountID: "acc-1", TaskType: models.TaskTypePing, CreatedAt: now.Add(-time.Hour)}
	recent := &models.DelegateTask{TaskID: "t-new", AccountID: "acc-1", TaskType: models.TaskTypePing, CreatedAt: now}
	for _, task := range []*models.DelegateTask{old, recent} {
		if err := s.Create(ctx, task); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	expired, err := s.ListCreatedBefore(ctx, now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("ListCreatedBefore: %v", err)
	}
	if len(expired) != 1 || expired[0].TaskID != "t-old" {
		t.Errorf("expired = %+v, want only t-old", expired)
	}
}

func TestDelegateFindBySignature(t *testing.T) {
	s := NewMemoryDelegateStore()
	ctx := context.Background()

	d := &models.Delegate{
		ID:        "d-1",
		AccountID: "acc-1",
		HostName:  "host-a",
		IP:        "10.0.0.1",
		Status:    models.DelegateStatusEnabled,
		CreatedAt: time.Now(),
	}
	if err := s.Create(ctx, d); err != nil {
		t.Fatalf("Create: %v", err)
	}

	found, err := s.FindBySignature(ctx, "acc-1", "host-a", "10.0.0.1")
	if err != nil {
		t.Fatalf("FindBySignature: %v", err)
	}
	if found == nil || found.ID != "d-1" {
		t.Errorf("FindBySignature = %+v, want d-1", found)
	}

	miss, err := s.FindBySignature(ctx, "acc-2", "host-a", "10.0.0.1")
	if err != nil {
		t.Fatalf("FindBySignature miss: %v", err)
	}
	if miss != nil {
		t.Errorf("FindBySignature across accounts = %+v, want nil", miss)
	}
}

func TestDelegateListPagination(t *testing.T) {
	s := NewMemoryDelegateStore()
	ctx := context.Background()
	base := time.Now()

	for i, id := range []string{"d-1", "d-2", "d-3", "d-4"} {
		err := s.Create(ctx, &models.Delegate{
			ID:        id,
			AccountID: "acc-1",
			HostName:  "host-" + id,
			Status:    models.DelegateStatusEnabled,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	page, err := s.List(ctx, models.PageRequest{
		Start:    1,
		PageSize: 2,
		Filters:  map[string]string{"accountId": "acc-1"},
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 4 {
		t.Errorf("total = %d, want 4", page.Total)
	}
	if len(page.Delegates) != 2 || page.Delegates[0].ID != "d-2" || page.Delegates[1].ID != "d-3" {
		t.Errorf("page = %+v, want [d-2 d-3]", page.Delegates)
	}
}

func TestListClampsNegativeStart(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	tasks := NewMemoryTaskStore()
	for i, id := range []string{"t-1", "t-2", "t-3", "t-4"} {
		err := tasks.Create(ctx, &models.DelegateTask{
			TaskID:    id,
			AccountID: "acc-1",
			TaskType:  models.TaskTypePing,
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	taskPage, err := tasks.List(ctx, models.PageRequest{
		Start:    -1,
		PageSize: 2,
		Filters:  map[string]string{"accountId": "acc-1"},
	})
	if err != nil {
		t.Fatalf("List tasks: %v", err)
	}
	if len(taskPage.Tasks) != 2 || taskPage.Tasks[0].TaskID != "t-1" {
		t.Errorf("task page = %+v, want the first page", taskPage.Tasks)
	}

	delegates := NewMemoryDelegateStore()
	if err := delegates.Create(ctx, &models.Delegate{ID: "d-1", AccountID: "acc-1", HostName: "host-a", CreatedAt: now}); err != nil {
		t.Fatalf("Create delegate: %v", err)
	}
	delegatePage, err := delegates.List(ctx, models.PageRequest{Start: -5, PageSize: 10})
	if err != nil {
		t.Fatalf("List delegates: %v", err)
	}
	if len(delegatePage.Delegates) != 1 {
		t.Errorf("delegate page = %+v, want d-1", delegatePage.Delegates)
	}
}

func TestApplyStatusHeartBeatNeverRegresses(t *testing.T) {
	s := NewMemoryDelegateStore()
	ctx := context.Background()

	err := s.Create(ctx, &models.Delegate{
		ID:            "d-1",
		AccountID:     "acc-1",
		HostName:      "host-a",
		Status:        models.DelegateStatusEnabled,
		LastHeartBeat: 100,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Two writers that both observed the record at beat 100: the later beat
	// must win regardless of write order.
	if _, err := s.ApplyStatusHeartBeat(ctx, "acc-1", "d-1", "", 500); err != nil {
		t.Fatalf("ApplyStatusHeartBeat: %v", err)
	}
	after, err := s.ApplyStatusHeartBeat(ctx, "acc-1", "d-1", "", 300)
	if err != nil {
		t.Fatalf("ApplyStatusHeartBeat: %v", err)
	}
	if after.LastHeartBeat != 500 {
		t.Errorf("lastHeartBeat = %d, want 500", after.LastHeartBeat)
	}

	missing, err := s.ApplyStatusHeartBeat(ctx, "acc-1", "missing", "", 500)
	if err != nil {
		t.Fatalf("ApplyStatusHeartBeat missing: %v", err)
	}
	if missing != nil {
		t.Errorf("ApplyStatusHeartBeat missing = %+v, want nil", missing)
	}
}

func TestDisableStaleSparesFreshHeartBeat(t *testing.T) {
	s := NewMemoryDelegateStore()
	ctx := context.Background()

	err := s.Create(ctx, &models.Delegate{
		ID:            "d-1",
		AccountID:     "acc-1",
		HostName:      "host-a",
		Status:        models.DelegateStatusEnabled,
		LastHeartBeat: 100,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// A heartbeat lands after the sweeper listed the record as stale.
	if _, err := s.ApplyStatusHeartBeat(ctx, "acc-1", "d-1", "", 900); err != nil {
		t.Fatalf("ApplyStatusHeartBeat: %v", err)
	}

	disabled, err := s.DisableStale(ctx, "acc-1", "d-1", 500)
	if err != nil {
		t.Fatalf("DisableStale: %v", err)
	}
	if disabled {
		t.Error("DisableStale disabled a delegate with a fresh heartbeat")
	}
	d, err := s.GetByID(ctx, "acc-1", "d-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if d.Status != models.DelegateStatusEnabled {
		t.Errorf("status = %s, want ENABLED", d.Status)
	}

	// Once the beat really is older than the cutoff, the disable goes through.
	disabled, err = s.DisableStale(ctx, "acc-1", "d-1", 2000)
	if err != nil {
		t.Fatalf("DisableStale: %v", err)
	}
	if !disabled {
		t.Error("DisableStale = false, want true for a stale heartbeat")
	}
	d, err = s.GetByID(ctx, "acc-1", "d-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if d.Status != models.DelegateStatusDisabled {
		t.Errorf("status = %s, want DISABLED", d.Status)
	}
}
