package sweeper

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"fleetmaster/internal/models"
	"fleetmaster/internal/orchestrator/service"
	"fleetmaster/internal/orchestrator/store"
	"fleetmaster/pkg/logger"
)

func newTestSweeper(t *testing.T) (*Sweeper, store.DelegateStore, store.TaskStore, *service.MemoryLivenessCache, *service.WaitRegistry) {
	t.Helper()
	delegates := store.NewMemoryDelegateStore()
	tasks := store.NewMemoryTaskStore()
	cache := service.NewMemoryLivenessCache(time.Minute)
	waits := service.NewWaitRegistry()
	log := logger.New("sweeper-test", "", "")
	s := NewSweeper(delegates, tasks, cache, waits, log, time.Second, time.Minute, time.Minute)
	return s, delegates, tasks, cache, waits
}

func TestSweepDelegatesDisablesStale(t *testing.T) {
	s, delegates, _, _, _ := newTestSweeper(t)
	ctx := context.Background()

	stale := &models.Delegate{
		ID:            "d-stale",
		AccountID:     "acc-1",
		HostName:      "host-a",
		Status:        models.DelegateStatusEnabled,
		LastHeartBeat: time.Now().Add(-2 * time.Minute).UnixMilli(),
		CreatedAt:     time.Now(),
	}
	fresh := &models.Delegate{
		ID:            "d-fresh",
		AccountID:     "acc-1",
		HostName:      "host-b",
		Status:        models.DelegateStatusEnabled,
		LastHeartBeat: time.Now().UnixMilli(),
		CreatedAt:     time.Now(),
	}
	if err := delegates.Create(ctx, stale); err != nil {
		t.Fatalf("Create stale: %v", err)
	}
	if err := delegates.Create(ctx, fresh); err != nil {
		t.Fatalf("Create fresh: %v", err)
	}

	s.SweepDelegates(ctx)

	got, err := delegates.GetByID(ctx, "acc-1", "d-stale")
	if err != nil {
		t.Fatalf("GetByID stale: %v", err)
	}
	if got.Status != models.DelegateStatusDisabled {
		t.Errorf("stale delegate status = %s, want DISABLED", got.Status)
	}

	got, err = delegates.GetByID(ctx, "acc-1", "d-fresh")
	if err != nil {
		t.Fatalf("GetByID fresh: %v", err)
	}
	if got.Status != models.DelegateStatusEnabled {
		t.Errorf("fresh delegate status = %s, want ENABLED", got.Status)
	}
}

func TestSweepDelegatesSparesLivenessCacheHit(t *testing.T) {
	s, delegates, _, cache, _ := newTestSweeper(t)
	ctx := context.Background()

	d := &models.Delegate{
		ID:            "d-1",
		AccountID:     "acc-1",
		HostName:      "host-a",
		Status:        models.DelegateStatusEnabled,
		LastHeartBeat: time.Now().Add(-2 * time.Minute).UnixMilli(),
		CreatedAt:     time.Now(),
	}
	if err := delegates.Create(ctx, d); err != nil {
		t.Fatalf("Create: %v", err)
	}
	// Heartbeat landed in the cache after the store record went stale.
	if err := cache.Touch(ctx, d.ID); err != nil {
		t.Fatalf("Touch: %v", err)
	}

	s.SweepDelegates(ctx)

	got, err := delegates.GetByID(ctx, "acc-1", "d-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != models.DelegateStatusEnabled {
		t.Errorf("status = %s, want ENABLED when liveness cache is fresh", got.Status)
	}
}

func TestSweepTasksRemovesExpiredAndNotifiesWaiter(t *testing.T) {
	s, _, tasks, _, waits := newTestSweeper(t)
	ctx := context.Background()

	expired := &models.DelegateTask{
		TaskID:    "t-old",
		AccountID: "acc-1",
		WaitID:    "w-old",
		TaskType:  models.TaskTypePing,
		CreatedAt: time.Now().Add(-2 * time.Minute),
	}
	recent := &models.DelegateTask{
		TaskID:    "t-new",
		AccountID: "acc-1",
		WaitID:    "w-new",
		TaskType:  models.TaskTypePing,
		CreatedAt: time.Now(),
	}
	if err := tasks.Create(ctx, expired); err != nil {
		t.Fatalf("Create expired: %v", err)
	}
	if err := tasks.Create(ctx, recent); err != nil {
		t.Fatalf("Create recent: %v", err)
	}

	ch, err := waits.Bind("w-old")
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}

	s.SweepTasks(ctx)

	select {
	case payload := <-ch:
		var body map[string]string
		if err := json.Unmarshal(payload, &body); err != nil {
			t.Fatalf("unmarshal expiry payload: %v", err)
		}
		if !strings.Contains(body["error"], "expired") {
			t.Errorf("expiry payload error = %q, want mention of expiry", body["error"])
		}
		if body["taskId"] != "t-old" {
			t.Errorf("expiry payload taskId = %q, want t-old", body["taskId"])
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was not notified about the expired task")
	}

	if got, err := tasks.GetByID(ctx, "t-old"); err != nil || got != nil {
		t.Errorf("GetByID(t-old) = (%v, %v), want removed", got, err)
	}
	if got, err := tasks.GetByID(ctx, "t-new"); err != nil || got == nil {
		t.Errorf("GetByID(t-new) = (%v, %v), want kept", got, err)
	}
}
