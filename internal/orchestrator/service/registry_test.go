package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"fleetmaster/internal/models"
	"fleetmaster/internal/orchestrator/store"
	"fleetmaster/pkg/logger"
)

// recordingPublisher keeps published events in memory for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.DelegateEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event models.DelegateEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) byType(t models.EventType) []models.DelegateEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.DelegateEvent
	for _, e := range p.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestRegistry(t *testing.T) (*Registry, *recordingPublisher) {
	t.Helper()
	events := &recordingPublisher{}
	r := NewRegistry(
		store.NewMemoryDelegateStore(),
		events,
		NewMemoryLivenessCache(time.Minute),
		logger.New("registry-test", "", ""),
	)
	return r, events
}

func TestAddAndGetDelegate(t *testing.T) {
	r, events := newTestRegistry(t)
	ctx := context.Background()

	created, err := r.Add(ctx, &models.Delegate{
		AccountID: "acc-1",
		HostName:  "host-a",
		IP:        "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if created.ID == "" {
		t.Error("Add did not assign an id")
	}
	if created.Status != models.DelegateStatusEnabled {
		t.Errorf("status = %s, want ENABLED by default", created.Status)
	}
	if created.LastHeartBeat == 0 {
		t.Error("Add did not initialize the heartbeat")
	}

	got, err := r.Get(ctx, "acc-1", created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.HostName != "host-a" || got.IP != "10.0.0.1" {
		t.Errorf("Get returned %+v, want the created delegate", got)
	}

	if n := len(events.byType(models.EventTypeCreate)); n != 1 {
		t.Errorf("CREATE events = %d, want 1", n)
	}
}

func TestAddValidation(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.Add(ctx, &models.Delegate{HostName: "h"}); !models.IsValidation(err) {
		t.Errorf("Add without accountId: err = %v, want validation error", err)
	}
	if _, err := r.Add(ctx, &models.Delegate{AccountID: "acc-1"}); !models.IsValidation(err) {
		t.Errorf("Add without hostName: err = %v, want validation error", err)
	}
}

func TestRegisterIsIdempotentOnSignature(t *testing.T) {
	r, events := newTestRegistry(t)
	ctx := context.Background()

	first, err := r.Register(ctx, &models.Delegate{
		AccountID: "acc-1",
		HostName:  "host-a",
		IP:        "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("first Register: %v", err)
	}

	later := time.Now().Add(time.Second).UnixMilli()
	second, err := r.Register(ctx, &models.Delegate{
		AccountID:     "acc-1",
		HostName:      "host-a",
		IP:            "10.0.0.1",
		LastHeartBeat: later,
	})
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("re-registration produced a new id: %s != %s", second.ID, first.ID)
	}
	if second.LastHeartBeat != later {
		t.Errorf("heartbeat = %d, want advanced to %d", second.LastHeartBeat, later)
	}

	page, err := r.List(ctx, models.PageRequest{PageSize: 10, Filters: map[string]string{"accountId": "acc-1"}})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("total delegates = %d, want 1 after re-registration", page.Total)
	}

	if n := len(events.byType(models.EventTypeCreate)); n != 1 {
		t.Errorf("CREATE events = %d, want 1", n)
	}
	if n := len(events.byType(models.EventTypeUpdate)); n != 1 {
		t.Errorf("UPDATE events = %d, want 1", n)
	}
}

func TestRegisterDifferentSignatureCreatesNewDelegate(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	a, err := r.Register(ctx, &models.Delegate{AccountID: "acc-1", HostName: "host-a", IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Register a: %v", err)
	}
	b, err := r.Register(ctx, &models.Delegate{AccountID: "acc-1", HostName: "host-b", IP: "10.0.0.2"})
	if err != nil {
		t.Fatalf("Register b: %v", err)
	}
	if a.ID == b.ID {
		t.Error("distinct signatures must not share a delegate id")
	}
}

func TestUpdateHeartbeatIsMonotonic(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	created, err := r.Add(ctx, &models.Delegate{AccountID: "acc-1", HostName: "host-a"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	stale := created.LastHeartBeat - 60_000
	updated, err := r.Update(ctx, &models.Delegate{
		AccountID:     "acc-1",
		ID:            created.ID,
		LastHeartBeat: stale,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.LastHeartBeat != created.LastHeartBeat {
		t.Errorf("heartbeat moved backwards: %d -> %d", created.LastHeartBeat, updated.LastHeartBeat)
	}
}

func TestRegisterOutOfOrderHeartBeatsKeepNewest(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	created, err := r.Add(ctx, &models.Delegate{AccountID: "acc-1", HostName: "host-a", IP: "10.0.0.1", LastHeartBeat: 100})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Two registrations for the same delegate arrive out of order. The
	// write carrying the older beat lands last and must not win.
	newer, err := r.Register(ctx, &models.Delegate{AccountID: "acc-1", HostName: "host-a", IP: "10.0.0.1", LastHeartBeat: 500})
	if err != nil {
		t.Fatalf("Register newer: %v", err)
	}
	if newer.LastHeartBeat != 500 {
		t.Fatalf("lastHeartBeat = %d, want 500", newer.LastHeartBeat)
	}

	if _, err := r.Register(ctx, &models.Delegate{AccountID: "acc-1", HostName: "host-a", IP: "10.0.0.1", LastHeartBeat: 300}); err != nil {
		t.Fatalf("Register older: %v", err)
	}

	got, err := r.Get(ctx, "acc-1", created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.LastHeartBeat != 500 {
		t.Errorf("lastHeartBeat = %d, want 500 after an out-of-order register", got.LastHeartBeat)
	}
}

func TestUpdateUnknownDelegate(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Update(context.Background(), &models.Delegate{AccountID: "acc-1", ID: "missing"})
	if !models.IsNotFound(err) {
		t.Errorf("err = %v, want not-found", err)
	}
}

func TestDeleteRemovesDelegate(t *testing.T) {
	r, events := newTestRegistry(t)
	ctx := context.Background()

	created, err := r.Add(ctx, &models.Delegate{AccountID: "acc-1", HostName: "host-a"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Delete(ctx, "acc-1", created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := r.Get(ctx, "acc-1", created.ID); !models.IsNotFound(err) {
		t.Errorf("Get after Delete: err = %v, want not-found", err)
	}
	if n := len(events.byType(models.EventTypeDelete)); n != 1 {
		t.Errorf("DELETE events = %d, want 1", n)
	}
}

func TestDeleteIsSilentNoOpForUnknownDelegate(t *testing.T) {
	r, events := newTestRegistry(t)
	if err := r.Delete(context.Background(), "acc-1", "missing"); err != nil {
		t.Errorf("Delete unknown: %v, want nil", err)
	}
	if n := len(events.byType(models.EventTypeDelete)); n != 0 {
		t.Errorf("DELETE events = %d, want 0 when nothing was removed", n)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.Add(ctx, &models.Delegate{AccountID: "acc-1", HostName: "host-a"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	disabled, err := r.Add(ctx, &models.Delegate{AccountID: "acc-1", HostName: "host-b", Status: models.DelegateStatusDisabled})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	page, err := r.List(ctx, models.PageRequest{
		PageSize: 10,
		Filters:  map[string]string{"accountId": "acc-1", "status": "DISABLED"},
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 1 || len(page.Delegates) != 1 || page.Delegates[0].ID != disabled.ID {
		t.Errorf("filtered page = %+v, want only the disabled delegate", page)
	}
}
