package service

import (
	"context"
	"time"

	"fleetmaster/internal/models"
	"fleetmaster/internal/orchestrator/store"
	"fleetmaster/pkg/logger"

	"github.com/google/uuid"
)

// EventPublisher defines the interface for publishing delegate lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, event models.DelegateEvent) error
	Close() error
}

// Registry owns delegate identity, liveness state and lifecycle events.
//
// Registration is idempotent on the (accountId, hostName, ip) identity
// signature: delegates restart, lose network and re-poll under transient
// addresses, and keying purely on a volatile connection id would bloat the
// registry with stale entries.
type Registry struct {
	store  store.DelegateStore
	events EventPublisher
	cache  LivenessCache
	logger *logger.Logger
}

// NewRegistry creates a new Registry.
func NewRegistry(store store.DelegateStore, events EventPublisher, cache LivenessCache, logger *logger.Logger) *Registry {
	return &Registry{
		store:  store,
		events: events,
		cache:  cache,
		logger: logger,
	}
}

func (r *Registry) validate(d *models.Delegate) error {
	if d.AccountID == "" {
		return models.NewValidationError("accountId", "must not be empty")
	}
	if d.HostName == "" {
		return models.NewValidationError("hostName", "must not be empty")
	}
	return nil
}

// publish emits a lifecycle event fire-and-forget: a publish failure is
// logged and never fails the transition that caused it.
func (r *Registry) publish(ctx context.Context, eventType models.EventType, d *models.Delegate) {
	event := models.DelegateEvent{
		EntityID:  d.ID,
		AccountID: d.AccountID,
		Type:      eventType,
		At:        time.Now(),
	}
	if err := r.events.Publish(ctx, event); err != nil {
		r.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
			"delegateId": d.ID,
			"eventType":  string(eventType),
		}).Error("Failed to publish delegate lifecycle event")
	}
}

func (r *Registry) touch(ctx context.Context, delegateID string) {
	if err := r.cache.Touch(ctx, delegateID); err != nil {
		r.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
			"delegateId": delegateID,
		}).Warn("Failed to refresh delegate liveness cache")
	}
}

// Add creates a new delegate record with a fresh id and emits a CREATE event.
func (r *Registry) Add(ctx context.Context, d *models.Delegate) (*models.Delegate, error) {
	if err := r.validate(d); err != nil {
		return nil, err
	}

	created := *d
	created.ID = uuid.New().String()
	if created.Status == "" {
		created.Status = models.DelegateStatusEnabled
	}
	if created.LastHeartBeat == 0 {
		created.LastHeartBeat = time.Now().UnixMilli()
	}
	created.CreatedAt = time.Now()

	if err := r.store.Create(ctx, &created); err != nil {
		return nil, models.NewStorageError("delegate.create", err)
	}

	r.publish(ctx, models.EventTypeCreate, &created)
	r.touch(ctx, created.ID)
	return &created, nil
}

// Register is the idempotent upsert used by (re)connecting delegates. A
// delegate matching the identity signature is updated in place: no new id,
// no duplicate record. Unknown signatures fall through to Add.
func (r *Registry) Register(ctx context.Context, d *models.Delegate) (*models.Delegate, error) {
	if err := r.validate(d); err != nil {
		return nil, err
	}

	existing, err := r.store.FindBySignature(ctx, d.AccountID, d.HostName, d.IP)
	if err != nil {
		return nil, models.NewStorageError("delegate.findBySignature", err)
	}
	if existing == nil {
		return r.Add(ctx, d)
	}

	heartBeat := d.LastHeartBeat
	if heartBeat <= 0 {
		heartBeat = time.Now().UnixMilli()
	}
	updated, err := r.store.ApplyStatusHeartBeat(ctx, existing.AccountID, existing.ID, d.Status, heartBeat)
	if err != nil {
		return nil, models.NewStorageError("delegate.update", err)
	}
	if updated == nil {
		// Deleted between the signature lookup and the update.
		return r.Add(ctx, d)
	}

	r.publish(ctx, models.EventTypeUpdate, updated)
	r.touch(ctx, updated.ID)
	return updated, nil
}

// Update replaces status and heartbeat by id and emits an UPDATE event.
// Heartbeats only move forward; an older timestamp in the request is ignored.
func (r *Registry) Update(ctx context.Context, d *models.Delegate) (*models.Delegate, error) {
	updated, err := r.store.ApplyStatusHeartBeat(ctx, d.AccountID, d.ID, d.Status, d.LastHeartBeat)
	if err != nil {
		return nil, models.NewStorageError("delegate.update", err)
	}
	if updated == nil {
		return nil, models.NewNotFoundError("delegate", d.ID)
	}

	r.publish(ctx, models.EventTypeUpdate, updated)
	r.touch(ctx, updated.ID)
	return updated, nil
}

// Get retrieves a delegate by id within an account.
func (r *Registry) Get(ctx context.Context, accountID, id string) (*models.Delegate, error) {
	d, err := r.store.GetByID(ctx, accountID, id)
	if err != nil {
		return nil, models.NewStorageError("delegate.get", err)
	}
	if d == nil {
		return nil, models.NewNotFoundError("delegate", id)
	}
	return d, nil
}

// List returns a filtered page of delegates with the total count.
func (r *Registry) List(ctx context.Context, req models.PageRequest) (*models.DelegatePage, error) {
	page, err := r.store.List(ctx, req)
	if err != nil {
		return nil, models.NewStorageError("delegate.list", err)
	}
	return page, nil
}

// Delete removes the delegate and emits a DELETE event. Deleting an absent
// delegate is a silent no-op and emits nothing.
func (r *Registry) Delete(ctx context.Context, accountID, id string) error {
	removed, err := r.store.Delete(ctx, accountID, id)
	if err != nil {
		return models.NewStorageError("delegate.delete", err)
	}
	if !removed {
		return nil
	}
	r.publish(ctx, models.EventTypeDelete, &models.Delegate{ID: id, AccountID: accountID})
	if err := r.cache.Forget(ctx, id); err != nil {
		r.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Failed to drop delegate liveness key")
	}
	return nil
}

// Heartbeat advances the delegate's heartbeat to now. Polls call this on
// every round trip; it deliberately emits no lifecycle event.
func (r *Registry) Heartbeat(ctx context.Context, accountID, id string) error {
	updated, err := r.store.ApplyStatusHeartBeat(ctx, accountID, id, "", time.Now().UnixMilli())
	if err != nil {
		return models.NewStorageError("delegate.update", err)
	}
	if updated == nil {
		return models.NewNotFoundError("delegate", id)
	}
	r.touch(ctx, id)
	return nil
}
