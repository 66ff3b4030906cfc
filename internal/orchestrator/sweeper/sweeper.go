package sweeper

import (
	"context"
	"encoding/json"
	"time"

	"fleetmaster/internal/models"
	"fleetmaster/internal/orchestrator/service"
	"fleetmaster/internal/orchestrator/store"
	"fleetmaster/pkg/logger"
)

// Sweeper periodically reclaims dead capacity: delegates whose heartbeat has
// gone stale are disabled, and tasks that outlived their retention window are
// removed and their waiters released with an expiry payload.
type Sweeper struct {
	delegates   store.DelegateStore
	tasks       store.TaskStore
	cache       service.LivenessCache
	waits       *service.WaitRegistry
	logger      *logger.Logger
	interval    time.Duration
	delegateTTL time.Duration
	taskTTL     time.Duration
}

// NewSweeper creates a new Sweeper.
func NewSweeper(delegates store.DelegateStore, tasks store.TaskStore, cache service.LivenessCache, waits *service.WaitRegistry, logger *logger.Logger, interval, delegateTTL, taskTTL time.Duration) *Sweeper {
	return &Sweeper{
		delegates:   delegates,
		tasks:       tasks,
		cache:       cache,
		waits:       waits,
		logger:      logger,
		interval:    interval,
		delegateTTL: delegateTTL,
		taskTTL:     taskTTL,
	}
}

// Start runs the sweep loop until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Stopping sweeper...")
				return
			case <-ticker.C:
				s.SweepDelegates(ctx)
				s.SweepTasks(ctx)
			}
		}
	}()
}

// SweepDelegates disables enabled delegates whose last heartbeat is older
// than the delegate TTL. The Redis liveness key is checked first so a
// delegate that heartbeated since the store snapshot is left alone.
func (s *Sweeper) SweepDelegates(ctx context.Context) {
	cutoff := time.Now().Add(-s.delegateTTL).UnixMilli()
	stale, err := s.delegates.ListHeartBeatBefore(ctx, cutoff)
	if err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to list stale delegates")
		return
	}

	for _, d := range stale {
		alive, err := s.cache.Alive(ctx, d.ID)
		if err != nil {
			s.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
				"delegateId": d.ID,
			}).Warn("Liveness check failed, skipping delegate")
			continue
		}
		if alive {
			continue
		}

		// The staleness check rides inside the write: a heartbeat that
		// lands after the scan above keeps the delegate enabled.
		disabled, err := s.delegates.DisableStale(ctx, d.AccountID, d.ID, cutoff)
		if err != nil {
			s.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
				"delegateId": d.ID,
			}).Error("Failed to disable stale delegate")
			continue
		}
		if disabled {
			s.logger.WithPayload(map[string]interface{}{
				"delegateId":    d.ID,
				"accountId":     d.AccountID,
				"lastHeartBeat": d.LastHeartBeat,
			}).Info("Disabled stale delegate")
		}
	}
}

// SweepTasks removes tasks older than the task TTL and notifies any waiter
// bound to them so callers are not left hanging past retention.
func (s *Sweeper) SweepTasks(ctx context.Context) {
	cutoff := time.Now().Add(-s.taskTTL)
	expired, err := s.tasks.ListCreatedBefore(ctx, cutoff)
	if err != nil {
		s.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to list expired tasks")
		return
	}

	for _, t := range expired {
		removed, err := s.tasks.Remove(ctx, t.TaskID)
		if err != nil {
			s.logger.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
				"taskId": t.TaskID,
			}).Error("Failed to remove expired task")
			continue
		}
		if removed == nil {
			// Completed between listing and removal, nothing to do.
			continue
		}

		if removed.WaitID != "" {
			payload, _ := json.Marshal(map[string]string{
				"error":  "task expired before a response was received",
				"taskId": removed.TaskID,
			})
			s.waits.Notify(removed.WaitID, payload)
		}
		s.logger.WithPayload(map[string]interface{}{
			"taskId":    removed.TaskID,
			"accountId": removed.AccountID,
			"createdAt": removed.CreatedAt,
		}).Info("Removed expired task")
	}
}
