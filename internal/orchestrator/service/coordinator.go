package service

import (
	"context"
	"encoding/json"

	"fleetmaster/internal/models"
	"fleetmaster/pkg/logger"

	"github.com/gorilla/websocket"
)

// Coordinator is the delegate-facing boundary: the transport layer calls it
// to serve polls and to accept task responses. It adds no state of its own;
// the polling cadence contract lives here, the heartbeat comparison in the
// registry, the queue semantics in the task queue.
type Coordinator struct {
	registry   *Registry
	queue      *TaskQueue
	correlator *Correlator
	conns      *ConnectionManager
	logger     *logger.Logger
}

// NewCoordinator creates a new Coordinator.
func NewCoordinator(registry *Registry, queue *TaskQueue, correlator *Correlator, conns *ConnectionManager, logger *logger.Logger) *Coordinator {
	return &Coordinator{
		registry:   registry,
		queue:      queue,
		correlator: correlator,
		conns:      conns,
		logger:     logger,
	}
}

// Acquire serves one poll round trip: it refreshes the delegate's heartbeat
// and returns every task currently visible to it.
func (c *Coordinator) Acquire(ctx context.Context, accountID, delegateID string) ([]*models.DelegateTask, error) {
	if err := c.registry.Heartbeat(ctx, accountID, delegateID); err != nil {
		return nil, err
	}
	return c.queue.GetDelegateTasks(ctx, accountID, delegateID)
}

// SubmitResponse forwards a task response to the correlator.
func (c *Coordinator) SubmitResponse(ctx context.Context, resp *models.DelegateTaskResponse) error {
	return c.correlator.ProcessDelegateResponse(ctx, resp)
}

// AddConnection registers a delegate's notification websocket.
func (c *Coordinator) AddConnection(accountID, delegateID string, conn *websocket.Conn) {
	c.conns.Add(accountID, delegateID, conn)
	c.logger.WithPayload(map[string]interface{}{"delegateId": delegateID}).Info("Delegate notification channel connected")
}

// RemoveConnection drops a delegate's notification websocket.
func (c *Coordinator) RemoveConnection(accountID, delegateID string) {
	c.conns.Remove(accountID, delegateID)
	c.logger.WithPayload(map[string]interface{}{"delegateId": delegateID}).Info("Delegate notification channel disconnected")
}

// QueuedTaskNotifier implements TaskNotifier over the connection manager:
// connected delegates in the tenant get a ping so they can poll immediately.
type QueuedTaskNotifier struct {
	conns *ConnectionManager
}

// NewQueuedTaskNotifier creates a QueuedTaskNotifier.
func NewQueuedTaskNotifier(conns *ConnectionManager) *QueuedTaskNotifier {
	return &QueuedTaskNotifier{conns: conns}
}

// TaskQueued pings every connected delegate in the account.
func (n *QueuedTaskNotifier) TaskQueued(accountID, taskID string) {
	msg, err := json.Marshal(map[string]string{"event": "task_queued", "taskId": taskID})
	if err != nil {
		return
	}
	n.conns.Broadcast(accountID, msg)
}
