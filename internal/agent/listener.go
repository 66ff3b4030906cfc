package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fleetmaster/internal/models"

	"github.com/gorilla/websocket"
)

// ListenForTaskPings keeps a websocket open to the orchestrator and triggers
// an immediate poll whenever a queued-task ping arrives, instead of waiting
// out the poll cadence. The websocket is an optimization: losing it degrades
// to plain polling, so connection errors only back off and retry.
func (r *Runner) ListenForTaskPings(ctx context.Context) {
	if r.delegateID == "" {
		return
	}

	wsBase := strings.Replace(r.cfg.OrchestratorAddress, "http", "ws", 1)
	url := fmt.Sprintf("%s/api/v1/accounts/%s/delegates/%s/ws", wsBase, r.cfg.AccountID, r.delegateID)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			if err != nil {
				r.logger.WithError(models.ErrorInfo{Message: err.Error()}).Debug("Task ping channel unavailable, falling back to polling")
				select {
				case <-ctx.Done():
					return
				case <-time.After(10 * time.Second):
				}
				continue
			}

			r.readPings(ctx, conn)
			conn.Close()
		}
	}()
}

func (r *Runner) readPings(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		r.pollOnce(ctx)
	}
}
