package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// WaitRegistry is the correlation map between wait ids and the callers
// suspended on them. At most one binding exists per wait id at a time, and
// resolving a binding is a one-shot operation: the second Notify on the same
// wait id finds no binding and reports false.
type WaitRegistry struct {
	mu      sync.Mutex
	waiters map[string]chan json.RawMessage
}

// NewWaitRegistry creates an empty WaitRegistry.
func NewWaitRegistry() *WaitRegistry {
	return &WaitRegistry{
		waiters: make(map[string]chan json.RawMessage),
	}
}

// Bind registers a waiter for the wait id and returns the channel the result
// will be delivered on. Binding an already-bound wait id is an error.
func (w *WaitRegistry) Bind(waitID string) (<-chan json.RawMessage, error) {
	if waitID == "" {
		return nil, fmt.Errorf("wait id must not be empty")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.waiters[waitID]; exists {
		return nil, fmt.Errorf("wait id %q is already bound", waitID)
	}

	// Buffered so Notify never blocks on a slow or abandoned waiter.
	ch := make(chan json.RawMessage, 1)
	w.waiters[waitID] = ch
	return ch, nil
}

// Unbind drops the binding without delivering anything. Callers use it when
// they give up waiting (timeout, cancellation).
func (w *WaitRegistry) Unbind(waitID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.waiters, waitID)
}

// Notify delivers the payload to the waiter bound to the wait id and removes
// the binding under the lock, making double delivery impossible. It reports
// whether a waiter was actually resolved.
func (w *WaitRegistry) Notify(waitID string, payload json.RawMessage) bool {
	w.mu.Lock()
	ch, ok := w.waiters[waitID]
	if ok {
		delete(w.waiters, waitID)
	}
	w.mu.Unlock()

	if !ok {
		return false
	}
	ch <- payload
	close(ch)
	return true
}

// Await binds the wait id and blocks until the result arrives or the context
// is done. On context expiry the binding is removed so the wait id can be
// reused by a retry.
func (w *WaitRegistry) Await(ctx context.Context, waitID string) (json.RawMessage, error) {
	ch, err := w.Bind(waitID)
	if err != nil {
		return nil, err
	}

	select {
	case payload := <-ch:
		return payload, nil
	case <-ctx.Done():
		w.Unbind(waitID)
		return nil, ctx.Err()
	}
}

// Pending returns the number of outstanding bindings.
func (w *WaitRegistry) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.waiters)
}
