package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestNotifyIsOneShot(t *testing.T) {
	w := NewWaitRegistry()

	ch, err := w.Bind("w-1")
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}

	if !w.Notify("w-1", json.RawMessage(`{"ok":true}`)) {
		t.Fatal("first Notify reported no waiter")
	}
	if w.Notify("w-1", json.RawMessage(`{"ok":false}`)) {
		t.Error("second Notify on the same wait id must report false")
	}

	payload := <-ch
	if string(payload) != `{"ok":true}` {
		t.Errorf("payload = %s, want the first notification", payload)
	}
	if _, open := <-ch; open {
		t.Error("channel must be closed after delivery")
	}
	if w.Pending() != 0 {
		t.Errorf("pending bindings = %d, want 0", w.Pending())
	}
}

func TestBindRejectsDuplicateAndEmpty(t *testing.T) {
	w := NewWaitRegistry()

	if _, err := w.Bind(""); err == nil {
		t.Error("Bind with empty wait id must fail")
	}
	if _, err := w.Bind("w-1"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if _, err := w.Bind("w-1"); err == nil {
		t.Error("second Bind on a bound wait id must fail")
	}

	w.Unbind("w-1")
	if _, err := w.Bind("w-1"); err != nil {
		t.Errorf("Bind after Unbind: %v", err)
	}
}

func TestNotifyWithoutWaiter(t *testing.T) {
	w := NewWaitRegistry()
	if w.Notify("w-unknown", json.RawMessage(`{}`)) {
		t.Error("Notify without a binding must report false")
	}
}

func TestAwaitReceivesNotification(t *testing.T) {
	w := NewWaitRegistry()

	done := make(chan struct{})
	go func() {
		defer close(done)
		payload, err := w.Await(context.Background(), "w-1")
		if err != nil {
			t.Errorf("Await: %v", err)
			return
		}
		if string(payload) != `"result"` {
			t.Errorf("payload = %s, want \"result\"", payload)
		}
	}()

	// Wait for the binding to appear before notifying.
	deadline := time.Now().Add(time.Second)
	for w.Pending() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Await never bound the wait id")
		}
		time.Sleep(time.Millisecond)
	}

	if !w.Notify("w-1", json.RawMessage(`"result"`)) {
		t.Fatal("Notify found no waiter")
	}
	<-done
}

func TestAwaitHonorsContext(t *testing.T) {
	w := NewWaitRegistry()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := w.Await(ctx, "w-1"); err == nil {
		t.Fatal("Await must fail when the context expires")
	}
	if w.Pending() != 0 {
		t.Errorf("pending bindings = %d, want 0 after expiry", w.Pending())
	}
}
