package http

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"fleetmaster/internal/config"
	"fleetmaster/pkg/circuitbreaker"
)

func newBreakerClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(config.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          "1m",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestDoCountsServerErrorsTowardsBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newBreakerClient(t)

	for i := 0; i < 2; i++ {
		req, err := http.NewRequest(http.MethodGet, server.URL, nil)
		if err != nil {
			t.Fatalf("NewRequest: %v", err)
		}
		resp, err := client.Do(req)
		if err == nil {
			t.Fatalf("Do %d: err = nil, want server error", i)
		}
		if resp != nil {
			t.Errorf("Do %d: resp = %+v, want nil on failure", i, resp)
		}
	}

	// Two consecutive failures hit the threshold; the next call fails fast.
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if _, err := client.Do(req); !errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		t.Errorf("Do after threshold: err = %v, want ErrCircuitOpen", err)
	}
}

func TestDoReleasesConnectionOnServerError(t *testing.T) {
	var mu sync.Mutex
	opened := 0
	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	server.Config.ConnState = func(c net.Conn, state http.ConnState) {
		if state == http.StateNew {
			mu.Lock()
			opened++
			mu.Unlock()
		}
	}
	server.Start()
	defer server.Close()

	client, err := NewClient(config.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 10,
		SuccessThreshold: 1,
		Timeout:          "1m",
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	// A failed response's body is closed inside Do, so the connection goes
	// back to the idle pool and the follow-up request reuses it.
	for i := 0; i < 2; i++ {
		req, err := http.NewRequest(http.MethodGet, server.URL, nil)
		if err != nil {
			t.Fatalf("NewRequest: %v", err)
		}
		if _, err := client.Do(req); err == nil {
			t.Fatalf("Do %d: err = nil, want server error", i)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if opened != 1 {
		t.Errorf("connections opened = %d, want 1 (failed responses must release their connection)", opened)
	}
}
