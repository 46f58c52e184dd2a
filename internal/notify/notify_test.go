package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig(url string) Config {
	return Config{URL: url, Timeout: 2 * time.Second, RetryCount: 2, OnSuccess: true, OnFailure: true}
}

func TestWebhook_Notify(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := NewWebhook(testConfig(srv.URL)).Notify(context.Background(), Event{
		Outcome:  OutcomeSuccess,
		FileName: "orders.csv",
		Rows:     12,
	})
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if got.FileName != "orders.csv" || got.Rows != 12 || got.At.IsZero() {
		t.Errorf("received %+v", got)
	}
}

func TestWebhook_ServerErrorFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhook(testConfig(srv.URL)).Notify(context.Background(), Event{Outcome: OutcomeFailure}); err == nil {
		t.Fatal("Notify() should fail when the webhook keeps returning 502")
	}
	if n := calls.Load(); n < 1 || n > 3 {
		t.Errorf("calls = %d, want 1..3", n)
	}
}

func TestWebhook_ClientErrorFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if err := NewWebhook(testConfig(srv.URL)).Notify(context.Background(), Event{Outcome: OutcomeSuccess}); err == nil {
		t.Error("Notify() should fail on 404")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", calls.Load())
	}
}

func TestWebhook_FiltersOutcomes(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.OnSuccess = false
	w := NewWebhook(cfg)
	_ = w.Notify(context.Background(), Event{Outcome: OutcomeSuccess})
	_ = w.Notify(context.Background(), Event{Outcome: OutcomeFailure})

	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}
