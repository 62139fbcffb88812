package affiliate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func window() (time.Time, time.Time) {
	end := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), end
}

func TestFetchStatsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Fatalf("unexpected auth header: %q", got)
		}
		if got := r.URL.Query().Get("startDate"); got != "2025-06-01" {
			t.Fatalf("unexpected startDate: %q", got)
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{
				"uid":             "u1",
				"username":        "alice",
				"wagered":         "1200.50",
				"weightedWagered": "800.25",
				"highestMultiplier": map[string]any{
					"gameIdentifier": "slots:gates",
					"gameTitle":      "Gates of Olympus",
					"multiplier":     152.4,
					"wagered":        "2.00",
					"payout":         "304.80",
				},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, APIKey: "key"}, noopLogger())
	start, end := window()
	entries, err := c.FetchStats(context.Background(), start, end)
	if err != nil {
		t.Fatalf("fetch should succeed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Username != "alice" {
		t.Fatalf("unexpected username: %q", entries[0].Username)
	}
	if entries[0].HighestMultiplier == nil || entries[0].HighestMultiplier.GameID != "slots:gates" {
		t.Fatalf("highest multiplier not decoded: %#v", entries[0].HighestMultiplier)
	}
}

func TestFetchStatsDataEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"uid": "u2", "username": "bob", "wagered": "5", "weightedWagered": "3"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, APIKey: "key"}, noopLogger())
	start, end := window()
	entries, err := c.FetchStats(context.Background(), start, end)
	if err != nil {
		t.Fatalf("fetch should succeed: %v", err)
	}
	if len(entries) != 1 || entries[0].UID != "u2" {
		t.Fatalf("envelope not decoded: %#v", entries)
	}
}

func TestFetchStatsRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, APIKey: "key", RetryBase: time.Millisecond}, noopLogger())
	start, end := window()

	entries, err := c.FetchStats(context.Background(), start, end)
	if err != nil {
		t.Fatalf("fetch should recover after retries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty result, got %d", len(entries))
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestFetchStatsClientErrorIsTerminal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, APIKey: "bad"}, noopLogger())
	start, end := window()
	if _, err := c.FetchStats(context.Background(), start, end); err == nil {
		t.Fatal("401 should be a terminal error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("4xx must not be retried, got %d attempts", calls)
	}
}

func TestFetchStatsNoDataIsEmptySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "no data"})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, APIKey: "key"}, noopLogger())
	start, end := window()
	entries, err := c.FetchStats(context.Background(), start, end)
	if err != nil {
		t.Fatalf("documented no-data case should be an empty success: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty result, got %d", len(entries))
	}
}

func TestFetchStatsMalformedBodyDegradesToEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"totally":"different"}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, APIKey: "key"}, noopLogger())
	start, end := window()
	entries, err := c.FetchStats(context.Background(), start, end)
	if err != nil {
		t.Fatalf("malformed body should degrade to empty, not error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty result, got %d", len(entries))
	}
}
