package payout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestSendTipSuccess(t *testing.T) {
	var body tipRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Fatalf("unexpected auth header: %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, APIKey: "key", SenderID: "bot", ShowInChat: true}, noopLogger())
	tip := Tip{ToUserID: "u1", ToUserName: "alice", Amount: decimal.RequireFromString("12.50")}
	if err := c.SendTip(context.Background(), tip); err != nil {
		t.Fatalf("send should succeed: %v", err)
	}

	if body.ToUserID != "u1" || body.ToUserName != "alice" {
		t.Fatalf("recipient not forwarded: %#v", body)
	}
	if body.Amount != "12.5" {
		t.Fatalf("unexpected amount: %q", body.Amount)
	}
	if body.UserID != "bot" {
		t.Fatalf("sender id not forwarded: %q", body.UserID)
	}
	if body.Nonce == 0 {
		t.Fatal("nonce must be set")
	}
}

func TestSendTipRetriesRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, APIKey: "key", RetryBase: time.Millisecond}, noopLogger())
	tip := Tip{ToUserID: "u1", ToUserName: "alice", Amount: decimal.NewFromInt(1)}
	if err := c.SendTip(context.Background(), tip); err != nil {
		t.Fatalf("send should recover after 429s: %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestSendTipServerErrorIsTerminal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, APIKey: "key"}, noopLogger())
	tip := Tip{ToUserID: "u1", ToUserName: "alice", Amount: decimal.NewFromInt(1)}
	err := c.SendTip(context.Background(), tip)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("non-429 failure should be terminal ErrRejected, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("terminal failures must not be retried, got %d attempts", calls)
	}
}

func TestSendTipProviderRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": "insufficient balance"})
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, APIKey: "key"}, noopLogger())
	tip := Tip{ToUserID: "u1", ToUserName: "alice", Amount: decimal.NewFromInt(1)}
	err := c.SendTip(context.Background(), tip)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("success=false should map to ErrRejected, got %v", err)
	}
}

func TestNonceMonotonic(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://unused"}, noopLogger())
	prev := c.nextNonce()
	for i := 0; i < 1000; i++ {
		next := c.nextNonce()
		if next <= prev {
			t.Fatalf("nonce must strictly increase: %d then %d", prev, next)
		}
		prev = next
	}
}
