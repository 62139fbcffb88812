package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"wager-rewards/internal/payout"
	"wager-rewards/internal/rewards"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []payout.Tip
	fail  bool
	times []time.Time
}

func (f *fakeSender) SendTip(ctx context.Context, tip payout.Tip) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.times = append(f.times, time.Now())
	if f.fail {
		return errors.New("provider down")
	}
	f.sent = append(f.sent, tip)
	return nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeRecorder struct {
	mu        sync.Mutex
	committed []rewards.Obligation
	fail      bool
}

func (f *fakeRecorder) Commit(ctx context.Context, ob rewards.Obligation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("db down")
	}
	f.committed = append(f.committed, ob)
	return nil
}

func (f *fakeRecorder) committedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.committed)
}

func milestoneOb(uid, tier string) rewards.Obligation {
	return rewards.NewMilestoneObligation(uid, uid, rewards.Tier{
		Name:      tier,
		Threshold: decimal.NewFromInt(1000),
		Reward:    decimal.NewFromInt(10),
	}, time.June, 2025)
}

func runDispatcher(t *testing.T, d *Dispatcher) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSuccessCommitsAndReportsOutcome(t *testing.T) {
	sender := &fakeSender{}
	recorder := &fakeRecorder{}

	var mu sync.Mutex
	var outcomes []Outcome
	d := New(sender, recorder, Options{
		OnOutcome: func(o Outcome) {
			mu.Lock()
			outcomes = append(outcomes, o)
			mu.Unlock()
		},
	}, zerolog.Nop())
	runDispatcher(t, d)

	if !d.Enqueue(milestoneOb("u1", "bronze")) {
		t.Fatal("first enqueue must be accepted")
	}

	waitFor(t, func() bool { return recorder.committedCount() == 1 })
	if sender.sentCount() != 1 {
		t.Fatalf("expected 1 tip sent, got %d", sender.sentCount())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(outcomes) != 1 || outcomes[0].Err != nil {
		t.Fatalf("expected one successful outcome: %#v", outcomes)
	}
}

func TestFailureDoesNotCommit(t *testing.T) {
	sender := &fakeSender{fail: true}
	recorder := &fakeRecorder{}

	var mu sync.Mutex
	var outcomes []Outcome
	d := New(sender, recorder, Options{
		OnOutcome: func(o Outcome) {
			mu.Lock()
			outcomes = append(outcomes, o)
			mu.Unlock()
		},
	}, zerolog.Nop())
	runDispatcher(t, d)

	d.Enqueue(milestoneOb("u1", "bronze"))

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(outcomes) == 1
	})

	if recorder.committedCount() != 0 {
		t.Fatal("failed payout must not write an idempotency record")
	}

	mu.Lock()
	failedErr := outcomes[0].Err
	mu.Unlock()
	if failedErr == nil {
		t.Fatal("outcome must carry the send error")
	}

	// The key is free again, so the next evaluation cycle can re-detect
	// the unpaid reward and enqueue it.
	if !d.Enqueue(milestoneOb("u1", "bronze")) {
		t.Fatal("failed obligation must be enqueueable again")
	}
}

func TestPendingKeyDedup(t *testing.T) {
	sender := &fakeSender{}
	recorder := &fakeRecorder{}
	d := New(sender, recorder, Options{Cooldown: time.Hour}, zerolog.Nop())
	// Not running: items stay queued.

	if !d.Enqueue(milestoneOb("u1", "bronze")) {
		t.Fatal("first enqueue must be accepted")
	}
	if d.Enqueue(milestoneOb("u1", "bronze")) {
		t.Fatal("same reward must be deduplicated while pending")
	}
	if !d.Enqueue(milestoneOb("u1", "silver")) {
		t.Fatal("different tier is a different debt")
	}
	if !d.Enqueue(milestoneOb("u2", "bronze")) {
		t.Fatal("different user is a different debt")
	}
	if d.Len() != 3 {
		t.Fatalf("expected 3 queued, got %d", d.Len())
	}
}

func TestSerializedWithCooldown(t *testing.T) {
	sender := &fakeSender{}
	recorder := &fakeRecorder{}
	cooldown := 50 * time.Millisecond
	d := New(sender, recorder, Options{Cooldown: cooldown}, zerolog.Nop())

	d.Enqueue(milestoneOb("u1", "bronze"))
	d.Enqueue(milestoneOb("u2", "bronze"))
	d.Enqueue(milestoneOb("u3", "bronze"))
	runDispatcher(t, d)

	waitFor(t, func() bool { return sender.sentCount() == 3 })

	sender.mu.Lock()
	defer sender.mu.Unlock()
	for i := 1; i < len(sender.times); i++ {
		gap := sender.times[i].Sub(sender.times[i-1])
		if gap < cooldown {
			t.Fatalf("dispatch %d followed after %s, cooldown is %s", i, gap, cooldown)
		}
	}
}

func TestFIFOOrder(t *testing.T) {
	sender := &fakeSender{}
	recorder := &fakeRecorder{}
	d := New(sender, recorder, Options{}, zerolog.Nop())

	d.Enqueue(milestoneOb("first", "bronze"))
	d.Enqueue(milestoneOb("second", "bronze"))
	d.Enqueue(milestoneOb("third", "bronze"))
	runDispatcher(t, d)

	waitFor(t, func() bool { return sender.sentCount() == 3 })

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if sender.sent[0].ToUserID != "first" || sender.sent[1].ToUserID != "second" || sender.sent[2].ToUserID != "third" {
		t.Fatalf("queue must drain in FIFO order: %#v", sender.sent)
	}
}
