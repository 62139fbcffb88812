package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wager-rewards/internal/payout"
	"wager-rewards/internal/rewards"
)

// Recorder commits the idempotency state for a successfully paid
// obligation: the paid-milestone marker, or the challenge completion.
// It is invoked only after the payout API confirmed the send.
type Recorder interface {
	Commit(ctx context.Context, ob rewards.Obligation) error
}

// Outcome reports one terminal dispatch result to the observer.
type Outcome struct {
	Obligation rewards.Obligation
	Err        error
	At         time.Time
}

// Options tune the dispatcher.
type Options struct {
	// Cooldown is the fixed wait after every dispatch, success or failure.
	// It throttles the payout API call rate.
	Cooldown time.Duration
	// OnOutcome, when set, observes every terminal result. Called from
	// the consumer goroutine.
	OnOutcome func(Outcome)
}

// Dispatcher drains payout obligations one at a time. Many producers
// enqueue; exactly one consumer (Run) dequeues. A failed send is never
// retried or re-enqueued here: the evaluators regenerate the obligation on
// the next cycle because its idempotency record was never written.
type Dispatcher struct {
	sender   payout.Sender
	recorder Recorder
	opts     Options
	logger   zerolog.Logger

	mu      sync.Mutex
	queue   []rewards.Obligation
	pending map[string]struct{}
	wake    chan struct{}
}

// New constructs a Dispatcher.
func New(sender payout.Sender, recorder Recorder, opts Options, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sender:   sender,
		recorder: recorder,
		opts:     opts,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
		pending:  make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
	}
}

// Enqueue appends an obligation to the queue. Returns false when the same
// underlying reward is already queued or in flight, so overlapping
// evaluation cycles cannot double-book a debt the queue has not drained.
func (d *Dispatcher) Enqueue(ob rewards.Obligation) bool {
	key := ob.Key()

	d.mu.Lock()
	if _, exists := d.pending[key]; exists {
		d.mu.Unlock()
		d.logger.Debug().Str("key", key).Msg("obligation already pending, skipping")
		return false
	}
	d.pending[key] = struct{}{}
	d.queue = append(d.queue, ob)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return true
}

// Len returns the number of queued (not yet taken) obligations.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Run is the single consumer loop. Blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		ob, ok := d.take()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-d.wake:
			}
			continue
		}

		d.dispatch(ctx, ob)

		if d.opts.Cooldown > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.opts.Cooldown):
			}
		}
	}
}

func (d *Dispatcher) take() (rewards.Obligation, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return rewards.Obligation{}, false
	}
	ob := d.queue[0]
	d.queue = d.queue[1:]
	return ob, true
}

func (d *Dispatcher) dispatch(ctx context.Context, ob rewards.Obligation) {
	logger := d.logger.With().
		Str("obligation_id", ob.ID.String()).
		Str("kind", string(ob.Kind)).
		Str("recipient", ob.RecipientID).
		Str("amount", ob.Amount.String()).
		Logger()

	err := d.sender.SendTip(ctx, payout.Tip{
		ToUserID:   ob.RecipientID,
		ToUserName: ob.RecipientName,
		Amount:     ob.Amount,
	})

	if err == nil {
		if commitErr := d.recorder.Commit(ctx, ob); commitErr != nil {
			// The tip went out but the marker did not stick; the next cycle
			// will see the reward as still owed. Loud log so an operator can
			// reconcile the ledger by hand.
			logger.Error().Err(commitErr).Msg("payout sent but idempotency commit failed")
		} else {
			logger.Info().Msg("payout dispatched")
		}
	} else {
		logger.Error().Err(err).Msg("payout failed, will resurface next cycle")
	}

	d.mu.Lock()
	delete(d.pending, ob.Key())
	d.mu.Unlock()

	if d.opts.OnOutcome != nil {
		d.opts.OnOutcome(Outcome{Obligation: ob, Err: err, At: time.Now().UTC()})
	}
}
