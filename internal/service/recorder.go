package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"wager-rewards/internal/dispatch"
	"wager-rewards/internal/notify"
	"wager-rewards/internal/rewards"
	"wager-rewards/internal/storage"
)

// Committer persists idempotency state for confirmed payouts. It runs in
// the dispatcher's consumer goroutine, strictly after the payout API
// reported success.
type Committer struct {
	milestones storage.MilestoneStore
	challenges storage.ChallengeStore
	logger     zerolog.Logger
}

// NewCommitter constructs a Committer.
func NewCommitter(milestones storage.MilestoneStore, challenges storage.ChallengeStore, logger zerolog.Logger) *Committer {
	return &Committer{
		milestones: milestones,
		challenges: challenges,
		logger:     logger.With().Str("component", "committer").Logger(),
	}
}

// Commit writes the marker matching the obligation's kind. A marker that
// already exists means a concurrent writer got there first; that is an
// idempotent no-op, not an error.
func (c *Committer) Commit(ctx context.Context, ob rewards.Obligation) error {
	switch ob.Kind {
	case rewards.KindMilestone:
		inserted, err := c.milestones.MarkMilestonePaid(ctx, ob.RecipientID, ob.Milestone.Tier, ob.Milestone.Month, ob.Milestone.Year)
		if err != nil {
			return err
		}
		if !inserted {
			c.logger.Warn().Str("user", ob.RecipientID).Str("tier", ob.Milestone.Tier).Msg("milestone already marked paid")
		}
		return nil
	case rewards.KindChallenge:
		err := c.challenges.CompleteChallenge(ctx, *ob.Challenge)
		if errors.Is(err, storage.ErrChallengeNotActive) {
			c.logger.Warn().Int64("challenge_id", ob.Challenge.Challenge.ID).Msg("challenge already completed")
			return nil
		}
		return err
	default:
		return fmt.Errorf("unknown obligation kind %q", ob.Kind)
	}
}

var _ dispatch.Recorder = (*Committer)(nil)

// OutcomeHandler logs every terminal dispatch result to the payout log and
// announces confirmed payouts. Both are observational: their failures are
// logged and never touch payment state.
type OutcomeHandler struct {
	log      storage.PayoutLog
	notifier notify.Notifier
	logger   zerolog.Logger
}

// NewOutcomeHandler constructs an OutcomeHandler. notifier may be nil.
func NewOutcomeHandler(log storage.PayoutLog, notifier notify.Notifier, logger zerolog.Logger) *OutcomeHandler {
	return &OutcomeHandler{
		log:      log,
		notifier: notifier,
		logger:   logger.With().Str("component", "outcomes").Logger(),
	}
}

// Handle processes one dispatch outcome.
func (h *OutcomeHandler) Handle(o dispatch.Outcome) {
	ctx := context.Background()
	ob := o.Obligation

	rec := storage.PayoutRecord{
		ObligationID:  ob.ID.String(),
		RecipientID:   ob.RecipientID,
		RecipientName: ob.RecipientName,
		Amount:        ob.Amount,
		Kind:          string(ob.Kind),
		Reference:     ob.Key(),
		Status:        storage.PayoutStatusPaid,
	}
	if o.Err != nil {
		rec.Status = storage.PayoutStatusFailed
		msg := o.Err.Error()
		rec.Error = &msg
	}

	if h.log != nil {
		if err := h.log.RecordPayout(ctx, rec); err != nil {
			h.logger.Error().Err(err).Str("obligation_id", rec.ObligationID).Msg("failed to record payout outcome")
		}
	}

	if o.Err == nil && h.notifier != nil {
		a := notify.Announcement{
			RecipientName: ob.RecipientName,
			Amount:        ob.Amount,
			Kind:          string(ob.Kind),
			At:            o.At,
		}
		if ob.Kind == rewards.KindChallenge && ob.Challenge != nil {
			a.Detail = fmt.Sprintf("%s at %sx", ob.Challenge.Challenge.GameTitle, ob.Challenge.Multiplier.String())
		}
		if err := h.notifier.Announce(ctx, a); err != nil {
			h.logger.Error().Err(err).Str("obligation_id", rec.ObligationID).Msg("failed to announce payout")
		}
	}
}
