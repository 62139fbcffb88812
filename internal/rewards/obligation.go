package rewards

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind distinguishes what an obligation pays for.
type Kind string

const (
	KindMilestone Kind = "milestone"
	KindChallenge Kind = "challenge"
)

// MilestoneRef identifies the idempotency row a milestone payout commits.
type MilestoneRef struct {
	Tier  string
	Month time.Month
	Year  int
}

// Obligation is a computed, not-yet-paid reward queued for dispatch.
// Exactly one of Milestone or Challenge is set, matching Kind.
type Obligation struct {
	ID            uuid.UUID
	Kind          Kind
	RecipientID   string
	RecipientName string
	Amount        decimal.Decimal

	Milestone *MilestoneRef
	Challenge *ChallengeWin
}

// NewMilestoneObligation builds the payout owed for one crossed tier.
func NewMilestoneObligation(userID, username string, tier Tier, month time.Month, year int) Obligation {
	return Obligation{
		ID:            uuid.New(),
		Kind:          KindMilestone,
		RecipientID:   userID,
		RecipientName: username,
		Amount:        tier.Reward,
		Milestone:     &MilestoneRef{Tier: tier.Name, Month: month, Year: year},
	}
}

// NewChallengeObligation builds the prize payout for a confirmed win.
func NewChallengeObligation(win ChallengeWin) Obligation {
	w := win
	return Obligation{
		ID:            uuid.New(),
		Kind:          KindChallenge,
		RecipientID:   win.WinnerID,
		RecipientName: win.WinnerName,
		Amount:        win.Challenge.Prize,
		Challenge:     &w,
	}
}

// Key identifies the underlying reward independent of the obligation
// instance, so a slow queue never holds two entries for the same debt.
func (o Obligation) Key() string {
	switch o.Kind {
	case KindMilestone:
		return fmt.Sprintf("milestone:%s:%s:%d-%02d", o.RecipientID, o.Milestone.Tier, o.Milestone.Year, int(o.Milestone.Month))
	case KindChallenge:
		return fmt.Sprintf("challenge:%d", o.Challenge.Challenge.ID)
	default:
		return fmt.Sprintf("%s:%s:%s", o.Kind, o.RecipientID, o.ID)
	}
}
