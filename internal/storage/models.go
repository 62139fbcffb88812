package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaidMilestone is the persisted fact that one (user, tier, period) reward
// went out. Unique per user/tier/month/year; written only after a
// confirmed payout.
type PaidMilestone struct {
	UserID string
	Tier   string
	Month  int
	Year   int
	PaidAt time.Time
}

// ChallengeResult is the immutable historical record of a completed
// challenge, including its defining parameters at completion time.
type ChallengeResult struct {
	ID                 int64
	ChallengeID        int64
	GameID             string
	GameTitle          string
	RequiredMultiplier decimal.Decimal
	Prize              decimal.Decimal
	MinBet             *decimal.Decimal
	WinnerID           string
	WinnerName         string
	Multiplier         decimal.Decimal
	Bet                decimal.Decimal
	Payout             decimal.Decimal
	RunnerUpID         *string
	RunnerUpName       *string
	CompletedAt        time.Time
}

// PayoutRecord is one row of the historical payout log, success or failure.
type PayoutRecord struct {
	ID            int64
	ObligationID  string
	RecipientID   string
	RecipientName string
	Amount        decimal.Decimal
	Kind          string
	Reference     string
	Status        string
	Error         *string
	CreatedAt     time.Time
}

// Payout log statuses.
const (
	PayoutStatusPaid   = "paid"
	PayoutStatusFailed = "failed"
)
