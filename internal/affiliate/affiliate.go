package affiliate

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StatsFetcher retrieves per-user wager stats for a date window.
type StatsFetcher interface {
	FetchStats(ctx context.Context, start, end time.Time, gameIDs ...string) ([]Entry, error)
}

// HighestMultiplier is the best single-bet result a user hit in the window.
type HighestMultiplier struct {
	GameID     string
	GameTitle  string
	Multiplier decimal.Decimal
	Bet        decimal.Decimal
	Payout     decimal.Decimal
}

// Entry is one user's aggregated stats for a date window. Entries are
// consumed then discarded; the next fetch supersedes them.
type Entry struct {
	UID               string
	Username          string
	Wagered           decimal.Decimal
	WeightedWagered   decimal.Decimal
	HighestMultiplier *HighestMultiplier
}
