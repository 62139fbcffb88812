package rewards

import (
	"time"

	"github.com/shopspring/decimal"

	"wager-rewards/internal/affiliate"
)

// Challenge is a live wager contest: first user to hit the required
// multiplier on the named game, optionally with a minimum qualifying bet.
type Challenge struct {
	ID                 int64
	GameID             string
	GameTitle          string
	RequiredMultiplier decimal.Decimal
	Prize              decimal.Decimal
	MinBet             *decimal.Decimal
	StartTime          time.Time
	CreatedBy          string
	CreatedByName      string
	MessageRef         string
}

// ChallengeWin records a qualifying win: winner identity, the result that
// won, and the challenge's defining parameters at completion time.
type ChallengeWin struct {
	Challenge    Challenge
	WinnerID     string
	WinnerName   string
	Multiplier   decimal.Decimal
	Bet          decimal.Decimal
	Payout       decimal.Decimal
	RunnerUpID   string
	RunnerUpName string
}

// EvaluateChallenge scans snapshot entries for a qualifying win. The winner
// is the entry with the highest qualifying multiplier (first encountered on
// a tie); the runner-up, when present, is the second highest. A challenge
// with no qualifier stays active and is re-evaluated next cycle.
//
// The upstream snapshot covers the whole month, so results placed before
// StartTime can qualify. TODO: filter by wager timestamp once the affiliate
// stats endpoint exposes per-bet times.
func EvaluateChallenge(ch Challenge, entries []affiliate.Entry) (ChallengeWin, bool) {
	var winner, runnerUp *affiliate.Entry

	for i := range entries {
		entry := &entries[i]
		hm := entry.HighestMultiplier
		if hm == nil || hm.GameID != ch.GameID {
			continue
		}
		if hm.Multiplier.LessThan(ch.RequiredMultiplier) {
			continue
		}
		if ch.MinBet != nil && hm.Bet.LessThan(*ch.MinBet) {
			continue
		}

		switch {
		case winner == nil:
			winner = entry
		case hm.Multiplier.GreaterThan(winner.HighestMultiplier.Multiplier):
			runnerUp = winner
			winner = entry
		case runnerUp == nil || hm.Multiplier.GreaterThan(runnerUp.HighestMultiplier.Multiplier):
			runnerUp = entry
		}
	}

	if winner == nil {
		return ChallengeWin{}, false
	}

	win := ChallengeWin{
		Challenge:  ch,
		WinnerID:   winner.UID,
		WinnerName: winner.Username,
		Multiplier: winner.HighestMultiplier.Multiplier,
		Bet:        winner.HighestMultiplier.Bet,
		Payout:     winner.HighestMultiplier.Payout,
	}
	if runnerUp != nil {
		win.RunnerUpID = runnerUp.UID
		win.RunnerUpName = runnerUp.Username
	}
	return win, true
}
