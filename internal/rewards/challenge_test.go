package rewards

import (
	"testing"

	"github.com/shopspring/decimal"

	"wager-rewards/internal/affiliate"
)

func challengeEntry(uid, gameID string, multiplier, bet float64) affiliate.Entry {
	return affiliate.Entry{
		UID:      uid,
		Username: uid,
		HighestMultiplier: &affiliate.HighestMultiplier{
			GameID:     gameID,
			Multiplier: decimal.NewFromFloat(multiplier),
			Bet:        decimal.NewFromFloat(bet),
			Payout:     decimal.NewFromFloat(multiplier * bet),
		},
	}
}

func testChallenge(minBet float64) Challenge {
	ch := Challenge{
		ID:                 7,
		GameID:             "slots:gates",
		GameTitle:          "Gates of Olympus",
		RequiredMultiplier: decimal.NewFromInt(100),
		Prize:              decimal.NewFromInt(25),
	}
	if minBet > 0 {
		mb := decimal.NewFromFloat(minBet)
		ch.MinBet = &mb
	}
	return ch
}

func TestMinBetDisqualifiesHigherMultiplier(t *testing.T) {
	ch := testChallenge(10)
	entries := []affiliate.Entry{
		challengeEntry("a", "slots:gates", 150, 20),
		challengeEntry("b", "slots:gates", 200, 5),
	}

	win, ok := EvaluateChallenge(ch, entries)
	if !ok {
		t.Fatal("expected a winner")
	}
	if win.WinnerID != "a" {
		t.Fatalf("b fails min bet, winner must be a, got %s", win.WinnerID)
	}
	if win.RunnerUpID != "" {
		t.Fatalf("disqualified entries cannot be runner-up, got %s", win.RunnerUpID)
	}
}

func TestHighestQualifyingMultiplierWins(t *testing.T) {
	ch := testChallenge(0)
	entries := []affiliate.Entry{
		challengeEntry("a", "slots:gates", 120, 1),
		challengeEntry("b", "slots:gates", 310, 1),
		challengeEntry("c", "slots:gates", 250, 1),
	}

	win, ok := EvaluateChallenge(ch, entries)
	if !ok {
		t.Fatal("expected a winner")
	}
	if win.WinnerID != "b" {
		t.Fatalf("winner must have the top multiplier, got %s", win.WinnerID)
	}
	if win.RunnerUpID != "c" {
		t.Fatalf("runner-up must be second highest, got %s", win.RunnerUpID)
	}
	if !win.Multiplier.Equal(decimal.NewFromInt(310)) {
		t.Fatalf("win must carry the achieved multiplier, got %s", win.Multiplier)
	}
}

func TestTieGoesToFirstEncountered(t *testing.T) {
	ch := testChallenge(0)
	entries := []affiliate.Entry{
		challengeEntry("first", "slots:gates", 200, 1),
		challengeEntry("second", "slots:gates", 200, 1),
	}

	win, ok := EvaluateChallenge(ch, entries)
	if !ok || win.WinnerID != "first" {
		t.Fatalf("tie must go to the first encountered entry, got %s", win.WinnerID)
	}
}

func TestOtherGamesDoNotQualify(t *testing.T) {
	ch := testChallenge(0)
	entries := []affiliate.Entry{
		challengeEntry("a", "slots:other", 500, 1),
		{UID: "nomult", Username: "nomult"},
	}

	if _, ok := EvaluateChallenge(ch, entries); ok {
		t.Fatal("wrong game or missing multiplier must not win")
	}
}

func TestNoQualifierMeansNoWin(t *testing.T) {
	ch := testChallenge(10)
	entries := []affiliate.Entry{
		challengeEntry("a", "slots:gates", 99.9, 20),
		challengeEntry("b", "slots:gates", 150, 9.99),
	}

	if _, ok := EvaluateChallenge(ch, entries); ok {
		t.Fatal("sub-threshold and sub-min-bet entries must leave the challenge open")
	}
}

func TestRequiredMultiplierIsInclusive(t *testing.T) {
	ch := testChallenge(0)
	entries := []affiliate.Entry{challengeEntry("a", "slots:gates", 100, 1)}

	win, ok := EvaluateChallenge(ch, entries)
	if !ok || win.WinnerID != "a" {
		t.Fatal("exactly hitting the required multiplier must qualify")
	}
}

func TestChallengeObligationCarriesPrize(t *testing.T) {
	ch := testChallenge(0)
	win, ok := EvaluateChallenge(ch, []affiliate.Entry{challengeEntry("a", "slots:gates", 150, 2)})
	if !ok {
		t.Fatal("expected a winner")
	}

	ob := NewChallengeObligation(win)
	if ob.Kind != KindChallenge || ob.RecipientID != "a" {
		t.Fatalf("wrong obligation shape: %#v", ob)
	}
	if !ob.Amount.Equal(ch.Prize) {
		t.Fatalf("obligation must pay the prize, got %s", ob.Amount)
	}
	if ob.Key() != "challenge:7" {
		t.Fatalf("unexpected key: %q", ob.Key())
	}
}
