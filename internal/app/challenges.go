package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"wager-rewards/internal/rewards"
)

// ChallengeAdd creates a new active challenge and prints its id.
func (a *App) ChallengeAdd(ctx context.Context, opts ChallengeAddOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot add challenge")
	}
	defer closeStore()

	ch := rewards.Challenge{
		GameID:             opts.GameID,
		GameTitle:          opts.GameTitle,
		RequiredMultiplier: decimal.NewFromFloat(opts.Multiplier),
		Prize:              decimal.NewFromFloat(opts.Prize),
		StartTime:          time.Now().UTC(),
		CreatedBy:          opts.CreatedBy,
		CreatedByName:      opts.CreatedByName,
	}
	if opts.MinBet > 0 {
		minBet := decimal.NewFromFloat(opts.MinBet)
		ch.MinBet = &minBet
	}

	id, err := store.AddChallenge(ctx, ch)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "challenge %d created: %s at %sx for %s\n",
		id, ch.GameTitle, ch.RequiredMultiplier.String(), ch.Prize.StringFixed(2))
	return nil
}

// ChallengeList prints every active challenge.
func (a *App) ChallengeList(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot list challenges")
	}
	defer closeStore()

	active, err := store.ListActiveChallenges(ctx)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		fmt.Fprintln(os.Stdout, "no active challenges")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tGame\tMultiplier\tPrize\tMin Bet\tStarted (UTC)\tCreated By")

	for _, ch := range active {
		minBet := "-"
		if ch.MinBet != nil {
			minBet = ch.MinBet.StringFixed(2)
		}
		fmt.Fprintf(
			writer,
			"%d\t%s\t%sx\t%s\t%s\t%s\t%s\n",
			ch.ID,
			ch.GameTitle,
			ch.RequiredMultiplier.String(),
			ch.Prize.StringFixed(2),
			minBet,
			ch.StartTime.UTC().Format(time.RFC3339),
			ch.CreatedByName,
		)
	}

	writer.Flush()
	return nil
}

// ChallengeCancel removes an active challenge without a result.
func (a *App) ChallengeCancel(ctx context.Context, id int64) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot cancel challenge")
	}
	defer closeStore()

	if err := store.RemoveChallenge(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "challenge %d cancelled\n", id)
	return nil
}

// ChallengeHistory prints completed challenges, most recent first.
func (a *App) ChallengeHistory(ctx context.Context, opts ChallengeHistoryOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	defer closeStore()

	results, err := store.ListChallengeResults(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(os.Stdout, "no completed challenges")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Completed (UTC)\tGame\tWinner\tMultiplier\tBet\tPrize\tRunner-up")

	for _, res := range results {
		runnerUp := "-"
		if res.RunnerUpName != nil {
			runnerUp = *res.RunnerUpName
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%sx\t%s\t%s\t%s\n",
			res.CompletedAt.UTC().Format(time.RFC3339),
			res.GameTitle,
			res.WinnerName,
			res.Multiplier.String(),
			res.Bet.StringFixed(2),
			res.Prize.StringFixed(2),
			runnerUp,
		)
	}

	writer.Flush()
	return nil
}
