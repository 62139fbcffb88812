package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"wager-rewards/internal/affiliate"
	"wager-rewards/internal/snapshot"
)

// Export fetches the month-to-date leaderboard and renders it as CSV
// and/or a PNG chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.TopN = a.Config.ResolveMaxRows(opts.TopN)

	now := time.Now().UTC()
	period := snapshot.PeriodOf(now)

	entries, err := a.newAffiliateClient().FetchStats(ctx, period.Start(), now)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		a.Logger.Info().Msg("no wager data for the current period")
		return nil
	}

	snap := snapshot.Build(entries, period, now)
	top := snap.ByWeighted
	if len(top) > opts.TopN {
		top = top[:opts.TopN]
	}

	a.Logger.Info().Int("total", len(entries)).Int("exported", len(top)).Msg("exporting leaderboard")

	if opts.CSVPath != "" {
		if err := writeLeaderboardCSV(opts.CSVPath, top); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeLeaderboardPNG(opts.PNGPath, top); err != nil {
			return err
		}
	}

	return nil
}

func writeLeaderboardCSV(path string, entries []affiliate.Entry) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"rank", "uid", "username", "wagered", "weighted_wagered"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for i, entry := range entries {
		record := []string{
			strconv.Itoa(i + 1),
			entry.UID,
			entry.Username,
			entry.Wagered.String(),
			entry.WeightedWagered.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeLeaderboardPNG(path string, entries []affiliate.Entry) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	// Bar charts get unreadable past a couple dozen labels.
	if len(entries) > 20 {
		entries = entries[:20]
	}

	bars := make([]chart.Value, 0, len(entries))
	for _, entry := range entries {
		bars = append(bars, chart.Value{
			Label: entry.Username,
			Value: entry.WeightedWagered.InexactFloat64(),
		})
	}

	graph := chart.BarChart{
		Title:    "Weighted wager leaderboard",
		Width:    1280,
		Height:   720,
		BarWidth: 40,
		YAxis: chart.YAxis{
			Name: "Weighted wagered",
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
