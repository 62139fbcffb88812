package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"wager-rewards/internal/affiliate"
	"wager-rewards/internal/config"
	"wager-rewards/internal/rewards"
	"wager-rewards/internal/snapshot"
	"wager-rewards/internal/storage"
)

// Queue accepts payout obligations for serialized dispatch.
type Queue interface {
	Enqueue(ob rewards.Obligation) bool
}

// Service runs the evaluation cycles. Each cycle reads the shared snapshot
// cache, never the network, and refuses to make payout decisions against
// stale data.
type Service struct {
	fetcher    affiliate.StatsFetcher
	cache      *snapshot.Cache
	milestones storage.MilestoneStore
	challenges storage.ChallengeStore
	queue      Queue
	logger     zerolog.Logger

	tiers  []rewards.Tier
	maxAge time.Duration
}

// New constructs the rewards service.
func New(cfg *config.Config, fetcher affiliate.StatsFetcher, cache *snapshot.Cache, milestones storage.MilestoneStore, challenges storage.ChallengeStore, queue Queue, logger zerolog.Logger) *Service {
	return &Service{
		fetcher:    fetcher,
		cache:      cache,
		milestones: milestones,
		challenges: challenges,
		queue:      queue,
		logger:     logger.With().Str("component", "service").Logger(),
		tiers:      rewards.TiersFromConfig(cfg.Milestones.Tiers),
		maxAge:     cfg.Cache.MaxAge,
	}
}

// RefreshSnapshot fetches month-to-date stats and publishes them to the
// cache. On upstream failure the cache is left untouched and simply ages
// out, which in turn gates the evaluation cycles.
func (s *Service) RefreshSnapshot(ctx context.Context, now time.Time) error {
	period := snapshot.PeriodOf(now)

	entries, err := s.fetcher.FetchStats(ctx, period.Start(), now)
	if err != nil {
		return fmt.Errorf("refresh snapshot: %w", err)
	}

	s.cache.Update(snapshot.Build(entries, period, now))
	s.logger.Info().Int("entries", len(entries)).
		Int("year", period.Year).
		Int("month", int(period.Month)).
		Msg("snapshot refreshed")
	return nil
}

// RunMilestoneCycle evaluates tier crossings against the paid set and
// enqueues one obligation per newly crossed tier.
func (s *Service) RunMilestoneCycle(ctx context.Context, now time.Time) error {
	snap, ok := s.freshSnapshot()
	if !ok {
		s.logger.Warn().Msg("snapshot stale or absent, skipping milestone cycle")
		return nil
	}

	paid, err := s.milestones.ListPaidMilestones(ctx, snap.Period.Month, snap.Period.Year)
	if err != nil {
		return fmt.Errorf("load paid milestones: %w", err)
	}

	obligations := rewards.EvaluateMilestones(snap, s.tiers, paid)
	enqueued := 0
	for _, ob := range obligations {
		if s.queue.Enqueue(ob) {
			enqueued++
		}
	}

	if len(obligations) > 0 {
		s.logger.Info().Int("owed", len(obligations)).Int("enqueued", enqueued).Msg("milestone cycle complete")
	}
	return nil
}

// RunChallengeCycle evaluates every active challenge against the snapshot
// and enqueues prize obligations for wins. The challenge stays in the
// active set until the dispatcher confirms the payout; a challenge with no
// qualifying entries is re-evaluated next cycle.
func (s *Service) RunChallengeCycle(ctx context.Context, now time.Time) error {
	snap, ok := s.freshSnapshot()
	if !ok {
		s.logger.Warn().Msg("snapshot stale or absent, skipping challenge cycle")
		return nil
	}

	active, err := s.challenges.ListActiveChallenges(ctx)
	if err != nil {
		return fmt.Errorf("list active challenges: %w", err)
	}

	for _, ch := range active {
		win, won := rewards.EvaluateChallenge(ch, snap.ByTotal)
		if !won {
			continue
		}

		ob := rewards.NewChallengeObligation(win)
		if s.queue.Enqueue(ob) {
			s.logger.Info().Int64("challenge_id", ch.ID).
				Str("winner", win.WinnerID).
				Str("multiplier", win.Multiplier.String()).
				Msg("challenge won, prize enqueued")
		}
	}
	return nil
}

func (s *Service) freshSnapshot() (snapshot.Snapshot, bool) {
	if !s.cache.Fresh(s.maxAge) {
		return snapshot.Snapshot{}, false
	}
	return s.cache.Get()
}
