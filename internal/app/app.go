package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"wager-rewards/internal/affiliate"
	"wager-rewards/internal/config"
	"wager-rewards/internal/dispatch"
	"wager-rewards/internal/notify"
	"wager-rewards/internal/payout"
	"wager-rewards/internal/scheduler"
	"wager-rewards/internal/service"
	"wager-rewards/internal/snapshot"
	"wager-rewards/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newAffiliateClient() *affiliate.Client {
	return affiliate.NewClient(affiliate.Options{
		BaseURL:   a.Config.Affiliate.BaseURL,
		APIKey:    a.Config.Affiliate.APIKey,
		Timeout:   a.Config.Affiliate.RequestTimeout,
		UserAgent: a.Config.Affiliate.UserAgent,
	}, a.Logger)
}

func (a *App) newPayoutClient() *payout.Client {
	return payout.NewClient(payout.Options{
		BaseURL:     a.Config.Payout.BaseURL,
		APIKey:      a.Config.Payout.APIKey,
		SenderID:    a.Config.Payout.SenderID,
		Timeout:     a.Config.Payout.RequestTimeout,
		ShowInChat:  a.Config.Payout.ShowInChat,
		BalanceType: a.Config.Payout.BalanceType,
	}, a.Logger)
}

func (a *App) newNotifier() notify.Notifier {
	if a.Config.Notify.Enabled {
		return notify.NewWebhookNotifier(a.Config.Notify.WebhookURL, a.Config.Notify.RequestTimeout, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running rewards pipeline.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn is required: payments cannot run without the idempotency store")
	}
	defer closeStore()

	// A second instance would pay every reward twice.
	unlock, acquired, err := store.TryAdvisoryLock(ctx, a.Config.Database.AdvisoryLockKey)
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !acquired {
		return errors.New("another instance holds the instance lock; refusing to start")
	}
	defer unlock()

	notifier := a.newNotifier()
	cache := snapshot.NewCache()

	committer := service.NewCommitter(store, store, a.Logger)
	outcomes := service.NewOutcomeHandler(store, notifier, a.Logger)
	dispatcher := dispatch.New(a.newPayoutClient(), committer, dispatch.Options{
		Cooldown:  a.Config.Dispatch.Cooldown,
		OnOutcome: outcomes.Handle,
	}, a.Logger)

	svc := service.New(a.Config, a.newAffiliateClient(), cache, store, store, dispatcher, a.Logger)

	refreshLoop := scheduler.New(scheduler.Options{
		Name:        "snapshot_refresh",
		Interval:    a.Config.Cache.RefreshInterval,
		StartOffset: a.Config.Cache.RefreshOffset,
	}, a.Logger)
	milestoneLoop := scheduler.New(scheduler.Options{
		Name:        "milestones",
		Interval:    a.Config.Milestones.Interval,
		StartOffset: a.Config.Milestones.Offset,
	}, a.Logger)
	challengeLoop := scheduler.New(scheduler.Options{
		Name:        "challenges",
		Interval:    a.Config.Challenges.Interval,
		StartOffset: a.Config.Challenges.Offset,
	}, a.Logger)

	a.Logger.Info().Msg("starting rewards pipeline")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(ctx) })
	g.Go(func() error { return refreshLoop.Run(ctx, svc.RefreshSnapshot) })
	g.Go(func() error { return milestoneLoop.Run(ctx, svc.RunMilestoneCycle) })
	g.Go(func() error { return challengeLoop.Run(ctx, svc.RunChallengeCycle) })

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("pipeline terminated with error")
		return err
	}

	a.Logger.Info().Msg("rewards pipeline stopped")
	return nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting the current leaderboard.
type ExportOptions struct {
	CSVPath string
	PNGPath string
	TopN    int
}

// ChallengeAddOptions describe a new challenge.
type ChallengeAddOptions struct {
	GameID        string
	GameTitle     string
	Multiplier    float64
	Prize         float64
	MinBet        float64
	CreatedBy     string
	CreatedByName string
}

// ChallengeHistoryOptions configure the history listing.
type ChallengeHistoryOptions struct {
	Limit int
}
