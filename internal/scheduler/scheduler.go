package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every interval.
type TickFunc func(ctx context.Context, now time.Time) error

// Options tune loop behaviour. StartOffset staggers loops that share the
// snapshot cache so they do not all fire at the same instant.
type Options struct {
	Name        string
	Interval    time.Duration
	StartOffset time.Duration
}

// Loop drives repeated execution of one periodic job.
type Loop struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Loop instance.
func New(opts Options, logger zerolog.Logger) *Loop {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Loop{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Str("loop", opts.Name).Logger(),
	}
}

// Run blocks, invoking the tick function on each interval until ctx is
// cancelled. Tick errors are logged and the loop continues; a cycle that
// fails is simply retried on the next interval.
func (l *Loop) Run(ctx context.Context, tick TickFunc) error {
	if l.opts.StartOffset > 0 {
		timer := time.NewTimer(l.opts.StartOffset)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	ticker := time.NewTicker(l.opts.Interval)
	defer ticker.Stop()

	for {
		now := time.Now().UTC()
		l.logger.Debug().Time("tick", now).Msg("executing scheduled tick")

		if err := tick(ctx, now); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Error().Err(err).Time("tick", now).Msg("tick execution failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
