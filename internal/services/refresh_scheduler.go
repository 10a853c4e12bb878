// Package services – RefreshScheduler
//
// A small jittered ticker that runs a task on a fixed cadence. Used for
// background housekeeping (stale-flag sweeps) and for driving feed
// refreshes. A failing run is logged and the next cycle is skipped, so a
// struggling store sees half the load instead of a retry storm.
package services

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// RefreshScheduler invokes Task every Interval, plus or minus Jitter.
type RefreshScheduler struct {
	// Name labels log lines from this scheduler.
	Name string
	// Interval is the base cadence between runs.
	Interval time.Duration
	// Jitter is the fraction of Interval randomly added or subtracted
	// each cycle, in [0,1). Zero disables jitter.
	Jitter float64
	// Task is the work to run. A returned error skips the next cycle.
	Task func(ctx context.Context) error
	// Log receives run outcomes. Zero value logs are discarded.
	Log zerolog.Logger
}

// Run blocks and ticks until ctx is cancelled. Each cycle sleeps a
// jittered interval, runs Task once, and on failure sleeps one extra
// interval before resuming.
func (s *RefreshScheduler) Run(ctx context.Context) {
	if s.Interval <= 0 || s.Task == nil {
		return
	}
	for {
		if !sleepCtx(ctx, s.next()) {
			return
		}
		if err := s.Task(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.Log.Warn().Err(err).Str("scheduler", s.Name).Msg("scheduled task failed; skipping a cycle")
			if !sleepCtx(ctx, s.next()) {
				return
			}
		}
	}
}

// next returns the base interval shifted by up to ±Jitter of itself.
func (s *RefreshScheduler) next() time.Duration {
	if s.Jitter <= 0 {
		return s.Interval
	}
	j := s.Jitter
	if j >= 1 {
		j = 0.99
	}
	span := float64(s.Interval) * j
	d := time.Duration(float64(s.Interval) + (rand.Float64()*2-1)*span)
	if d <= 0 {
		d = s.Interval
	}
	return d
}

// sleepCtx waits d or until ctx is done; reports false on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
