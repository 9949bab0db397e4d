package telemetry

import (
	"context"
	"time"
)

// janitorLogger is the logging surface the janitor needs.
type janitorLogger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Janitor periodically purges readings older than the retention window.
//
// It mirrors a TTL index: readings expire relative to their timestamp,
// not their insertion time.
type Janitor struct {
	repo      Repository
	retention time.Duration
	interval  time.Duration
	logger    janitorLogger

	done chan struct{}
}

// NewJanitor creates a retention janitor.
//
// Parameters:
//   - repo: Reading repository to purge
//   - retention: How old a reading may get before removal
//   - interval: How often to sweep
//   - logger: Structured logger for sweep results
func NewJanitor(repo Repository, retention, interval time.Duration, logger janitorLogger) *Janitor {
	return &Janitor{
		repo:      repo,
		retention: retention,
		interval:  interval,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is cancelled. It performs one
// sweep immediately so a long-stopped instance catches up on startup.
func (j *Janitor) Start(ctx context.Context) {
	go func() {
		defer close(j.done)

		j.sweep(ctx)

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.sweep(ctx)
			}
		}
	}()
}

// Wait blocks until the sweep loop has exited.
func (j *Janitor) Wait() {
	<-j.done
}

func (j *Janitor) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-j.retention)

	purged, err := j.repo.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			j.logger.Error("telemetry retention sweep failed", "error", err)
		}
		return
	}
	if purged > 0 {
		j.logger.Info("telemetry retention sweep",
			"purged", purged,
			"cutoff", cutoff.UTC().Format(time.RFC3339))
	}
}
