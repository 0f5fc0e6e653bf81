package cache

import (
	"context"
	"fmt"
	"log/slog"

	robfigcron "github.com/robfig/cron/v3"
)

// DefaultSweep is the janitor schedule used when none is configured.
const DefaultSweep = "@every 1m"

// Purger is a cache that can drop its expired entries in bulk.
type Purger interface {
	Purge(ctx context.Context) (int, error)
}

// Janitor periodically purges expired conversations.
type Janitor struct {
	cache  Purger
	spec   string
	robfig *robfigcron.Cron
}

// NewJanitor validates spec (a robfig schedule such as "@every 30s" or a
// five-field cron expression) and returns a stopped janitor.
func NewJanitor(cache Purger, spec string) (*Janitor, error) {
	if spec == "" {
		spec = DefaultSweep
	}
	if _, err := robfigcron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("cache sweep schedule %q: %w", spec, err)
	}
	return &Janitor{
		cache:  cache,
		spec:   spec,
		robfig: robfigcron.New(),
	}, nil
}

// Start runs the sweep schedule until ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) error {
	if _, err := j.robfig.AddFunc(j.spec, func() { j.sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule cache sweep: %w", err)
	}
	j.robfig.Start()
	slog.Info("cache: janitor started", "schedule", j.spec)

	<-ctx.Done()
	<-j.robfig.Stop().Done()
	return ctx.Err()
}

func (j *Janitor) sweep(ctx context.Context) {
	n, err := j.cache.Purge(ctx)
	if err != nil {
		slog.Warn("cache: purge failed", "err", err)
		return
	}
	if n > 0 {
		slog.Debug("cache: purged expired conversations", "count", n)
	}
}
