// Package retention periodically prunes terminal tasks older than a
// configured age, keeping the durable store from growing without bound.
// Grounded on the pack's cron-driven scheduler pattern (internal/cron
// in the zkoranges-go-claw example) but expressed against a single
// github.com/robfig/cron/v3 schedule rather than a poll loop, since a
// daily reaper has no need for sub-minute ticking.
package retention

import (
	"context"
	"log/slog"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"issuebot/internal/store"
)

// Config holds the reaper's dependencies.
type Config struct {
	Store      store.Store
	Schedule   string        // standard 5-field cron expression
	MaxAge     time.Duration // tasks completed longer ago than this are pruned
	NowFunc    func() time.Time
	ErrHandler func(error) // optional, invoked if a run fails
}

// Reaper deletes terminal tasks older than MaxAge on a cron schedule.
type Reaper struct {
	store   store.Store
	maxAge  time.Duration
	now     func() time.Time
	onError func(error)
	cron    *cronlib.Cron
	entryID cronlib.EntryID
}

// New constructs a Reaper from cfg. Call Start to begin running it.
func New(cfg Config) (*Reaper, error) {
	now := cfg.NowFunc
	if now == nil {
		now = time.Now
	}
	c := cronlib.New()
	r := &Reaper{
		store:   cfg.Store,
		maxAge:  cfg.MaxAge,
		now:     now,
		onError: cfg.ErrHandler,
		cron:    c,
	}

	id, err := c.AddFunc(cfg.Schedule, r.runOnce)
	if err != nil {
		return nil, err
	}
	r.entryID = id
	return r, nil
}

// Start begins the cron scheduler in a background goroutine.
func (r *Reaper) Start() {
	r.cron.Start()
	slog.Info("retention: reaper started", "next_run", r.cron.Entry(r.entryID).Next)
}

// Stop halts the scheduler, waiting for any in-flight run to finish.
func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
}

// RunOnce prunes immediately, independent of the cron schedule. Exposed
// for manual invocation (e.g. an admin endpoint or CLI subcommand).
func (r *Reaper) RunOnce(ctx context.Context) (int64, error) {
	before := r.now().Add(-r.maxAge)
	return r.store.PruneCompletedBefore(ctx, before)
}

func (r *Reaper) runOnce() {
	n, err := r.RunOnce(context.Background())
	if err != nil {
		slog.Error("retention: prune failed", "error", err)
		if r.onError != nil {
			r.onError(err)
		}
		return
	}
	if n > 0 {
		slog.Info("retention: pruned old tasks", "count", n)
	}
}
