// Package gate provides a bounded concurrency permit pool used to cap the
// number of pipelines running at once.
package gate

import (
	"context"
	"log/slog"
	"sync"
)

// Gate hands out a bounded number of permits. It is the Go analogue of the
// original service's asyncio.Semaphore-backed ConcurrencyManager: a buffered
// channel supplies the bound (mirroring internal/runner/pool.go's worker
// channel sizing), while a separately tracked counter reports how many
// permits are currently checked out for stats/metrics purposes.
type Gate struct {
	permits chan struct{}
	max     int

	mu      sync.Mutex
	running int
}

// New creates a Gate that allows at most max concurrent holders.
func New(max int) *Gate {
	if max <= 0 {
		max = 1
	}
	return &Gate{
		permits: make(chan struct{}, max),
		max:     max,
	}
}

// Acquire blocks until a permit is available or ctx is cancelled.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.permits <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	g.mu.Lock()
	g.running++
	g.mu.Unlock()
	return nil
}

// TryAcquire attempts to take a permit without blocking. It reports whether
// a permit was obtained.
func (g *Gate) TryAcquire() bool {
	select {
	case g.permits <- struct{}{}:
		g.mu.Lock()
		g.running++
		g.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release returns a permit. Releasing without a matching Acquire is a no-op
// beyond a warning log: the running counter never drops below zero.
func (g *Gate) Release() {
	g.mu.Lock()
	if g.running <= 0 {
		g.mu.Unlock()
		slog.Warn("gate: release called with no outstanding permit")
		return
	}
	g.running--
	g.mu.Unlock()

	select {
	case <-g.permits:
	default:
		slog.Warn("gate: release called but permit channel was empty")
	}
}

// Stats describes current gate occupancy.
type Stats struct {
	Max       int
	Running   int
	Available int
}

// Stats reports current occupancy.
func (g *Gate) Stats() Stats {
	g.mu.Lock()
	running := g.running
	g.mu.Unlock()
	return Stats{Max: g.max, Running: running, Available: g.max - running}
}
