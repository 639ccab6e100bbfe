package catalog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"steamgate/internal/observability"
)

// CleanupInterval is how often the sweeper deletes expired common entries.
const CleanupInterval = 1 * time.Hour

// cleanupTimeout bounds one purge query.
const cleanupTimeout = 30 * time.Second

// RunCleanupLoop runs a cleanup function periodically until the stop channel is closed.
// It runs cleanup immediately on start, then every interval.
func RunCleanupLoop(stop <-chan struct{}, interval time.Duration, cleanupFn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run initial cleanup
	cleanupFn()

	for {
		select {
		case <-ticker.C:
			cleanupFn()
		case <-stop:
			return
		}
	}
}

// Sweeper deletes cached common libraries older than a retention window.
// Stale entries are recomputed on the next request anyway; the sweeper only
// keeps identity sets that are never asked for again from piling up.
type Sweeper struct {
	store     Store
	retention time.Duration
	now       func() time.Time

	stop     chan struct{}
	done     chan struct{}
	started  atomic.Bool
	stopOnce sync.Once
}

// NewSweeper creates a sweeper for store. It does nothing until Start is called.
func NewSweeper(store Store, retention time.Duration) *Sweeper {
	return &Sweeper{
		store:     store,
		retention: retention,
		now:       time.Now,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the background loop.
func (s *Sweeper) Start(interval time.Duration) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(s.done)
		RunCleanupLoop(s.stop, interval, s.cleanup)
	}()
}

// Sweep deletes every common entry last updated more than the retention window ago.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	return s.store.PurgeCommon(ctx, s.now().UTC().Add(-s.retention))
}

func (s *Sweeper) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	n, err := s.Sweep(ctx)
	if err != nil {
		slog.Error("failed to purge expired common libraries", "error", err)
		return
	}
	observability.ObservePurge(n)
	if n > 0 {
		slog.Info("purged expired common libraries", "count", n, "retention", s.retention)
	}
}

// Stop ends the loop started by Start and waits for it to exit.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
		if s.started.Load() {
			<-s.done
		}
	})
}
