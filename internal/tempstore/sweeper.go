package tempstore

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdforganizer/internal/metrics"
)

const (
	DefaultMaxAge   = 5 * time.Minute
	DefaultInterval = 5 * time.Minute
)

// Sweeper deletes store files older than MaxAge. It backs up per-request
// cleanup for requests that crashed or were abandoned.
type Sweeper struct {
	store    *Store
	maxAge   time.Duration
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper returns a Sweeper; non-positive durations fall back to the defaults.
func NewSweeper(store *Store, maxAge, interval time.Duration) *Sweeper {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{store: store, maxAge: maxAge, interval: interval}
}

// Sweep runs one pass and returns how many files it deleted. It never fails:
// listing and deletion errors are logged and the pass moves on.
func (sw *Sweeper) Sweep(ctx context.Context) int {
	start := time.Now()
	entries, err := sw.store.Entries()
	if err != nil {
		log.Error().Err(err).Msg("[Cleanup] list failed")
		return 0
	}

	now := sw.store.now()
	deleted, remaining := 0, 0
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if now.Sub(e.CreatedAt) <= sw.maxAge {
			remaining++
			continue
		}
		removed, err := sw.store.remove(e.Path)
		if err != nil {
			remaining++
			metrics.IncCleanupFailure("sweeper")
			log.Warn().Err(err).Str("file", e.Name).Msg("[Cleanup] delete failed")
			continue
		}
		if removed {
			deleted++
			log.Debug().Str("file", e.Name).Dur("age", now.Sub(e.CreatedAt)).Msg("[Cleanup] deleted stale file")
		}
	}
	sw.pruneIndex(now)

	metrics.ObserveSweep(deleted, remaining, time.Since(start))
	if deleted > 0 {
		log.Info().Int("deleted", deleted).Int("remaining", remaining).Msg("[Cleanup] sweep finished")
	}
	return deleted
}

// pruneIndex drops stale index entries whose file is already gone.
func (sw *Sweeper) pruneIndex(now time.Time) {
	idx := sw.store.index
	if idx == nil {
		return
	}
	var stale []string
	err := idx.Range(func(name string, createdAt time.Time) bool {
		if now.Sub(createdAt) > sw.maxAge {
			stale = append(stale, name)
		}
		return true
	})
	if err != nil {
		log.Warn().Err(err).Msg("[Cleanup] index scan failed")
		return
	}
	for _, name := range stale {
		if _, err := sw.store.remove(filepath.Join(sw.store.dir, name)); err != nil {
			log.Warn().Err(err).Str("file", name).Msg("[Cleanup] index prune failed")
		}
	}
}

// Start sweeps once immediately, then every interval until ctx ends or Stop.
func (sw *Sweeper) Start(ctx context.Context) {
	ctx, sw.cancel = context.WithCancel(ctx)
	sw.wg.Add(1)
	go func() {
		defer sw.wg.Done()
		log.Info().Dur("max_age", sw.maxAge).Dur("interval", sw.interval).Msg("[Cleanup] sweeper started")
		sw.Sweep(ctx)
		ticker := time.NewTicker(sw.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sw.Sweep(ctx)
			}
		}
	}()
}

// Stop ends the loop started by Start and waits for it.
func (sw *Sweeper) Stop() {
	if sw.cancel != nil {
		sw.cancel()
	}
	sw.wg.Wait()
}
