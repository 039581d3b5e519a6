package stats

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrCircuitOpen is returned while the breaker is cooling down.
var ErrCircuitOpen = errors.New("stats backend circuit open")

// Breaker guards a Counter. After a failure it rejects calls for a cooldown
// that doubles with each consecutive failure (30s, 60s, 120s, ... up to
// maxBackoff). Once the cooldown ends exactly one call is let through as a
// half-open probe; concurrent callers keep getting ErrCircuitOpen until it
// returns. Success closes the breaker, failure reopens it with a longer
// cooldown.
type Breaker struct {
	next        Counter
	baseBackoff time.Duration
	maxBackoff  time.Duration
	now         func() time.Time

	mu       sync.Mutex
	failures int
	retryAt  time.Time
	probing  bool
}

// NewBreaker wraps next; non-positive backoffs default to 30s and 5m.
func NewBreaker(next Counter, baseBackoff, maxBackoff time.Duration) *Breaker {
	if baseBackoff <= 0 {
		baseBackoff = 30 * time.Second
	}
	if maxBackoff <= 0 {
		maxBackoff = 5 * time.Minute
	}
	return &Breaker{next: next, baseBackoff: baseBackoff, maxBackoff: maxBackoff, now: time.Now}
}

func (b *Breaker) Increment(ctx context.Context) error {
	if !b.allow() {
		return ErrCircuitOpen
	}
	err := b.next.Increment(ctx)
	b.record(err)
	return err
}

func (b *Breaker) Total(ctx context.Context) (int64, error) {
	if !b.allow() {
		return 0, ErrCircuitOpen
	}
	n, err := b.next.Total(ctx)
	b.record(err)
	return n, err
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.failures == 0:
		return true
	case b.probing, b.now().Before(b.retryAt):
		return false
	}
	b.probing = true
	return true
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false

	if err == nil {
		if b.failures > 0 {
			log.Info().Int("failures", b.failures).Msg("stats circuit breaker CLOSED (reset)")
		}
		b.failures = 0
		return
	}

	b.failures++
	backoff := b.baseBackoff
	for i := 1; i < b.failures; i++ {
		backoff *= 2
		if backoff > b.maxBackoff {
			backoff = b.maxBackoff
			break
		}
	}
	b.retryAt = b.now().Add(backoff)
	log.Warn().
		Err(err).
		Dur("cooldown", backoff).
		Int("failures", b.failures).
		Time("retry_at", b.retryAt).
		Msg("stats circuit breaker OPENED")
}
