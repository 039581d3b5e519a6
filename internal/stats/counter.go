// Package stats keeps the global activity counter shown on the landing page.
package stats

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/local/pdforganizer/internal/metrics"
)

// DefaultKey is the redis key holding the total.
const DefaultKey = "stats:total_api_hits"

// Counter is a monotonically increasing total.
type Counter interface {
	Increment(ctx context.Context) error
	Total(ctx context.Context) (int64, error)
}

// RedisCounter stores the total under a single redis key using INCR.
type RedisCounter struct {
	client *redis.Client
	key    string
}

// NewRedisCounter connects to redisURL and verifies it with PING.
func NewRedisCounter(redisURL, key string) (*RedisCounter, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, err
	}
	if key == "" {
		key = DefaultKey
	}
	return &RedisCounter{client: c, key: key}, nil
}

func (r *RedisCounter) Increment(ctx context.Context) error {
	return r.client.Incr(ctx, r.key).Err()
}

func (r *RedisCounter) Total(ctx context.Context) (int64, error) {
	v, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

// Ping reports whether redis is reachable.
func (r *RedisCounter) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *RedisCounter) Close() error { return r.client.Close() }

// MemoryCounter is a process-local Counter, used when no redis is configured.
type MemoryCounter struct {
	n atomic.Int64
}

func (m *MemoryCounter) Increment(context.Context) error { m.n.Add(1); return nil }

func (m *MemoryCounter) Total(context.Context) (int64, error) { return m.n.Load(), nil }

// Recorder fires counter increments without making the caller wait.
type Recorder interface {
	Hit()
}

// AsyncRecorder runs each increment in its own goroutine with a timeout.
// Failures are logged and counted, never returned.
type AsyncRecorder struct {
	counter Counter
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewAsyncRecorder wraps counter; timeout <= 0 means two seconds.
func NewAsyncRecorder(counter Counter, timeout time.Duration) *AsyncRecorder {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &AsyncRecorder{counter: counter, timeout: timeout}
}

func (a *AsyncRecorder) Hit() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				metrics.IncActivityFailure()
				log.Error().Interface("panic", r).Msg("activity increment panicked")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.counter.Increment(ctx); err != nil {
			metrics.IncActivityFailure()
			log.Warn().Err(err).Msg("activity increment failed (non-critical)")
		}
	}()
}

// Wait blocks until in-flight increments finish.
func (a *AsyncRecorder) Wait() { a.wg.Wait() }

// Nop discards hits.
type Nop struct{}

func (Nop) Hit() {}
