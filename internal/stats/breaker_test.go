package stats

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyCounter struct {
	err   error
	calls int
	n     int64
}

func (f *flakyCounter) Increment(context.Context) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.n++
	return nil
}

func (f *flakyCounter) Total(context.Context) (int64, error) {
	f.calls++
	return f.n, f.err
}

func TestBreakerOpensAndBacksOff(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	backend := &flakyCounter{err: errors.New("connection refused")}
	b := NewBreaker(backend, 30*time.Second, 2*time.Minute)
	b.now = func() time.Time { return now }
	ctx := context.Background()

	assert.Error(t, b.Increment(ctx))
	assert.ErrorIs(t, b.Increment(ctx), ErrCircuitOpen)
	assert.Equal(t, 1, backend.calls)

	// half-open probe after the first cooldown fails again: cooldown doubles
	now = now.Add(31 * time.Second)
	assert.NotErrorIs(t, b.Increment(ctx), ErrCircuitOpen)
	assert.Equal(t, 2, backend.calls)
	now = now.Add(59 * time.Second)
	assert.ErrorIs(t, b.Increment(ctx), ErrCircuitOpen)

	// capped at maxBackoff
	now = now.Add(2 * time.Second)
	_ = b.Increment(ctx)
	_, err := b.Total(ctx)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	now = now.Add(2*time.Minute + time.Second)

	backend.err = nil
	require.NoError(t, b.Increment(ctx))
	total, err := b.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

// gatedCounter holds every Increment until release is closed.
type gatedCounter struct {
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (g *gatedCounter) Increment(context.Context) error {
	g.calls.Add(1)
	g.entered <- struct{}{}
	<-g.release
	return nil
}

func (g *gatedCounter) Total(context.Context) (int64, error) { return 0, nil }

func TestBreakerAdmitsOneHalfOpenCall(t *testing.T) {
	var mu sync.Mutex
	now := time.Unix(1_700_000_000, 0)
	b := NewBreaker(&flakyCounter{err: errors.New("connection refused")}, 30*time.Second, time.Minute)
	b.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	ctx := context.Background()
	require.Error(t, b.Increment(ctx))

	gate := &gatedCounter{entered: make(chan struct{}, 4), release: make(chan struct{})}
	b.next = gate
	mu.Lock()
	now = now.Add(31 * time.Second)
	mu.Unlock()

	first := make(chan error, 1)
	go func() { first <- b.Increment(ctx) }()
	<-gate.entered

	var wg sync.WaitGroup
	var rejected atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if errors.Is(b.Increment(ctx), ErrCircuitOpen) {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()
	_, err := b.Total(ctx)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.EqualValues(t, 8, rejected.Load())
	assert.EqualValues(t, 1, gate.calls.Load())

	close(gate.release)
	require.NoError(t, <-first)

	// closed again
	require.NoError(t, b.Increment(ctx))
	assert.EqualValues(t, 2, gate.calls.Load())
}

func TestBreakerDefaults(t *testing.T) {
	b := NewBreaker(&MemoryCounter{}, 0, 0)
	assert.Equal(t, 30*time.Second, b.baseBackoff)
	assert.Equal(t, 5*time.Minute, b.maxBackoff)
}
