package stats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCounter struct{ calls int }

func (f *failingCounter) Increment(context.Context) error {
	f.calls++
	return errors.New("connection refused")
}

func (f *failingCounter) Total(context.Context) (int64, error) {
	return 0, errors.New("connection refused")
}

type slowCounter struct {
	mu      sync.Mutex
	expired bool
}

func (s *slowCounter) Increment(ctx context.Context) error {
	<-ctx.Done()
	s.mu.Lock()
	s.expired = true
	s.mu.Unlock()
	return ctx.Err()
}

func (s *slowCounter) Total(context.Context) (int64, error) { return 0, nil }

func TestMemoryCounter(t *testing.T) {
	var c MemoryCounter
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Increment(ctx))
	}
	total, err := c.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestAsyncRecorderCounts(t *testing.T) {
	c := &MemoryCounter{}
	r := NewAsyncRecorder(c, time.Second)
	for i := 0; i < 10; i++ {
		r.Hit()
	}
	r.Wait()
	total, _ := c.Total(context.Background())
	assert.Equal(t, int64(10), total)
}

func TestAsyncRecorderSwallowsFailures(t *testing.T) {
	c := &failingCounter{}
	r := NewAsyncRecorder(c, time.Second)
	assert.NotPanics(t, func() {
		r.Hit()
		r.Wait()
	})
	assert.Equal(t, 1, c.calls)
}

func TestAsyncRecorderTimesOut(t *testing.T) {
	c := &slowCounter{}
	r := NewAsyncRecorder(c, 200*time.Millisecond)

	start := time.Now()
	r.Hit()
	assert.Less(t, time.Since(start), 100*time.Millisecond, "Hit must not block")
	r.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.True(t, c.expired)
}

func TestNewRedisCounterBadURL(t *testing.T) {
	_, err := NewRedisCounter("not-a-url", "")
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	assert.NotPanics(t, r.Hit)
}
