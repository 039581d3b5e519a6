package tempstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, s *Store, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(s.Dir(), name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestSweepDeletesOnlyStaleFiles(t *testing.T) {
	s := newStore(t, Options{})
	old := touch(t, s, "old.pdf", 10*time.Minute)
	fresh := touch(t, s, "fresh.pdf", time.Minute)
	marker := touch(t, s, ".gitkeep", time.Hour)

	sw := NewSweeper(s, 5*time.Minute, time.Minute)
	assert.Equal(t, 1, sw.Sweep(context.Background()))

	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, marker)
}

func TestSweepUsesIndexOverMtime(t *testing.T) {
	now := time.Now()
	idx := NewMemoryIndex()
	s := newStore(t, Options{Index: idx, Now: func() time.Time { return now }})

	// mtime says fresh, index says stale
	path := touch(t, s, "indexed.pdf", 0)
	require.NoError(t, idx.Put("indexed.pdf", now.Add(-time.Hour)))

	sw := NewSweeper(s, 5*time.Minute, time.Minute)
	assert.Equal(t, 1, sw.Sweep(context.Background()))
	assert.NoFileExists(t, path)
}

func TestSweepPrunesOrphanIndexEntries(t *testing.T) {
	now := time.Now()
	idx := NewMemoryIndex()
	s := newStore(t, Options{Index: idx, Now: func() time.Time { return now }})
	require.NoError(t, idx.Put("gone.pdf", now.Add(-time.Hour)))
	require.NoError(t, idx.Put("recent.pdf", now))

	NewSweeper(s, 5*time.Minute, time.Minute).Sweep(context.Background())

	_, ok, _ := idx.Get("gone.pdf")
	assert.False(t, ok)
	_, ok, _ = idx.Get("recent.pdf")
	assert.True(t, ok)
}

// vanishingIndex deletes the backing file the moment the sweeper asks for
// its createdAt, which simulates a handler winning the race.
type vanishingIndex struct {
	*MemoryIndex
	dir string
}

func (v vanishingIndex) Get(name string) (time.Time, bool, error) {
	_ = os.Remove(filepath.Join(v.dir, name))
	return time.Now().Add(-time.Hour), true, nil
}

func TestSweepToleratesVanishedFile(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, Options{Index: vanishingIndex{MemoryIndex: NewMemoryIndex(), dir: dir}})
	require.NoError(t, err)
	touch(t, s, "racing.pdf", time.Hour)

	sw := NewSweeper(s, 5*time.Minute, time.Minute)
	var deleted int
	assert.NotPanics(t, func() { deleted = sw.Sweep(context.Background()) })
	assert.Equal(t, 0, deleted)
}

func TestSweepMissingDirDoesNotFail(t *testing.T) {
	s := newStore(t, Options{})
	require.NoError(t, os.RemoveAll(s.Dir()))
	assert.Equal(t, 0, NewSweeper(s, time.Minute, time.Minute).Sweep(context.Background()))
}

func TestStartRunsInitialSweep(t *testing.T) {
	s := newStore(t, Options{})
	old := touch(t, s, "old.pdf", time.Hour)

	sw := NewSweeper(s, time.Minute, time.Hour)
	sw.Start(context.Background())
	defer sw.Stop()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(old)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewSweeperDefaults(t *testing.T) {
	sw := NewSweeper(nil, 0, -1)
	assert.Equal(t, DefaultMaxAge, sw.maxAge)
	assert.Equal(t, DefaultInterval, sw.interval)
}
