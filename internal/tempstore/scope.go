package tempstore

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/local/pdforganizer/internal/metrics"
)

// Scope tracks every file one request owns. Release deletes them all; call
// it in a defer right after NewScope so it runs on every exit path.
type Scope struct {
	store *Store

	mu    sync.Mutex
	files []*File
}

// NewScope returns an empty Scope over s.
func (s *Store) NewScope() *Scope {
	return &Scope{store: s}
}

// Store returns the underlying store.
func (sc *Scope) Store() *Store { return sc.store }

// Create is Store.Create with the file owned by the scope.
func (sc *Scope) Create(prefix, ext string) (*File, *os.File, error) {
	f, fh, err := sc.store.Create(prefix, ext)
	if err != nil {
		return nil, nil, err
	}
	sc.track(f)
	return f, fh, nil
}

// Allocate is Store.Allocate with the path owned by the scope.
func (sc *Scope) Allocate(prefix, ext string) *File {
	f := sc.store.Allocate(prefix, ext)
	sc.track(f)
	return f
}

// Adopt is Store.Adopt with the file owned by the scope.
func (sc *Scope) Adopt(path string) (*File, error) {
	f, err := sc.store.Adopt(path)
	if err != nil {
		return nil, err
	}
	sc.track(f)
	return f, nil
}

// Files returns the files owned so far.
func (sc *Scope) Files() []*File {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return append([]*File(nil), sc.files...)
}

// Release deletes every owned file. Failures are logged and counted, never
// returned: they must not change the outcome already sent to the caller.
func (sc *Scope) Release() {
	sc.mu.Lock()
	files := sc.files
	sc.files = nil
	sc.mu.Unlock()

	for _, f := range files {
		if err := sc.store.Remove(f.Path); err != nil {
			metrics.IncCleanupFailure("request")
			log.Warn().Err(err).Str("file", filepath.Base(f.Path)).Msg("cleanup failed")
		}
	}
}

func (sc *Scope) track(f *File) {
	sc.mu.Lock()
	sc.files = append(sc.files, f)
	sc.mu.Unlock()
}
