// Package tempstore owns the directory that holds uploaded and generated
// files while a request is in flight.
//
// Every name is unique (timestamp plus a random uuid), so concurrent requests
// never touch the same file, and deletion is idempotent: a file that is
// already gone counts as removed. That lets request cleanup and the Sweeper
// race freely.
package tempstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrOutsideStore is returned for paths that do not live directly in the store dir.
var ErrOutsideStore = errors.New("path is outside the temp store")

// File is a temp file owned by whoever created it.
type File struct {
	Path      string
	Name      string
	CreatedAt time.Time
	// Original is the client supplied name, informational only.
	Original string
}

// Entry is a file found by listing the store.
type Entry struct {
	Path      string
	Name      string
	CreatedAt time.Time
	Size      int64
}

// Options configures a Store.
type Options struct {
	// Index records createdAt explicitly. Nil means file mtimes are used.
	Index Index
	// Reserved names are never listed or swept.
	Reserved []string
	Now      func() time.Time
}

// Store is a flat directory of request-scoped files.
type Store struct {
	dir      string
	index    Index
	reserved map[string]struct{}
	now      func() time.Time
}

// New creates dir if needed and returns a Store rooted there.
func New(dir string, opts Options) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve temp dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	s := &Store{
		dir:      abs,
		index:    opts.Index,
		reserved: map[string]struct{}{".gitkeep": {}},
		now:      opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	for _, name := range opts.Reserved {
		s.reserved[filepath.Base(name)] = struct{}{}
	}
	return s, nil
}

// Dir returns the absolute store directory.
func (s *Store) Dir() string { return s.dir }

// Create makes a new empty file and returns it open for writing.
func (s *Store) Create(prefix, ext string) (*File, *os.File, error) {
	f := s.newFile(prefix, ext)
	fh, err := os.OpenFile(f.Path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("create temp file: %w", err)
	}
	s.record(f)
	return f, fh, nil
}

// Allocate returns a unique path in the store without creating the file.
// Some tools refuse to write over, or append to, an existing file.
func (s *Store) Allocate(prefix, ext string) *File {
	f := s.newFile(prefix, ext)
	s.record(f)
	return f
}

// Adopt takes ownership of a file an external tool produced inside the store.
func (s *Store) Adopt(path string) (*File, error) {
	if !s.contains(path) {
		return nil, fmt.Errorf("%s: %w", path, ErrOutsideStore)
	}
	f := &File{Path: path, Name: filepath.Base(path), CreatedAt: s.now()}
	s.record(f)
	return f, nil
}

// Remove deletes path. A missing file is not an error.
func (s *Store) Remove(path string) error {
	_, err := s.remove(path)
	return err
}

func (s *Store) remove(path string) (bool, error) {
	if !s.contains(path) {
		return false, fmt.Errorf("%s: %w", path, ErrOutsideStore)
	}
	removed := true
	if err := os.Remove(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return false, err
		}
		removed = false
	}
	if s.index != nil {
		if err := s.index.Delete(filepath.Base(path)); err != nil {
			log.Warn().Err(err).Str("file", filepath.Base(path)).Msg("temp index delete failed")
		}
	}
	return removed, nil
}

// Entries lists the regular, non-reserved files in the store.
func (s *Store) Entries() ([]Entry, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list temp dir: %w", err)
	}
	out := make([]Entry, 0, len(dirents))
	for _, de := range dirents {
		name := de.Name()
		if de.IsDir() || s.isReserved(name) {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// vanished between ReadDir and Info
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		e := Entry{
			Path:      filepath.Join(s.dir, name),
			Name:      name,
			CreatedAt: info.ModTime(),
			Size:      info.Size(),
		}
		if s.index != nil {
			if at, ok, err := s.index.Get(name); err == nil && ok {
				e.CreatedAt = at
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) newFile(prefix, ext string) *File {
	now := s.now()
	name := fmt.Sprintf("%s-%d-%s%s", sanitize(prefix), now.UnixMilli(), uuid.NewString(), normalizeExt(ext))
	return &File{Path: filepath.Join(s.dir, name), Name: name, CreatedAt: now}
}

func (s *Store) record(f *File) {
	if s.index == nil {
		return
	}
	if err := s.index.Put(f.Name, f.CreatedAt); err != nil {
		log.Warn().Err(err).Str("file", f.Name).Msg("temp index put failed, falling back to mtime")
	}
}

func (s *Store) contains(path string) bool {
	return filepath.Dir(filepath.Clean(path)) == s.dir
}

func (s *Store) isReserved(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	_, ok := s.reserved[name]
	return ok
}

func normalizeExt(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return ""
	}
	return "." + strings.ToLower(sanitize(ext))
}

// sanitize keeps [A-Za-z0-9_] and maps anything else to '_'.
func sanitize(s string) string {
	if s == "" {
		return "tmp"
	}
	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			b[i] = '_'
		}
	}
	return string(b)
}
