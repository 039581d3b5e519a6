package statuscheck

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Pinger models the minimal capability we need from the stats backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates health checks for the pipeline's dependencies.
type Checker struct {
	counter  Pinger
	tempDir  string
	soffice  string
	lookPath func(string) (string, error)
}

// Options configures the Checker.
type Options struct {
	// Counter is nil when the in-memory counter is in use.
	Counter Pinger
	TempDir string
	Soffice string
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Stats       Status `json:"stats"`
	TempStore   Status `json:"temp_store"`
	LibreOffice Status `json:"libreoffice"`
	MuPDF       Status `json:"mupdf"`
}

// Healthy reports whether the PDF operations can be served. Converter
// backends are optional.
func (s Summary) Healthy() bool { return s.TempStore.OK }

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	soffice := opts.Soffice
	if soffice == "" {
		soffice = "soffice"
	}
	return &Checker{
		counter:  opts.Counter,
		tempDir:  opts.TempDir,
		soffice:  soffice,
		lookPath: exec.LookPath,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Stats:       c.checkStats(ctx),
		TempStore:   c.checkTempStore(),
		LibreOffice: c.checkLibreOffice(),
		MuPDF:       c.checkMuPDF(),
	}
}

func (c *Checker) checkStats(ctx context.Context) Status {
	if c.counter == nil {
		return Status{OK: true, Message: "In-memory"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.counter.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkTempStore() Status {
	if c.tempDir == "" {
		return Status{OK: false, Message: "Not configured"}
	}
	f, err := os.CreateTemp(c.tempDir, ".status-*")
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	name := f.Name()
	f.Close()
	_ = os.Remove(name)
	return Status{OK: true, Message: "Writable: " + filepath.Base(c.tempDir)}
}

func (c *Checker) checkLibreOffice() Status {
	if _, err := c.lookPath(c.soffice); err != nil {
		return Status{OK: false, Message: "Binary not found"}
	}
	return Status{OK: true, Message: "Available"}
}

// MuPDF is linked in through go-fitz.
func (c *Checker) checkMuPDF() Status {
	return Status{OK: true, Message: "Linked"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
