package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrProtected is returned when LibreOffice refuses a password protected document.
var ErrProtected = errors.New("document is password protected")

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// LibreOffice converts office documents to PDF with a headless soffice per job.
type LibreOffice struct {
	binary    string
	timeout   time.Duration
	semaphore chan struct{}
	run       Runner
}

// Job represents a document conversion job
type Job struct {
	InputPath  string
	OutputPath string
	Timeout    time.Duration
}

// Result represents the result of a conversion operation
type Result struct {
	OutputPath string
	Duration   time.Duration
}

// NewLibreOffice creates a converter that allows maxWorkers conversions at once.
func NewLibreOffice(binary string, maxWorkers int, timeout time.Duration) *LibreOffice {
	if binary == "" {
		binary = "soffice"
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &LibreOffice{
		binary:    binary,
		timeout:   timeout,
		semaphore: make(chan struct{}, maxWorkers),
		run:       execRunner,
	}
}

// WithRunner swaps the command runner, for tests.
func (l *LibreOffice) WithRunner(r Runner) *LibreOffice {
	l.run = r
	return l
}

// Binary returns the configured executable name.
func (l *LibreOffice) Binary() string { return l.binary }

// ExpectedOutput is where soffice writes its result for inputPath: same
// directory, same base name, .pdf extension.
func ExpectedOutput(inputPath string) string {
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	return filepath.Join(filepath.Dir(inputPath), base+".pdf")
}

// ConvertToPDF converts job.InputPath and moves the result to job.OutputPath.
func (l *LibreOffice) ConvertToPDF(ctx context.Context, job Job) (*Result, error) {
	start := time.Now()

	select {
	case l.semaphore <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-l.semaphore }()

	if err := validateInput(job.InputPath); err != nil {
		return nil, fmt.Errorf("input validation failed: %w", err)
	}

	// A private profile per job lets conversions run in parallel.
	profileDir := filepath.Join(os.TempDir(), "libreoffice_profile_"+uuid.NewString())
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create profile directory: %w", err)
	}
	defer os.RemoveAll(profileDir)

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = l.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outDir := filepath.Dir(job.InputPath)
	args := []string{
		"-env:UserInstallation=file://" + profileDir,
		"--headless",
		"--convert-to", "pdf",
		"--outdir", outDir,
		job.InputPath,
	}
	log.Debug().Str("cmd", l.binary+" "+strings.Join(args, " ")).Msg("LibreOffice command")

	out, err := l.run(ctx, l.binary, args...)
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("conversion timeout after %v", timeout)
	}
	if err != nil {
		lower := strings.ToLower(string(out))
		if strings.Contains(lower, "password") || strings.Contains(lower, "encrypted") {
			return nil, ErrProtected
		}
		return nil, fmt.Errorf("conversion failed: %w: %s", err, trimOutput(out))
	}

	produced := ExpectedOutput(job.InputPath)
	if _, err := os.Stat(produced); err != nil {
		return nil, fmt.Errorf("output file not created: %w", err)
	}
	if produced != job.OutputPath {
		if err := os.Rename(produced, job.OutputPath); err != nil {
			return nil, fmt.Errorf("move output: %w", err)
		}
	}

	res := &Result{OutputPath: job.OutputPath, Duration: time.Since(start)}
	log.Info().Str("output", filepath.Base(res.OutputPath)).Dur("duration", res.Duration).Msg("conversion successful")
	return res, nil
}

// validateInput checks if the input file is readable
func validateInput(filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("file not found: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file")
	}
	if info.Size() == 0 {
		return fmt.Errorf("file is empty")
	}
	return nil
}

func trimOutput(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
