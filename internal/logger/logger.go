// Package logger configures the process-wide zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// ServiceName is the default service tag.
const ServiceName = "pdforganizer"

// Options defines logger initialization parameters.
type Options struct {
	// Service, Environment and Version become base fields on every event.
	// Service defaults to ServiceName; the others are omitted when empty.
	Service     string
	Environment string
	Version     string

	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	SendToAxiom  bool
	AxiomAPIKey  string
	AxiomOrgID   string
	AxiomDataset string
	AxiomFlush   time.Duration

	// Output replaces stdout; used by tests.
	Output io.Writer
}

var (
	global zerolog.Logger
	sink   *axiomSink
)

// Init builds the global logger from opts. Events go to stdout (JSON, or
// console format when Pretty), to a rotated file when File is set, and to
// Axiom at info and above when enabled. A failing Axiom setup is reported and
// skipped; the other outputs still work.
func Init(opts Options) error {
	if opts.Service == "" {
		opts.Service = ServiceName
	}

	stdout := opts.Output
	if stdout == nil {
		stdout = os.Stdout
	}
	var writers []io.Writer
	if opts.Pretty {
		writers = append(writers, zerolog.ConsoleWriter{Out: stdout, TimeFormat: time.RFC3339})
	} else {
		writers = append(writers, stdout)
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return fmt.Errorf("create logs dir: %w", err)
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		})
	}

	Close()
	if opts.SendToAxiom && opts.AxiomAPIKey != "" {
		s, err := newAxiomSink(axiomOptions{
			Token:   opts.AxiomAPIKey,
			OrgID:   opts.AxiomOrgID,
			Dataset: opts.AxiomDataset,
			Service: opts.Service,
			Flush:   opts.AxiomFlush,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "axiom logging disabled: %v\n", err)
		} else {
			sink = s
			writers = append(writers, s)
		}
	}

	lvl, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339

	ctx := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().
		Timestamp().
		Str("service", opts.Service)
	if opts.Environment != "" {
		ctx = ctx.Str("env", opts.Environment)
	}
	if opts.Version != "" {
		ctx = ctx.Str("version", opts.Version)
	}
	global = ctx.Logger()
	log.Logger = global
	// zerolog.Ctx falls back to the global logger outside a request.
	zerolog.DefaultContextLogger = &log.Logger
	return nil
}

// Close flushes and stops the Axiom sink, if any.
func Close() {
	if sink != nil {
		sink.Close()
		sink = nil
	}
}

// Get returns the global logger.
func Get() *zerolog.Logger { return &global }
