package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/axiomhq/axiom-go/axiom/ingest"
	"github.com/rs/zerolog"
)

const (
	axiomQueueSize     = 1000
	axiomBatchSize     = 200
	axiomIngestTimeout = 15 * time.Second
	axiomDefaultFlush  = 10 * time.Second
)

type axiomOptions struct {
	Token   string
	OrgID   string
	Dataset string
	Service string
	Flush   time.Duration
}

// eventIngester is the part of *axiom.Client the sink uses.
type eventIngester interface {
	IngestEvents(ctx context.Context, dataset string, events []axiom.Event, options ...ingest.Option) (*ingest.Status, error)
}

// axiomSink is a zerolog.LevelWriter that queues events and ingests them in
// batches from one goroutine. Events below info are skipped, and events
// arriving while the queue is full are dropped and counted.
type axiomSink struct {
	client  eventIngester
	dataset string
	queue   chan axiom.Event
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

func newAxiomSink(opts axiomOptions) (*axiomSink, error) {
	co := []axiom.Option{axiom.SetToken(opts.Token)}
	if opts.OrgID != "" {
		co = append(co, axiom.SetOrganizationID(opts.OrgID))
	}
	c, err := axiom.NewClient(co...)
	if err != nil {
		return nil, err
	}
	dataset := opts.Dataset
	if dataset == "" {
		dataset = "dev_" + opts.Service
	}
	return startAxiomSink(c, dataset, opts.Flush), nil
}

func startAxiomSink(c eventIngester, dataset string, flush time.Duration) *axiomSink {
	if flush <= 0 {
		flush = axiomDefaultFlush
	}
	s := &axiomSink{
		client:  c,
		dataset: dataset,
		queue:   make(chan axiom.Event, axiomQueueSize),
		done:    make(chan struct{}),
	}
	go s.run(flush)
	return s
}

func (s *axiomSink) Write(p []byte) (int, error) {
	return s.WriteLevel(zerolog.InfoLevel, p)
}

func (s *axiomSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.InfoLevel {
		return len(p), nil
	}
	ev := axiom.Event{}
	if err := json.Unmarshal(p, &ev); err != nil {
		ev = axiom.Event{"message": string(p), "level": level.String()}
	}
	if _, ok := ev[ingest.TimestampField]; !ok {
		ev[ingest.TimestampField] = time.Now()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return len(p), nil
	}
	select {
	case s.queue <- ev:
	default:
		s.dropped.Add(1)
	}
	return len(p), nil
}

func (s *axiomSink) run(flushEvery time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	batch := make([]axiom.Event, 0, axiomBatchSize)
	send := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), axiomIngestTimeout)
		if _, err := s.client.IngestEvents(ctx, s.dataset, batch); err != nil {
			// the logger itself is the sink; report out of band
			fmt.Fprintf(os.Stderr, "axiom ingest of %d events failed: %v\n", len(batch), err)
		}
		cancel()
		batch = batch[:0]
	}
	for {
		select {
		case ev, ok := <-s.queue:
			if !ok {
				send()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= axiomBatchSize {
				send()
			}
		case <-ticker.C:
			send()
		}
	}
}

// Close drains the queue and waits for the final ingest. Later writes are
// discarded.
func (s *axiomSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	if n := s.dropped.Load(); n > 0 {
		fmt.Fprintf(os.Stderr, "axiom sink dropped %d events\n", n)
	}
}
