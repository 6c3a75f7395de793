// Package pipeline runs face analysis on webcam frames in the background.
//
// Frames go through a single-slot queue: a new frame evicts one that is still
// waiting, so the worker always analyses the freshest frame and request
// handlers never block. Results are published to a latest-result cache and a
// bounded history, then handed to subscribers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-affect/pkg/face"
)

// ErrQueueFull is returned when a frame could not be queued because other
// producers kept refilling the slot.
var ErrQueueFull = errors.New("pipeline: queue full")

// DefaultEnqueueAttempts bounds how often Enqueue evicts and retries.
const DefaultEnqueueAttempts = 3

// Job is one queued frame.
type Job struct {
	ID         string
	Payload    string
	EnqueuedAt time.Time
}

// Config configures a Pipeline.
type Config struct {
	HistorySize     int
	EnqueueAttempts int
	Logger          *slog.Logger
	Clock           func() time.Time
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		HistorySize:     DefaultHistorySize,
		EnqueueAttempts: DefaultEnqueueAttempts,
		Logger:          slog.Default(),
		Clock:           time.Now,
	}
}

// Stats are cumulative pipeline counters.
type Stats struct {
	Enqueued  uint64
	Dropped   uint64
	Rejected  uint64
	Processed uint64
	Failures  uint64
}

// Pipeline owns the queue, the worker and the result stores.
type Pipeline struct {
	analyzer face.Analyzer
	queue    chan Job
	cache    Cache
	history  *History
	attempts int
	clock    func() time.Time
	logger   *slog.Logger

	subMu       sync.RWMutex
	subscribers []func(Entry)

	enqueued  atomic.Uint64
	dropped   atomic.Uint64
	rejected  atomic.Uint64
	processed atomic.Uint64
	failures  atomic.Uint64
}

// New creates a pipeline around analyzer. Call Run to start the worker.
func New(analyzer face.Analyzer, cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.EnqueueAttempts <= 0 {
		cfg.EnqueueAttempts = DefaultEnqueueAttempts
	}
	return &Pipeline{
		analyzer: analyzer,
		queue:    make(chan Job, 1),
		history:  NewHistory(cfg.HistorySize),
		attempts: cfg.EnqueueAttempts,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With("component", "pipeline"),
	}
}

// Subscribe registers fn to receive every result the worker publishes.
// fn runs on the worker goroutine and must not block.
func (p *Pipeline) Subscribe(fn func(Entry)) {
	p.subMu.Lock()
	p.subscribers = append(p.subscribers, fn)
	p.subMu.Unlock()
}

// Enqueue queues a frame for background analysis. A frame already waiting is
// evicted. It never blocks; ErrQueueFull means the slot stayed contended for
// every attempt.
func (p *Pipeline) Enqueue(payload string) (Job, error) {
	job := Job{
		ID:         uuid.NewString(),
		Payload:    payload,
		EnqueuedAt: p.clock(),
	}

	for i := 0; i < p.attempts; i++ {
		select {
		case p.queue <- job:
			p.enqueued.Add(1)
			return job, nil
		default:
		}

		select {
		case old := <-p.queue:
			p.dropped.Add(1)
			p.logger.Debug("dropped stale frame", "job_id", old.ID)
		default:
		}
	}

	p.rejected.Add(1)
	return Job{}, ErrQueueFull
}

// Run processes queued frames until ctx is cancelled. Only one Run may be
// active per Pipeline.
func (p *Pipeline) Run(ctx context.Context) {
	p.logger.Info("frame worker started")
	defer p.logger.Info("frame worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.queue:
			p.process(job)
		}
	}
}

func (p *Pipeline) process(job Job) {
	res := p.analyze(job.Payload)
	entry := Entry{At: p.clock(), Result: res}

	p.cache.Set(entry)
	p.history.Append(entry)
	p.processed.Add(1)

	p.logger.Info("processed frame",
		"job_id", job.ID,
		"faces_detected", res.FacesDetected,
		"emotion", res.Emotion,
		"processing_ms", res.ProcessingMs,
		"queued_ms", entry.At.Sub(job.EnqueuedAt).Milliseconds(),
	)

	p.subMu.RLock()
	subs := p.subscribers
	p.subMu.RUnlock()
	for _, fn := range subs {
		p.notify(fn, entry)
	}
}

func (p *Pipeline) notify(fn func(Entry), e Entry) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("result subscriber panic", "panic", r)
		}
	}()
	fn(e)
}

// analyze runs the analyzer, converting panics to a fallback result.
func (p *Pipeline) analyze(payload string) (res face.Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("frame analysis panic", "panic", r)
			res = face.Fallback(fmt.Sprintf("analysis failed: %v", r))
		}
		if res.Error != "" {
			p.failures.Add(1)
		}
	}()
	if p.analyzer == nil {
		return face.Fallback("face analyzer unavailable")
	}
	return p.analyzer.Analyze(payload)
}

// AnalyzeSync analyses a frame on the caller's goroutine, bypassing the
// queue, cache and history.
func (p *Pipeline) AnalyzeSync(payload string) face.Result {
	return p.analyze(payload)
}

// Latest returns the most recent worker result.
func (p *Pipeline) Latest() (Entry, bool) {
	return p.cache.Get()
}

// History returns a copy of recent results, oldest first.
func (p *Pipeline) History() []Entry {
	return p.history.Snapshot()
}

// Stats returns the cumulative counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Enqueued:  p.enqueued.Load(),
		Dropped:   p.dropped.Load(),
		Rejected:  p.rejected.Load(),
		Processed: p.processed.Load(),
		Failures:  p.failures.Load(),
	}
}
