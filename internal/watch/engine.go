// Package watch contains the polling-driven stage watchers that advance
// subject pipelines across the shared job store. Each watcher is an
// independent process: coordination happens only through artifact presence.
package watch

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

// Job is one eligible unit of work: a subject whose upstream artifact exists
// while the stage's downstream artifact does not.
type Job struct {
	Subject  string
	Upstream string
}

// Stage detects and executes one pipeline stage.
type Stage interface {
	Name() string
	// Scan enumerates currently eligible jobs. It must be cheap; it runs on
	// every tick.
	Scan(ctx context.Context) ([]Job, error)
	// Run executes the stage for one job and writes the downstream artifact.
	// Run must re-check downstream absence itself before any remote call: two
	// overlapping scan cycles can both admit the same job.
	Run(ctx context.Context, job Job) error
}

// ErrNotReady signals that the upstream artifact is missing, empty or
// malformed. The job is skipped silently and stays eligible for future scans.
var ErrNotReady = errors.New("upstream not ready")

// ErrRetry signals a failed execution that wrote no terminal artifact. The
// idempotency key is released so a later scan retries the job.
var ErrRetry = errors.New("retry on next scan")

// Engine drives a single stage: fixed-interval scans, a debounce delay per
// detected job to tolerate partially written files, an in-memory processed
// set, and an optional external admission lock.
type Engine struct {
	stage    Stage
	log      *log.Logger
	interval time.Duration
	debounce time.Duration
	admit    Admitter

	mu sync.Mutex
	// processed holds idempotency keys (subject, upstream path, stage) for
	// jobs this process has dispatched. Lost on restart; downstream artifact
	// checks inside Run bound the damage to duplicate side effects, never
	// duplicate artifacts.
	processed map[string]struct{}

	wg sync.WaitGroup
}

// NewEngine builds an engine. A nil admitter disables external admission.
func NewEngine(stage Stage, logger *log.Logger, interval, debounce time.Duration, admit Admitter) *Engine {
	return &Engine{
		stage:     stage,
		log:       logger,
		interval:  interval,
		debounce:  debounce,
		admit:     admit,
		processed: make(map[string]struct{}),
	}
}

// Run scans once immediately, then on every tick until the context is
// canceled. Shutdown is immediate: in-flight jobs are abandoned, not drained.
func (e *Engine) Run(ctx context.Context) {
	e.log.Printf("%s watcher started", e.stage.Name())
	e.scan(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			e.log.Printf("%s watcher shutting down", e.stage.Name())
			return
		case <-ticker.C:
			e.scan(ctx)
		}
	}
}

func (e *Engine) scan(ctx context.Context) {
	scansTotal.WithLabelValues(e.stage.Name()).Inc()
	jobs, err := e.stage.Scan(ctx)
	if err != nil {
		e.log.Printf("%s scan error: %v", e.stage.Name(), err)
		return
	}
	for _, job := range jobs {
		key := job.Subject + ":" + job.Upstream + ":" + e.stage.Name()
		e.mu.Lock()
		if _, seen := e.processed[key]; seen {
			e.mu.Unlock()
			continue
		}
		e.processed[key] = struct{}{}
		e.mu.Unlock()

		// Jobs for different subjects proceed concurrently; the scan loop
		// never waits on one subject's pipeline before visiting the next.
		e.wg.Add(1)
		go func(job Job, key string) {
			defer e.wg.Done()
			e.dispatch(ctx, job, key)
		}(job, key)
	}
}

func (e *Engine) dispatch(ctx context.Context, job Job, key string) {
	select {
	case <-ctx.Done():
		e.forget(key)
		return
	case <-time.After(e.debounce):
	}

	if e.admit != nil {
		ok, err := e.admit.TryAdmit(ctx, key)
		if err != nil {
			e.log.Printf("%s admission check failed for %s: %v", e.stage.Name(), job.Subject, err)
		} else if !ok {
			// Another process owns this job. Release our key so a later scan
			// can pick it up if that process never finishes.
			e.forget(key)
			return
		}
	}

	err := e.stage.Run(ctx, job)
	switch {
	case err == nil:
		jobsTotal.WithLabelValues(e.stage.Name(), "ok").Inc()
	case errors.Is(err, ErrNotReady):
		e.forget(key)
		jobsTotal.WithLabelValues(e.stage.Name(), "skipped").Inc()
	case errors.Is(err, ErrRetry):
		e.forget(key)
		jobsTotal.WithLabelValues(e.stage.Name(), "retry").Inc()
	default:
		e.log.Printf("%s failed for %s: %v", e.stage.Name(), job.Subject, err)
		jobsTotal.WithLabelValues(e.stage.Name(), "error").Inc()
	}
}

func (e *Engine) forget(key string) {
	e.mu.Lock()
	delete(e.processed, key)
	e.mu.Unlock()
}
