package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type fakeStage struct {
	mu   sync.Mutex
	jobs []Job
	err  error
	runs int
}

func (f *fakeStage) Name() string { return "fake" }

func (f *fakeStage) Scan(ctx context.Context) ([]Job, error) { return f.jobs, nil }

func (f *fakeStage) Run(ctx context.Context, job Job) error {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	return f.err
}

func (f *fakeStage) runCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

type fixedAdmitter struct {
	mu    sync.Mutex
	allow bool
	calls int
}

func (a *fixedAdmitter) TryAdmit(ctx context.Context, key string) (bool, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	return a.allow, nil
}

func TestEngineDispatchOutcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		runErr   error
		wantRuns int
	}{
		// nil and terminal errors keep the idempotency key: two scan cycles
		// dispatch the same job exactly once.
		{name: "success keeps key", runErr: nil, wantRuns: 1},
		{name: "terminal error keeps key", runErr: errors.New("boom"), wantRuns: 1},
		// sentinel errors release the key so a later scan retries.
		{name: "not ready releases key", runErr: ErrNotReady, wantRuns: 2},
		{name: "retry releases key", runErr: ErrRetry, wantRuns: 2},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			stage := &fakeStage{
				jobs: []Job{{Subject: "npub1alpha", Upstream: "/tmp/x/just_text.json"}},
				err:  tc.runErr,
			}
			e := NewEngine(stage, discardLogger(), 0, 0, nil)

			e.scan(context.Background())
			e.wg.Wait()
			e.scan(context.Background())
			e.wg.Wait()

			if got := stage.runCount(); got != tc.wantRuns {
				t.Fatalf("runs = %d, want %d", got, tc.wantRuns)
			}
		})
	}
}

func TestEngineDeniedAdmissionSkipsRun(t *testing.T) {
	t.Parallel()
	stage := &fakeStage{jobs: []Job{{Subject: "npub1alpha", Upstream: "/tmp/x/just_text.json"}}}
	admit := &fixedAdmitter{allow: false}
	e := NewEngine(stage, discardLogger(), 0, 0, admit)

	e.scan(context.Background())
	e.wg.Wait()

	if got := stage.runCount(); got != 0 {
		t.Fatalf("runs = %d, want 0 when admission denied", got)
	}

	// The denied key was released, so the next scan retries admission.
	e.scan(context.Background())
	e.wg.Wait()
	if admit.calls != 2 {
		t.Fatalf("admission attempts = %d, want 2", admit.calls)
	}
}

func TestEngineDistinctJobsDispatchIndependently(t *testing.T) {
	t.Parallel()
	stage := &fakeStage{jobs: []Job{
		{Subject: "npub1alpha", Upstream: "/tmp/a/just_text.json"},
		{Subject: "npub1bravo", Upstream: "/tmp/b/just_text.json"},
	}}
	e := NewEngine(stage, discardLogger(), 0, 0, nil)

	e.scan(context.Background())
	e.wg.Wait()

	if got := stage.runCount(); got != 2 {
		t.Fatalf("runs = %d, want 2", got)
	}
}
