package execution

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/apiprobe-labs/apiprobe-go/internal/domain"
	"github.com/apiprobe-labs/apiprobe-go/internal/events"
	"github.com/apiprobe-labs/apiprobe-go/internal/repo"
	"github.com/apiprobe-labs/apiprobe-go/internal/transport"
)

type fakeRunRepo struct {
	mu            sync.Mutex
	runs          map[string]domain.TestRun
	failRunning   bool
	failTerminal  bool
	statusWrites  []domain.RunStatus
	cancelAfterN  int // cancel the run after N status reads (0 = never)
	statusReads   int
	cancelOnWrite bool // simulate a cancellation racing the terminal write
}

func newFakeRunRepo(run domain.TestRun) *fakeRunRepo {
	return &fakeRunRepo{runs: map[string]domain.TestRun{run.ID: run}}
}

func (f *fakeRunRepo) CreateRun(_ context.Context, run domain.TestRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.ID] = run
	return nil
}

func (f *fakeRunRepo) GetRun(_ context.Context, id string) (domain.TestRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return domain.TestRun{}, repo.ErrNotFound
	}
	f.statusReads++
	if f.cancelAfterN > 0 && f.statusReads > f.cancelAfterN {
		run.Status = domain.RunStatusCancelled
		f.runs[id] = run
	}
	return run, nil
}

func (f *fakeRunRepo) ListRuns(context.Context, repo.RunFilter) ([]domain.TestRun, error) {
	return nil, nil
}

func (f *fakeRunRepo) UpdateRunStatus(_ context.Context, id string, status domain.RunStatus, completedAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return repo.ErrNotFound
	}
	if status == domain.RunStatusRunning && f.failRunning {
		return errors.New("database unavailable")
	}
	if status.Terminal() && f.failTerminal {
		return errors.New("database unavailable")
	}
	if f.cancelOnWrite && status.Terminal() && status != domain.RunStatusCancelled {
		run.Status = domain.RunStatusCancelled
		f.runs[id] = run
		return repo.ErrStatusConflict
	}
	if run.Status.Terminal() && run.Status != status {
		return repo.ErrStatusConflict
	}
	run.Status = status
	run.CompletedAt = completedAt
	f.runs[id] = run
	f.statusWrites = append(f.statusWrites, status)
	return nil
}

type fakeResultRepo struct {
	mu      sync.Mutex
	results []domain.StepResult
	failAll bool
}

func (f *fakeResultRepo) CreateStepResult(_ context.Context, result domain.StepResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errors.New("database unavailable")
	}
	f.results = append(f.results, result)
	return nil
}

func (f *fakeResultRepo) ListByRun(_ context.Context, runID string) ([]domain.StepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.StepResult, 0, len(f.results))
	for _, r := range f.results {
		if r.RunID == runID {
			out = append(out, r)
		}
	}
	return out, nil
}

// fakeTransport replies per URL, optionally failing specific URLs with a
// transport error. It records every request it receives.
type fakeTransport struct {
	mu        sync.Mutex
	responses map[string]transport.Response
	failures  map[string]error
	requests  []transport.Request
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		responses: make(map[string]transport.Response),
		failures:  make(map[string]error),
	}
}

func (f *fakeTransport) Exchange(_ context.Context, req transport.Request) (transport.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err, ok := f.failures[req.URL]; ok {
		return transport.Response{}, err
	}
	if resp, ok := f.responses[req.URL]; ok {
		return resp, nil
	}
	return transport.Response{StatusCode: 404, Body: []byte(`{"error":"not_found"}`)}, nil
}

type captureSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *captureSink) Publish(_ context.Context, event events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}
