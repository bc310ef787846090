package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/apiprobe-labs/apiprobe-go/internal/domain"
	"github.com/apiprobe-labs/apiprobe-go/internal/events"
	"github.com/apiprobe-labs/apiprobe-go/internal/repo"
)

// stepRunner is the single-step contract the orchestrator drives.
type stepRunner interface {
	Execute(ctx context.Context, runID, baseURL string, step domain.TestStep, ec *Context) domain.StepResult
}

// Options carries the per-run execution settings taken from the owning
// package.
type Options struct {
	BaseURL            string
	StopOnFirstFailure bool
	Environment        map[string]string
}

// Orchestrator drives one full scenario execution to a terminal verdict.
type Orchestrator struct {
	runs     repo.RunRepository
	executor stepRunner
	sink     events.Sink
	logger   *slog.Logger
}

func NewOrchestrator(runs repo.RunRepository, executor stepRunner, sink events.Sink, logger *slog.Logger) *Orchestrator {
	if runs == nil || executor == nil || logger == nil {
		return nil
	}
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Orchestrator{runs: runs, executor: executor, sink: sink, logger: logger}
}

// Execute runs the scenario's steps strictly in ascending index order,
// threading extracted values from earlier steps into later ones, and
// persists the terminal run state. The returned error is non-nil only for
// the two fatal persistence points: writing the RUNNING marker and writing
// the terminal state. Everything in between is converted to step results.
func (o *Orchestrator) Execute(ctx context.Context, run domain.TestRun, scenario domain.TestScenario, opts Options) (domain.TestRun, []domain.StepResult, error) {
	if err := scenario.Validate(); err != nil {
		return run, nil, fmt.Errorf("invalid scenario: %w", err)
	}
	if run.Status.Terminal() {
		return run, nil, fmt.Errorf("run %s already terminal: %s", run.ID, run.Status)
	}

	startedAt := time.Now().UTC()

	// The RUNNING marker must be durable before any step executes.
	if err := o.runs.UpdateRunStatus(ctx, run.ID, domain.RunStatusRunning, nil); err != nil {
		return run, nil, fmt.Errorf("mark run running: %w", err)
	}
	run.Status = domain.RunStatusRunning
	run.StartedAt = startedAt

	o.sink.Publish(ctx, events.RunStarted{
		RunID:      run.ID,
		PackageID:  run.PackageID,
		ScenarioID: run.ScenarioID,
		StartedAt:  startedAt,
	})

	ec := NewContext(opts.Environment)
	results := make([]domain.StepResult, 0, len(scenario.Steps))
	cancelled := false

	for _, step := range scenario.OrderedSteps() {
		if o.cancellationRequested(ctx, run.ID) {
			cancelled = true
			break
		}
		result := o.executor.Execute(ctx, run.ID, opts.BaseURL, step, ec)
		results = append(results, result)
		if result.Status != domain.StepStatusPassed && opts.StopOnFirstFailure {
			break
		}
	}

	verdict := domain.ComputeVerdict(results)
	if cancelled {
		verdict = domain.RunStatusCancelled
	}

	completedAt := time.Now().UTC()
	if err := o.runs.UpdateRunStatus(ctx, run.ID, verdict, &completedAt); err != nil {
		if !errors.Is(err, repo.ErrStatusConflict) {
			return run, results, fmt.Errorf("mark run %s: %w", verdict, err)
		}
		// A cancellation landed after the last pre-step check. The stored
		// terminal status wins; run status is monotonic.
		stored, getErr := o.runs.GetRun(ctx, run.ID)
		if getErr != nil {
			return run, results, fmt.Errorf("mark run %s: %w", verdict, err)
		}
		verdict = stored.Status
	}
	run.Status = verdict
	run.CompletedAt = &completedAt

	passed := 0
	var errorMessage string
	for _, r := range results {
		if r.Status == domain.StepStatusPassed {
			passed++
		}
		if r.Status == domain.StepStatusError && errorMessage == "" {
			errorMessage = r.ErrorMessage
		}
	}
	o.sink.Publish(ctx, events.RunCompleted{
		RunID:          run.ID,
		PackageID:      run.PackageID,
		ScenarioID:     run.ScenarioID,
		Verdict:        verdict,
		DurationMillis: completedAt.Sub(startedAt).Milliseconds(),
		StepsExecuted:  len(results),
		StepsPassed:    passed,
		ErrorMessage:   errorMessage,
		CompletedAt:    completedAt,
	})

	return run, results, nil
}

// cancellationRequested checks, best-effort, whether an asynchronous
// cancellation landed on the run. A step already in flight is allowed to
// finish; this only gates starting the next one. Read failures do not stop
// the run.
func (o *Orchestrator) cancellationRequested(ctx context.Context, runID string) bool {
	current, err := o.runs.GetRun(ctx, runID)
	if err != nil {
		o.logger.Warn("cancellation check failed", "run_id", runID, "error", err)
		return false
	}
	return current.Status == domain.RunStatusCancelled
}
