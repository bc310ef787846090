package domain

import (
	"errors"
	"strings"
	"time"
)

// RunStatus is the observable status of a test run. QUEUED and RUNNING are
// transient; the rest are terminal and monotonic: once a run reaches a
// terminal status it never changes again.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "QUEUED"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusPassed    RunStatus = "PASSED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusError     RunStatus = "ERROR"
	RunStatusCancelled RunStatus = "CANCELLED"
)

func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusPassed, RunStatusFailed, RunStatusError, RunStatusCancelled:
		return true
	}
	return false
}

// ParseRunStatus maps a stored status value to a canonical run status.
func ParseRunStatus(value string) (RunStatus, bool) {
	status := RunStatus(strings.ToUpper(strings.TrimSpace(value)))
	switch status {
	case RunStatusQueued, RunStatusRunning, RunStatusPassed, RunStatusFailed, RunStatusError, RunStatusCancelled:
		return status, true
	default:
		return "", false
	}
}

// StepStatus classifies a single executed step. The executor assigns exactly
// one of these: error when no response was obtained, failed when a response
// arrived but assertions did not hold, passed otherwise.
type StepStatus string

const (
	StepStatusPassed StepStatus = "passed"
	StepStatusFailed StepStatus = "failed"
	StepStatusError  StepStatus = "error"
)

// TestRun references one scenario execution.
type TestRun struct {
	ID          string
	PackageID   string
	ScenarioID  string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
}

func (r TestRun) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(r.PackageID) == "" {
		return errors.New("package id is required")
	}
	if strings.TrimSpace(r.ScenarioID) == "" {
		return errors.New("scenario id is required")
	}
	if _, ok := ParseRunStatus(string(r.Status)); !ok {
		return errors.New("unknown run status")
	}
	return nil
}

// AssertionCheck records one evaluated assertion.
type AssertionCheck struct {
	Kind     string `json:"kind"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	OK       bool   `json:"ok"`
}

// StepResult is the immutable record of one executed step. At most one
// result exists per step per run; a missing row means the step was never
// attempted.
type StepResult struct {
	RunID            string
	StepIndex        int
	StepName         string
	Status           StepStatus
	ActualStatusCode int
	ActualHeaders    map[string][]string
	ActualBody       string
	Passed           bool
	Assertions       []AssertionCheck
	Extracted        map[string]string
	ErrorMessage     string
	DurationMillis   int64
	ExecutedAt       time.Time
}

func (r StepResult) Validate() error {
	if strings.TrimSpace(r.RunID) == "" {
		return errors.New("run id is required")
	}
	if r.StepIndex < 0 {
		return errors.New("step index must be >= 0")
	}
	switch r.Status {
	case StepStatusPassed, StepStatusFailed, StepStatusError:
	default:
		return errors.New("unknown step status")
	}
	return nil
}

// ComputeVerdict aggregates step results into the run verdict. A transport
// level problem outranks an assertion mismatch: any error result makes the
// run ERROR, otherwise any failed result makes it FAILED.
func ComputeVerdict(results []StepResult) RunStatus {
	verdict := RunStatusPassed
	for _, r := range results {
		switch r.Status {
		case StepStatusError:
			return RunStatusError
		case StepStatusFailed:
			verdict = RunStatusFailed
		}
	}
	return verdict
}
