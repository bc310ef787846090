package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// PackageStatus is the lifecycle status of a test package aggregate.
type PackageStatus string

const (
	PackageStatusRequested           PackageStatus = "REQUESTED"
	PackageStatusSpecFetched         PackageStatus = "SPEC_FETCHED"
	PackageStatusFailedSpecFetch     PackageStatus = "FAILED_SPEC_FETCH"
	PackageStatusAISuccess           PackageStatus = "AI_SUCCESS"
	PackageStatusFailedGeneration    PackageStatus = "FAILED_GENERATION"
	PackageStatusExecutionInProgress PackageStatus = "EXECUTION_IN_PROGRESS"
	PackageStatusFailedExecution     PackageStatus = "FAILED_EXECUTION"
	PackageStatusExecutionComplete   PackageStatus = "EXECUTION_COMPLETE"
	PackageStatusQAEvalInProgress    PackageStatus = "QA_EVAL_IN_PROGRESS"
	PackageStatusQAEvalDone          PackageStatus = "QA_EVAL_DONE"
	PackageStatusComplete            PackageStatus = "COMPLETE"
	PackageStatusCancelled           PackageStatus = "CANCELLED"
)

// packageTransitions is the static transition table: for each non-terminal
// state, the set of allowed next states. CANCELLED is additionally allowed
// from every non-terminal state (see CanTransition). Terminal states have
// no outgoing edges.
var packageTransitions = map[PackageStatus]map[PackageStatus]struct{}{
	PackageStatusRequested: {
		PackageStatusSpecFetched:     {},
		PackageStatusFailedSpecFetch: {},
	},
	PackageStatusSpecFetched: {
		PackageStatusAISuccess:        {},
		PackageStatusFailedGeneration: {},
	},
	PackageStatusFailedSpecFetch: {
		PackageStatusSpecFetched: {},
	},
	PackageStatusAISuccess: {
		PackageStatusExecutionInProgress: {},
		PackageStatusFailedExecution:     {},
	},
	PackageStatusFailedGeneration: {
		PackageStatusAISuccess: {},
	},
	PackageStatusExecutionInProgress: {
		PackageStatusExecutionComplete: {},
		PackageStatusFailedExecution:   {},
	},
	PackageStatusFailedExecution: {
		PackageStatusExecutionInProgress: {},
	},
	PackageStatusExecutionComplete: {
		PackageStatusQAEvalInProgress: {},
		PackageStatusComplete:         {},
	},
	PackageStatusQAEvalInProgress: {
		PackageStatusQAEvalDone:      {},
		PackageStatusFailedExecution: {},
	},
	PackageStatusQAEvalDone: {
		PackageStatusComplete: {},
	},
}

// ParsePackageStatus maps a stored status value to a canonical status.
func ParsePackageStatus(value string) (PackageStatus, bool) {
	status := PackageStatus(strings.ToUpper(strings.TrimSpace(value)))
	switch status {
	case PackageStatusRequested, PackageStatusSpecFetched, PackageStatusFailedSpecFetch,
		PackageStatusAISuccess, PackageStatusFailedGeneration,
		PackageStatusExecutionInProgress, PackageStatusFailedExecution, PackageStatusExecutionComplete,
		PackageStatusQAEvalInProgress, PackageStatusQAEvalDone,
		PackageStatusComplete, PackageStatusCancelled:
		return status, true
	default:
		return "", false
	}
}

// Terminal reports whether the status has no outgoing transitions.
func (s PackageStatus) Terminal() bool {
	return s == PackageStatusComplete || s == PackageStatusCancelled
}

// CanTransition reports whether moving from one status to another is allowed.
// A self-transition is always allowed; callers treat it as a no-op success.
func CanTransition(from, to PackageStatus) bool {
	if _, ok := ParsePackageStatus(string(from)); !ok {
		return false
	}
	if _, ok := ParsePackageStatus(string(to)); !ok {
		return false
	}
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	if to == PackageStatusCancelled {
		return true
	}
	_, ok := packageTransitions[from][to]
	return ok
}

// InvalidTransitionError reports a rejected package status change.
type InvalidTransitionError struct {
	From PackageStatus
	To   PackageStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

// Package is the aggregate root owning test scenarios and runs.
type Package struct {
	ID                 string
	ProjectID          string
	Name               string
	Status             PackageStatus
	BaseURL            string
	StopOnFirstFailure bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Metadata           Metadata
}

func (p Package) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("package id is required")
	}
	if strings.TrimSpace(p.ProjectID) == "" {
		return errors.New("project id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("package name is required")
	}
	if _, ok := ParsePackageStatus(string(p.Status)); !ok {
		return fmt.Errorf("unknown package status: %q", p.Status)
	}
	return nil
}
