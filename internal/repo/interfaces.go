package repo

import (
	"context"
	"errors"
	"time"

	"github.com/apiprobe-labs/apiprobe-go/internal/domain"
)

// ErrNotFound is returned when the requested entity does not exist.
var ErrNotFound = errors.New("not_found")

// ErrStatusConflict is returned by compare-and-swap status updates when the
// stored status no longer matches the expected one.
var ErrStatusConflict = errors.New("status_conflict")

type PackageFilter struct {
	ProjectID string
	Status    domain.PackageStatus
	Limit     int
}

type ScenarioFilter struct {
	PackageID string
	Limit     int
}

type RunFilter struct {
	PackageID  string
	ScenarioID string
	Status     domain.RunStatus
	Limit      int
}

// PackageRepository manages package aggregates. UpdatePackageStatus is a
// compare-and-swap: it succeeds only when the stored status still equals
// `from`, so two racing transitions cannot both appear to succeed.
type PackageRepository interface {
	CreatePackage(ctx context.Context, pkg domain.Package) error
	GetPackage(ctx context.Context, id string) (domain.Package, error)
	ListPackages(ctx context.Context, filter PackageFilter) ([]domain.Package, error)
	UpdatePackageStatus(ctx context.Context, id string, from, to domain.PackageStatus, updatedAt time.Time) error
	DeletePackage(ctx context.Context, id string) error
}

// ScenarioRepository manages immutable test scenarios.
type ScenarioRepository interface {
	CreateScenario(ctx context.Context, scenario domain.TestScenario) error
	GetScenario(ctx context.Context, id string) (domain.TestScenario, error)
	ListScenarios(ctx context.Context, filter ScenarioFilter) ([]domain.TestScenario, error)
	DeleteScenario(ctx context.Context, id string) error
}

// RunRepository manages test runs.
type RunRepository interface {
	CreateRun(ctx context.Context, run domain.TestRun) error
	GetRun(ctx context.Context, id string) (domain.TestRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]domain.TestRun, error)
	UpdateRunStatus(ctx context.Context, id string, status domain.RunStatus, completedAt *time.Time) error
}

// StepResultRepository manages append-only step results. Results are written
// once and never mutated.
type StepResultRepository interface {
	CreateStepResult(ctx context.Context, result domain.StepResult) error
	ListByRun(ctx context.Context, runID string) ([]domain.StepResult, error)
}
