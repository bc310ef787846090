// Package generator produces test scenarios for a package. Generation
// backends vary (an AI service in production, a heuristic fallback locally);
// the engine treats every backend as untrusted and re-validates its output.
package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/apiprobe-labs/apiprobe-go/internal/apispec"
	"github.com/apiprobe-labs/apiprobe-go/internal/domain"
)

// Config carries generation hints.
type Config struct {
	// MaxScenarios caps the number of scenarios a backend may return.
	// Zero means no cap.
	MaxScenarios int
	// Requirements is free-form operator guidance forwarded to the backend.
	Requirements string
}

// Generator produces candidate scenarios from a parsed API document.
type Generator interface {
	Generate(ctx context.Context, packageID string, doc *apispec.Document, cfg Config) ([]domain.TestScenario, error)
}

// Validated wraps a backend and enforces the engine's contract on its
// output: ids assigned, package id stamped, every scenario valid, cap
// applied. Backend output never reaches storage unchecked.
type Validated struct {
	backend Generator
}

func NewValidated(backend Generator) *Validated {
	if backend == nil {
		return nil
	}
	return &Validated{backend: backend}
}

func (v *Validated) Generate(ctx context.Context, packageID string, doc *apispec.Document, cfg Config) ([]domain.TestScenario, error) {
	if v == nil || v.backend == nil {
		return nil, fmt.Errorf("generator not initialized")
	}
	packageID = strings.TrimSpace(packageID)
	if packageID == "" {
		return nil, fmt.Errorf("package id is required")
	}
	scenarios, err := v.backend.Generate(ctx, packageID, doc, cfg)
	if err != nil {
		return nil, fmt.Errorf("generate scenarios: %w", err)
	}
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("backend produced no scenarios")
	}
	if cfg.MaxScenarios > 0 && len(scenarios) > cfg.MaxScenarios {
		scenarios = scenarios[:cfg.MaxScenarios]
	}
	for i := range scenarios {
		scenarios[i].ID = uuid.NewString()
		scenarios[i].PackageID = packageID
		if err := scenarios[i].Validate(); err != nil {
			return nil, fmt.Errorf("backend scenario %d invalid: %w", i, err)
		}
	}
	return scenarios, nil
}

// Heuristic is the fallback backend: one smoke scenario per read-only
// operation in the document. It produces nothing for specs without GET
// operations, which callers surface as a generation failure.
type Heuristic struct{}

func (Heuristic) Generate(_ context.Context, packageID string, doc *apispec.Document, _ Config) ([]domain.TestScenario, error) {
	if doc == nil {
		return nil, fmt.Errorf("api document is required")
	}
	steps := make([]domain.TestStep, 0)
	for _, op := range doc.Operations() {
		if op.Method != "GET" {
			continue
		}
		// Parameterized paths need values the heuristic cannot invent.
		if strings.Contains(op.Path, "{") {
			continue
		}
		name := op.OperationID
		if name == "" {
			name = fmt.Sprintf("get %s", op.Path)
		}
		steps = append(steps, domain.TestStep{
			Index:            len(steps),
			Name:             name,
			Method:           "GET",
			EndpointTemplate: op.Path,
			Expected:         domain.ExpectedResult{StatusCode: 200},
		})
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("no operations eligible for smoke scenario")
	}
	return []domain.TestScenario{{
		PackageID:   packageID,
		Name:        "smoke",
		Description: "generated smoke checks over read-only endpoints",
		Steps:       steps,
	}}, nil
}
