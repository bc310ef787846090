package domain

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// TestScenario is an ordered sequence of HTTP steps representing one test case.
type TestScenario struct {
	ID          string
	PackageID   string
	Name        string
	Description string
	Steps       []TestStep
	CreatedAt   time.Time
}

// TestStep defines one HTTP exchange with its expected outcome and optional
// value extraction. Endpoint, header values, and body may carry {{name}}
// placeholders resolved against the run's execution context.
type TestStep struct {
	Index            int
	Name             string
	Method           string
	EndpointTemplate string
	HeaderTemplates  map[string]string
	BodyTemplate     string
	Expected         ExpectedResult
	Extract          map[string]string
}

// ExpectedResult holds the assertions configured for a step. A zero
// StatusCode means no status assertion.
type ExpectedResult struct {
	StatusCode   int
	BodyContains []string
}

var validMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodOptions: {},
}

func (s TestScenario) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("scenario id is required")
	}
	if strings.TrimSpace(s.PackageID) == "" {
		return errors.New("package id is required")
	}
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("scenario name is required")
	}
	if len(s.Steps) == 0 {
		return errors.New("scenario requires at least one step")
	}
	seen := make(map[int]struct{}, len(s.Steps))
	for _, step := range s.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("step %d: %w", step.Index, err)
		}
		if _, dup := seen[step.Index]; dup {
			return fmt.Errorf("duplicate step index: %d", step.Index)
		}
		seen[step.Index] = struct{}{}
	}
	return nil
}

func (s TestStep) Validate() error {
	if s.Index < 0 {
		return errors.New("step index must be >= 0")
	}
	method := strings.ToUpper(strings.TrimSpace(s.Method))
	if _, ok := validMethods[method]; !ok {
		return fmt.Errorf("unsupported http method: %q", s.Method)
	}
	if strings.TrimSpace(s.EndpointTemplate) == "" {
		return errors.New("endpoint is required")
	}
	if s.Expected.StatusCode != 0 && (s.Expected.StatusCode < 100 || s.Expected.StatusCode > 599) {
		return fmt.Errorf("expected status out of range: %d", s.Expected.StatusCode)
	}
	for name, path := range s.Extract {
		if strings.TrimSpace(name) == "" {
			return errors.New("extraction variable name is required")
		}
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("extraction path for %q is required", name)
		}
	}
	return nil
}

// OrderedSteps returns the steps sorted ascending by index. The receiver's
// slice is not modified.
func (s TestScenario) OrderedSteps() []TestStep {
	steps := make([]TestStep, len(s.Steps))
	copy(steps, s.Steps)
	sort.Slice(steps, func(i, j int) bool { return steps[i].Index < steps[j].Index })
	return steps
}
