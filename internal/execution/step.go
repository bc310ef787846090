package execution

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/apiprobe-labs/apiprobe-go/internal/domain"
	"github.com/apiprobe-labs/apiprobe-go/internal/repo"
	"github.com/apiprobe-labs/apiprobe-go/internal/transport"
)

const (
	assertionKindStatus       = "status"
	assertionKindBodyContains = "body_contains"
)

// StepExecutor executes exactly one step end-to-end and returns one
// StepResult. It never panics or returns an error across its boundary:
// anything that goes wrong during the exchange, evaluation, or extraction
// becomes an error-classified result.
type StepExecutor struct {
	client  transport.Client
	results repo.StepResultRepository
	logger  *slog.Logger
}

func NewStepExecutor(client transport.Client, results repo.StepResultRepository, logger *slog.Logger) *StepExecutor {
	if client == nil || results == nil || logger == nil {
		return nil
	}
	return &StepExecutor{client: client, results: results, logger: logger}
}

// Execute resolves the step's templates against the run context, issues one
// HTTP exchange, evaluates assertions, extracts configured values into the
// context, and persists the resulting record. Previously persisted results
// are never mutated; persistence failure is logged and the in-memory result
// still stands.
func (e *StepExecutor) Execute(ctx context.Context, runID, baseURL string, step domain.TestStep, ec *Context) domain.StepResult {
	start := time.Now()
	result := domain.StepResult{
		RunID:      runID,
		StepIndex:  step.Index,
		StepName:   step.Name,
		ExecutedAt: start.UTC(),
	}

	func() {
		defer func() {
			if v := recover(); v != nil {
				result.Status = domain.StepStatusError
				result.Passed = false
				result.ErrorMessage = fmt.Sprintf("step evaluation panicked: %v", v)
			}
		}()
		e.run(ctx, baseURL, step, ec, &result)
	}()

	result.DurationMillis = time.Since(start).Milliseconds()

	if err := e.results.CreateStepResult(ctx, result); err != nil {
		e.logger.Error("persist step result failed",
			"run_id", runID,
			"step_index", step.Index,
			"error", err,
		)
	}
	return result
}

func (e *StepExecutor) run(ctx context.Context, baseURL string, step domain.TestStep, ec *Context, result *domain.StepResult) {
	req := transport.Request{
		Method: step.Method,
		URL:    joinURL(baseURL, ec.Resolve(step.EndpointTemplate)),
		Body:   ec.Resolve(step.BodyTemplate),
	}
	if len(step.HeaderTemplates) > 0 {
		req.Headers = make(map[string]string, len(step.HeaderTemplates))
		for k, v := range step.HeaderTemplates {
			req.Headers[k] = ec.Resolve(v)
		}
	}

	resp, err := e.client.Exchange(ctx, req)
	if err != nil {
		result.Status = domain.StepStatusError
		result.Passed = false
		result.ErrorMessage = err.Error()
		return
	}

	result.ActualStatusCode = resp.StatusCode
	result.ActualHeaders = resp.Headers
	result.ActualBody = string(resp.Body)
	result.Assertions = evaluateAssertions(step.Expected, resp)

	if len(step.Extract) > 0 {
		extracted := ExtractValues(resp.Body, step.Extract)
		if len(extracted) > 0 {
			result.Extracted = extracted
			ec.AddExtracted(extracted)
		}
	}

	for _, check := range result.Assertions {
		if !check.OK {
			result.Status = domain.StepStatusFailed
			result.Passed = false
			return
		}
	}
	result.Status = domain.StepStatusPassed
	result.Passed = true
}

// evaluateAssertions checks the configured expectations against a received
// response. No configured assertions means the step passes on any response.
func evaluateAssertions(expected domain.ExpectedResult, resp transport.Response) []domain.AssertionCheck {
	var checks []domain.AssertionCheck
	if expected.StatusCode != 0 {
		checks = append(checks, domain.AssertionCheck{
			Kind:     assertionKindStatus,
			Expected: strconv.Itoa(expected.StatusCode),
			Actual:   strconv.Itoa(resp.StatusCode),
			OK:       resp.StatusCode == expected.StatusCode,
		})
	}
	body := string(resp.Body)
	for _, substr := range expected.BodyContains {
		checks = append(checks, domain.AssertionCheck{
			Kind:     assertionKindBodyContains,
			Expected: substr,
			Actual:   truncate(body, 256),
			OK:       strings.Contains(body, substr),
		})
	}
	return checks
}

func joinURL(base, endpoint string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return base
	}
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return base + endpoint
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
