package execution

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/apiprobe-labs/apiprobe-go/internal/domain"
	"github.com/apiprobe-labs/apiprobe-go/internal/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStepExecutorPassed(t *testing.T) {
	ft := newFakeTransport()
	ft.responses["https://api.local/users/1"] = transport.Response{
		StatusCode: 200,
		Body:       []byte(`{"id": 7, "name": "ada"}`),
	}
	results := &fakeResultRepo{}
	executor := NewStepExecutor(ft, results, testLogger())

	ec := NewContext(nil)
	step := domain.TestStep{
		Index: 0, Name: "fetch user", Method: "GET", EndpointTemplate: "/users/1",
		Expected: domain.ExpectedResult{StatusCode: 200, BodyContains: []string{"ada"}},
		Extract:  map[string]string{"userId": "id"},
	}
	result := executor.Execute(context.Background(), "run-1", "https://api.local", step, ec)

	if result.Status != domain.StepStatusPassed || !result.Passed {
		t.Fatalf("result=%+v, want passed", result)
	}
	if result.ActualStatusCode != 200 {
		t.Fatalf("ActualStatusCode=%d", result.ActualStatusCode)
	}
	if len(result.Assertions) != 2 {
		t.Fatalf("Assertions=%v, want 2 checks", result.Assertions)
	}
	if result.Extracted["userId"] != "7" {
		t.Fatalf("Extracted=%v", result.Extracted)
	}
	if v, _ := ec.Lookup("userId"); v != "7" {
		t.Fatalf("context not updated: %q", v)
	}
	if len(results.results) != 1 {
		t.Fatalf("expected exactly one persisted result, got %d", len(results.results))
	}
}

func TestStepExecutorFailedOnStatusMismatch(t *testing.T) {
	ft := newFakeTransport()
	ft.responses["https://api.local/users/1"] = transport.Response{StatusCode: 500, Body: []byte(`{}`)}
	executor := NewStepExecutor(ft, &fakeResultRepo{}, testLogger())

	step := domain.TestStep{Index: 0, Method: "GET", EndpointTemplate: "/users/1",
		Expected: domain.ExpectedResult{StatusCode: 200}}
	result := executor.Execute(context.Background(), "run-1", "https://api.local", step, NewContext(nil))

	if result.Status != domain.StepStatusFailed || result.Passed {
		t.Fatalf("result=%+v, want failed", result)
	}
	if result.ErrorMessage != "" {
		t.Fatalf("assertion mismatch must be data, not an error message: %q", result.ErrorMessage)
	}
}

func TestStepExecutorFailedOnBodyContains(t *testing.T) {
	ft := newFakeTransport()
	ft.responses["https://api.local/ping"] = transport.Response{StatusCode: 200, Body: []byte(`pong`)}
	executor := NewStepExecutor(ft, &fakeResultRepo{}, testLogger())

	step := domain.TestStep{Index: 0, Method: "GET", EndpointTemplate: "/ping",
		Expected: domain.ExpectedResult{BodyContains: []string{"pong", "absent"}}}
	result := executor.Execute(context.Background(), "run-1", "https://api.local", step, NewContext(nil))

	if result.Status != domain.StepStatusFailed {
		t.Fatalf("result=%+v, want failed", result)
	}
	if !result.Assertions[0].OK || result.Assertions[1].OK {
		t.Fatalf("Assertions=%v", result.Assertions)
	}
}

func TestStepExecutorErrorOnTransportFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.failures["https://api.local/users/1"] = errors.New("dial tcp: connection refused")
	executor := NewStepExecutor(ft, &fakeResultRepo{}, testLogger())

	step := domain.TestStep{Index: 0, Method: "GET", EndpointTemplate: "/users/1",
		Expected: domain.ExpectedResult{StatusCode: 200}}
	result := executor.Execute(context.Background(), "run-1", "https://api.local", step, NewContext(nil))

	if result.Status != domain.StepStatusError || result.Passed {
		t.Fatalf("result=%+v, want error", result)
	}
	if result.ErrorMessage == "" {
		t.Fatalf("expected transport error message")
	}
	if len(result.Assertions) != 0 {
		t.Fatalf("no assertions must be evaluated without a response")
	}
}

func TestStepExecutorNoAssertionsPassesOnAnyResponse(t *testing.T) {
	ft := newFakeTransport()
	ft.responses["https://api.local/x"] = transport.Response{StatusCode: 503, Body: []byte("oops")}
	executor := NewStepExecutor(ft, &fakeResultRepo{}, testLogger())

	step := domain.TestStep{Index: 0, Method: "GET", EndpointTemplate: "/x"}
	result := executor.Execute(context.Background(), "run-1", "https://api.local", step, NewContext(nil))

	if result.Status != domain.StepStatusPassed {
		t.Fatalf("result=%+v, want passed without configured assertions", result)
	}
}

func TestStepExecutorExtractionFailureIsNonFatal(t *testing.T) {
	ft := newFakeTransport()
	ft.responses["https://api.local/x"] = transport.Response{StatusCode: 200, Body: []byte(`{"other": 1}`)}
	executor := NewStepExecutor(ft, &fakeResultRepo{}, testLogger())

	ec := NewContext(nil)
	step := domain.TestStep{Index: 0, Method: "GET", EndpointTemplate: "/x",
		Expected: domain.ExpectedResult{StatusCode: 200},
		Extract:  map[string]string{"token": "auth.token"}}
	result := executor.Execute(context.Background(), "run-1", "https://api.local", step, ec)

	if result.Status != domain.StepStatusPassed {
		t.Fatalf("result=%+v, extraction miss must not change classification", result)
	}
	if _, ok := ec.Lookup("token"); ok {
		t.Fatalf("missing path must produce no variable")
	}
}

func TestStepExecutorResolvesTemplates(t *testing.T) {
	ft := newFakeTransport()
	ft.responses["https://api.local/users/42"] = transport.Response{StatusCode: 200, Body: []byte(`{}`)}
	executor := NewStepExecutor(ft, &fakeResultRepo{}, testLogger())

	ec := NewContext(nil)
	ec.AddExtracted(map[string]string{"userId": "42", "token": "secret"})
	step := domain.TestStep{
		Index: 1, Method: "PATCH", EndpointTemplate: "/users/{{userId}}",
		HeaderTemplates: map[string]string{"Authorization": "Bearer {{token}}"},
		BodyTemplate:    `{"ref": "{{userId}}"}`,
	}
	executor.Execute(context.Background(), "run-1", "https://api.local", step, ec)

	if len(ft.requests) != 1 {
		t.Fatalf("expected one exchange")
	}
	req := ft.requests[0]
	if req.URL != "https://api.local/users/42" {
		t.Fatalf("URL=%q", req.URL)
	}
	if req.Headers["Authorization"] != "Bearer secret" {
		t.Fatalf("Headers=%v", req.Headers)
	}
	if req.Body != `{"ref": "42"}` {
		t.Fatalf("Body=%q", req.Body)
	}
}

func TestStepExecutorPersistFailureDoesNotChangeResult(t *testing.T) {
	ft := newFakeTransport()
	ft.responses["https://api.local/x"] = transport.Response{StatusCode: 200, Body: []byte(`{}`)}
	executor := NewStepExecutor(ft, &fakeResultRepo{failAll: true}, testLogger())

	step := domain.TestStep{Index: 0, Method: "GET", EndpointTemplate: "/x",
		Expected: domain.ExpectedResult{StatusCode: 200}}
	result := executor.Execute(context.Background(), "run-1", "https://api.local", step, NewContext(nil))

	if result.Status != domain.StepStatusPassed {
		t.Fatalf("result=%+v, persistence failure must not alter classification", result)
	}
}

type panickyTransport struct{}

func (panickyTransport) Exchange(context.Context, transport.Request) (transport.Response, error) {
	panic("unexpected nil dereference")
}

func TestStepExecutorRecoversPanicAsErrorResult(t *testing.T) {
	executor := NewStepExecutor(panickyTransport{}, &fakeResultRepo{}, testLogger())
	step := domain.TestStep{Index: 0, Method: "GET", EndpointTemplate: "/x"}
	result := executor.Execute(context.Background(), "run-1", "https://api.local", step, NewContext(nil))

	if result.Status != domain.StepStatusError {
		t.Fatalf("result=%+v, want error from recovered panic", result)
	}
	if result.ErrorMessage == "" || result.DurationMillis < 0 {
		t.Fatalf("expected best-effort error message and duration, got %+v", result)
	}
}
