package events

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/apiprobe-labs/apiprobe-go/internal/domain"
)

func TestMarshalUnmarshalRunCompleted(t *testing.T) {
	event := RunCompleted{
		RunID:         "run-1",
		PackageID:     "pkg-1",
		ScenarioID:    "scn-1",
		Verdict:       domain.RunStatusFailed,
		StepsExecuted: 3,
		StepsPassed:   2,
		ErrorMessage:  "status mismatch",
		CompletedAt:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	raw, err := Marshal(event)
	if err != nil {
		t.Fatalf("Marshal() err=%v", err)
	}
	if !strings.Contains(string(raw), `"type":"run.completed"`) {
		t.Fatalf("envelope missing type tag: %s", raw)
	}

	decoded, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal() err=%v", err)
	}
	got, ok := decoded.(RunCompleted)
	if !ok {
		t.Fatalf("decoded type=%T", decoded)
	}
	if got != event {
		t.Fatalf("roundtrip mismatch: got %+v want %+v", got, event)
	}
}

func TestUnmarshalRejectsUnknownTag(t *testing.T) {
	if _, err := Unmarshal([]byte(`{"type": "run.exploded", "payload": {}}`)); err == nil {
		t.Fatalf("expected error for unknown event type")
	}
}

func TestUnmarshalPackageStatusChanged(t *testing.T) {
	raw, err := Marshal(PackageStatusChanged{
		PackageID: "pkg-1",
		Previous:  domain.PackageStatusRequested,
		New:       domain.PackageStatusCancelled,
	})
	if err != nil {
		t.Fatalf("Marshal() err=%v", err)
	}
	decoded, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal() err=%v", err)
	}
	changed, ok := decoded.(PackageStatusChanged)
	if !ok || changed.New != domain.PackageStatusCancelled {
		t.Fatalf("decoded=%+v", decoded)
	}
}

type failingExecer struct {
	calls int
}

func (f *failingExecer) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	f.calls++
	return nil, errors.New("connection reset")
}

func TestPostgresSinkSwallowsInsertFailure(t *testing.T) {
	db := &failingExecer{}
	sink := NewPostgresSink(db, slog.New(slog.NewTextHandler(io.Discard, nil)), 0)

	// Publish must not panic or surface the failure.
	sink.Publish(context.Background(), RunStarted{RunID: "run-1", PackageID: "pkg-1", ScenarioID: "scn-1"})
	if db.calls != 1 {
		t.Fatalf("calls=%d, want 1", db.calls)
	}
}

type recordingExecer struct {
	query string
	args  []any
}

func (r *recordingExecer) ExecContext(_ context.Context, query string, args ...any) (sql.Result, error) {
	r.query = query
	r.args = args
	return nil, nil
}

func TestPostgresSinkAppendsEnvelope(t *testing.T) {
	db := &recordingExecer{}
	sink := NewPostgresSink(db, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Second)

	sink.Publish(context.Background(), RunStarted{RunID: "run-1", PackageID: "pkg-1", ScenarioID: "scn-1"})
	if !strings.Contains(db.query, "engine_events") {
		t.Fatalf("query=%q", db.query)
	}
	if len(db.args) != 3 || db.args[0] != "run.started" {
		t.Fatalf("args=%v", db.args)
	}
}
