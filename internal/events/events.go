// Package events defines the engine's outbound notifications as a closed
// set of tagged variants. Every event serializes under an envelope with an
// explicit type tag; unknown tags are rejected on read.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/apiprobe-labs/apiprobe-go/internal/domain"
)

type Type string

const (
	TypeRunStarted           Type = "run.started"
	TypeRunCompleted         Type = "run.completed"
	TypePackageStatusChanged Type = "package.status_changed"
)

// Event is one of RunStarted, RunCompleted, or PackageStatusChanged.
type Event interface {
	EventType() Type
}

type RunStarted struct {
	RunID      string    `json:"run_id"`
	PackageID  string    `json:"package_id"`
	ScenarioID string    `json:"scenario_id"`
	StartedAt  time.Time `json:"started_at"`
}

func (RunStarted) EventType() Type { return TypeRunStarted }

type RunCompleted struct {
	RunID          string           `json:"run_id"`
	PackageID      string           `json:"package_id"`
	ScenarioID     string           `json:"scenario_id"`
	Verdict        domain.RunStatus `json:"verdict"`
	DurationMillis int64            `json:"duration_ms"`
	StepsExecuted  int              `json:"steps_executed"`
	StepsPassed    int              `json:"steps_passed"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	CompletedAt    time.Time        `json:"completed_at"`
}

func (RunCompleted) EventType() Type { return TypeRunCompleted }

type PackageStatusChanged struct {
	PackageID string               `json:"package_id"`
	Previous  domain.PackageStatus `json:"previous"`
	New       domain.PackageStatus `json:"new"`
	ChangedAt time.Time            `json:"changed_at"`
}

func (PackageStatusChanged) EventType() Type { return TypePackageStatusChanged }

type envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Marshal serializes an event under its type-tagged envelope.
func Marshal(event Event) ([]byte, error) {
	if event == nil {
		return nil, fmt.Errorf("event is required")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return json.Marshal(envelope{Type: event.EventType(), Payload: payload})
}

// Unmarshal decodes a type-tagged envelope, rejecting unknown tags rather
// than coercing them.
func Unmarshal(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Type {
	case TypeRunStarted:
		var e RunStarted
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return e, nil
	case TypeRunCompleted:
		var e RunCompleted
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return e, nil
	case TypePackageStatusChanged:
		var e PackageStatusChanged
		if err := json.Unmarshal(env.Payload, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}
