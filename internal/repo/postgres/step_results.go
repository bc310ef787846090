package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/apiprobe-labs/apiprobe-go/internal/domain"
)

// StepResultStore persists step results append-only. A result row is written
// once after the step finishes and never mutated.
type StepResultStore struct {
	db DB
}

const (
	insertStepResultQuery = `INSERT INTO step_results (
		step_result_id,
		run_id,
		step_index,
		step_name,
		status,
		actual_status_code,
		actual_headers,
		actual_body,
		passed,
		assertions,
		extracted,
		error_message,
		duration_millis,
		executed_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	ON CONFLICT (run_id, step_index) DO NOTHING`

	listStepResultsByRunQuery = `SELECT run_id, step_index, step_name, status, actual_status_code, actual_headers,
		actual_body, passed, assertions, extracted, error_message, duration_millis, executed_at
	 FROM step_results
	 WHERE run_id = $1
	 ORDER BY step_index ASC`
)

func NewStepResultStore(db DB) *StepResultStore {
	if db == nil {
		return nil
	}
	return &StepResultStore{db: db}
}

func (s *StepResultStore) CreateStepResult(ctx context.Context, result domain.StepResult) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("step result store not initialized")
	}
	runID := strings.TrimSpace(result.RunID)
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if result.StepIndex < 0 {
		return fmt.Errorf("step index must be >= 0")
	}
	headersJSON, err := json.Marshal(result.ActualHeaders)
	if err != nil {
		return fmt.Errorf("encode headers: %w", err)
	}
	assertionsJSON, err := json.Marshal(result.Assertions)
	if err != nil {
		return fmt.Errorf("encode assertions: %w", err)
	}
	extractedJSON, err := json.Marshal(result.Extracted)
	if err != nil {
		return fmt.Errorf("encode extracted: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		insertStepResultQuery,
		uuid.NewString(),
		runID,
		result.StepIndex,
		strings.TrimSpace(result.StepName),
		string(result.Status),
		result.ActualStatusCode,
		headersJSON,
		result.ActualBody,
		result.Passed,
		assertionsJSON,
		extractedJSON,
		nullIfEmpty(result.ErrorMessage),
		result.DurationMillis,
		normalizeTime(result.ExecutedAt),
	)
	if err != nil {
		return fmt.Errorf("insert step result: %w", err)
	}
	return nil
}

func (s *StepResultStore) ListByRun(ctx context.Context, runID string) ([]domain.StepResult, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("step result store not initialized")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	rows, err := s.db.QueryContext(ctx, listStepResultsByRunQuery, runID)
	if err != nil {
		return nil, fmt.Errorf("list step results: %w", err)
	}
	defer rows.Close()

	results := make([]domain.StepResult, 0)
	for rows.Next() {
		var result domain.StepResult
		var status string
		var headersJSON, assertionsJSON, extractedJSON []byte
		var errorMessage sql.NullString
		if err := rows.Scan(&result.RunID, &result.StepIndex, &result.StepName, &status, &result.ActualStatusCode,
			&headersJSON, &result.ActualBody, &result.Passed, &assertionsJSON, &extractedJSON,
			&errorMessage, &result.DurationMillis, &result.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan step result: %w", err)
		}
		result.Status = domain.StepStatus(status)
		if errorMessage.Valid {
			result.ErrorMessage = errorMessage.String
		}
		if len(headersJSON) > 0 {
			if err := json.Unmarshal(headersJSON, &result.ActualHeaders); err != nil {
				return nil, fmt.Errorf("decode headers: %w", err)
			}
		}
		if len(assertionsJSON) > 0 {
			if err := json.Unmarshal(assertionsJSON, &result.Assertions); err != nil {
				return nil, fmt.Errorf("decode assertions: %w", err)
			}
		}
		if len(extractedJSON) > 0 {
			if err := json.Unmarshal(extractedJSON, &result.Extracted); err != nil {
				return nil, fmt.Errorf("decode extracted: %w", err)
			}
		}
		result.ExecutedAt = result.ExecutedAt.UTC()
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list step results: %w", err)
	}
	return results, nil
}
