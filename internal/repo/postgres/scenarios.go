package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/apiprobe-labs/apiprobe-go/internal/domain"
	"github.com/apiprobe-labs/apiprobe-go/internal/repo"
)

// ScenarioStore persists test scenarios. Steps are stored as a JSON document
// alongside the scenario row; scenarios are immutable after creation.
type ScenarioStore struct {
	db DB
}

const (
	insertScenarioQuery = `INSERT INTO test_scenarios (
		scenario_id,
		package_id,
		name,
		description,
		steps,
		created_at
	) VALUES ($1,$2,$3,$4,$5,$6)`

	selectScenarioQuery = `SELECT scenario_id, package_id, name, description, steps, created_at
	 FROM test_scenarios
	 WHERE scenario_id = $1`

	listScenariosByPackageQuery = `SELECT scenario_id, package_id, name, description, steps, created_at
	 FROM test_scenarios
	 WHERE package_id = $1
	 ORDER BY created_at ASC, scenario_id ASC`

	deleteScenarioQuery = `DELETE FROM test_scenarios WHERE scenario_id = $1`
)

func NewScenarioStore(db DB) *ScenarioStore {
	if db == nil {
		return nil
	}
	return &ScenarioStore{db: db}
}

func (s *ScenarioStore) CreateScenario(ctx context.Context, scenario domain.TestScenario) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("scenario store not initialized")
	}
	if err := scenario.Validate(); err != nil {
		return err
	}
	stepsJSON, err := json.Marshal(scenario.OrderedSteps())
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		insertScenarioQuery,
		strings.TrimSpace(scenario.ID),
		strings.TrimSpace(scenario.PackageID),
		strings.TrimSpace(scenario.Name),
		nullIfEmpty(scenario.Description),
		stepsJSON,
		normalizeTime(scenario.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert scenario: %w", err)
	}
	return nil
}

func (s *ScenarioStore) GetScenario(ctx context.Context, id string) (domain.TestScenario, error) {
	if s == nil || s.db == nil {
		return domain.TestScenario{}, fmt.Errorf("scenario store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.TestScenario{}, fmt.Errorf("scenario id is required")
	}
	row := s.db.QueryRowContext(ctx, selectScenarioQuery, id)
	return scanScenario(row.Scan)
}

func (s *ScenarioStore) ListScenarios(ctx context.Context, filter repo.ScenarioFilter) ([]domain.TestScenario, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("scenario store not initialized")
	}
	packageID := strings.TrimSpace(filter.PackageID)
	if packageID == "" {
		return nil, fmt.Errorf("package id is required")
	}
	query := listScenariosByPackageQuery
	args := []any{packageID}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	defer rows.Close()

	scenarios := make([]domain.TestScenario, 0)
	for rows.Next() {
		scenario, err := scanScenario(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan scenario: %w", err)
		}
		scenarios = append(scenarios, scenario)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	return scenarios, nil
}

func (s *ScenarioStore) DeleteScenario(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("scenario store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("scenario id is required")
	}
	res, err := s.db.ExecContext(ctx, deleteScenarioQuery, id)
	if err != nil {
		return fmt.Errorf("delete scenario: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete scenario: %w", err)
	}
	if rows == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func scanScenario(scan func(dest ...any) error) (domain.TestScenario, error) {
	var scenario domain.TestScenario
	var description sql.NullString
	var stepsJSON []byte
	if err := scan(&scenario.ID, &scenario.PackageID, &scenario.Name, &description, &stepsJSON, &scenario.CreatedAt); err != nil {
		return domain.TestScenario{}, handleNotFound(err)
	}
	if description.Valid {
		scenario.Description = description.String
	}
	if len(stepsJSON) > 0 {
		if err := json.Unmarshal(stepsJSON, &scenario.Steps); err != nil {
			return domain.TestScenario{}, fmt.Errorf("decode steps: %w", err)
		}
	}
	scenario.CreatedAt = scenario.CreatedAt.UTC()
	return scenario, nil
}
