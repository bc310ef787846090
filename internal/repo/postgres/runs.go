package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/apiprobe-labs/apiprobe-go/internal/domain"
	"github.com/apiprobe-labs/apiprobe-go/internal/repo"
)

type RunStore struct {
	db DB
}

const (
	insertRunQuery = `INSERT INTO test_runs (
		run_id,
		package_id,
		scenario_id,
		status,
		started_at,
		completed_at
	) VALUES ($1,$2,$3,$4,$5,$6)`

	selectRunQuery = `SELECT run_id, package_id, scenario_id, status, started_at, completed_at
	 FROM test_runs
	 WHERE run_id = $1`

	// A terminal run status never changes again. The predicate lets a repeat
	// of the same terminal write through so retries stay idempotent.
	updateRunStatusQuery = `UPDATE test_runs
	 SET status = $1, completed_at = $2
	 WHERE run_id = $3
	   AND (status = $1 OR status NOT IN ('PASSED','FAILED','ERROR','CANCELLED'))`

	runExistsQuery = `SELECT 1 FROM test_runs WHERE run_id = $1`
)

func NewRunStore(db DB) *RunStore {
	if db == nil {
		return nil
	}
	return &RunStore{db: db}
}

func (s *RunStore) CreateRun(ctx context.Context, run domain.TestRun) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(run.PackageID) == "" {
		return fmt.Errorf("package id is required")
	}
	if strings.TrimSpace(run.ScenarioID) == "" {
		return fmt.Errorf("scenario id is required")
	}
	var completedAt sql.NullTime
	if run.CompletedAt != nil {
		completedAt = sql.NullTime{Time: run.CompletedAt.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(
		ctx,
		insertRunQuery,
		strings.TrimSpace(run.ID),
		strings.TrimSpace(run.PackageID),
		strings.TrimSpace(run.ScenarioID),
		string(run.Status),
		normalizeTime(run.StartedAt),
		completedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *RunStore) GetRun(ctx context.Context, id string) (domain.TestRun, error) {
	if s == nil || s.db == nil {
		return domain.TestRun{}, fmt.Errorf("run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.TestRun{}, fmt.Errorf("run id is required")
	}
	row := s.db.QueryRowContext(ctx, selectRunQuery, id)
	return scanRun(row.Scan)
}

func (s *RunStore) ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.TestRun, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store not initialized")
	}
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 4)

	if strings.TrimSpace(filter.PackageID) != "" {
		args = append(args, strings.TrimSpace(filter.PackageID))
		clauses = append(clauses, fmt.Sprintf("package_id = $%d", len(args)))
	}
	if strings.TrimSpace(filter.ScenarioID) != "" {
		args = append(args, strings.TrimSpace(filter.ScenarioID))
		clauses = append(clauses, fmt.Sprintf("scenario_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT run_id, package_id, scenario_id, status, started_at, completed_at
	 FROM test_runs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.TestRun, 0)
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// UpdateRunStatus applies a status write under the terminal-monotonic rule:
// once a run reaches PASSED, FAILED, ERROR, or CANCELLED its status never
// changes again, and an attempt to change it reports ErrStatusConflict.
func (s *RunStore) UpdateRunStatus(ctx context.Context, id string, status domain.RunStatus, completedAt *time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("run id is required")
	}
	if status == "" {
		return fmt.Errorf("status is required")
	}
	var completed sql.NullTime
	if completedAt != nil {
		completed = sql.NullTime{Time: completedAt.UTC(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, updateRunStatusQuery, string(status), completed, id)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if rows > 0 {
		return nil
	}
	exists, err := rowExists(ctx, s.db, runExistsQuery, id)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if !exists {
		return repo.ErrNotFound
	}
	return repo.ErrStatusConflict
}

func scanRun(scan func(dest ...any) error) (domain.TestRun, error) {
	var run domain.TestRun
	var status string
	var completedAt sql.NullTime
	if err := scan(&run.ID, &run.PackageID, &run.ScenarioID, &status, &run.StartedAt, &completedAt); err != nil {
		return domain.TestRun{}, handleNotFound(err)
	}
	run.Status = domain.RunStatus(status)
	run.StartedAt = run.StartedAt.UTC()
	if completedAt.Valid {
		completed := completedAt.Time.UTC()
		run.CompletedAt = &completed
	}
	return run, nil
}
