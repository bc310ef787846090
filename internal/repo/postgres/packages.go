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

type PackageStore struct {
	db DB
}

const (
	insertPackageQuery = `INSERT INTO test_packages (
		package_id,
		project_id,
		name,
		status,
		base_url,
		stop_on_first_failure,
		created_at,
		updated_at,
		metadata
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	selectPackageQuery = `SELECT package_id, project_id, name, status, base_url, stop_on_first_failure, created_at, updated_at, metadata
	 FROM test_packages
	 WHERE package_id = $1`

	updatePackageStatusQuery = `UPDATE test_packages
	 SET status = $1, updated_at = $2
	 WHERE package_id = $3 AND status = $4`

	packageExistsQuery = `SELECT 1 FROM test_packages WHERE package_id = $1`

	deletePackageQuery = `DELETE FROM test_packages WHERE package_id = $1`
)

func NewPackageStore(db DB) *PackageStore {
	if db == nil {
		return nil
	}
	return &PackageStore{db: db}
}

func (s *PackageStore) CreatePackage(ctx context.Context, pkg domain.Package) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("package store not initialized")
	}
	if err := pkg.Validate(); err != nil {
		return err
	}
	metadataJSON, err := encodeMetadata(pkg.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	createdAt := normalizeTime(pkg.CreatedAt)
	updatedAt := pkg.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	_, err = s.db.ExecContext(
		ctx,
		insertPackageQuery,
		strings.TrimSpace(pkg.ID),
		strings.TrimSpace(pkg.ProjectID),
		strings.TrimSpace(pkg.Name),
		string(pkg.Status),
		nullIfEmpty(pkg.BaseURL),
		pkg.StopOnFirstFailure,
		createdAt,
		updatedAt.UTC(),
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("insert package: %w", err)
	}
	return nil
}

func (s *PackageStore) GetPackage(ctx context.Context, id string) (domain.Package, error) {
	if s == nil || s.db == nil {
		return domain.Package{}, fmt.Errorf("package store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Package{}, fmt.Errorf("package id is required")
	}
	row := s.db.QueryRowContext(ctx, selectPackageQuery, id)
	return scanPackage(row.Scan)
}

func (s *PackageStore) ListPackages(ctx context.Context, filter repo.PackageFilter) ([]domain.Package, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("package store not initialized")
	}
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 3)

	if strings.TrimSpace(filter.ProjectID) != "" {
		args = append(args, strings.TrimSpace(filter.ProjectID))
		clauses = append(clauses, fmt.Sprintf("project_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT package_id, project_id, name, status, base_url, stop_on_first_failure, created_at, updated_at, metadata
	 FROM test_packages`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	defer rows.Close()

	packages := make([]domain.Package, 0)
	for rows.Next() {
		pkg, err := scanPackage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		packages = append(packages, pkg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	return packages, nil
}

// UpdatePackageStatus is a compare-and-swap: the row is updated only while
// its stored status still equals `from`. A zero-row update against an
// existing package means a concurrent writer won the race.
func (s *PackageStore) UpdatePackageStatus(ctx context.Context, id string, from, to domain.PackageStatus, updatedAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("package store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("package id is required")
	}
	res, err := s.db.ExecContext(ctx, updatePackageStatusQuery, string(to), normalizeTime(updatedAt), id, string(from))
	if err != nil {
		return fmt.Errorf("update package status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update package status: %w", err)
	}
	if rows > 0 {
		return nil
	}
	exists, err := rowExists(ctx, s.db, packageExistsQuery, id)
	if err != nil {
		return fmt.Errorf("update package status: %w", err)
	}
	if !exists {
		return repo.ErrNotFound
	}
	return repo.ErrStatusConflict
}

func (s *PackageStore) DeletePackage(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("package store not initialized")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("package id is required")
	}
	res, err := s.db.ExecContext(ctx, deletePackageQuery, id)
	if err != nil {
		return fmt.Errorf("delete package: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete package: %w", err)
	}
	if rows == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func scanPackage(scan func(dest ...any) error) (domain.Package, error) {
	var pkg domain.Package
	var status string
	var baseURL sql.NullString
	var metadataJSON []byte
	if err := scan(&pkg.ID, &pkg.ProjectID, &pkg.Name, &status, &baseURL, &pkg.StopOnFirstFailure,
		&pkg.CreatedAt, &pkg.UpdatedAt, &metadataJSON); err != nil {
		return domain.Package{}, handleNotFound(err)
	}
	pkg.Status = domain.PackageStatus(status)
	if baseURL.Valid {
		pkg.BaseURL = baseURL.String
	}
	metadata, err := decodeMetadata(metadataJSON)
	if err != nil {
		return domain.Package{}, fmt.Errorf("decode metadata: %w", err)
	}
	pkg.Metadata = metadata
	pkg.CreatedAt = pkg.CreatedAt.UTC()
	pkg.UpdatedAt = pkg.UpdatedAt.UTC()
	return pkg, nil
}
