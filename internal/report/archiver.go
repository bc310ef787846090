// Package report archives completed run reports to object storage. Archival
// is best-effort: a failed upload is logged and never affects the verdict.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/apiprobe-labs/apiprobe-go/internal/domain"
)

// RunReport is the archived shape of one completed run.
type RunReport struct {
	RunID          string              `json:"run_id"`
	PackageID      string              `json:"package_id"`
	ScenarioID     string              `json:"scenario_id"`
	Verdict        domain.RunStatus    `json:"verdict"`
	StartedAt      time.Time           `json:"started_at"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
	StepResults    []domain.StepResult `json:"step_results"`
	GeneratedAt    time.Time           `json:"generated_at"`
	EngineRevision string              `json:"engine_revision,omitempty"`
}

type uploader interface {
	PutObject(ctx context.Context, bucket, object string, reader *bytes.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

type minioUploader struct {
	client *minio.Client
}

func (u minioUploader) PutObject(ctx context.Context, bucket, object string, reader *bytes.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return u.client.PutObject(ctx, bucket, object, reader, size, opts)
}

// Archiver writes run reports as JSON objects under
// <bucket>/<package_id>/<run_id>.json.
type Archiver struct {
	store  uploader
	bucket string
	logger *slog.Logger
}

func NewArchiver(client *minio.Client, bucket string, logger *slog.Logger) *Archiver {
	if client == nil || bucket == "" || logger == nil {
		return nil
	}
	return &Archiver{store: minioUploader{client: client}, bucket: bucket, logger: logger}
}

// Archive uploads the report. Errors are returned for the caller to log;
// callers must not fail run completion on them.
func (a *Archiver) Archive(ctx context.Context, run domain.TestRun, results []domain.StepResult) error {
	if a == nil || a.store == nil {
		return errors.New("archiver not initialized")
	}
	report := RunReport{
		RunID:       run.ID,
		PackageID:   run.PackageID,
		ScenarioID:  run.ScenarioID,
		Verdict:     run.Status,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		StepResults: results,
		GeneratedAt: time.Now().UTC(),
	}
	blob, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	object := ObjectKey(run.PackageID, run.ID)
	_, err = a.store.PutObject(ctx, a.bucket, object, bytes.NewReader(blob), int64(len(blob)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("put report %s: %w", object, err)
	}
	a.logger.Info("run report archived", "run_id", run.ID, "object", object)
	return nil
}

func ObjectKey(packageID, runID string) string {
	return fmt.Sprintf("%s/%s.json", packageID, runID)
}
