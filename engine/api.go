package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/apiprobe-labs/apiprobe-go/internal/apispec"
	"github.com/apiprobe-labs/apiprobe-go/internal/domain"
	"github.com/apiprobe-labs/apiprobe-go/internal/execution"
	"github.com/apiprobe-labs/apiprobe-go/internal/generator"
	"github.com/apiprobe-labs/apiprobe-go/internal/repo"
	"github.com/apiprobe-labs/apiprobe-go/internal/scenariodoc"
)

const maxRequestBody = 4 << 20

// scenarioRunner drives one scenario to a terminal verdict.
type scenarioRunner interface {
	Execute(ctx context.Context, run domain.TestRun, scenario domain.TestScenario, opts execution.Options) (domain.TestRun, []domain.StepResult, error)
}

// statusService applies package status transitions.
type statusService interface {
	UpdateStatus(ctx context.Context, id string, target domain.PackageStatus) (domain.PackageStatus, error)
	Cancel(ctx context.Context, id string) (domain.PackageStatus, error)
}

// scenarioGenerator produces validated scenarios for a package.
type scenarioGenerator interface {
	Generate(ctx context.Context, packageID string, doc *apispec.Document, cfg generator.Config) ([]domain.TestScenario, error)
}

// runArchiver uploads completed run reports, best-effort.
type runArchiver interface {
	Archive(ctx context.Context, run domain.TestRun, results []domain.StepResult) error
}

type engineAPI struct {
	logger      *slog.Logger
	status      statusService
	packages    repo.PackageRepository
	scenarios   repo.ScenarioRepository
	runs        repo.RunRepository
	stepResults repo.StepResultRepository
	runner      scenarioRunner
	generator   scenarioGenerator
	archiver    runArchiver
}

func newEngineAPI(
	logger *slog.Logger,
	status statusService,
	packages repo.PackageRepository,
	scenarios repo.ScenarioRepository,
	runs repo.RunRepository,
	stepResults repo.StepResultRepository,
	runner scenarioRunner,
	gen scenarioGenerator,
	archiver runArchiver,
) *engineAPI {
	return &engineAPI{
		logger:      logger,
		status:      status,
		packages:    packages,
		scenarios:   scenarios,
		runs:        runs,
		stepResults: stepResults,
		runner:      runner,
		generator:   gen,
		archiver:    archiver,
	}
}

func (api *engineAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /packages", api.handleCreatePackage)
	mux.HandleFunc("GET /packages", api.handleListPackages)
	mux.HandleFunc("GET /packages/{package_id}", api.handleGetPackage)
	mux.HandleFunc("DELETE /packages/{package_id}", api.handleDeletePackage)
	mux.HandleFunc("POST /packages/{package_id}/status", api.handleUpdatePackageStatus)
	mux.HandleFunc("POST /packages/{package_id}/cancel", api.handleCancelPackage)

	mux.HandleFunc("POST /packages/{package_id}/scenarios:import", api.handleImportScenarios)
	mux.HandleFunc("POST /packages/{package_id}/scenarios:generate", api.handleGenerateScenarios)
	mux.HandleFunc("GET /packages/{package_id}/scenarios", api.handleListScenarios)
	mux.HandleFunc("GET /scenarios/{scenario_id}", api.handleGetScenario)

	mux.HandleFunc("POST /scenarios/{scenario_id}/runs:execute", api.handleExecuteRun)
	mux.HandleFunc("GET /runs", api.handleListRuns)
	mux.HandleFunc("GET /runs/{run_id}", api.handleGetRun)
	mux.HandleFunc("POST /runs/{run_id}/cancel", api.handleCancelRun)
}

type createPackageRequest struct {
	ProjectID          string          `json:"project_id"`
	Name               string          `json:"name"`
	BaseURL            string          `json:"base_url"`
	StopOnFirstFailure bool            `json:"stop_on_first_failure"`
	Metadata           domain.Metadata `json:"metadata"`
}

func (api *engineAPI) handleCreatePackage(w http.ResponseWriter, r *http.Request) {
	var req createPackageRequest
	if err := api.decodeJSON(w, r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	now := time.Now().UTC()
	pkg := domain.Package{
		ID:                 uuid.NewString(),
		ProjectID:          strings.TrimSpace(req.ProjectID),
		Name:               strings.TrimSpace(req.Name),
		Status:             domain.PackageStatusRequested,
		BaseURL:            strings.TrimSpace(req.BaseURL),
		StopOnFirstFailure: req.StopOnFirstFailure,
		CreatedAt:          now,
		UpdatedAt:          now,
		Metadata:           req.Metadata,
	}
	if err := pkg.Validate(); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_package")
		return
	}
	if err := api.packages.CreatePackage(r.Context(), pkg); err != nil {
		api.logger.Error("create package failed", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusCreated, pkg)
}

func (api *engineAPI) handleListPackages(w http.ResponseWriter, r *http.Request) {
	filter := repo.PackageFilter{
		ProjectID: strings.TrimSpace(r.URL.Query().Get("project_id")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, ok := domain.ParsePackageStatus(raw)
		if !ok {
			api.writeError(w, r, http.StatusBadRequest, "invalid_status")
			return
		}
		filter.Status = status
	}
	packages, err := api.packages.ListPackages(r.Context(), filter)
	if err != nil {
		api.logger.Error("list packages failed", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"packages": packages})
}

func (api *engineAPI) handleGetPackage(w http.ResponseWriter, r *http.Request) {
	pkg, err := api.packages.GetPackage(r.Context(), r.PathValue("package_id"))
	if err != nil {
		api.writeStoreError(w, r, err, "package_not_found")
		return
	}
	api.writeJSON(w, http.StatusOK, pkg)
}

func (api *engineAPI) handleDeletePackage(w http.ResponseWriter, r *http.Request) {
	if err := api.packages.DeletePackage(r.Context(), r.PathValue("package_id")); err != nil {
		api.writeStoreError(w, r, err, "package_not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (api *engineAPI) handleUpdatePackageStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := api.decodeJSON(w, r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	status, err := api.status.UpdateStatus(r.Context(), r.PathValue("package_id"), domain.PackageStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		api.writeTransitionError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

func (api *engineAPI) handleCancelPackage(w http.ResponseWriter, r *http.Request) {
	status, err := api.status.Cancel(r.Context(), r.PathValue("package_id"))
	if err != nil {
		api.writeTransitionError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

func (api *engineAPI) writeTransitionError(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *domain.InvalidTransitionError
	switch {
	case errors.Is(err, repo.ErrNotFound):
		api.writeError(w, r, http.StatusNotFound, "package_not_found")
	case errors.As(err, &invalid):
		api.writeError(w, r, http.StatusConflict, "invalid_status_transition")
	default:
		api.logger.Error("update package status failed", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
	}
}

func (api *engineAPI) handleImportScenarios(w http.ResponseWriter, r *http.Request) {
	packageID := r.PathValue("package_id")
	if _, err := api.packages.GetPackage(r.Context(), packageID); err != nil {
		api.writeStoreError(w, r, err, "package_not_found")
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "unreadable_body")
		return
	}
	scenarios, err := scenariodoc.Parse(packageID, raw)
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_scenario_document")
		return
	}
	for i := range scenarios {
		scenarios[i].ID = uuid.NewString()
		scenarios[i].CreatedAt = time.Now().UTC()
		if err := api.scenarios.CreateScenario(r.Context(), scenarios[i]); err != nil {
			api.logger.Error("persist scenario failed", "package_id", packageID, "error", err)
			api.writeError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}
	}
	api.writeJSON(w, http.StatusCreated, map[string]any{"scenarios": scenarios})
}

type generateScenariosRequest struct {
	APISpec      string `json:"api_spec"`
	Requirements string `json:"requirements"`
	MaxScenarios int    `json:"max_scenarios"`
}

func (api *engineAPI) handleGenerateScenarios(w http.ResponseWriter, r *http.Request) {
	packageID := r.PathValue("package_id")
	if _, err := api.packages.GetPackage(r.Context(), packageID); err != nil {
		api.writeStoreError(w, r, err, "package_not_found")
		return
	}
	var req generateScenariosRequest
	if err := api.decodeJSON(w, r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	doc, err := apispec.Load(r.Context(), []byte(req.APISpec))
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_api_spec")
		return
	}
	scenarios, err := api.generator.Generate(r.Context(), packageID, doc, generator.Config{
		MaxScenarios: req.MaxScenarios,
		Requirements: req.Requirements,
	})
	if err != nil {
		api.logger.Error("scenario generation failed", "package_id", packageID, "error", err)
		api.writeError(w, r, http.StatusUnprocessableEntity, "generation_failed")
		return
	}
	for i := range scenarios {
		scenarios[i].CreatedAt = time.Now().UTC()
		if err := api.scenarios.CreateScenario(r.Context(), scenarios[i]); err != nil {
			api.logger.Error("persist scenario failed", "package_id", packageID, "error", err)
			api.writeError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}
	}
	api.writeJSON(w, http.StatusCreated, map[string]any{"scenarios": scenarios})
}

func (api *engineAPI) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := api.scenarios.ListScenarios(r.Context(), repo.ScenarioFilter{PackageID: r.PathValue("package_id")})
	if err != nil {
		api.logger.Error("list scenarios failed", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"scenarios": scenarios})
}

func (api *engineAPI) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	scenario, err := api.scenarios.GetScenario(r.Context(), r.PathValue("scenario_id"))
	if err != nil {
		api.writeStoreError(w, r, err, "scenario_not_found")
		return
	}
	api.writeJSON(w, http.StatusOK, scenario)
}

func (api *engineAPI) handleExecuteRun(w http.ResponseWriter, r *http.Request) {
	scenario, err := api.scenarios.GetScenario(r.Context(), r.PathValue("scenario_id"))
	if err != nil {
		api.writeStoreError(w, r, err, "scenario_not_found")
		return
	}
	pkg, err := api.packages.GetPackage(r.Context(), scenario.PackageID)
	if err != nil {
		api.writeStoreError(w, r, err, "package_not_found")
		return
	}

	run := domain.TestRun{
		ID:         uuid.NewString(),
		PackageID:  pkg.ID,
		ScenarioID: scenario.ID,
		Status:     domain.RunStatusQueued,
		StartedAt:  time.Now().UTC(),
	}
	if err := api.runs.CreateRun(r.Context(), run); err != nil {
		api.logger.Error("create run failed", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	// The run outlives the HTTP request: a dropped client connection must
	// not abort in-flight steps. Cancellation goes through the cancel
	// endpoint instead.
	execCtx := context.WithoutCancel(r.Context())
	run, results, err := api.runner.Execute(execCtx, run, scenario, execution.Options{
		BaseURL:            pkg.BaseURL,
		StopOnFirstFailure: pkg.StopOnFirstFailure,
		Environment:        packageEnvironment(pkg),
	})
	if err != nil {
		api.logger.Error("run execution failed", "run_id", run.ID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "execution_failed")
		return
	}

	if api.archiver != nil {
		if err := api.archiver.Archive(execCtx, run, results); err != nil {
			api.logger.Error("archive run report failed", "run_id", run.ID, "error", err)
		}
	}

	api.writeJSON(w, http.StatusOK, map[string]any{"run": run, "step_results": results})
}

func (api *engineAPI) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := repo.RunFilter{
		PackageID:  strings.TrimSpace(r.URL.Query().Get("package_id")),
		ScenarioID: strings.TrimSpace(r.URL.Query().Get("scenario_id")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, ok := domain.ParseRunStatus(raw)
		if !ok {
			api.writeError(w, r, http.StatusBadRequest, "invalid_status")
			return
		}
		filter.Status = status
	}
	runs, err := api.runs.ListRuns(r.Context(), filter)
	if err != nil {
		api.logger.Error("list runs failed", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (api *engineAPI) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := api.runs.GetRun(r.Context(), r.PathValue("run_id"))
	if err != nil {
		api.writeStoreError(w, r, err, "run_not_found")
		return
	}
	results, err := api.stepResults.ListByRun(r.Context(), run.ID)
	if err != nil {
		api.logger.Error("list step results failed", "run_id", run.ID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"run": run, "step_results": results})
}

func (api *engineAPI) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	run, err := api.runs.GetRun(r.Context(), r.PathValue("run_id"))
	if err != nil {
		api.writeStoreError(w, r, err, "run_not_found")
		return
	}
	if run.Status.Terminal() {
		api.writeError(w, r, http.StatusConflict, "run_already_terminal")
		return
	}
	now := time.Now().UTC()
	if err := api.runs.UpdateRunStatus(r.Context(), run.ID, domain.RunStatusCancelled, &now); err != nil {
		if errors.Is(err, repo.ErrStatusConflict) {
			api.writeError(w, r, http.StatusConflict, "run_already_terminal")
			return
		}
		api.writeStoreError(w, r, err, "run_not_found")
		return
	}
	run.Status = domain.RunStatusCancelled
	run.CompletedAt = &now
	api.writeJSON(w, http.StatusOK, run)
}

// packageEnvironment reads the package's execution environment from its
// metadata. Non-string values are skipped.
func packageEnvironment(pkg domain.Package) map[string]string {
	raw, ok := pkg.Metadata["environment"].(map[string]any)
	if !ok {
		return nil
	}
	env := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			env[k] = s
		}
	}
	return env
}

func (api *engineAPI) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("multiple JSON values")
	}
	return nil
}

func (api *engineAPI) writeStoreError(w http.ResponseWriter, r *http.Request, err error, notFoundCode string) {
	if errors.Is(err, repo.ErrNotFound) {
		api.writeError(w, r, http.StatusNotFound, notFoundCode)
		return
	}
	api.logger.Error("store operation failed", "error", err)
	api.writeError(w, r, http.StatusInternalServerError, "internal_error")
}

func (api *engineAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *engineAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}
