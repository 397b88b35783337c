package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/explorationjobs/internal/config"
	"github.com/Lllllllleong/explorationjobs/internal/gcp"
	"github.com/Lllllllleong/explorationjobs/internal/jobs"
	"github.com/Lllllllleong/explorationjobs/internal/mapreduce"
	"github.com/Lllllllleong/explorationjobs/internal/models"
	"github.com/Lllllllleong/explorationjobs/internal/store"
	"github.com/google/uuid"
)

// JobStatusStore tracks job records.
type JobStatusStore interface {
	CreateJobRecord(ctx context.Context, jobID string, rec models.JobRecord) error
	UpdateJobStatus(ctx context.Context, jobID, status, errDetails, resultsURI string) error
	SetJobExecutionID(ctx context.Context, jobID, executionID string) error
}

// ResultsWriter persists the full result of a job run.
type ResultsWriter interface {
	SaveResults(ctx context.Context, jobName, jobID string, v any) (string, error)
}

// JobRunnerFunction runs one job to completion per request.
type JobRunnerFunction struct {
	registry *mapreduce.Registry
	runner   *mapreduce.Runner
	statuses JobStatusStore
	results  ResultsWriter
	config   *config.Config
	newID    func() string
}

func NewJobRunner(ctx context.Context) (*JobRunnerFunction, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.AssetsBucket == "" {
		return nil, fmt.Errorf("ASSETS_BUCKET environment variable must be set")
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID, cfg.FirestoreDatabase)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := gcp.NewStorageClient(ctx)
	if err != nil {
		return nil, err
	}

	fs := store.NewFirestore(firestoreClient)
	reg := mapreduce.NewRegistry()
	jobs.Register(reg, jobs.Deps{
		Explorations: fs,
		MathInfo:     fs,
		Rights:       fs,
		Assets:       store.NewGCSAssets(storageClient.Bucket(cfg.AssetsBucket)),
	})

	f := newJobRunner(cfg, reg, fs, fs, store.NewGCSResults(storageClient, cfg.ResultsBucket))
	slog.Info("Job runner initialized.", "jobs", len(reg.Names()), "resultsBucket", cfg.ResultsBucket)
	return f, nil
}

func newJobRunner(cfg *config.Config, reg *mapreduce.Registry, source mapreduce.Source, statuses JobStatusStore, results ResultsWriter) *JobRunnerFunction {
	return &JobRunnerFunction{
		registry: reg,
		runner:   mapreduce.NewRunner(source, slog.Default()),
		statuses: statuses,
		results:  results,
		config:   cfg,
		newID:    uuid.NewString,
	}
}

// RunNow records a new job run and executes it in-process, without going
// through the workflow.
func (f *JobRunnerFunction) RunNow(ctx context.Context, jobName string, shards int) (*models.RunJobResponse, error) {
	if _, ok := f.registry.Lookup(jobName); !ok {
		return nil, fmt.Errorf("no job named %q", jobName)
	}
	jobID := f.newID()
	rec := models.JobRecord{
		JobName:    jobName,
		Status:     models.JobStatusQueued,
		ShardCount: shards,
		CreatedAt:  time.Now(),
	}
	if err := f.statuses.CreateJobRecord(ctx, jobID, rec); err != nil {
		return nil, err
	}
	return f.Process(ctx, &models.RunJobRequest{JobID: jobID, JobName: jobName, ShardCount: shards})
}

// Process runs the requested job, stores its results and records the final
// status. Failures after the job is marked RUNNING leave it FAILED.
func (f *JobRunnerFunction) Process(ctx context.Context, req *models.RunJobRequest) (*models.RunJobResponse, error) {
	if req.JobID == "" || req.JobName == "" {
		return nil, fmt.Errorf("jobId and jobName are required")
	}
	logCtx := slog.With("jobId", req.JobID, "jobName", req.JobName, "executionId", req.ExecutionID)

	j, ok := f.registry.Lookup(req.JobName)
	if !ok {
		return nil, f.handleError(ctx, logCtx, req.JobID, "unknown job", fmt.Errorf("no job named %q", req.JobName))
	}
	if err := f.statuses.UpdateJobStatus(ctx, req.JobID, models.JobStatusRunning, "", ""); err != nil {
		logCtx.Error("Failed to mark job as running", "error", err)
		return nil, fmt.Errorf("failed to update job status: %w", err)
	}

	shards := req.ShardCount
	if shards <= 0 {
		shards = f.config.ShardsFor(j.Name())
	}
	logCtx.Info("Running job.", "shards", shards)

	res, err := f.runner.Run(ctx, j, shards)
	if err != nil {
		return nil, f.handleError(ctx, logCtx, req.JobID, "job run failed", err)
	}
	uri, err := f.results.SaveResults(ctx, j.Name(), req.JobID, res)
	if err != nil {
		return nil, f.handleError(ctx, logCtx, req.JobID, "failed to save job results", err)
	}
	if err := f.statuses.UpdateJobStatus(ctx, req.JobID, models.JobStatusCompleted, "", uri); err != nil {
		logCtx.Error("Failed to mark job as completed", "error", err)
		return nil, fmt.Errorf("failed to update job status: %w", err)
	}

	logCtx.Info("Job completed.", "resultsUri", uri, "recordsScanned", res.Counters.RecordsScanned, "outputs", res.Counters.Outputs)
	return &models.RunJobResponse{
		Status:         models.JobStatusCompleted,
		ResultsGCSUri:  uri,
		RecordsScanned: res.Counters.RecordsScanned,
		Outputs:        res.Outputs,
	}, nil
}

func (f *JobRunnerFunction) handleError(ctx context.Context, logCtx *slog.Logger, jobID, message string, originalErr error) error {
	return handleJobError(ctx, logCtx, f.statuses, jobID, message, originalErr)
}

// handleJobError logs a failure and marks the job FAILED.
func handleJobError(ctx context.Context, logCtx *slog.Logger, statuses JobStatusStore, jobID, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	if err := statuses.UpdateJobStatus(ctx, jobID, models.JobStatusFailed, fullError, ""); err != nil {
		logCtx.Error("CRITICAL: Failed to update Firestore status to FAILED after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}
