package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/Lllllllleong/explorationjobs/internal/config"
	"github.com/Lllllllleong/explorationjobs/internal/gcp"
	"github.com/Lllllllleong/explorationjobs/internal/jobs"
	"github.com/Lllllllleong/explorationjobs/internal/mapreduce"
	"github.com/Lllllllleong/explorationjobs/internal/models"
	"github.com/Lllllllleong/explorationjobs/internal/store"
	"github.com/google/uuid"
	"github.com/googleapis/gax-go/v2"
)

// WorkflowExecutor starts Cloud Workflows executions.
type WorkflowExecutor interface {
	CreateExecution(ctx context.Context, req *executionspb.CreateExecutionRequest, opts ...gax.CallOption) (*executionspb.Execution, error)
}

// EnqueuerFunction records new job runs and hands them to the job workflow.
type EnqueuerFunction struct {
	registry  *mapreduce.Registry
	statuses  JobStatusStore
	workflows WorkflowExecutor
	config    *config.Config
	newID     func() string
}

// workflowArgs is the argument passed to each workflow execution.
type workflowArgs struct {
	JobID       string        `json:"jobId"`
	JobName     string        `json:"jobName"`
	ShardCount  int           `json:"shardCount"`
	EntityKinds []models.Kind `json:"entityKinds"`
}

func NewEnqueuer(ctx context.Context) (*EnqueuerFunction, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, err
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID, cfg.FirestoreDatabase)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	executionsClient, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}

	// Enqueueing only needs job metadata, so the jobs get no stores.
	reg := mapreduce.NewRegistry()
	jobs.Register(reg, jobs.Deps{})

	f := newEnqueuer(cfg, reg, store.NewFirestore(firestoreClient), executionsClient)
	slog.Info("Enqueuer initialized.", "workflowId", cfg.WorkflowID)
	return f, nil
}

func newEnqueuer(cfg *config.Config, reg *mapreduce.Registry, statuses JobStatusStore, workflows WorkflowExecutor) *EnqueuerFunction {
	return &EnqueuerFunction{
		registry:  reg,
		statuses:  statuses,
		workflows: workflows,
		config:    cfg,
		newID:     uuid.NewString,
	}
}

// Process allocates a job id, stores a QUEUED record and starts the workflow
// execution that will run the job.
func (f *EnqueuerFunction) Process(ctx context.Context, req *models.EnqueueJobRequest) (*models.EnqueueJobResponse, error) {
	j, ok := f.registry.Lookup(req.JobName)
	if !ok {
		return nil, fmt.Errorf("no job named %q", req.JobName)
	}
	if req.ShardCount < 0 {
		return nil, fmt.Errorf("shard count must not be negative, got %d", req.ShardCount)
	}

	shards := req.ShardCount
	if shards == 0 {
		shards = f.config.ShardsFor(j.Name())
	}
	if shards == 0 {
		shards = mapreduce.ShardCount(j)
	}

	jobID := f.newID()
	logCtx := slog.With("jobId", jobID, "jobName", j.Name(), "shards", shards)

	rec := models.JobRecord{
		JobName:    j.Name(),
		Status:     models.JobStatusQueued,
		ShardCount: shards,
		CreatedAt:  time.Now(),
	}
	if err := f.statuses.CreateJobRecord(ctx, jobID, rec); err != nil {
		logCtx.Error("Failed to create job record", "error", err)
		return nil, err
	}
	logCtx.Info("Created job record.")

	executionID, err := f.triggerWorkflow(ctx, logCtx, jobID, j, shards)
	if err != nil {
		return nil, err
	}
	if err := f.statuses.SetJobExecutionID(ctx, jobID, executionID); err != nil {
		// The workflow is already running; the record just lacks the link.
		logCtx.Warn("Failed to record workflow execution on job", "error", err, "executionId", executionID)
	}

	logCtx.Info("Hand-off to workflow complete.", "executionId", executionID)
	return &models.EnqueueJobResponse{JobID: jobID, ExecutionID: executionID}, nil
}

func (f *EnqueuerFunction) triggerWorkflow(ctx context.Context, logCtx *slog.Logger, jobID string, j mapreduce.Job, shards int) (string, error) {
	logCtx.Info("Triggering workflow.")
	payloadBytes, err := json.Marshal(workflowArgs{
		JobID:       jobID,
		JobName:     j.Name(),
		ShardCount:  shards,
		EntityKinds: j.EntityKinds(),
	})
	if err != nil {
		return "", handleJobError(ctx, logCtx, f.statuses, jobID, "failed to marshal workflow payload", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", f.config.ProjectID, f.config.WorkflowLocation, f.config.WorkflowID),
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	exec, err := f.workflows.CreateExecution(ctx, req)
	if err != nil {
		return "", handleJobError(ctx, logCtx, f.statuses, jobID, "failed to trigger workflow execution", err)
	}
	return exec.GetName(), nil
}
