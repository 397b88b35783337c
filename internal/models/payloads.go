package models

import (
	"encoding/json"
	"time"
)

// These structs define the JSON payloads exchanged between the job workflow,
// the enqueue trigger and the run-job function.

const (
	JobStatusQueued    = "QUEUED"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
)

// EnqueueJobRequest is the input for the enqueue-job function.
type EnqueueJobRequest struct {
	JobName    string `json:"jobName"`
	ShardCount int    `json:"shardCount,omitempty"`
}

// EnqueueJobResponse is the output of the enqueue-job function.
type EnqueueJobResponse struct {
	JobID       string `json:"jobId"`
	ExecutionID string `json:"executionId"`
}

// RunJobRequest is the input for the run-job function.
type RunJobRequest struct {
	JobID       string `json:"jobId"`
	JobName     string `json:"jobName"`
	ShardCount  int    `json:"shardCount,omitempty"`
	ExecutionID string `json:"executionId"`
}

// RunJobResponse is the output of the run-job function.
type RunJobResponse struct {
	Status         string      `json:"status"`
	ResultsGCSUri  string      `json:"resultsGcsUri,omitempty"`
	RecordsScanned int         `json:"recordsScanned"`
	Outputs        []JobOutput `json:"outputs"`
}

// JobOutput is one aggregate result produced by a reduce step.
type JobOutput struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// JobRecord tracks a job run in Firestore.
type JobRecord struct {
	JobName      string    `firestore:"jobName"`
	Status       string    `firestore:"status"`
	ShardCount   int       `firestore:"shardCount,omitempty"`
	ErrorDetails string    `firestore:"errorDetails,omitempty"`
	ResultsURI   string    `firestore:"resultsUri,omitempty"`
	ExecutionID  string    `firestore:"executionId,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt,omitempty"`
}
