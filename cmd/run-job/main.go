package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/explorationjobs/internal/models"
	"github.com/Lllllllleong/explorationjobs/internal/services"
)

var (
	runnerInstance *services.JobRunnerFunction
	once           sync.Once
	initErr        error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// "HandleRunJob" is the entry point name configured in GCP.
	functions.HTTP("HandleRunJob", handleRunJob)
}

// main is required by the Go Functions Framework.
func main() {}

// handleRunJob is called by the job workflow with a RunJobRequest.
func handleRunJob(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		runnerInstance, initErr = services.NewJobRunner(context.Background())
	})
	if initErr != nil {
		slog.Error("CRITICAL: Job runner initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.RunJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := runnerInstance.Process(r.Context(), &req)
	if err != nil {
		// Already logged inside Process.
		http.Error(w, "Internal Server Error: job failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
