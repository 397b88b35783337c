package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/explorationjobs/internal/models"
	"github.com/Lllllllleong/explorationjobs/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	enqueuerInstance *services.EnqueuerFunction
	once             sync.Once
	initErr          error
)

// messagePublishedData is the payload of a Pub/Sub CloudEvent.
type messagePublishedData struct {
	Message struct {
		Data []byte `json:"data"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("EnqueueJob", enqueueJob)
}

// main is required by the Go Functions Framework.
func main() {}

// enqueueJob receives an EnqueueJobRequest published to the jobs topic.
func enqueueJob(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		enqueuerInstance, initErr = services.NewEnqueuer(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var msg messagePublishedData
	if err := json.Unmarshal(e.Data(), &msg); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	var req models.EnqueueJobRequest
	if err := json.Unmarshal(msg.Message.Data, &req); err != nil {
		// Malformed requests are acked and dropped.
		slog.Error("Dropping malformed enqueue request", "error", err, "subscription", msg.Subscription)
		return nil
	}

	res, err := enqueuerInstance.Process(ctx, &req)
	if err != nil {
		return err
	}
	slog.Info("Job enqueued.", "jobId", res.JobID, "executionId", res.ExecutionID)
	return nil
}
