package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/explorationjobs/internal/gcp"
)

// GCSAssets answers whether an exploration asset exists in a bucket.
type GCSAssets struct {
	bucket *storage.BucketHandle
}

func NewGCSAssets(bucket *storage.BucketHandle) *GCSAssets {
	return &GCSAssets{bucket: bucket}
}

func (a *GCSAssets) Exists(ctx context.Context, path string) (bool, error) {
	_, err := a.bucket.Object(path).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat asset %s: %w", path, err)
	}
	return true, nil
}

// GCSResults persists job outputs as JSON objects.
type GCSResults struct {
	bucketName string
	bucket     *storage.BucketHandle
}

func NewGCSResults(client *storage.Client, bucketName string) *GCSResults {
	return &GCSResults{bucketName: bucketName, bucket: client.Bucket(bucketName)}
}

// ResultsObject is the object name results of jobID are stored under.
func ResultsObject(jobName, jobID string) string {
	return fmt.Sprintf("results/%s/%s.json", jobName, jobID)
}

// SaveResults writes v to the job's results object and returns its gs:// URI.
// Rerunning a job with the same id keeps the first results.
func (r *GCSResults) SaveResults(ctx context.Context, jobName, jobID string, v any) (string, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal results: %w", err)
	}
	object := ResultsObject(jobName, jobID)
	if err := gcp.SaveToGCSAtomically(ctx, r.bucket, object, string(body)); err != nil {
		return "", err
	}
	return fmt.Sprintf("gs://%s/%s", r.bucketName, object), nil
}
