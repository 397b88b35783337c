// Package mapreduce defines the shape of a batch maintenance job and a small
// runner that drives one over the records of its declared kinds.
package mapreduce

import (
	"context"
	"encoding/json"

	"github.com/Lllllllleong/explorationjobs/internal/models"
)

// DefaultShardCount is used for jobs that do not ask for a specific one.
const DefaultShardCount = 8

// Emitter collects (key, value) pairs. Values are JSON-encoded.
type Emitter interface {
	Emit(key string, value any) error
}

// Job is a named map/reduce computation over one or more record kinds.
//
// Map is called once per scanned record and may emit any number of pairs.
// Reduce is called once per distinct emitted key with every value emitted
// under it.
type Job interface {
	Name() string
	EntityKinds() []models.Kind
	Map(ctx context.Context, item models.Entity, out Emitter) error
	Reduce(ctx context.Context, key string, values []json.RawMessage, out Emitter) error
}

// LoadFailureHandler is implemented by jobs that report records the source
// could not decode. Such records are skipped for other jobs.
type LoadFailureHandler interface {
	MapLoadFailure(ctx context.Context, item *models.UnreadableEntity, out Emitter) error
}

// Enqueuer is implemented by jobs that want a non-default parallelism.
type Enqueuer interface {
	ShardCount() int
}

// ShardCount returns the job's requested shard count.
func ShardCount(j Job) int {
	if e, ok := j.(Enqueuer); ok && e.ShardCount() > 0 {
		return e.ShardCount()
	}
	return DefaultShardCount
}

// EmitterFunc adapts a plain function to Emitter.
type EmitterFunc func(key string, value any) error

func (f EmitterFunc) Emit(key string, value any) error { return f(key, value) }

// DecodeValues unmarshals every value into a fresh T.
func DecodeValues[T any](values []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(values))
	for _, v := range values {
		var t T
		if err := json.Unmarshal(v, &t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
