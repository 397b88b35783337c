package mapreduce

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Lllllllleong/explorationjobs/internal/models"
	"golang.org/x/sync/errgroup"
)

// Source yields every stored record of a kind.
type Source interface {
	Scan(ctx context.Context, kind models.Kind, fn func(models.Entity) error) error
}

// Counters summarizes a run.
type Counters struct {
	RecordsScanned int `json:"recordsScanned"`
	Emissions      int `json:"emissions"`
	Outputs        int `json:"outputs"`
}

// Result is the full output of a run, ordered by key and then by emission
// order within a reduce call.
type Result struct {
	JobName  string             `json:"jobName"`
	Outputs  []models.JobOutput `json:"outputs"`
	Counters Counters           `json:"counters"`
}

// Runner executes a job in-process: records are mapped by ShardCount
// concurrent workers, emissions are grouped by key and every key is reduced
// exactly once.
type Runner struct {
	source Source
	logger *slog.Logger
}

func NewRunner(source Source, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{source: source, logger: logger}
}

// shuffle groups emitted values by key. It is shared by all map workers.
type shuffle struct {
	mu     sync.Mutex
	groups map[string][]json.RawMessage
	count  int
}

func (s *shuffle) Emit(key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for key %q: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[key] = append(s.groups[key], b)
	s.count++
	return nil
}

// Run executes j with shards concurrent map workers. A shards value <= 0 uses
// the job's own ShardCount.
func (r *Runner) Run(ctx context.Context, j Job, shards int) (*Result, error) {
	if shards <= 0 {
		shards = ShardCount(j)
	}
	logCtx := r.logger.With("job", j.Name(), "shards", shards)
	logCtx.Info("Starting map phase.")

	sh := &shuffle{groups: map[string][]json.RawMessage{}}
	scanned, err := r.mapPhase(ctx, j, shards, sh)
	if err != nil {
		logCtx.Error("Map phase failed", "error", err, "recordsScanned", scanned)
		return nil, err
	}
	logCtx.Info("Map phase complete.", "recordsScanned", scanned, "emissions", sh.count, "keys", len(sh.groups))

	keys := make([]string, 0, len(sh.groups))
	for k := range sh.groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := &Result{JobName: j.Name(), Outputs: []models.JobOutput{}}
	out := EmitterFunc(func(key string, value any) error {
		b, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to encode output for key %q: %w", key, err)
		}
		res.Outputs = append(res.Outputs, models.JobOutput{Key: key, Value: b})
		return nil
	})
	for _, k := range keys {
		if err := j.Reduce(ctx, k, sh.groups[k], out); err != nil {
			logCtx.Error("Reduce failed", "error", err, "key", k)
			return nil, fmt.Errorf("reduce %q: %w", k, err)
		}
	}

	res.Counters = Counters{RecordsScanned: scanned, Emissions: sh.count, Outputs: len(res.Outputs)}
	logCtx.Info("Job complete.", "outputs", len(res.Outputs))
	return res, nil
}

func (r *Runner) mapPhase(ctx context.Context, j Job, shards int, sh *shuffle) (int, error) {
	eg, gctx := errgroup.WithContext(ctx)
	items := make(chan models.Entity)
	var (
		mu      sync.Mutex
		scanned int
	)

	eg.Go(func() error {
		defer close(items)
		for _, kind := range j.EntityKinds() {
			err := r.source.Scan(gctx, kind, func(e models.Entity) error {
				select {
				case items <- e:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
			if err != nil {
				return fmt.Errorf("scan %s: %w", kind, err)
			}
		}
		return nil
	})

	for i := 0; i < shards; i++ {
		eg.Go(func() error {
			for e := range items {
				if err := r.mapOne(gctx, j, e, sh); err != nil {
					return fmt.Errorf("map %s: %w", e.EntityID(), err)
				}
				mu.Lock()
				scanned++
				mu.Unlock()
			}
			return nil
		})
	}

	err := eg.Wait()
	return scanned, err
}

func (r *Runner) mapOne(ctx context.Context, j Job, e models.Entity, out Emitter) error {
	u, ok := e.(*models.UnreadableEntity)
	if !ok {
		return j.Map(ctx, e, out)
	}
	if h, ok := j.(LoadFailureHandler); ok {
		return h.MapLoadFailure(ctx, u, out)
	}
	r.logger.Warn("Skipping unreadable record.", "job", j.Name(), "kind", u.Kind, "id", u.ID, "error", u.Err)
	return nil
}
