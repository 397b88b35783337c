package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Lllllllleong/explorationjobs/internal/mapreduce"
	"github.com/Lllllllleong/explorationjobs/internal/models"
	"github.com/Lllllllleong/explorationjobs/internal/store"
)

// ExplorationFirstPublishedJob finds the first time each exploration was
// published, from its rights history, and records it on the rights.
type ExplorationFirstPublishedJob struct {
	deps Deps
}

func (j *ExplorationFirstPublishedJob) Name() string {
	return "ExplorationFirstPublishedOneOffJob"
}

func (j *ExplorationFirstPublishedJob) EntityKinds() []models.Kind {
	return []models.Kind{models.KindExplorationRightsSnapshotContent}
}

func (j *ExplorationFirstPublishedJob) Map(_ context.Context, item models.Entity, out mapreduce.Emitter) error {
	snap, ok := item.(*models.ExplorationRightsSnapshotContentModel)
	if !ok {
		return fmt.Errorf("expected a rights snapshot, got %T", item)
	}
	if snap.Status() != models.ActivityStatusPublic {
		return nil
	}
	return out.Emit(snap.UnversionedInstanceID(), snap.CreatedOn.UnixMilli())
}

func (j *ExplorationFirstPublishedJob) Reduce(ctx context.Context, expID string, values []json.RawMessage, _ mapreduce.Emitter) error {
	if _, err := j.deps.Rights.GetExplorationRights(ctx, expID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	commitTimes, err := mapreduce.DecodeValues[int64](values)
	if err != nil {
		return err
	}
	first := commitTimes[0]
	for _, t := range commitTimes[1:] {
		first = min(first, t)
	}
	return j.deps.Rights.UpdateFirstPublishedMsec(ctx, expID, first)
}

// ViewableExplorationsAuditJob lists private explorations that are
// nonetheless viewable.
type ViewableExplorationsAuditJob struct {
	deps Deps
}

func (j *ViewableExplorationsAuditJob) Name() string              { return "ViewableExplorationsAuditJob" }
func (j *ViewableExplorationsAuditJob) EntityKinds() []models.Kind { return explorationKinds }

func (j *ViewableExplorationsAuditJob) Map(ctx context.Context, item models.Entity, out mapreduce.Emitter) error {
	m, err := asExploration(item)
	if m == nil || err != nil {
		return err
	}
	rights, err := j.deps.Rights.GetExplorationRights(ctx, m.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if rights.Status == models.ActivityStatusPrivate && rights.ViewableIfPrivate {
		return out.Emit(m.ID, m.Title)
	}
	return nil
}

func (j *ViewableExplorationsAuditJob) Reduce(_ context.Context, key string, values []json.RawMessage, out mapreduce.Emitter) error {
	return passThrough(key, values, out)
}
