// Package store adapts Firestore and Cloud Storage to the interfaces the
// jobs and the runner depend on.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/explorationjobs/internal/models"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

var errUnknownKind = errors.New("unknown kind")

// Firestore stores explorations, their rights and job bookkeeping.
type Firestore struct {
	client *firestore.Client
}

func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

func notFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// Scan calls fn for every record of kind. Records that fail to decode are
// passed as *models.UnreadableEntity.
func (s *Firestore) Scan(ctx context.Context, kind models.Kind, fn func(models.Entity) error) error {
	it := s.client.Collection(string(kind)).Documents(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list %s: %w", kind, err)
		}
		e, err := decodeEntity(kind, snap)
		if errors.Is(err, errUnknownKind) {
			return err
		}
		if err != nil {
			slog.Warn("Stored record could not be decoded.", "kind", kind, "id", snap.Ref.ID, "error", err)
			e = &models.UnreadableEntity{ID: snap.Ref.ID, Kind: kind, Err: err}
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

func decodeEntity(kind models.Kind, snap *firestore.DocumentSnapshot) (models.Entity, error) {
	var (
		e   models.Entity
		err error
	)
	switch kind {
	case models.KindExploration:
		m := &models.ExplorationModel{ID: snap.Ref.ID}
		e, err = m, snap.DataTo(m)
	case models.KindExplorationRightsSnapshotContent:
		m := &models.ExplorationRightsSnapshotContentModel{ID: snap.Ref.ID}
		e, err = m, snap.DataTo(m)
	case models.KindExplorationMathRichTextInfo:
		m := &models.ExplorationMathRichTextInfoModel{ID: snap.Ref.ID}
		e, err = m, snap.DataTo(m)
	default:
		return nil, fmt.Errorf("%w %q", errUnknownKind, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s/%s: %w", kind, snap.Ref.ID, err)
	}
	return e, nil
}

func (s *Firestore) GetExploration(ctx context.Context, id string) (*models.ExplorationModel, error) {
	snap, err := s.client.Collection(string(models.KindExploration)).Doc(id).Get(ctx)
	if notFound(err) {
		return nil, fmt.Errorf("exploration %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get exploration %s: %w", id, err)
	}
	m := &models.ExplorationModel{ID: id}
	if err := snap.DataTo(m); err != nil {
		return nil, fmt.Errorf("failed to decode exploration %s: %w", id, err)
	}
	return m, nil
}

// CommitExploration performs a versioned write: inside one transaction the
// latest stored version is mutated, its version is bumped, and the commit is
// recorded as snapshot metadata for the new version.
func (s *Firestore) CommitExploration(ctx context.Context, id string, commit models.CommitMetadata, mutate func(*models.ExplorationModel) error) error {
	ref := s.client.Collection(string(models.KindExploration)).Doc(id)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if notFound(err) {
			return fmt.Errorf("exploration %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to read exploration %s: %w", id, err)
		}
		m := &models.ExplorationModel{ID: id}
		if err := snap.DataTo(m); err != nil {
			return fmt.Errorf("failed to decode exploration %s: %w", id, err)
		}
		if err := mutate(m); err != nil {
			return err
		}

		m.Version++
		m.LastUpdated = time.Now()
		commit.Version = m.Version
		commit.CreatedOn = m.LastUpdated

		if err := tx.Set(ref, m); err != nil {
			return fmt.Errorf("failed to write exploration %s: %w", id, err)
		}
		metaRef := s.client.Collection(models.CollectionExplorationSnapshotMetadata).Doc(fmt.Sprintf("%s-%d", id, m.Version))
		if err := tx.Create(metaRef, commit); err != nil {
			return fmt.Errorf("failed to record commit for exploration %s: %w", id, err)
		}
		return nil
	})
}

func (s *Firestore) GetExplorationRights(ctx context.Context, id string) (*models.ExplorationRights, error) {
	snap, err := s.client.Collection(models.CollectionExplorationRights).Doc(id).Get(ctx)
	if notFound(err) {
		return nil, fmt.Errorf("rights for exploration %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rights for exploration %s: %w", id, err)
	}
	r := &models.ExplorationRights{ID: id}
	if err := snap.DataTo(r); err != nil {
		return nil, fmt.Errorf("failed to decode rights for exploration %s: %w", id, err)
	}
	return r, nil
}

func (s *Firestore) UpdateFirstPublishedMsec(ctx context.Context, id string, msec int64) error {
	ref := s.client.Collection(models.CollectionExplorationRights).Doc(id)
	_, err := ref.Update(ctx, []firestore.Update{{Path: "firstPublishedMsec", Value: msec}})
	if err != nil {
		return fmt.Errorf("failed to update first published time of %s: %w", id, err)
	}
	return nil
}

// SaveMathRichTextInfos writes all infos with a BulkWriter and reports the
// first failed write.
func (s *Firestore) SaveMathRichTextInfos(ctx context.Context, infos []*models.ExplorationMathRichTextInfoModel) error {
	bw := s.client.BulkWriter(ctx)
	coll := s.client.Collection(string(models.KindExplorationMathRichTextInfo))
	jobs := make([]*firestore.BulkWriterJob, 0, len(infos))
	for _, info := range infos {
		job, err := bw.Set(coll.Doc(info.ID), info)
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to enqueue math info %s: %w", info.ID, err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for i, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("failed to save math info %s: %w", infos[i].ID, err)
		}
	}
	slog.Info("Saved math rich-text info models.", "count", len(infos))
	return nil
}

func (s *Firestore) DeleteMathRichTextInfo(ctx context.Context, id string) error {
	_, err := s.client.Collection(string(models.KindExplorationMathRichTextInfo)).Doc(id).Delete(ctx)
	return err
}

// CreateJobRecord stores a new job record. It fails if jobID is taken.
func (s *Firestore) CreateJobRecord(ctx context.Context, jobID string, rec models.JobRecord) error {
	_, err := s.client.Collection(models.CollectionJobs).Doc(jobID).Create(ctx, rec)
	if err != nil {
		return fmt.Errorf("failed to create job record %s: %w", jobID, err)
	}
	return nil
}

// UpdateJobStatus sets the status of a job record, along with optional error
// details and results location.
func (s *Firestore) UpdateJobStatus(ctx context.Context, jobID, jobStatus, errDetails, resultsURI string) error {
	updates := []firestore.Update{
		{Path: "status", Value: jobStatus},
	}
	if errDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: errDetails})
	}
	if resultsURI != "" {
		updates = append(updates, firestore.Update{Path: "resultsUri", Value: resultsURI})
	}
	_, err := s.client.Collection(models.CollectionJobs).Doc(jobID).Update(ctx, updates)
	return err
}

// SetJobExecutionID records the workflow execution driving a job.
func (s *Firestore) SetJobExecutionID(ctx context.Context, jobID, executionID string) error {
	_, err := s.client.Collection(models.CollectionJobs).Doc(jobID).Update(ctx, []firestore.Update{
		{Path: "executionId", Value: executionID},
	})
	return err
}
