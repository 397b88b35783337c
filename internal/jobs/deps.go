// Package jobs contains the batch maintenance jobs that run over stored
// explorations.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/explorationjobs/internal/htmlvalidation"
	"github.com/Lllllllleong/explorationjobs/internal/mapreduce"
	"github.com/Lllllllleong/explorationjobs/internal/models"
)

// MigrationBotUsername is recorded as the committer of schema migrations.
const MigrationBotUsername = "MigrationBot"

// ExplorationStore is the versioned exploration store.
type ExplorationStore interface {
	GetExploration(ctx context.Context, id string) (*models.ExplorationModel, error)
	// CommitExploration applies mutate to the latest stored version inside a
	// versioned write and records commit in the exploration's history.
	CommitExploration(ctx context.Context, id string, commit models.CommitMetadata, mutate func(*models.ExplorationModel) error) error
}

// MathInfoStore persists the temporary math rich-text info models.
type MathInfoStore interface {
	SaveMathRichTextInfos(ctx context.Context, infos []*models.ExplorationMathRichTextInfoModel) error
	DeleteMathRichTextInfo(ctx context.Context, id string) error
}

// RightsStore reads and updates exploration rights. GetExplorationRights
// returns store.ErrNotFound for unknown explorations.
type RightsStore interface {
	GetExplorationRights(ctx context.Context, id string) (*models.ExplorationRights, error)
	UpdateFirstPublishedMsec(ctx context.Context, id string, msec int64) error
}

// Deps are the collaborators shared by all jobs.
type Deps struct {
	Explorations ExplorationStore
	MathInfo     MathInfoStore
	Rights       RightsStore
	Assets       htmlvalidation.AssetChecker
	Logger       *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// Register adds every exploration job to reg.
func Register(reg *mapreduce.Registry, deps Deps) {
	for _, j := range All(deps) {
		reg.Register(j)
	}
}

// All returns every exploration job wired to deps.
func All(deps Deps) []mapreduce.Job {
	return []mapreduce.Job{
		&ExplorationFirstPublishedJob{deps: deps},
		&ExplorationValidityJob{deps: deps},
		&ExplorationMigrationAuditJob{deps: deps},
		&ExplorationMigrationJob{deps: deps},
		&ExplorationMathSvgFilenameValidationJob{deps: deps},
		&ExplorationMockMathMigrationJob{deps: deps},
		&ExplorationMathRichTextInfoModelGenerationJob{deps: deps},
		&ExplorationMathRichTextInfoModelDeletionJob{deps: deps},
		&ViewableExplorationsAuditJob{deps: deps},
		&HintsAuditJob{deps: deps},
		&ExplorationContentValidationJobForCKEditor{deps: deps},
		&RTECustomizationArgsValidationJob{deps: deps},
	}
}

var explorationKinds = []models.Kind{models.KindExploration}

// asExploration returns the exploration model behind item, or nil if the
// exploration is soft-deleted.
func asExploration(item models.Entity) (*models.ExplorationModel, error) {
	m, ok := item.(*models.ExplorationModel)
	if !ok {
		return nil, fmt.Errorf("expected an exploration, got %T", item)
	}
	if m.Deleted {
		return nil, nil
	}
	return m, nil
}

// passThrough emits all values of key, unchanged, as a single list.
func passThrough(key string, values []json.RawMessage, out mapreduce.Emitter) error {
	return out.Emit(key, values)
}
