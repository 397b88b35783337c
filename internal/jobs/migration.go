package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Lllllllleong/explorationjobs/internal/domain"
	"github.com/Lllllllleong/explorationjobs/internal/mapreduce"
	"github.com/Lllllllleong/explorationjobs/internal/models"
)

const (
	keySuccess        = "SUCCESS"
	keyMigrationError = "MIGRATION_ERROR"

	migrationShardCount = 64
)

// ExplorationMigrationAuditJob runs the states migration of every
// exploration in memory, without committing, to find explorations that would
// fail to migrate.
type ExplorationMigrationAuditJob struct {
	deps Deps
}

func (j *ExplorationMigrationAuditJob) Name() string              { return "ExplorationMigrationAuditJob" }
func (j *ExplorationMigrationAuditJob) EntityKinds() []models.Kind { return explorationKinds }
func (j *ExplorationMigrationAuditJob) ShardCount() int            { return migrationShardCount }

func (j *ExplorationMigrationAuditJob) Map(_ context.Context, item models.Entity, out mapreduce.Emitter) error {
	m, err := asExploration(item)
	if m == nil || err != nil {
		return err
	}

	states, err := domain.CopyStates(m.States)
	if err != nil {
		return out.Emit(keyMigrationError, fmt.Sprintf("Exploration %s failed to load: %v", m.ID, err))
	}
	versioned := &domain.VersionedStates{StatesSchemaVersion: m.StatesSchemaVersion, States: states}
	version := m.StatesSchemaVersion
	for version < domain.CurrentStatesSchemaVersion {
		if err := domain.UpdateStatesFromModel(versioned, version, m.ID); err != nil {
			msg := fmt.Sprintf("Exploration %s failed migration to states v%d: %v", m.ID, version+1, err)
			j.deps.logger().Error(msg, "explorationId", m.ID)
			return out.Emit(keyMigrationError, msg)
		}
		version++
		if version == domain.CurrentStatesSchemaVersion {
			return out.Emit(keySuccess, 1)
		}
	}
	return nil
}

func (j *ExplorationMigrationAuditJob) MapLoadFailure(_ context.Context, item *models.UnreadableEntity, out mapreduce.Emitter) error {
	return out.Emit(keyMigrationError, fmt.Sprintf("Exploration %s failed to load: %v", item.ID, item.Err))
}

func (j *ExplorationMigrationAuditJob) Reduce(_ context.Context, key string, values []json.RawMessage, out mapreduce.Emitter) error {
	if key == keySuccess {
		return out.Emit(key, len(values))
	}
	return passThrough(key, values, out)
}

// ExplorationMigrationJob commits every exploration that is behind the
// current states schema back to the store in the current schema. Explorations
// failing non-strict validation are left alone.
type ExplorationMigrationJob struct {
	deps Deps
}

func (j *ExplorationMigrationJob) Name() string              { return "ExplorationMigrationJobManager" }
func (j *ExplorationMigrationJob) EntityKinds() []models.Kind { return explorationKinds }
func (j *ExplorationMigrationJob) ShardCount() int            { return migrationShardCount }

func (j *ExplorationMigrationJob) Map(ctx context.Context, item models.Entity, out mapreduce.Emitter) error {
	m, err := asExploration(item)
	if m == nil || err != nil {
		return err
	}
	logCtx := j.deps.logger().With("explorationId", m.ID)

	latest, err := j.deps.Explorations.GetExploration(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("failed to load exploration %s: %w", m.ID, err)
	}
	old, err := domain.ExplorationFromModel(latest)
	if err == nil {
		err = old.Validate(false)
	}
	if err != nil {
		logCtx.Error("Exploration failed non-strict validation, skipping migration.", "error", err)
		return nil
	}

	if latest.StatesSchemaVersion == domain.CurrentStatesSchemaVersion {
		return nil
	}

	from := latest.StatesSchemaVersion
	commit := models.CommitMetadata{
		CommitterID: MigrationBotUsername,
		CommitMessage: fmt.Sprintf("Update exploration states from schema version %d to %d.",
			from, domain.CurrentStatesSchemaVersion),
		CommitCmds: []models.ExplorationChange{{
			Cmd:         models.CmdMigrateStatesSchemaToLatestVersion,
			FromVersion: strconv.Itoa(from),
			ToVersion:   strconv.Itoa(domain.CurrentStatesSchemaVersion),
		}},
	}
	err = j.deps.Explorations.CommitExploration(ctx, m.ID, commit, migrateModelStates)
	if err != nil {
		msg := fmt.Sprintf("Exploration %s failed migration to states v%d: %v", m.ID, domain.CurrentStatesSchemaVersion, err)
		logCtx.Error("Migration commit failed.", "error", err)
		return out.Emit(keyMigrationError, msg)
	}
	logCtx.Info("Migrated exploration states.", "fromVersion", from)
	return out.Emit(keySuccess, m.ID)
}

func (j *ExplorationMigrationJob) Reduce(_ context.Context, key string, values []json.RawMessage, out mapreduce.Emitter) error {
	if key == keySuccess {
		return out.Emit(key, len(values))
	}
	return passThrough(key, values, out)
}

// migrateModelStates upgrades a stored model's states in place.
func migrateModelStates(m *models.ExplorationModel) error {
	versioned := &domain.VersionedStates{StatesSchemaVersion: m.StatesSchemaVersion, States: m.States}
	if err := domain.MigrateStatesToLatest(versioned, m.ID); err != nil {
		return err
	}
	m.StatesSchemaVersion = versioned.StatesSchemaVersion
	m.States = versioned.States
	return nil
}
