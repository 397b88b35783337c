package models

import "time"

// CmdMigrateStatesSchemaToLatestVersion is the only change command the
// maintenance jobs ever commit.
const CmdMigrateStatesSchemaToLatestVersion = "migrate_states_schema_to_latest_version"

// ExplorationChange is one command in a commit's change list. FromVersion and
// ToVersion are strings to match legacy snapshot data.
type ExplorationChange struct {
	Cmd         string `firestore:"cmd" json:"cmd"`
	FromVersion string `firestore:"fromVersion,omitempty" json:"from_version,omitempty"`
	ToVersion   string `firestore:"toVersion,omitempty" json:"to_version,omitempty"`
}

// CommitMetadata describes a versioned write to an exploration.
type CommitMetadata struct {
	CommitterID   string              `firestore:"committerId"`
	CommitMessage string              `firestore:"commitMessage"`
	CommitCmds    []ExplorationChange `firestore:"commitCmds"`
	Version       int                 `firestore:"version"`
	CreatedOn     time.Time           `firestore:"createdOn"`
}
