package models

import (
	"strings"
	"time"
)

// Kind names a stored record collection that a job can scan.
type Kind string

const (
	KindExploration                      Kind = "explorations"
	KindExplorationRightsSnapshotContent Kind = "exploration_rights_snapshot_content"
	KindExplorationMathRichTextInfo      Kind = "exploration_math_rich_text_info"
)

const (
	CollectionExplorationRights           = "exploration_rights"
	CollectionExplorationSnapshotMetadata = "exploration_snapshot_metadata"
	CollectionJobs                        = "jobs"
)

// Entity is a single stored record handed to a job's map step.
type Entity interface {
	EntityID() string
}

// UnreadableEntity stands in for a stored record that could not be decoded.
type UnreadableEntity struct {
	ID   string
	Kind Kind
	Err  error
}

func (u *UnreadableEntity) EntityID() string { return u.ID }

// ExplorationModel is the stored form of an exploration. States are kept in
// their raw, schema-versioned shape so that older documents can be migrated.
type ExplorationModel struct {
	ID                  string                    `firestore:"-"`
	Deleted             bool                      `firestore:"deleted"`
	Title               string                    `firestore:"title"`
	Category            string                    `firestore:"category"`
	Objective           string                    `firestore:"objective"`
	LanguageCode        string                    `firestore:"languageCode"`
	InitStateName       string                    `firestore:"initStateName"`
	Version             int                       `firestore:"version"`
	StatesSchemaVersion int                       `firestore:"statesSchemaVersion"`
	States              map[string]map[string]any `firestore:"states"`
	LastUpdated         time.Time                 `firestore:"lastUpdated,omitempty"`
}

func (m *ExplorationModel) EntityID() string { return m.ID }

// ExplorationRightsSnapshotContentModel is a historical copy of an
// exploration's rights taken at commit time.
type ExplorationRightsSnapshotContentModel struct {
	ID        string         `firestore:"-"`
	Content   map[string]any `firestore:"content"`
	CreatedOn time.Time      `firestore:"createdOn"`
}

func (m *ExplorationRightsSnapshotContentModel) EntityID() string { return m.ID }

// UnversionedInstanceID strips the trailing "-<version>" from the snapshot id.
func (m *ExplorationRightsSnapshotContentModel) UnversionedInstanceID() string {
	i := strings.LastIndex(m.ID, "-")
	if i < 0 {
		return m.ID
	}
	return m.ID[:i]
}

// Status returns the rights status recorded in the snapshot, if any.
func (m *ExplorationRightsSnapshotContentModel) Status() string {
	s, _ := m.Content["status"].(string)
	return s
}

// ExplorationMathRichTextInfoModel is a temporary record listing the math
// expressions of an exploration that still need SVG images generated.
type ExplorationMathRichTextInfoModel struct {
	ID                              string   `firestore:"-"`
	MathImagesGenerationRequired    bool     `firestore:"mathImagesGenerationRequired"`
	LatexStringsWithoutSVG          []string `firestore:"latexStringsWithoutSvg"`
	EstimatedMaxSizeOfImagesInBytes int      `firestore:"estimatedMaxSizeOfImagesInBytes"`
}

func (m *ExplorationMathRichTextInfoModel) EntityID() string { return m.ID }
