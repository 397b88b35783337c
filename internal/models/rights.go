package models

const (
	ActivityStatusPrivate = "private"
	ActivityStatusPublic  = "public"
)

// ExplorationRights holds visibility metadata for one exploration.
type ExplorationRights struct {
	ID                 string `firestore:"-"`
	Status             string `firestore:"status"`
	ViewableIfPrivate  bool   `firestore:"viewableIfPrivate"`
	FirstPublishedMsec int64  `firestore:"firstPublishedMsec,omitempty"`
}
