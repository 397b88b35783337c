package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Lllllllleong/explorationjobs/internal/domain"
	"github.com/Lllllllleong/explorationjobs/internal/mapreduce"
	"github.com/Lllllllleong/explorationjobs/internal/models"
	"github.com/Lllllllleong/explorationjobs/internal/store"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory stand-in for the Firestore adapter.
type memStore struct {
	mu           sync.Mutex
	explorations map[string]*models.ExplorationModel
	rights       map[string]*models.ExplorationRights
	snapshots    []*models.ExplorationRightsSnapshotContentModel
	mathInfos    map[string]*models.ExplorationMathRichTextInfoModel
	assets       map[string]bool
	commits      map[string]models.CommitMetadata
	commitErr    error
	unreadable   []*models.UnreadableEntity
}

func newMemStore() *memStore {
	return &memStore{
		explorations: map[string]*models.ExplorationModel{},
		rights:       map[string]*models.ExplorationRights{},
		mathInfos:    map[string]*models.ExplorationMathRichTextInfoModel{},
		assets:       map[string]bool{},
		commits:      map[string]models.CommitMetadata{},
	}
}

func (s *memStore) deps() Deps {
	return Deps{Explorations: s, MathInfo: s, Rights: s, Assets: s}
}

func (s *memStore) addExploration(m *models.ExplorationModel) {
	s.explorations[m.ID] = m
}

// addUnreadable stores a record of kind that fails to decode with err.
func (s *memStore) addUnreadable(kind models.Kind, id string, err error) {
	s.unreadable = append(s.unreadable, &models.UnreadableEntity{ID: id, Kind: kind, Err: err})
}

func (s *memStore) Scan(_ context.Context, kind models.Kind, fn func(models.Entity) error) error {
	s.mu.Lock()
	var items []models.Entity
	switch kind {
	case models.KindExploration:
		for _, m := range s.explorations {
			items = append(items, m)
		}
	case models.KindExplorationRightsSnapshotContent:
		for _, m := range s.snapshots {
			items = append(items, m)
		}
	case models.KindExplorationMathRichTextInfo:
		for _, m := range s.mathInfos {
			items = append(items, m)
		}
	}
	for _, u := range s.unreadable {
		if u.Kind == kind {
			items = append(items, u)
		}
	}
	s.mu.Unlock()

	sort.Slice(items, func(a, b int) bool { return items[a].EntityID() < items[b].EntityID() })
	for _, e := range items {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStore) GetExploration(_ context.Context, id string) (*models.ExplorationModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.explorations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) CommitExploration(_ context.Context, id string, commit models.CommitMetadata, mutate func(*models.ExplorationModel) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return s.commitErr
	}
	m, ok := s.explorations[id]
	if !ok {
		return store.ErrNotFound
	}
	cp := *m
	states, err := domain.CopyStates(m.States)
	if err != nil {
		return err
	}
	cp.States = states
	if err := mutate(&cp); err != nil {
		return err
	}
	cp.Version++
	commit.Version = cp.Version
	s.explorations[id] = &cp
	s.commits[id] = commit
	return nil
}

func (s *memStore) GetExplorationRights(_ context.Context, id string) (*models.ExplorationRights, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rights[id]
	if !ok {
		return nil, fmt.Errorf("rights %s: %w", id, store.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

// failingRights is a RightsStore whose lookups fail with a transport error.
type failingRights struct{ *memStore }

func (failingRights) GetExplorationRights(context.Context, string) (*models.ExplorationRights, error) {
	return nil, errors.New("deadline exceeded")
}

func (s *memStore) UpdateFirstPublishedMsec(_ context.Context, id string, msec int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rights[id].FirstPublishedMsec = msec
	return nil
}

func (s *memStore) SaveMathRichTextInfos(_ context.Context, infos []*models.ExplorationMathRichTextInfoModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, info := range infos {
		s.mathInfos[info.ID] = info
	}
	return nil
}

func (s *memStore) DeleteMathRichTextInfo(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mathInfos, id)
	return nil
}

func (s *memStore) Exists(_ context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assets[path], nil
}

// run executes j against s and returns its outputs by key.
func run(t *testing.T, s *memStore, j mapreduce.Job) map[string]json.RawMessage {
	t.Helper()
	res, err := mapreduce.NewRunner(s, nil).Run(context.Background(), j, 0)
	require.NoError(t, err)
	out := map[string]json.RawMessage{}
	for _, o := range res.Outputs {
		_, dup := out[o.Key]
		require.False(t, dup, "key %q reduced twice", o.Key)
		out[o.Key] = o.Value
	}
	return out
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func subtitled(id, h string) map[string]any {
	return map[string]any{"content_id": id, "html": h}
}

// state builds a current-schema state that continues to dest.
func state(content, dest string, hints ...string) map[string]any {
	hs := []any{}
	for _, h := range hints {
		hs = append(hs, map[string]any{"hint_content": subtitled("hint", h)})
	}
	return map[string]any{
		"content": subtitled("content", content),
		"interaction": map[string]any{
			"id":              domain.InteractionContinue,
			"answer_groups":   []any{},
			"default_outcome": map[string]any{"dest": dest, "feedback": subtitled("default_outcome", "")},
			"hints":           hs,
			"solution":        nil,
		},
	}
}

func endState() map[string]any {
	return map[string]any{
		"content": subtitled("content", "<p>Done</p>"),
		"interaction": map[string]any{
			"id":              domain.InteractionEndExploration,
			"answer_groups":   []any{},
			"default_outcome": nil,
			"hints":           []any{},
			"solution":        nil,
		},
	}
}

// exploration returns a valid current-schema exploration whose intro state
// shows introHTML.
func exploration(id, introHTML string, hints ...string) *models.ExplorationModel {
	return &models.ExplorationModel{
		ID:                  id,
		Title:               "Title " + id,
		Category:            "Math",
		Objective:           "Learn",
		LanguageCode:        "en",
		InitStateName:       "Intro",
		Version:             1,
		StatesSchemaVersion: domain.CurrentStatesSchemaVersion,
		States: map[string]map[string]any{
			"Intro": state(introHTML, "End", hints...),
			"End":   endState(),
		},
	}
}

// v1Exploration returns a valid exploration stored at states schema v1.
func v1Exploration(id string) *models.ExplorationModel {
	return &models.ExplorationModel{
		ID:                  id,
		Title:               "Old " + id,
		InitStateName:       "Intro",
		Version:             5,
		StatesSchemaVersion: 1,
		States: map[string]map[string]any{
			"Intro": {
				"content": `<p><oppia-noninteractive-math raw_latex-with-value="&quot;x^2&quot;"></oppia-noninteractive-math></p>`,
				"interaction": map[string]any{
					"id":              domain.InteractionContinue,
					"answer_groups":   []any{},
					"default_outcome": map[string]any{"dest": "End", "feedback": subtitled("default_outcome", "")},
				},
			},
			"End": {
				"content": "<p>Done</p>",
				"interaction": map[string]any{
					"id":              domain.InteractionEndExploration,
					"answer_groups":   []any{},
					"default_outcome": nil,
				},
			},
		},
	}
}

// rteArg encodes v as a rich-text component attribute value.
func rteArg(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return html.EscapeString(string(b))
}

func mathTag(t *testing.T, v any) string {
	t.Helper()
	return fmt.Sprintf(`<oppia-noninteractive-math math_content-with-value="%s"></oppia-noninteractive-math>`, rteArg(t, v))
}

func snapshot(id, status string, createdMsec int64) *models.ExplorationRightsSnapshotContentModel {
	return &models.ExplorationRightsSnapshotContentModel{
		ID:        id,
		Content:   map[string]any{"status": status},
		CreatedOn: time.UnixMilli(createdMsec),
	}
}
