package domain

import (
	"encoding/json"
	"fmt"

	"github.com/Lllllllleong/explorationjobs/internal/htmlvalidation"
)

// CurrentStatesSchemaVersion is the states schema every stored exploration is
// migrated towards.
const CurrentStatesSchemaVersion = 4

// VersionedStates pairs raw states with the schema version they are in.
type VersionedStates struct {
	StatesSchemaVersion int
	States              map[string]map[string]any
}

type stateConverter func(state map[string]any) error

// converters[v] upgrades a single state from schema v to v+1.
var converters = map[int]stateConverter{
	1: convertStatesV1ToV2,
	2: convertStatesV2ToV3,
	3: convertStatesV3ToV4,
}

// UpdateStatesFromModel upgrades versioned by exactly one schema version,
// from currentVersion to currentVersion+1. It mutates versioned in place.
func UpdateStatesFromModel(versioned *VersionedStates, currentVersion int, expID string) error {
	if versioned.StatesSchemaVersion != currentVersion {
		return fmt.Errorf("exploration %s: states are at v%d, not v%d", expID, versioned.StatesSchemaVersion, currentVersion)
	}
	conv, ok := converters[currentVersion]
	if !ok {
		return fmt.Errorf("exploration %s: no conversion from states schema v%d", expID, currentVersion)
	}
	for name, state := range versioned.States {
		if state == nil {
			return fmt.Errorf("state %q is empty", name)
		}
		if err := conv(state); err != nil {
			return fmt.Errorf("state %q: %w", name, err)
		}
	}
	versioned.StatesSchemaVersion++
	return nil
}

// MigrateStatesToLatest upgrades versioned to CurrentStatesSchemaVersion.
func MigrateStatesToLatest(versioned *VersionedStates, expID string) error {
	if versioned.StatesSchemaVersion < 1 || versioned.StatesSchemaVersion > CurrentStatesSchemaVersion {
		return fmt.Errorf("exploration %s: unsupported states schema version %d", expID, versioned.StatesSchemaVersion)
	}
	for versioned.StatesSchemaVersion < CurrentStatesSchemaVersion {
		if err := UpdateStatesFromModel(versioned, versioned.StatesSchemaVersion, expID); err != nil {
			return err
		}
	}
	return nil
}

// CopyStates returns a deep copy of raw states so callers can migrate without
// touching the stored model.
func CopyStates(states map[string]map[string]any) (map[string]map[string]any, error) {
	b, err := json.Marshal(states)
	if err != nil {
		return nil, err
	}
	var out map[string]map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// convertStatesV1ToV2 turns the plain HTML content string into a subtitled
// HTML object.
func convertStatesV1ToV2(state map[string]any) error {
	switch c := state["content"].(type) {
	case string:
		state["content"] = map[string]any{"content_id": "content", "html": c}
	case nil:
		state["content"] = map[string]any{"content_id": "content", "html": ""}
	default:
		return fmt.Errorf("expected content to be a string, got %T", c)
	}
	return nil
}

// convertStatesV2ToV3 adds the hints and solution fields to the interaction.
func convertStatesV2ToV3(state map[string]any) error {
	interaction, ok := state["interaction"].(map[string]any)
	if !ok {
		return fmt.Errorf("expected interaction to be a dict, got %T", state["interaction"])
	}
	if _, ok := interaction["hints"]; !ok {
		interaction["hints"] = []any{}
	}
	if _, ok := interaction["solution"]; !ok {
		interaction["solution"] = nil
	}
	return nil
}

// convertStatesV3ToV4 moves math components to the math_content attribute.
func convertStatesV3ToV4(state map[string]any) error {
	return mapHTMLInRawState(state, htmlvalidation.AddMathContentToMathRTEComponents)
}

// mapHTMLInRawState applies fn to every HTML field of a raw state.
func mapHTMLInRawState(state map[string]any, fn func(string) (string, error)) error {
	apply := func(sub any) error {
		m, ok := sub.(map[string]any)
		if !ok {
			return nil
		}
		h, ok := m["html"].(string)
		if !ok {
			return nil
		}
		out, err := fn(h)
		if err != nil {
			return err
		}
		m["html"] = out
		return nil
	}
	outcomeFeedback := func(o any) any {
		if m, ok := o.(map[string]any); ok {
			return m["feedback"]
		}
		return nil
	}

	if err := apply(state["content"]); err != nil {
		return err
	}
	interaction, ok := state["interaction"].(map[string]any)
	if !ok {
		return nil
	}
	groups, _ := interaction["answer_groups"].([]any)
	for _, g := range groups {
		gm, _ := g.(map[string]any)
		if err := apply(outcomeFeedback(gm["outcome"])); err != nil {
			return err
		}
	}
	if err := apply(outcomeFeedback(interaction["default_outcome"])); err != nil {
		return err
	}
	hints, _ := interaction["hints"].([]any)
	for _, h := range hints {
		hm, _ := h.(map[string]any)
		if err := apply(hm["hint_content"]); err != nil {
			return err
		}
	}
	if sol, ok := interaction["solution"].(map[string]any); ok {
		if err := apply(sol["explanation"]); err != nil {
			return err
		}
	}
	return nil
}
