package domain

import (
	"errors"
	"testing"

	"github.com/Lllllllleong/explorationjobs/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// v1Model returns a two-state exploration stored at states schema v1.
func v1Model() *models.ExplorationModel {
	return &models.ExplorationModel{
		ID:                  "exp1",
		Title:               "Fractions",
		Category:            "Math",
		Objective:           "Learn fractions",
		LanguageCode:        "en",
		InitStateName:       "Intro",
		StatesSchemaVersion: 1,
		States: map[string]map[string]any{
			"Intro": {
				"content": `<p><oppia-noninteractive-math raw_latex-with-value="&quot;\\frac{1}{2}&quot;"></oppia-noninteractive-math></p>`,
				"interaction": map[string]any{
					"id":            "Continue",
					"answer_groups": []any{},
					"default_outcome": map[string]any{
						"dest":     "End",
						"feedback": map[string]any{"content_id": "default_outcome", "html": ""},
					},
				},
			},
			"End": {
				"content": "<p>Done</p>",
				"interaction": map[string]any{
					"id":              "EndExploration",
					"answer_groups":   []any{},
					"default_outcome": nil,
				},
			},
		},
	}
}

func TestMigrateStatesToLatest(t *testing.T) {
	m := v1Model()
	raw, err := CopyStates(m.States)
	require.NoError(t, err)
	versioned := &VersionedStates{StatesSchemaVersion: 1, States: raw}

	require.NoError(t, MigrateStatesToLatest(versioned, m.ID))
	assert.Equal(t, CurrentStatesSchemaVersion, versioned.StatesSchemaVersion)

	intro := versioned.States["Intro"]
	content, ok := intro["content"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "content", content["content_id"])
	assert.Contains(t, content["html"], "math_content-with-value")
	assert.NotContains(t, content["html"], "raw_latex-with-value")

	interaction := intro["interaction"].(map[string]any)
	assert.Equal(t, []any{}, interaction["hints"])
	assert.Contains(t, interaction, "solution")

	// The source model is untouched.
	assert.Equal(t, 1, m.StatesSchemaVersion)
	assert.IsType(t, "", m.States["Intro"]["content"])
}

func TestUpdateStatesFromModelErrors(t *testing.T) {
	t.Run("version mismatch", func(t *testing.T) {
		v := &VersionedStates{StatesSchemaVersion: 2}
		assert.Error(t, UpdateStatesFromModel(v, 1, "e"))
	})
	t.Run("malformed content", func(t *testing.T) {
		v := &VersionedStates{StatesSchemaVersion: 1, States: map[string]map[string]any{
			"A": {"content": 42},
		}}
		err := UpdateStatesFromModel(v, 1, "e")
		require.Error(t, err)
		assert.Equal(t, 1, v.StatesSchemaVersion)
	})
	t.Run("missing interaction", func(t *testing.T) {
		v := &VersionedStates{StatesSchemaVersion: 2, States: map[string]map[string]any{
			"A": {"content": map[string]any{"html": ""}},
		}}
		assert.Error(t, UpdateStatesFromModel(v, 2, "e"))
	})
	t.Run("no converter past current", func(t *testing.T) {
		v := &VersionedStates{StatesSchemaVersion: CurrentStatesSchemaVersion}
		assert.Error(t, UpdateStatesFromModel(v, CurrentStatesSchemaVersion, "e"))
	})
	t.Run("unsupported version", func(t *testing.T) {
		assert.Error(t, MigrateStatesToLatest(&VersionedStates{StatesSchemaVersion: 0}, "e"))
	})
}

func TestExplorationFromModel(t *testing.T) {
	exp, err := ExplorationFromModel(v1Model())
	require.NoError(t, err)

	assert.Equal(t, CurrentStatesSchemaVersion, exp.StatesSchemaVersion)
	assert.Equal(t, []string{"End", "Intro"}, exp.StateNames())
	assert.Equal(t, InteractionContinue, exp.States["Intro"].Interaction.ID)
	require.NotNil(t, exp.States["Intro"].Interaction.DefaultOutcome)
	assert.Equal(t, "End", exp.States["Intro"].Interaction.DefaultOutcome.Dest)

	html := exp.AllHTMLContentStrings()
	assert.Equal(t, "<p>Done</p>", html[0])
	assert.Len(t, html, 3)
}

func TestValidate(t *testing.T) {
	exp, err := ExplorationFromModel(v1Model())
	require.NoError(t, err)
	require.NoError(t, exp.Validate(false))
	require.NoError(t, exp.Validate(true))
	// Passing strict validation implies the states are current.
	assert.Equal(t, CurrentStatesSchemaVersion, exp.StatesSchemaVersion)

	t.Run("missing title only fails strict", func(t *testing.T) {
		e := *exp
		e.Title = ""
		assert.NoError(t, e.Validate(false))
		var verr *ValidationError
		require.True(t, errors.As(e.Validate(true), &verr))
		assert.Contains(t, verr.Msg, "title")
	})

	t.Run("bad init state", func(t *testing.T) {
		e := *exp
		e.InitStateName = "Nope"
		assert.Error(t, e.Validate(false))
	})

	t.Run("stale schema version", func(t *testing.T) {
		e := *exp
		e.StatesSchemaVersion = 3
		assert.Error(t, e.Validate(false))
	})

	t.Run("unreachable state fails strict", func(t *testing.T) {
		e := *exp
		e.States = map[string]State{}
		for k, v := range exp.States {
			e.States[k] = v
		}
		e.States["Orphan"] = State{Interaction: Interaction{ID: InteractionEndExploration}}
		assert.NoError(t, e.Validate(false))
		assert.ErrorContains(t, e.Validate(true), "Orphan")
	})

	t.Run("solution without hints", func(t *testing.T) {
		e := *exp
		e.States = map[string]State{}
		for k, v := range exp.States {
			e.States[k] = v
		}
		intro := e.States["Intro"]
		intro.Interaction.Solution = &Solution{Explanation: SubtitledHTML{HTML: "<p>x</p>"}}
		e.States["Intro"] = intro
		assert.ErrorContains(t, e.Validate(false), "Hint(s)")
	})
}

func TestMathRichTextInfo(t *testing.T) {
	info, err := NewMathRichTextInfo("exp1", true, []string{`\frac{1}{2}`, "x+y", `\sqrt{x}`})
	require.NoError(t, err)
	// "{1}{2}" + "x+y" + "{x}" = 6 + 3 + 3 characters.
	assert.Equal(t, 12000, info.SVGSizeInBytes())
	assert.Equal(t, `\frac{1}{2}`, info.LongestLatexExpression())

	_, err = NewMathRichTextInfo("", true, []string{"x"})
	assert.Error(t, err)
	_, err = NewMathRichTextInfo("exp1", true, nil)
	assert.Error(t, err)
}

func TestConvertStatesV3ToV4LeavesNonMathHTMLAlone(t *testing.T) {
	content := "<p><ul><li>a &amp; b</li></ul></p>"
	feedback := "<p><p>nested</p></p>"
	state := map[string]any{
		"content": map[string]any{"content_id": "content", "html": content},
		"interaction": map[string]any{
			"id":            "Continue",
			"answer_groups": []any{},
			"default_outcome": map[string]any{
				"dest":     "End",
				"feedback": map[string]any{"content_id": "default_outcome", "html": feedback},
			},
			"hints":    []any{},
			"solution": nil,
		},
	}

	require.NoError(t, convertStatesV3ToV4(state))
	assert.Equal(t, content, state["content"].(map[string]any)["html"])
	outcome := state["interaction"].(map[string]any)["default_outcome"].(map[string]any)
	assert.Equal(t, feedback, outcome["feedback"].(map[string]any)["html"])
}
