// Package domain holds the typed exploration model: schema migration of
// stored states, content access and validation.
package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/Lllllllleong/explorationjobs/internal/models"
)

// SubtitledHTML is a piece of rich-text content with its content id.
type SubtitledHTML struct {
	ContentID string `json:"content_id"`
	HTML      string `json:"html"`
}

type Outcome struct {
	Dest     string        `json:"dest"`
	Feedback SubtitledHTML `json:"feedback"`
}

type AnswerGroup struct {
	Outcome Outcome `json:"outcome"`
}

type Hint struct {
	HintContent SubtitledHTML `json:"hint_content"`
}

type Solution struct {
	Explanation SubtitledHTML `json:"explanation"`
}

type Interaction struct {
	ID             string        `json:"id"`
	AnswerGroups   []AnswerGroup `json:"answer_groups"`
	DefaultOutcome *Outcome      `json:"default_outcome"`
	Hints          []Hint        `json:"hints"`
	Solution       *Solution     `json:"solution"`
}

// IsTerminal reports whether the interaction ends the exploration.
func (i Interaction) IsTerminal() bool { return i.ID == InteractionEndExploration }

type State struct {
	Content     SubtitledHTML `json:"content"`
	Interaction Interaction   `json:"interaction"`
}

// AllHTMLContentStrings returns every HTML string in the state.
func (s State) AllHTMLContentStrings() []string {
	out := []string{s.Content.HTML}
	for _, g := range s.Interaction.AnswerGroups {
		out = append(out, g.Outcome.Feedback.HTML)
	}
	if s.Interaction.DefaultOutcome != nil {
		out = append(out, s.Interaction.DefaultOutcome.Feedback.HTML)
	}
	for _, h := range s.Interaction.Hints {
		out = append(out, h.HintContent.HTML)
	}
	if s.Interaction.Solution != nil {
		out = append(out, s.Interaction.Solution.Explanation.HTML)
	}
	return out
}

// Exploration is the typed, current-schema form of a stored exploration.
type Exploration struct {
	ID                  string
	Title               string
	Category            string
	Objective           string
	LanguageCode        string
	InitStateName       string
	Version             int
	StatesSchemaVersion int
	States              map[string]State
}

// StateNames returns the state names in sorted order.
func (e *Exploration) StateNames() []string {
	names := make([]string, 0, len(e.States))
	for n := range e.States {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// AllHTMLContentStrings returns every HTML string of every state, with
// states visited in name order.
func (e *Exploration) AllHTMLContentStrings() []string {
	var out []string
	for _, n := range e.StateNames() {
		out = append(out, e.States[n].AllHTMLContentStrings()...)
	}
	return out
}

// ExplorationFromModel migrates a copy of the model's states to the current
// schema and decodes them. The model itself is left untouched.
func ExplorationFromModel(m *models.ExplorationModel) (*Exploration, error) {
	raw, err := CopyStates(m.States)
	if err != nil {
		return nil, fmt.Errorf("exploration %s: failed to copy states: %w", m.ID, err)
	}
	versioned := &VersionedStates{StatesSchemaVersion: m.StatesSchemaVersion, States: raw}
	if err := MigrateStatesToLatest(versioned, m.ID); err != nil {
		return nil, err
	}

	b, err := json.Marshal(versioned.States)
	if err != nil {
		return nil, fmt.Errorf("exploration %s: failed to encode states: %w", m.ID, err)
	}
	var states map[string]State
	if err := json.Unmarshal(b, &states); err != nil {
		return nil, fmt.Errorf("exploration %s: failed to decode states: %w", m.ID, err)
	}

	return &Exploration{
		ID:                  m.ID,
		Title:               m.Title,
		Category:            m.Category,
		Objective:           m.Objective,
		LanguageCode:        m.LanguageCode,
		InitStateName:       m.InitStateName,
		Version:             m.Version,
		StatesSchemaVersion: versioned.StatesSchemaVersion,
		States:              states,
	}, nil
}

// ValidationError is returned by Validate.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalidf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

const (
	InteractionContinue        = "Continue"
	InteractionEndExploration  = "EndExploration"
	InteractionMultipleChoice  = "MultipleChoiceInput"
	InteractionNumericInput    = "NumericInput"
	InteractionTextInput       = "TextInput"
	InteractionItemSelection   = "ItemSelectionInput"
	InteractionDragAndDropSort = "DragAndDropSortInput"
)

var allowedInteractionIDs = map[string]bool{
	InteractionContinue:        true,
	InteractionEndExploration:  true,
	InteractionMultipleChoice:  true,
	InteractionNumericInput:    true,
	InteractionTextInput:       true,
	InteractionItemSelection:   true,
	InteractionDragAndDropSort: true,
}

// Validate checks the exploration. Non-strict validation accepts drafts;
// strict validation additionally requires everything a published
// exploration needs.
func (e *Exploration) Validate(strict bool) error {
	if e.ID == "" {
		return invalidf("Expected exploration to have an id")
	}
	if e.StatesSchemaVersion != CurrentStatesSchemaVersion {
		return invalidf("This exploration has states schema version %d, expected %d", e.StatesSchemaVersion, CurrentStatesSchemaVersion)
	}
	if len(e.States) == 0 {
		return invalidf("This exploration has no states")
	}
	if _, ok := e.States[e.InitStateName]; !ok {
		return invalidf("There is no state in %v corresponding to the exploration's initial state name %s.", e.StateNames(), e.InitStateName)
	}

	for _, name := range e.StateNames() {
		if strings.TrimSpace(name) == "" || strings.TrimSpace(name) != name {
			return invalidf("Invalid state name: %q", name)
		}
		if err := e.validateState(name, e.States[name], strict); err != nil {
			return err
		}
	}

	if !strict {
		return nil
	}
	if e.Title == "" {
		return invalidf("A title must be specified (in the 'Title' section of the Settings tab).")
	}
	if e.Category == "" {
		return invalidf("A category must be specified (in the 'Settings' tab).")
	}
	if e.Objective == "" {
		return invalidf("An objective must be specified (in the 'Settings' tab).")
	}
	if e.LanguageCode == "" {
		return invalidf("A language must be specified (in the 'Settings' tab).")
	}
	return e.validateReachability()
}

func (e *Exploration) validateState(name string, s State, strict bool) error {
	in := s.Interaction
	if in.ID == "" {
		if strict {
			return invalidf("This state does not have any interaction specified: %s", name)
		}
	} else if !allowedInteractionIDs[in.ID] {
		return invalidf("Invalid interaction id: %s", in.ID)
	}

	if in.IsTerminal() {
		if len(in.AnswerGroups) > 0 || in.DefaultOutcome != nil {
			return invalidf("Terminal interaction in state %s must not have outcomes", name)
		}
	}
	for _, g := range in.AnswerGroups {
		if _, ok := e.States[g.Outcome.Dest]; !ok {
			return invalidf("The destination %s is not a valid state.", g.Outcome.Dest)
		}
	}
	if in.DefaultOutcome != nil {
		if _, ok := e.States[in.DefaultOutcome.Dest]; !ok {
			return invalidf("The destination %s is not a valid state.", in.DefaultOutcome.Dest)
		}
	} else if strict && in.ID != "" && !in.IsTerminal() {
		return invalidf("Non-terminal interactions must have a default outcome: %s", name)
	}
	for _, h := range in.Hints {
		if strings.TrimSpace(h.HintContent.HTML) == "" {
			return invalidf("Hint content in state %s should not be empty", name)
		}
	}
	if in.Solution != nil && len(in.Hints) == 0 {
		return invalidf("Hint(s) must be specified if solution is specified")
	}
	return nil
}

// validateReachability requires every state to be reachable from the initial
// state and at least one reachable state to end the exploration.
func (e *Exploration) validateReachability() error {
	seen := map[string]bool{e.InitStateName: true}
	queue := []string{e.InitStateName}
	terminal := false
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		in := e.States[name].Interaction
		if in.IsTerminal() {
			terminal = true
		}
		var dests []string
		for _, g := range in.AnswerGroups {
			dests = append(dests, g.Outcome.Dest)
		}
		if in.DefaultOutcome != nil {
			dests = append(dests, in.DefaultOutcome.Dest)
		}
		for _, d := range dests {
			if !seen[d] {
				seen[d] = true
				queue = append(queue, d)
			}
		}
	}

	var unreachable []string
	for _, n := range e.StateNames() {
		if !seen[n] {
			unreachable = append(unreachable, n)
		}
	}
	if len(unreachable) > 0 {
		return invalidf("The following states are not reachable from the initial state: %s", strings.Join(unreachable, ", "))
	}
	if !terminal {
		return invalidf("Please make sure there is a way to complete the exploration starting from the initial state.")
	}
	return nil
}
