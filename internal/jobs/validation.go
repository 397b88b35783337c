package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Lllllllleong/explorationjobs/internal/domain"
	"github.com/Lllllllleong/explorationjobs/internal/htmlvalidation"
	"github.com/Lllllllleong/explorationjobs/internal/mapreduce"
	"github.com/Lllllllleong/explorationjobs/internal/models"
	"github.com/Lllllllleong/explorationjobs/internal/store"
)

// keyRightsNotFound collects explorations that have no rights record.
const keyRightsNotFound = "Exploration rights not found"

// ExplorationValidityJob reports explorations that fail validation. Public
// explorations are held to strict validation.
type ExplorationValidityJob struct {
	deps Deps
}

func (j *ExplorationValidityJob) Name() string              { return "ExplorationValidityJobManager" }
func (j *ExplorationValidityJob) EntityKinds() []models.Kind { return explorationKinds }

func (j *ExplorationValidityJob) Map(ctx context.Context, item models.Entity, out mapreduce.Emitter) error {
	m, err := asExploration(item)
	if m == nil || err != nil {
		return err
	}
	rights, err := j.deps.Rights.GetExplorationRights(ctx, m.ID)
	if errors.Is(err, store.ErrNotFound) {
		return out.Emit(keyRightsNotFound, m.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to get rights for exploration %s: %w", m.ID, err)
	}

	exp, err := domain.ExplorationFromModel(m)
	if err != nil {
		return out.Emit(m.ID, err.Error())
	}
	strict := rights.Status != models.ActivityStatusPrivate
	if err := exp.Validate(strict); err != nil {
		return out.Emit(m.ID, err.Error())
	}
	return nil
}

func (j *ExplorationValidityJob) MapLoadFailure(_ context.Context, item *models.UnreadableEntity, out mapreduce.Emitter) error {
	return out.Emit(item.ID, item.Err.Error())
}

func (j *ExplorationValidityJob) Reduce(_ context.Context, key string, values []json.RawMessage, out mapreduce.Emitter) error {
	return passThrough(key, values, out)
}

// HintsAuditJob tabulates how many hints each state uses. Keys are hint
// counts, values are "<exploration id> <state name>".
type HintsAuditJob struct {
	deps Deps
}

func (j *HintsAuditJob) Name() string              { return "HintsAuditOneOffJob" }
func (j *HintsAuditJob) EntityKinds() []models.Kind { return explorationKinds }

func (j *HintsAuditJob) Map(_ context.Context, item models.Entity, out mapreduce.Emitter) error {
	m, err := asExploration(item)
	if m == nil || err != nil {
		return err
	}
	exp, err := domain.ExplorationFromModel(m)
	if err != nil {
		return out.Emit(loadErrorKey(err), []string{m.ID})
	}
	for _, name := range exp.StateNames() {
		n := len(exp.States[name].Interaction.Hints)
		if n == 0 {
			continue
		}
		if err := out.Emit(strconv.Itoa(n), fmt.Sprintf("%s %s", m.ID, name)); err != nil {
			return err
		}
	}
	return nil
}

func (j *HintsAuditJob) MapLoadFailure(_ context.Context, item *models.UnreadableEntity, out mapreduce.Emitter) error {
	return out.Emit(loadErrorKey(item.Err), []string{item.ID})
}

func (j *HintsAuditJob) Reduce(_ context.Context, key string, values []json.RawMessage, out mapreduce.Emitter) error {
	return passThrough(key, values, out)
}

func loadErrorKey(err error) string {
	return fmt.Sprintf("Error %s when loading exploration", err)
}

func isLoadErrorKey(key string) bool {
	return strings.HasSuffix(key, "when loading exploration")
}

// ExplorationContentValidationJobForCKEditor checks every HTML string of an
// exploration against the CKEditor structure rules.
type ExplorationContentValidationJobForCKEditor struct {
	deps Deps
}

func (j *ExplorationContentValidationJobForCKEditor) Name() string {
	return "ExplorationContentValidationJobForCKEditor"
}

func (j *ExplorationContentValidationJobForCKEditor) EntityKinds() []models.Kind {
	return explorationKinds
}

const expIDMarker = "Exp Id:"

func (j *ExplorationContentValidationJobForCKEditor) Map(_ context.Context, item models.Entity, out mapreduce.Emitter) error {
	m, err := asExploration(item)
	if m == nil || err != nil {
		return err
	}
	exp, err := domain.ExplorationFromModel(m)
	if err != nil {
		return out.Emit(loadErrorKey(err), []string{m.ID})
	}

	errs := htmlvalidation.ValidateRTEFormat(exp.AllHTMLContentStrings(), htmlvalidation.RTEFormatCKEditor)
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := out.Emit(fmt.Sprintf("%s %s %s", k, expIDMarker, m.ID), errs[k]); err != nil {
			return err
		}
	}
	return nil
}

func (j *ExplorationContentValidationJobForCKEditor) MapLoadFailure(_ context.Context, item *models.UnreadableEntity, out mapreduce.Emitter) error {
	return out.Emit(loadErrorKey(item.Err), []string{item.ID})
}

// Reduce merges the lists emitted under a key into one sorted, de-duplicated
// list. Keys carrying an exploration id are reported under the bare error
// category with the id appended to the list.
func (j *ExplorationContentValidationJobForCKEditor) Reduce(_ context.Context, key string, values []json.RawMessage, out mapreduce.Emitter) error {
	lists, err := mapreduce.DecodeValues[[]string](values)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	merged := []string{}
	for _, l := range lists {
		for _, v := range l {
			if !seen[v] {
				seen[v] = true
				merged = append(merged, v)
			}
		}
	}
	sort.Strings(merged)

	i := strings.Index(key, expIDMarker)
	if i == -1 {
		return out.Emit(key, merged)
	}
	merged = append(merged, key[i:])
	return out.Emit(strings.TrimSpace(key[:i]), merged)
}

// RTECustomizationArgsValidationJob validates the customization arguments of
// every rich-text component.
type RTECustomizationArgsValidationJob struct {
	deps Deps
}

func (j *RTECustomizationArgsValidationJob) Name() string {
	return "RTECustomizationArgsValidationOneOffJob"
}

func (j *RTECustomizationArgsValidationJob) EntityKinds() []models.Kind {
	return explorationKinds
}

// customizationArgsErrors is the map value emitted per exploration and error.
type customizationArgsErrors struct {
	ExpID      string   `json:"expId"`
	Components []string `json:"components,omitempty"`
}

func (j *RTECustomizationArgsValidationJob) Map(_ context.Context, item models.Entity, out mapreduce.Emitter) error {
	m, err := asExploration(item)
	if m == nil || err != nil {
		return err
	}
	exp, err := domain.ExplorationFromModel(m)
	if err != nil {
		return out.Emit(loadErrorKey(err), customizationArgsErrors{ExpID: m.ID})
	}

	errs := htmlvalidation.ValidateCustomizationArgs(exp.AllHTMLContentStrings())
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := out.Emit(k, customizationArgsErrors{ExpID: m.ID, Components: errs[k]}); err != nil {
			return err
		}
	}
	return nil
}

func (j *RTECustomizationArgsValidationJob) MapLoadFailure(_ context.Context, item *models.UnreadableEntity, out mapreduce.Emitter) error {
	return out.Emit(loadErrorKey(item.Err), customizationArgsErrors{ExpID: item.ID})
}

// Reduce reports load failures as a sorted list of exploration ids and
// validation failures as sorted [exploration id, component] pairs.
func (j *RTECustomizationArgsValidationJob) Reduce(_ context.Context, key string, values []json.RawMessage, out mapreduce.Emitter) error {
	entries, err := mapreduce.DecodeValues[customizationArgsErrors](values)
	if err != nil {
		return err
	}
	if isLoadErrorKey(key) {
		ids := make([]string, 0, len(entries))
		for _, e := range entries {
			ids = append(ids, e.ExpID)
		}
		sort.Strings(ids)
		return out.Emit(key, ids)
	}

	var pairs [][2]string
	for _, e := range entries {
		for _, c := range e.Components {
			pairs = append(pairs, [2]string{e.ExpID, c})
		}
	}
	sort.Slice(pairs, func(a, b int) bool {
		if pairs[a][0] != pairs[b][0] {
			return pairs[a][0] < pairs[b][0]
		}
		return pairs[a][1] < pairs[b][1]
	})
	return out.Emit(key, pairs)
}
