package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Lllllllleong/explorationjobs/internal/domain"
	"github.com/Lllllllleong/explorationjobs/internal/htmlvalidation"
	"github.com/Lllllllleong/explorationjobs/internal/mapreduce"
	"github.com/Lllllllleong/explorationjobs/internal/models"
	"github.com/Lllllllleong/explorationjobs/internal/store"
)

const (
	keyFoundInvalidTags    = "Found invalid tags"
	keyOverallResult       = "Overall result."
	keyDetailedInfo        = "Detailed information on invalid tags."
	keyExplorationWithMath = "exploration-with-math-tags"
	keyValidationError     = "validation_error"
	keyModelDeleted        = "model_deleted"
)

// invalidTagsInState describes the invalid math components of one state.
type invalidTagsInState struct {
	StateName       string   `json:"state_name"`
	ErrorList       []string `json:"error_list"`
	NoOfInvalidTags int      `json:"no_of_invalid_tags,omitempty"`
}

type invalidTagsInExploration struct {
	ExpID  string               `json:"exp_id"`
	States []invalidTagsInState `json:"states"`
}

// ExplorationMathSvgFilenameValidationJob checks that every math component
// refers to an SVG image that exists.
type ExplorationMathSvgFilenameValidationJob struct {
	deps Deps
}

func (j *ExplorationMathSvgFilenameValidationJob) Name() string {
	return "ExplorationMathSvgFilenameValidationOneOffJob"
}

func (j *ExplorationMathSvgFilenameValidationJob) EntityKinds() []models.Kind {
	return explorationKinds
}

func (j *ExplorationMathSvgFilenameValidationJob) Map(ctx context.Context, item models.Entity, out mapreduce.Emitter) error {
	m, err := asExploration(item)
	if m == nil || err != nil {
		return err
	}
	exp, err := domain.ExplorationFromModel(m)
	if err != nil {
		return out.Emit(loadErrorKey(err), []string{m.ID})
	}

	var invalid []invalidTagsInState
	for _, name := range exp.StateNames() {
		h := strings.Join(exp.States[name].AllHTMLContentStrings(), "")
		errs, err := htmlvalidation.ValidateSVGFilenamesInMathRichText(ctx, j.deps.Assets, htmlvalidation.EntityTypeExploration, m.ID, h)
		if err != nil {
			return err
		}
		if len(errs) > 0 {
			invalid = append(invalid, invalidTagsInState{StateName: name, ErrorList: errs, NoOfInvalidTags: len(errs)})
		}
	}
	if len(invalid) == 0 {
		return nil
	}
	return out.Emit(keyFoundInvalidTags, invalidTagsInExploration{ExpID: m.ID, States: invalid})
}

func (j *ExplorationMathSvgFilenameValidationJob) MapLoadFailure(_ context.Context, item *models.UnreadableEntity, out mapreduce.Emitter) error {
	return out.Emit(loadErrorKey(item.Err), []string{item.ID})
}

// Reduce summarizes all explorations with invalid tags into an overall count
// and a per-exploration breakdown.
func (j *ExplorationMathSvgFilenameValidationJob) Reduce(_ context.Context, key string, values []json.RawMessage, out mapreduce.Emitter) error {
	if key != keyFoundInvalidTags {
		return passThrough(key, values, out)
	}
	entries, err := mapreduce.DecodeValues[invalidTagsInExploration](values)
	if err != nil {
		return err
	}

	total := 0
	detailed := map[string][]invalidTagsInState{}
	for _, e := range entries {
		for _, s := range e.States {
			total += s.NoOfInvalidTags
			s.NoOfInvalidTags = 0
			detailed[e.ExpID] = append(detailed[e.ExpID], s)
		}
	}

	overall := map[string]int{
		"no_of_explorations_with_no_svgs": len(entries),
		"no_of_invalid_tags":              total,
	}
	if err := out.Emit(keyOverallResult, overall); err != nil {
		return err
	}
	return out.Emit(keyDetailedInfo, detailed)
}

// ExplorationMockMathMigrationJob converts the math components of every
// state to the math_content form and validates the result, without saving.
type ExplorationMockMathMigrationJob struct {
	deps Deps
}

func (j *ExplorationMockMathMigrationJob) Name() string {
	return "ExplorationMockMathMigrationOneOffJob"
}

func (j *ExplorationMockMathMigrationJob) EntityKinds() []models.Kind {
	return explorationKinds
}

func (j *ExplorationMockMathMigrationJob) Map(ctx context.Context, item models.Entity, out mapreduce.Emitter) error {
	m, err := asExploration(item)
	if m == nil || err != nil {
		return err
	}
	exp, err := domain.ExplorationFromModel(m)
	if err != nil {
		return out.Emit(loadErrorKey(err), []string{m.ID})
	}
	rights, err := j.deps.Rights.GetExplorationRights(ctx, m.ID)
	if errors.Is(err, store.ErrNotFound) {
		return out.Emit(keyRightsNotFound, []string{m.ID})
	}
	if err != nil {
		return fmt.Errorf("failed to get rights for exploration %s: %w", m.ID, err)
	}

	key := fmt.Sprintf("exp_id: %s, exp_status: %s failed validation after migration", m.ID, rights.Status)
	for _, name := range exp.StateNames() {
		h := strings.Join(exp.States[name].AllHTMLContentStrings(), "")
		var errs []string
		converted, err := htmlvalidation.AddMathContentToMathRTEComponents(h)
		if err != nil {
			errs = []string{err.Error()}
		} else {
			errs = htmlvalidation.ValidateMathTagsInHTMLWithAttributeMathContent(converted)
		}
		if len(errs) == 0 {
			continue
		}
		v := invalidTagsInState{StateName: name, ErrorList: errs, NoOfInvalidTags: len(errs)}
		if err := out.Emit(key, v); err != nil {
			return err
		}
	}
	return nil
}

func (j *ExplorationMockMathMigrationJob) MapLoadFailure(_ context.Context, item *models.UnreadableEntity, out mapreduce.Emitter) error {
	return out.Emit(loadErrorKey(item.Err), []string{item.ID})
}

func (j *ExplorationMockMathMigrationJob) Reduce(_ context.Context, key string, values []json.RawMessage, out mapreduce.Emitter) error {
	return passThrough(key, values, out)
}

// ExplorationMathRichTextInfoModelGenerationJob finds every exploration with
// math components that still lack SVGs and stores a temporary info model for
// each, so the images can be generated in batches.
type ExplorationMathRichTextInfoModelGenerationJob struct {
	deps Deps
}

func (j *ExplorationMathRichTextInfoModelGenerationJob) Name() string {
	return "ExplorationMathRichTextInfoModelGenerationOneOffJob"
}

func (j *ExplorationMathRichTextInfoModelGenerationJob) EntityKinds() []models.Kind {
	return explorationKinds
}

type latexWithoutSVG struct {
	ExpID        string   `json:"exp_id"`
	LatexStrings []string `json:"latex_strings"`
}

func (j *ExplorationMathRichTextInfoModelGenerationJob) Map(_ context.Context, item models.Entity, out mapreduce.Emitter) error {
	m, err := asExploration(item)
	if m == nil || err != nil {
		return err
	}
	exp, err := domain.ExplorationFromModel(m)
	if err == nil {
		err = exp.Validate(false)
	}
	if err != nil {
		msg := fmt.Sprintf("Exploration %s failed non-strict validation: %v", m.ID, err)
		j.deps.logger().Error(msg, "explorationId", m.ID)
		return out.Emit(keyValidationError, msg)
	}

	latex := htmlvalidation.GetLatexStringsWithoutSVGFromHTML(strings.Join(exp.AllHTMLContentStrings(), ""))
	if len(latex) == 0 {
		return nil
	}
	return out.Emit(keyExplorationWithMath, latexWithoutSVG{ExpID: m.ID, LatexStrings: latex})
}

// mathGenerationSummary is the aggregate reported for explorations with math.
type mathGenerationSummary struct {
	EstimatedNoOfBatches           int    `json:"estimated_no_of_batches"`
	LongestRawLatexString          string `json:"longest_raw_latex_string"`
	NumberOfExplorationsHavingMath int    `json:"number_of_explorations_having_math"`
	TotalNumberOfSVGsRequired      int    `json:"total_number_of_svgs_required"`
}

func (j *ExplorationMathRichTextInfoModelGenerationJob) MapLoadFailure(_ context.Context, item *models.UnreadableEntity, out mapreduce.Emitter) error {
	msg := fmt.Sprintf("Exploration %s failed non-strict validation: %v", item.ID, item.Err)
	j.deps.logger().Error(msg, "explorationId", item.ID)
	return out.Emit(keyValidationError, msg)
}

func (j *ExplorationMathRichTextInfoModelGenerationJob) Reduce(ctx context.Context, key string, values []json.RawMessage, out mapreduce.Emitter) error {
	if key != keyExplorationWithMath {
		return passThrough(key, values, out)
	}
	entries, err := mapreduce.DecodeValues[latexWithoutSVG](values)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(a, b int) bool { return entries[a].ExpID < entries[b].ExpID })

	summary := mathGenerationSummary{EstimatedNoOfBatches: 1, NumberOfExplorationsHavingMath: len(entries)}
	batchBytes := 0
	infos := make([]*models.ExplorationMathRichTextInfoModel, 0, len(entries))
	for _, e := range entries {
		info, err := domain.NewMathRichTextInfo(e.ExpID, true, e.LatexStrings)
		if err != nil {
			return err
		}
		size := info.SVGSizeInBytes()
		infos = append(infos, &models.ExplorationMathRichTextInfoModel{
			ID:                              e.ExpID,
			MathImagesGenerationRequired:    true,
			LatexStringsWithoutSVG:          e.LatexStrings,
			EstimatedMaxSizeOfImagesInBytes: size,
		})

		summary.TotalNumberOfSVGsRequired += len(e.LatexStrings)
		if l := info.LongestLatexExpression(); len(l) > len(summary.LongestRawLatexString) {
			summary.LongestRawLatexString = l
		}
		batchBytes += size
		if batchBytes > domain.MaxSizeOfMathSVGsBatchBytes {
			batchBytes = 0
			summary.EstimatedNoOfBatches++
		}
	}

	if err := j.deps.MathInfo.SaveMathRichTextInfos(ctx, infos); err != nil {
		return fmt.Errorf("failed to save math rich-text info models: %w", err)
	}
	return out.Emit(key, summary)
}

// ExplorationMathRichTextInfoModelDeletionJob deletes every temporary math
// rich-text info model.
type ExplorationMathRichTextInfoModelDeletionJob struct {
	deps Deps
}

func (j *ExplorationMathRichTextInfoModelDeletionJob) Name() string {
	return "ExplorationMathRichTextInfoModelDeletionOneOffJob"
}

func (j *ExplorationMathRichTextInfoModelDeletionJob) EntityKinds() []models.Kind {
	return []models.Kind{models.KindExplorationMathRichTextInfo}
}

func (j *ExplorationMathRichTextInfoModelDeletionJob) Map(ctx context.Context, item models.Entity, out mapreduce.Emitter) error {
	if err := j.deps.MathInfo.DeleteMathRichTextInfo(ctx, item.EntityID()); err != nil {
		return fmt.Errorf("failed to delete math rich-text info %s: %w", item.EntityID(), err)
	}
	return out.Emit(keyModelDeleted, 1)
}

// MapLoadFailure deletes info models that no longer decode, since only their
// id is needed.
func (j *ExplorationMathRichTextInfoModelDeletionJob) MapLoadFailure(ctx context.Context, item *models.UnreadableEntity, out mapreduce.Emitter) error {
	return j.Map(ctx, item, out)
}

func (j *ExplorationMathRichTextInfoModelDeletionJob) Reduce(_ context.Context, key string, values []json.RawMessage, out mapreduce.Emitter) error {
	counts, err := mapreduce.DecodeValues[int](values)
	if err != nil {
		return err
	}
	deleted := 0
	for _, c := range counts {
		deleted += c
	}
	return out.Emit(key, []string{fmt.Sprintf("%d models successfully deleted.", deleted)})
}
