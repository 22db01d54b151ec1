package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/fadilmartias/climate-tracker/internal/apperror"
	"github.com/fadilmartias/climate-tracker/internal/metrics"
	"github.com/fadilmartias/climate-tracker/internal/model"
	"github.com/fadilmartias/climate-tracker/internal/taxonomy"
)

// AssessmentImporter writes an import plan as a single unit.
type AssessmentImporter interface {
	Import(ctx context.Context, plan *model.ImportPlan) (*model.ImportOutcome, error)
}

type ImportUsecase struct {
	jobs     JobStore
	importer AssessmentImporter
	metrics  *metrics.ExtractionMetrics
	logger   *slog.Logger
}

func NewImportUsecase(jobs JobStore, importer AssessmentImporter, m *metrics.ExtractionMetrics, logger *slog.Logger) *ImportUsecase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportUsecase{jobs: jobs, importer: importer, metrics: m, logger: logger}
}

// ImportOverrides replace extracted summary fields before validation.
type ImportOverrides struct {
	CommunityName        *string
	AssessmentYear       *int
	Province             *string
	AssessorName         *string
	AssessorOrganization *string
}

type ImportInput struct {
	OwnerID string
	JobID   uuid.UUID
	// StructuredResult is an edited copy of the extraction. When nil the
	// job's stored result is imported.
	StructuredResult *model.StructuredResult
	Overrides        ImportOverrides
}

type CreatedCounts struct {
	Communities     int
	Assessments     int
	IndicatorScores int
	Strengths       int
	Recommendations int
}

type ImportResult struct {
	AssessmentID  uuid.UUID
	CommunityID   uuid.UUID
	CreatedCounts CreatedCounts
	Links         model.LinkedEntityIDs
}

const (
	minAssessmentYear = 1900
	maxAssessmentYear = 2200
)

// Import validates a COMPLETED job's result, normalizes it into the
// taxonomy and creates the community, assessment and children.
func (uc *ImportUsecase) Import(ctx context.Context, in ImportInput) (*ImportResult, error) {
	res, err := uc.importJob(ctx, in)
	uc.metrics.ImportFinished(importOutcomeLabel(err))
	if err != nil {
		uc.logger.Warn("import failed", "job_id", in.JobID, "owner", in.OwnerID, "category", apperror.KindOf(err), "error", err)
		return nil, err
	}
	uc.logger.Info("import completed",
		"job_id", in.JobID,
		"assessment_id", res.AssessmentID,
		"indicators", res.CreatedCounts.IndicatorScores,
		"strengths", res.CreatedCounts.Strengths,
		"recommendations", res.CreatedCounts.Recommendations,
	)
	return res, nil
}

func (uc *ImportUsecase) importJob(ctx context.Context, in ImportInput) (*ImportResult, error) {
	if in.OwnerID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}
	job, err := uc.jobs.FindOwned(ctx, in.JobID, in.OwnerID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted {
		return nil, apperror.Newf(apperror.KindValidationFailure,
			"Only completed extractions can be imported; this job is %s.", job.Status)
	}
	if job.LinkedEntityIds != nil {
		return nil, apperror.Conflict("This extraction has already been imported.")
	}

	result := in.StructuredResult
	if result == nil {
		if job.StructuredResult == nil {
			return nil, apperror.Validation("The extraction has no structured result.")
		}
		result = &model.StructuredResult{}
		if err := json.Unmarshal([]byte(*job.StructuredResult), result); err != nil {
			return nil, apperror.New(apperror.KindValidationFailure, "The stored extraction result is not valid JSON.", err)
		}
	}

	plan, err := BuildImportPlan(job, result, in.Overrides)
	if err != nil {
		return nil, err
	}

	outcome, err := uc.importer.Import(ctx, plan)
	if err != nil {
		return nil, err
	}

	counts := CreatedCounts{
		Assessments:     1,
		IndicatorScores: len(outcome.Links.IndicatorScoreIDs),
		Strengths:       len(outcome.Links.StrengthIDs),
		Recommendations: len(outcome.Links.RecommendationIDs),
	}
	if outcome.CommunityCreated {
		counts.Communities = 1
	}
	return &ImportResult{
		AssessmentID:  outcome.Links.AssessmentID,
		CommunityID:   outcome.Links.CommunityID,
		CreatedCounts: counts,
		Links:         outcome.Links,
	}, nil
}

// BuildImportPlan applies overrides, validates the result and maps it onto
// the relational entities. It touches no storage.
func BuildImportPlan(job *model.ExtractionJob, result *model.StructuredResult, o ImportOverrides) (*model.ImportPlan, error) {
	summary := result.Assessment
	if o.CommunityName != nil {
		summary.CommunityName = *o.CommunityName
	}
	if o.AssessmentYear != nil {
		summary.AssessmentYear = *o.AssessmentYear
	}
	if o.AssessorName != nil {
		summary.AssessorName = *o.AssessorName
	}
	if o.AssessorOrganization != nil {
		summary.AssessorOrganization = *o.AssessorOrganization
	}

	name := strings.TrimSpace(summary.CommunityName)
	if name == "" {
		return nil, apperror.Validation("Community name is required.")
	}
	if summary.AssessmentYear < minAssessmentYear || summary.AssessmentYear > maxAssessmentYear {
		return nil, apperror.Newf(apperror.KindValidationFailure,
			"Assessment year %d is outside %d-%d.", summary.AssessmentYear, minAssessmentYear, maxAssessmentYear)
	}

	province := taxonomy.InferProvince(name)
	if o.Province != nil && strings.TrimSpace(*o.Province) != "" {
		province = strings.ToUpper(strings.TrimSpace(*o.Province))
	}

	plan := &model.ImportPlan{
		JobID:         job.ID,
		OwnerID:       job.OwnerID,
		CommunityName: name,
		Province:      province,
		Assessment: model.Assessment{
			AssessmentYear:       summary.AssessmentYear,
			AssessorName:         strings.TrimSpace(summary.AssessorName),
			AssessorOrganization: strings.TrimSpace(summary.AssessorOrganization),
		},
	}

	var earned, possible float64
	for _, ind := range result.Indicators {
		if ind.PointsPossible <= 0 {
			return nil, apperror.Newf(apperror.KindValidationFailure,
				"Indicator %d has no points possible.", ind.IndicatorID)
		}
		if ind.PointsEarned < 0 || ind.PointsEarned > ind.PointsPossible {
			return nil, apperror.Newf(apperror.KindValidationFailure,
				"Indicator %d scores %g of %g points.", ind.IndicatorID, ind.PointsEarned, ind.PointsPossible)
		}
		earned += ind.PointsEarned
		possible += ind.PointsPossible
		plan.IndicatorScores = append(plan.IndicatorScores, model.IndicatorScore{
			IndicatorID:    ind.IndicatorID,
			IndicatorName:  indicatorName(ind),
			Category:       string(taxonomy.CategoryForIndicator(ind.IndicatorID)),
			PointsEarned:   ind.PointsEarned,
			PointsPossible: ind.PointsPossible,
			Percentage:     taxonomy.Percentage(ind.PointsEarned, ind.PointsPossible),
		})
	}

	if len(plan.IndicatorScores) > 0 {
		plan.Assessment.TotalPointsEarned = earned
		plan.Assessment.TotalPointsPossible = possible
		plan.Assessment.OverallScore = taxonomy.Percentage(earned, possible)
	} else {
		if summary.TotalPointsEarned != nil {
			plan.Assessment.TotalPointsEarned = *summary.TotalPointsEarned
		}
		if summary.TotalPointsPossible != nil {
			plan.Assessment.TotalPointsPossible = *summary.TotalPointsPossible
		}
		if summary.OverallScore != nil {
			plan.Assessment.OverallScore = *summary.OverallScore
		}
	}

	for i, s := range result.Strengths {
		text := strings.TrimSpace(s.StrengthText)
		if text == "" {
			return nil, apperror.Newf(apperror.KindValidationFailure, "Strength %d has no text.", i+1)
		}
		plan.Strengths = append(plan.Strengths, model.Strength{
			IndicatorID:  s.IndicatorID,
			Text:         text,
			Category:     string(taxonomy.CategoryForIndicator(s.IndicatorID)),
			DisplayOrder: displayOrder(s.DisplayOrder, i),
		})
	}

	for i, r := range result.Recommendations {
		text := strings.TrimSpace(r.RecommendationText)
		if text == "" {
			return nil, apperror.Newf(apperror.KindValidationFailure, "Recommendation %d has no text.", i+1)
		}
		plan.Recommendations = append(plan.Recommendations, model.Recommendation{
			IndicatorID:      r.IndicatorID,
			Text:             text,
			ResponsibleParty: strings.TrimSpace(r.ResponsibleParty),
			Priority:         string(taxonomy.NormalizePriority(r.PriorityLevel)),
			Timeframe:        strings.TrimSpace(r.Timeframe),
			DisplayOrder:     displayOrder(r.DisplayOrder, i),
		})
	}

	return plan, nil
}

func indicatorName(ind model.ExtractedIndicator) string {
	if name := strings.TrimSpace(ind.IndicatorName); name != "" {
		return name
	}
	return fmt.Sprintf("Indicator %d", ind.IndicatorID)
}

func displayOrder(given, index int) int {
	if given > 0 {
		return given
	}
	return index + 1
}

func importOutcomeLabel(err error) string {
	if err == nil {
		return "created"
	}
	switch apperror.KindOf(err) {
	case apperror.KindConflict:
		return "conflict"
	case apperror.KindValidationFailure:
		return "invalid"
	case apperror.KindNotFound:
		return "not_found"
	default:
		return "error"
	}
}
