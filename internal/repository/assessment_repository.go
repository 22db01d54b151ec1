package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fadilmartias/climate-tracker/internal/apperror"
	"github.com/fadilmartias/climate-tracker/internal/model"
)

type AssessmentRepository struct {
	db *gorm.DB
}

func NewAssessmentRepository(db *gorm.DB) *AssessmentRepository {
	return &AssessmentRepository{db}
}

// Import materializes a plan in one transaction: the community (found by
// exact name or created), the assessment, its children, and the link ids on
// the source job. Any failure leaves the database unchanged.
func (r *AssessmentRepository) Import(ctx context.Context, plan *model.ImportPlan) (*model.ImportOutcome, error) {
	var out model.ImportOutcome

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var community model.Community
		err := tx.Where("name = ?", plan.CommunityName).Take(&community).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			community = model.Community{Name: plan.CommunityName, Province: plan.Province}
			if err := tx.Create(&community).Error; err != nil {
				return fmt.Errorf("create community: %w", err)
			}
			out.CommunityCreated = true
		case err != nil:
			return fmt.Errorf("find community: %w", err)
		}

		year := plan.Assessment.AssessmentYear
		var existing int64
		if err := tx.Model(&model.Assessment{}).
			Where("community_id = ? AND assessment_year = ?", community.ID, year).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("check existing assessment: %w", err)
		}
		if existing > 0 {
			return duplicateAssessment(plan.CommunityName, year)
		}

		assessment := plan.Assessment
		assessment.CommunityID = community.ID
		assessment.OwnerID = plan.OwnerID
		jobID := plan.JobID
		assessment.SourceJobID = &jobID
		if err := tx.Omit(clause.Associations).Create(&assessment).Error; err != nil {
			return fmt.Errorf("create assessment: %w", err)
		}

		links := model.LinkedEntityIDs{
			CommunityID:  community.ID,
			AssessmentID: assessment.ID,
		}

		if len(plan.IndicatorScores) > 0 {
			scores := append([]model.IndicatorScore(nil), plan.IndicatorScores...)
			for i := range scores {
				scores[i].AssessmentID = assessment.ID
			}
			if err := tx.Create(&scores).Error; err != nil {
				return fmt.Errorf("create indicator scores: %w", err)
			}
			for _, s := range scores {
				links.IndicatorScoreIDs = append(links.IndicatorScoreIDs, s.ID)
			}
		}

		if len(plan.Strengths) > 0 {
			strengths := append([]model.Strength(nil), plan.Strengths...)
			for i := range strengths {
				strengths[i].AssessmentID = assessment.ID
			}
			if err := tx.Create(&strengths).Error; err != nil {
				return fmt.Errorf("create strengths: %w", err)
			}
			for _, s := range strengths {
				links.StrengthIDs = append(links.StrengthIDs, s.ID)
			}
		}

		if len(plan.Recommendations) > 0 {
			recs := append([]model.Recommendation(nil), plan.Recommendations...)
			for i := range recs {
				recs[i].AssessmentID = assessment.ID
			}
			if err := tx.Create(&recs).Error; err != nil {
				return fmt.Errorf("create recommendations: %w", err)
			}
			for _, rec := range recs {
				links.RecommendationIDs = append(links.RecommendationIDs, rec.ID)
			}
		}

		encoded, err := json.Marshal(links)
		if err != nil {
			return fmt.Errorf("encode linked ids: %w", err)
		}
		res := tx.Model(&model.ExtractionJob{}).
			Where("id = ? AND status = ? AND linked_entity_ids IS NULL", plan.JobID, model.JobStatusCompleted).
			Update("linked_entity_ids", string(encoded))
		if res.Error != nil {
			return fmt.Errorf("link job: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperror.Conflict("This extraction has already been imported.")
		}

		out.Links = links
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, duplicateAssessment(plan.CommunityName, plan.Assessment.AssessmentYear)
		}
		return nil, err
	}
	return &out, nil
}

func duplicateAssessment(community string, year int) error {
	return apperror.Newf(apperror.KindConflict,
		"An assessment for %s in %d already exists. Delete the existing assessment or choose a different year.",
		community, year)
}
