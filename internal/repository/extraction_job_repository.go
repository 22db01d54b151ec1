package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fadilmartias/climate-tracker/internal/apperror"
	"github.com/fadilmartias/climate-tracker/internal/model"
)

type ExtractionJobRepository struct {
	db *gorm.DB
}

func NewExtractionJobRepository(db *gorm.DB) *ExtractionJobRepository {
	return &ExtractionJobRepository{db}
}

func (r *ExtractionJobRepository) Create(ctx context.Context, job *model.ExtractionJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *ExtractionJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ExtractionJob, error) {
	var job model.ExtractionJob
	err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("extraction job not found")
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// FindOwned returns the job only when ownerID submitted it. A job owned by
// someone else is reported exactly like a missing one.
func (r *ExtractionJobRepository) FindOwned(ctx context.Context, id uuid.UUID, ownerID string) (*model.ExtractionJob, error) {
	var job model.ExtractionJob
	err := r.db.WithContext(ctx).First(&job, "id = ? AND owner_id = ?", id, ownerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("extraction job not found")
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListOwned returns one page of the owner's jobs, newest first, and the
// total number of jobs the owner has.
func (r *ExtractionJobRepository) ListOwned(ctx context.Context, ownerID string, page, pageSize int) ([]model.ExtractionJob, int64, error) {
	var total int64
	q := r.db.WithContext(ctx).Model(&model.ExtractionJob{}).Where("owner_id = ?", ownerID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []model.ExtractionJob
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Order("id").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&jobs).Error
	return jobs, total, err
}

// ListProcessing returns jobs that have not reached a terminal state, oldest
// first.
func (r *ExtractionJobRepository) ListProcessing(ctx context.Context) ([]model.ExtractionJob, error) {
	var jobs []model.ExtractionJob
	err := r.db.WithContext(ctx).
		Where("status = ?", model.JobStatusProcessing).
		Order("created_at").
		Find(&jobs).Error
	return jobs, err
}

// MarkCompleted performs PROCESSING -> COMPLETED. The transition is guarded in
// SQL so a terminal record is never rewritten.
func (r *ExtractionJobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, c model.JobCompletion) error {
	res := r.db.WithContext(ctx).
		Model(&model.ExtractionJob{}).
		Where("id = ? AND status = ?", id, model.JobStatusProcessing).
		Updates(map[string]any{
			"status":             model.JobStatusCompleted,
			"structured_result":  c.StructuredResult,
			"confidence_scores":  c.ConfidenceScores,
			"model_name":         c.ModelName,
			"elapsed_ms":         c.ElapsedMs,
			"tokens_consumed":    c.TokensConsumed,
			"estimated_cost_usd": c.EstimatedCostUsd,
			"completed_at":       c.CompletedAt,
		})
	return transitionResult(res, id, model.JobStatusCompleted)
}

// MarkFailed performs PROCESSING -> ERROR.
func (r *ExtractionJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, f model.JobFailure) error {
	updates := map[string]any{
		"status":             model.JobStatusError,
		"error_message":      f.ErrorMessage,
		"error_detail":       nullable(f.ErrorDetail),
		"model_name":         nullable(f.ModelName),
		"elapsed_ms":         f.ElapsedMs,
		"tokens_consumed":    f.TokensConsumed,
		"estimated_cost_usd": f.EstimatedCostUsd,
		"completed_at":       f.CompletedAt,
	}
	res := r.db.WithContext(ctx).
		Model(&model.ExtractionJob{}).
		Where("id = ? AND status = ?", id, model.JobStatusProcessing).
		Updates(updates)
	return transitionResult(res, id, model.JobStatusError)
}

func transitionResult(res *gorm.DB, id uuid.UUID, to model.JobStatus) error {
	if res.Error != nil {
		return fmt.Errorf("mark job %s %s: %w", id, to, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.Newf(apperror.KindConflict, "job %s is no longer PROCESSING", id)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
