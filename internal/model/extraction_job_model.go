package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type JobStatus string

const (
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusError      JobStatus = "ERROR"
)

// IsTerminal reports whether status never changes again.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// DocumentTypeClimateAssessment is the only schema the extractor targets.
const DocumentTypeClimateAssessment = "CLIMATE_ASSESSMENT"

type ExtractionJob struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID          string     `gorm:"type:varchar(128);not null;index:idx_extraction_jobs_owner_created,priority:1" json:"owner_id"`
	DocumentType     string     `gorm:"type:varchar(64);not null" json:"document_type"`
	SourceFileName   string     `gorm:"type:varchar(255);not null" json:"source_file_name"`
	SourceByteSize   int64      `gorm:"not null" json:"source_byte_size"`
	SourcePath       string     `gorm:"type:text" json:"-"`
	Status           JobStatus  `gorm:"type:varchar(20);not null;index" json:"status"`
	StructuredResult *string    `gorm:"type:jsonb" json:"structured_result"`
	ConfidenceScores *string    `gorm:"type:jsonb" json:"confidence_scores"`
	ErrorMessage     *string    `gorm:"type:text" json:"error_message"`
	ErrorDetail      *string    `gorm:"type:text" json:"error_detail"`
	ModelName        *string    `gorm:"type:varchar(128)" json:"model_name"`
	ElapsedMs        *int64     `json:"elapsed_ms"`
	TokensConsumed   *int64     `json:"tokens_consumed"`
	EstimatedCostUsd *float64   `gorm:"type:float" json:"estimated_cost_usd"`
	LinkedEntityIds  *string    `gorm:"type:jsonb" json:"linked_entity_ids"`
	CreatedAt        time.Time  `gorm:"index:idx_extraction_jobs_owner_created,priority:2" json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (j *ExtractionJob) BeforeCreate(_ *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

// JobCompletion carries everything written on PROCESSING -> COMPLETED.
type JobCompletion struct {
	StructuredResult string
	ConfidenceScores *string
	ModelName        string
	ElapsedMs        int64
	TokensConsumed   int64
	EstimatedCostUsd float64
	CompletedAt      time.Time
}

// JobFailure carries everything written on PROCESSING -> ERROR. Metrics are
// optional because failures can happen before the model is called.
type JobFailure struct {
	ErrorMessage     string
	ErrorDetail      string
	ModelName        string
	ElapsedMs        int64
	TokensConsumed   *int64
	EstimatedCostUsd *float64
	CompletedAt      time.Time
}

// LinkedEntityIDs is recorded on the job after a successful import.
type LinkedEntityIDs struct {
	CommunityID       uuid.UUID   `json:"community_id"`
	AssessmentID      uuid.UUID   `json:"assessment_id"`
	IndicatorScoreIDs []uuid.UUID `json:"indicator_score_ids"`
	StrengthIDs       []uuid.UUID `json:"strength_ids"`
	RecommendationIDs []uuid.UUID `json:"recommendation_ids"`
}
