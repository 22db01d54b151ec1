package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Community struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`
	Province  string    `gorm:"type:varchar(8);not null" json:"province"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Community) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Assessment is unique per (community, year) and owns its children.
type Assessment struct {
	ID                   uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	CommunityID          uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_assessments_community_year,priority:1" json:"community_id"`
	AssessmentYear       int              `gorm:"not null;uniqueIndex:idx_assessments_community_year,priority:2" json:"assessment_year"`
	OwnerID              string           `gorm:"type:varchar(128);not null" json:"owner_id"`
	AssessorName         string           `gorm:"type:varchar(255)" json:"assessor_name"`
	AssessorOrganization string           `gorm:"type:varchar(255)" json:"assessor_organization"`
	OverallScore         float64          `gorm:"type:float" json:"overall_score"`
	TotalPointsEarned    float64          `gorm:"type:float" json:"total_points_earned"`
	TotalPointsPossible  float64          `gorm:"type:float" json:"total_points_possible"`
	SourceJobID          *uuid.UUID       `gorm:"type:uuid" json:"source_job_id"`
	Community            Community        `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	IndicatorScores      []IndicatorScore `gorm:"constraint:OnDelete:CASCADE" json:"indicator_scores,omitempty"`
	Strengths            []Strength       `gorm:"constraint:OnDelete:CASCADE" json:"strengths,omitempty"`
	Recommendations      []Recommendation `gorm:"constraint:OnDelete:CASCADE" json:"recommendations,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

func (a *Assessment) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

type IndicatorScore struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AssessmentID   uuid.UUID `gorm:"type:uuid;not null;index" json:"assessment_id"`
	IndicatorID    int       `gorm:"not null" json:"indicator_id"`
	IndicatorName  string    `gorm:"type:varchar(255);not null" json:"indicator_name"`
	Category       string    `gorm:"type:varchar(64);not null" json:"category"`
	PointsEarned   float64   `gorm:"type:float;not null" json:"points_earned"`
	PointsPossible float64   `gorm:"type:float;not null" json:"points_possible"`
	Percentage     float64   `gorm:"type:float;not null" json:"percentage"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *IndicatorScore) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

type Strength struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AssessmentID uuid.UUID `gorm:"type:uuid;not null;index" json:"assessment_id"`
	IndicatorID  int       `json:"indicator_id"`
	Text         string    `gorm:"type:text;not null" json:"text"`
	Category     string    `gorm:"type:varchar(64)" json:"category"`
	DisplayOrder int       `gorm:"not null" json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
}

func (s *Strength) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

type Recommendation struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AssessmentID     uuid.UUID `gorm:"type:uuid;not null;index" json:"assessment_id"`
	IndicatorID      int       `json:"indicator_id"`
	Text             string    `gorm:"type:text;not null" json:"text"`
	ResponsibleParty string    `gorm:"type:varchar(255)" json:"responsible_party"`
	Priority         string    `gorm:"type:varchar(8);not null" json:"priority"`
	Timeframe        string    `gorm:"type:varchar(128)" json:"timeframe"`
	DisplayOrder     int       `gorm:"not null" json:"display_order"`
	CreatedAt        time.Time `json:"created_at"`
}

func (r *Recommendation) BeforeCreate(_ *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ImportPlan is the fully validated and normalized input to a single
// import transaction.
type ImportPlan struct {
	JobID           uuid.UUID
	OwnerID         string
	CommunityName   string
	Province        string
	Assessment      Assessment
	IndicatorScores []IndicatorScore
	Strengths       []Strength
	Recommendations []Recommendation
}

// ImportOutcome reports what an import transaction created.
type ImportOutcome struct {
	CommunityCreated bool
	Links            LinkedEntityIDs
}
