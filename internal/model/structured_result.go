package model

import "encoding/json"

// StructuredResult is the typed document the extraction engine produces
// from an assessment PDF.
type StructuredResult struct {
	Assessment      AssessmentSummary         `json:"assessment"`
	Indicators      []ExtractedIndicator      `json:"indicators"`
	Strengths       []ExtractedStrength       `json:"strengths"`
	Recommendations []ExtractedRecommendation `json:"recommendations"`

	// Passed through verbatim from the model; informational only.
	Confidence      json.RawMessage `json:"confidence,omitempty"`
	ExtractionNotes json.RawMessage `json:"extraction_notes,omitempty"`
}

type AssessmentSummary struct {
	CommunityName        string   `json:"community_name"`
	AssessmentYear       int      `json:"assessment_year"`
	AssessorName         string   `json:"assessor_name,omitempty"`
	AssessorOrganization string   `json:"assessor_organization,omitempty"`
	OverallScore         *float64 `json:"overall_score,omitempty"`
	TotalPointsEarned    *float64 `json:"total_points_earned,omitempty"`
	TotalPointsPossible  *float64 `json:"total_points_possible,omitempty"`
}

type ExtractedIndicator struct {
	IndicatorID    int     `json:"indicator_id"`
	IndicatorName  string  `json:"indicator_name"`
	PointsEarned   float64 `json:"points_earned"`
	PointsPossible float64 `json:"points_possible"`
	Percentage     float64 `json:"percentage"`
}

type ExtractedStrength struct {
	IndicatorID  int    `json:"indicator_id"`
	StrengthText string `json:"strength_text"`
	Category     string `json:"category,omitempty"`
	DisplayOrder int    `json:"display_order"`
}

type ExtractedRecommendation struct {
	IndicatorID        int    `json:"indicator_id"`
	RecommendationText string `json:"recommendation_text"`
	ResponsibleParty   string `json:"responsible_party,omitempty"`
	PriorityLevel      string `json:"priority_level,omitempty"`
	Timeframe          string `json:"timeframe,omitempty"`
	DisplayOrder       int    `json:"display_order"`
}
