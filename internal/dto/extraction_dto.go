package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/fadilmartias/climate-tracker/internal/model"
)

// Envelope mirrors the API's response wrapper so clients can decode it.
type Envelope[T any] struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Category   string `json:"category,omitempty"`
	DevMessage string `json:"dev_message,omitempty"`
	Data       T      `json:"data,omitempty"`
}

type SubmitExtractionRequest struct {
	DocumentBytesBase64 string `json:"documentBytesBase64"`
	FileName            string `json:"fileName"`
}

type SubmitExtractionResponse struct {
	JobID  uuid.UUID       `json:"jobId"`
	Status model.JobStatus `json:"status"`
}

type ExtractionStatusResponse struct {
	JobID            uuid.UUID       `json:"jobId"`
	FileName         string          `json:"fileName"`
	Status           model.JobStatus `json:"status"`
	StructuredResult json.RawMessage `json:"structuredResult,omitempty"`
	ConfidenceScores json.RawMessage `json:"confidenceScores,omitempty"`
	ErrorMessage     *string         `json:"errorMessage,omitempty"`
	ElapsedMs        *int64          `json:"elapsedMs,omitempty"`
	TokensConsumed   *int64          `json:"tokensConsumed,omitempty"`
	EstimatedCostUsd *float64        `json:"estimatedCostUsd,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
}

// NewExtractionStatusResponse exposes a job to its owner. The result is only
// present once COMPLETED and the error message only once ERROR.
func NewExtractionStatusResponse(job *model.ExtractionJob) ExtractionStatusResponse {
	out := ExtractionStatusResponse{
		JobID:            job.ID,
		FileName:         job.SourceFileName,
		Status:           job.Status,
		ElapsedMs:        job.ElapsedMs,
		TokensConsumed:   job.TokensConsumed,
		EstimatedCostUsd: job.EstimatedCostUsd,
		CreatedAt:        job.CreatedAt,
		CompletedAt:      job.CompletedAt,
	}
	switch job.Status {
	case model.JobStatusCompleted:
		if job.StructuredResult != nil {
			out.StructuredResult = json.RawMessage(*job.StructuredResult)
		}
		if job.ConfidenceScores != nil {
			out.ConfidenceScores = json.RawMessage(*job.ConfidenceScores)
		}
	case model.JobStatusError:
		out.ErrorMessage = job.ErrorMessage
	}
	return out
}

type ExtractionSummary struct {
	JobID       uuid.UUID       `json:"jobId"`
	FileName    string          `json:"fileName"`
	Status      model.JobStatus `json:"status"`
	Imported    bool            `json:"imported"`
	CreatedAt   time.Time       `json:"createdAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

func NewExtractionSummaries(jobs []model.ExtractionJob) []ExtractionSummary {
	out := make([]ExtractionSummary, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, ExtractionSummary{
			JobID:       j.ID,
			FileName:    j.SourceFileName,
			Status:      j.Status,
			Imported:    j.LinkedEntityIds != nil,
			CreatedAt:   j.CreatedAt,
			CompletedAt: j.CompletedAt,
		})
	}
	return out
}

type ImportOverrides struct {
	CommunityName        *string `json:"communityName,omitempty"`
	AssessmentYear       *int    `json:"assessmentYear,omitempty"`
	Province             *string `json:"province,omitempty"`
	AssessorName         *string `json:"assessorName,omitempty"`
	AssessorOrganization *string `json:"assessorOrganization,omitempty"`
}

// ImportExtractionRequest is optional; an empty body imports the stored
// result as extracted.
type ImportExtractionRequest struct {
	StructuredResult *model.StructuredResult `json:"structuredResult,omitempty"`
	Overrides        *ImportOverrides        `json:"overrides,omitempty"`
}

type CreatedCounts struct {
	Communities     int `json:"communities"`
	Assessments     int `json:"assessments"`
	IndicatorScores int `json:"indicatorScores"`
	Strengths       int `json:"strengths"`
	Recommendations int `json:"recommendations"`
}

type ImportExtractionResponse struct {
	AssessmentID  uuid.UUID     `json:"assessmentId"`
	CommunityID   uuid.UUID     `json:"communityId"`
	CreatedCounts CreatedCounts `json:"createdCounts"`
}
