// Package client talks to the extraction API: submit a document, poll the
// job until it settles, and import the result.
package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/fadilmartias/climate-tracker/internal/dto"
	"github.com/fadilmartias/climate-tracker/internal/model"
	"github.com/fadilmartias/climate-tracker/internal/response"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultWaitCeiling  = 5 * time.Minute

	// progressCap keeps the estimate short of done until COMPLETED is seen.
	progressCap   = 95
	progressScale = 60 * time.Second
)

// ErrWaitTimeout is returned when a job is still PROCESSING at the ceiling.
// The job itself keeps running server side.
var ErrWaitTimeout = errors.New("client: extraction still processing at wait ceiling")

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Category   string
	Message    string
}

func (e *APIError) Error() string {
	if e.Category != "" {
		return fmt.Sprintf("%s (%d %s)", e.Message, e.StatusCode, e.Category)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.StatusCode)
}

// Progress is reported on every poll while waiting.
type Progress struct {
	JobID   uuid.UUID
	Status  model.JobStatus
	Elapsed time.Duration
	Percent int
}

type Client struct {
	http         *resty.Client
	pollInterval time.Duration
	ceiling      time.Duration
}

type Option func(*Client)

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

func WithWaitCeiling(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.ceiling = d
		}
	}
}

func WithHTTPClient(r *resty.Client) Option {
	return func(c *Client) { c.http = r }
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		http:         resty.New(),
		pollInterval: DefaultPollInterval,
		ceiling:      DefaultWaitCeiling,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json").
		SetTimeout(2 * time.Minute)
	if token != "" {
		c.http.SetAuthToken(token)
	}
	return c
}

// Submit uploads a PDF as base64 JSON and returns the new job id.
func (c *Client) Submit(ctx context.Context, fileName string, document []byte) (*dto.SubmitExtractionResponse, error) {
	var out dto.Envelope[dto.SubmitExtractionResponse]
	err := c.do(ctx, resty.MethodPost, "/api/extractions", dto.SubmitExtractionRequest{
		DocumentBytesBase64: base64.StdEncoding.EncodeToString(document),
		FileName:            fileName,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) Status(ctx context.Context, jobID uuid.UUID) (*dto.ExtractionStatusResponse, error) {
	var out dto.Envelope[dto.ExtractionStatusResponse]
	if err := c.do(ctx, resty.MethodGet, "/api/extractions/"+jobID.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) Import(ctx context.Context, jobID uuid.UUID, req dto.ImportExtractionRequest) (*dto.ImportExtractionResponse, error) {
	var out dto.Envelope[dto.ImportExtractionResponse]
	if err := c.do(ctx, resty.MethodPost, "/api/extractions/"+jobID.String()+"/import", req, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

type listEnvelope struct {
	dto.Envelope[[]dto.ExtractionSummary]
	Pagination *response.Pagination `json:"pagination"`
}

func (c *Client) List(ctx context.Context, page, pageSize int) ([]dto.ExtractionSummary, *response.Pagination, error) {
	var out listEnvelope
	path := fmt.Sprintf("/api/extractions?page=%d&page_size=%d", page, pageSize)
	if err := c.do(ctx, resty.MethodGet, path, nil, &out); err != nil {
		return nil, nil, err
	}
	return out.Data, out.Pagination, nil
}

// Wait polls a job on a fixed interval until it leaves PROCESSING or the
// ceiling passes. onProgress may be nil.
func (c *Client) Wait(ctx context.Context, jobID uuid.UUID, onProgress func(Progress)) (*dto.ExtractionStatusResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.ceiling)
	defer cancel()

	started := time.Now()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.Status(ctx, jobID)
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrWaitTimeout
			}
			return nil, err
		}

		elapsed := time.Since(started)
		if onProgress != nil {
			p := Progress{JobID: jobID, Status: status.Status, Elapsed: elapsed, Percent: EstimateProgress(elapsed)}
			if status.Status == model.JobStatusCompleted {
				p.Percent = 100
			}
			onProgress(p)
		}
		if status.Status != model.JobStatusProcessing {
			return status, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrWaitTimeout
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// EstimateProgress guesses a percentage from wall-clock time alone. It
// approaches but never reaches progressCap.
func EstimateProgress(elapsed time.Duration) int {
	if elapsed <= 0 {
		return 0
	}
	p := progressCap * (1 - math.Exp(-float64(elapsed)/float64(progressScale)))
	return min(int(p), progressCap-1)
}

func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	var failure dto.Envelope[any]
	req := c.http.R().
		SetContext(ctx).
		SetResult(result).
		SetError(&failure)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		msg := failure.Message
		if msg == "" {
			msg = strings.TrimSpace(resp.Status())
		}
		return &APIError{StatusCode: resp.StatusCode(), Category: failure.Category, Message: msg}
	}
	return nil
}
