package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fadilmartias/climate-tracker/internal/apperror"
	"github.com/fadilmartias/climate-tracker/internal/extraction"
	"github.com/fadilmartias/climate-tracker/internal/metrics"
	"github.com/fadilmartias/climate-tracker/internal/model"
	"github.com/fadilmartias/climate-tracker/internal/service"
	"github.com/fadilmartias/climate-tracker/internal/storage"
	"github.com/fadilmartias/climate-tracker/internal/worker"
)

// JobStore persists extraction jobs.
type JobStore interface {
	Create(ctx context.Context, job *model.ExtractionJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ExtractionJob, error)
	FindOwned(ctx context.Context, id uuid.UUID, ownerID string) (*model.ExtractionJob, error)
	ListOwned(ctx context.Context, ownerID string, page, pageSize int) ([]model.ExtractionJob, int64, error)
	ListProcessing(ctx context.Context) ([]model.ExtractionJob, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, c model.JobCompletion) error
	MarkFailed(ctx context.Context, id uuid.UUID, f model.JobFailure) error
}

// StructuredExtractor turns document text into a structured result.
type StructuredExtractor interface {
	Extract(ctx context.Context, text string) (*extraction.Outcome, error)
}

const recordTimeout = 15 * time.Second

type ExtractionUsecase struct {
	jobs       JobStore
	store      storage.DocumentStore
	dispatcher worker.Dispatcher
	text       service.PDFTextServiceInterface
	engine     StructuredExtractor
	metrics    *metrics.ExtractionMetrics
	jobTimeout time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

type ExtractionDeps struct {
	Jobs       JobStore
	Store      storage.DocumentStore
	Dispatcher worker.Dispatcher
	Text       service.PDFTextServiceInterface
	Engine     StructuredExtractor
	Metrics    *metrics.ExtractionMetrics
	JobTimeout time.Duration
	Logger     *slog.Logger
}

func NewExtractionUsecase(d ExtractionDeps) *ExtractionUsecase {
	if d.JobTimeout <= 0 {
		d.JobTimeout = 5 * time.Minute
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &ExtractionUsecase{
		jobs:       d.Jobs,
		store:      d.Store,
		dispatcher: d.Dispatcher,
		text:       d.Text,
		engine:     d.Engine,
		metrics:    d.Metrics,
		jobTimeout: d.JobTimeout,
		logger:     d.Logger,
		now:        time.Now,
	}
}

type SubmitInput struct {
	OwnerID  string
	FileName string
	Document []byte
}

// Submit records a PROCESSING job, stores the document and hands the job to
// the executor. It returns as soon as the job is queued.
func (uc *ExtractionUsecase) Submit(ctx context.Context, in SubmitInput) (*model.ExtractionJob, error) {
	if in.OwnerID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}
	if len(in.Document) == 0 {
		return nil, apperror.Validation("document is empty")
	}
	fileName := strings.TrimSpace(in.FileName)
	if fileName == "" {
		return nil, apperror.Validation("fileName is required")
	}

	id := uuid.New()
	path, err := uc.store.Save(id, in.Document)
	if err != nil {
		return nil, apperror.New(apperror.KindInternal, "Could not store the uploaded document.", err)
	}

	job := &model.ExtractionJob{
		ID:             id,
		OwnerID:        in.OwnerID,
		DocumentType:   model.DocumentTypeClimateAssessment,
		SourceFileName: fileName,
		SourceByteSize: int64(len(in.Document)),
		SourcePath:     path,
		Status:         model.JobStatusProcessing,
	}
	if err := uc.jobs.Create(ctx, job); err != nil {
		if rmErr := uc.store.Remove(path); rmErr != nil {
			uc.logger.Warn("remove orphaned upload", "path", path, "error", rmErr)
		}
		return nil, fmt.Errorf("create extraction job: %w", err)
	}
	uc.metrics.JobSubmitted()

	if err := uc.dispatcher.Dispatch(ctx, job.ID); err != nil {
		unavailable := apperror.New(apperror.KindUnavailable,
			"The extraction service is busy. Please submit the document again later.", err)
		uc.fail(ctx, job, uc.now(), nil, unavailable)
		return nil, unavailable
	}

	uc.logger.Info("extraction job submitted",
		"job_id", job.ID,
		"owner", job.OwnerID,
		"file_name", job.SourceFileName,
		"bytes", job.SourceByteSize,
	)
	return job, nil
}

// ProcessJob runs a PROCESSING job to a terminal state. Every failure,
// panics included, ends in ERROR; nothing is returned to the executor.
// Deliveries for jobs that are already terminal are ignored.
func (uc *ExtractionUsecase) ProcessJob(ctx context.Context, jobID uuid.UUID) {
	started := uc.now()
	job, err := uc.jobs.FindByID(ctx, jobID)
	if err != nil {
		uc.logger.Error("load extraction job", "job_id", jobID, "error", err)
		return
	}
	if job.Status != model.JobStatusProcessing {
		uc.logger.Info("skipping job that is already terminal", "job_id", jobID, "status", job.Status)
		return
	}

	uc.metrics.StartJob(started.Sub(job.CreatedAt))
	defer uc.metrics.EndJob()
	uc.logger.Info("extraction started", "job_id", job.ID, "file_name", job.SourceFileName)

	outcome, err := uc.execute(ctx, job)
	if err != nil {
		uc.fail(ctx, job, started, outcome, err)
		return
	}
	uc.complete(ctx, job, started, outcome)
}

func (uc *ExtractionUsecase) execute(ctx context.Context, job *model.ExtractionJob) (outcome *extraction.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			uc.logger.Error("extraction panicked", "job_id", job.ID, "panic", r, "stack", string(debug.Stack()))
			err = apperror.New(apperror.KindInternal, "The extraction failed unexpectedly.", fmt.Errorf("panic: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, uc.jobTimeout)
	defer cancel()

	payload, err := uc.store.Load(job.SourcePath)
	if err != nil {
		return nil, apperror.New(apperror.KindInternal, "The uploaded document is no longer available.", err)
	}

	text, err := uc.text.ExtractText(ctx, payload)
	if err != nil {
		return nil, timeoutAware(err)
	}

	outcome, err = uc.engine.Extract(ctx, text)
	if err != nil {
		return outcome, timeoutAware(err)
	}
	return outcome, nil
}

// timeoutAware reports an expired job deadline that surfaced as a bare
// context error as a model invocation failure.
func timeoutAware(err error) error {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) && errors.Is(err, context.DeadlineExceeded) {
		return apperror.New(apperror.KindModelInvocationFailure,
			"The extraction did not finish within the time limit.", err)
	}
	return err
}

func (uc *ExtractionUsecase) complete(ctx context.Context, job *model.ExtractionJob, started time.Time, outcome *extraction.Outcome) {
	finished := uc.now()
	elapsed := finished.Sub(started)
	completion := model.JobCompletion{
		StructuredResult: outcome.ResultJSON,
		ConfidenceScores: outcome.ConfidenceJSON,
		ModelName:        outcome.Model,
		ElapsedMs:        elapsed.Milliseconds(),
		TokensConsumed:   outcome.Usage.Total(),
		EstimatedCostUsd: outcome.CostUSD,
		CompletedAt:      finished,
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := uc.jobs.MarkCompleted(recordCtx, job.ID, completion); err != nil {
		if apperror.KindOf(err) == apperror.KindConflict {
			uc.logger.Warn("job finished elsewhere, dropping result", "job_id", job.ID)
			return
		}
		uc.fail(ctx, job, started, outcome,
			apperror.New(apperror.KindInternal, "The extracted result could not be saved.", err))
		return
	}

	uc.metrics.ObserveUsage(outcome.Model, outcome.Usage.InputTokens, outcome.Usage.OutputTokens, outcome.CostUSD)
	uc.metrics.FinishJob(string(model.JobStatusCompleted), "", elapsed)
	uc.logger.Info("extraction completed",
		"job_id", job.ID,
		"status", model.JobStatusCompleted,
		"elapsed_ms", completion.ElapsedMs,
		"tokens", completion.TokensConsumed,
		"cost_usd", completion.EstimatedCostUsd,
		"community", outcome.Result.Assessment.CommunityName,
		"indicators", len(outcome.Result.Indicators),
	)
}

// fail records PROCESSING -> ERROR. A failure to record is logged and
// swallowed; there is no one left to report it to.
func (uc *ExtractionUsecase) fail(ctx context.Context, job *model.ExtractionJob, started time.Time, outcome *extraction.Outcome, cause error) {
	finished := uc.now()
	elapsed := finished.Sub(started)
	appErr := apperror.From(cause)

	message := appErr.Message
	if appErr.Kind == apperror.KindInternal && message == "internal error" {
		message = "The extraction failed unexpectedly."
	}
	detail := appErr.Detail
	if detail == "" && appErr.Cause != nil {
		detail = appErr.Cause.Error()
	}

	failure := model.JobFailure{
		ErrorMessage: message,
		ErrorDetail:  detail,
		ElapsedMs:    elapsed.Milliseconds(),
		CompletedAt:  finished,
	}
	if outcome != nil {
		tokens := outcome.Usage.Total()
		cost := outcome.CostUSD
		failure.ModelName = outcome.Model
		failure.TokensConsumed = &tokens
		failure.EstimatedCostUsd = &cost
		uc.metrics.ObserveUsage(outcome.Model, outcome.Usage.InputTokens, outcome.Usage.OutputTokens, outcome.CostUSD)
	}

	uc.logger.Warn("extraction failed",
		"job_id", job.ID,
		"status", model.JobStatusError,
		"category", appErr.Kind,
		"elapsed_ms", failure.ElapsedMs,
		"error", cause,
	)

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := uc.jobs.MarkFailed(recordCtx, job.ID, failure); err != nil {
		if apperror.KindOf(err) == apperror.KindConflict {
			uc.logger.Warn("job finished elsewhere, dropping failure", "job_id", job.ID)
			return
		}
		uc.logger.Error("record extraction failure", "job_id", job.ID, "error", err)
		return
	}
	if appErr.Kind != apperror.KindUnavailable {
		uc.metrics.FinishJob(string(model.JobStatusError), string(appErr.Kind), elapsed)
	}
}

// GetStatus returns the caller's job. Jobs owned by someone else are
// reported as not found.
func (uc *ExtractionUsecase) GetStatus(ctx context.Context, ownerID string, jobID uuid.UUID) (*model.ExtractionJob, error) {
	if ownerID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}
	return uc.jobs.FindOwned(ctx, jobID, ownerID)
}

func (uc *ExtractionUsecase) List(ctx context.Context, ownerID string, page, pageSize int) ([]model.ExtractionJob, int64, error) {
	if ownerID == "" {
		return nil, 0, apperror.Unauthorized("authentication required")
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return uc.jobs.ListOwned(ctx, ownerID, page, pageSize)
}

// ResumePending re-dispatches jobs left PROCESSING by a previous process,
// for example after a crash. It returns how many were queued.
func (uc *ExtractionUsecase) ResumePending(ctx context.Context) (int, error) {
	pending, err := uc.jobs.ListProcessing(ctx)
	if err != nil {
		return 0, fmt.Errorf("list processing jobs: %w", err)
	}
	queued := 0
	for _, job := range pending {
		if err := uc.dispatcher.Dispatch(ctx, job.ID); err != nil {
			uc.logger.Warn("resume extraction job", "job_id", job.ID, "error", err)
			continue
		}
		queued++
	}
	if queued > 0 {
		uc.logger.Info("resumed pending extraction jobs", "count", queued)
	}
	return queued, nil
}
