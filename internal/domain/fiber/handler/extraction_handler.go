package handler

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/fadilmartias/climate-tracker/internal/apperror"
	"github.com/fadilmartias/climate-tracker/internal/dto"
	"github.com/fadilmartias/climate-tracker/internal/middleware"
	"github.com/fadilmartias/climate-tracker/internal/response"
	"github.com/fadilmartias/climate-tracker/internal/usecase"
	"github.com/fadilmartias/climate-tracker/internal/util"
)

type ExtractionHandler struct {
	extractions    *usecase.ExtractionUsecase
	imports        *usecase.ImportUsecase
	maxUploadBytes int64
	submitLimit    int
	logger         *slog.Logger
}

type HandlerOptions struct {
	MaxUploadBytes  int64
	SubmitRateLimit int
	Logger          *slog.Logger
}

func NewExtractionHandler(extractions *usecase.ExtractionUsecase, imports *usecase.ImportUsecase, opts HandlerOptions) *ExtractionHandler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 * 1024 * 1024
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &ExtractionHandler{
		extractions:    extractions,
		imports:        imports,
		maxUploadBytes: opts.MaxUploadBytes,
		submitLimit:    opts.SubmitRateLimit,
		logger:         opts.Logger,
	}
}

func (h *ExtractionHandler) RegisterRoutes(app fiber.Router, auth fiber.Handler) {
	api := app.Group("/api/extractions", auth)
	api.Post("/", middleware.RateLimiter(h.submitLimit, time.Minute), h.Submit)
	api.Get("/", h.List)
	api.Get("/:id", h.Status)
	api.Post("/:id/import", h.Import)
}

// Submit accepts either a JSON body with a base64 document or a multipart
// upload with a "file" field, and answers 202 with the job id.
func (h *ExtractionHandler) Submit(c *fiber.Ctx) error {
	var (
		fileName string
		document []byte
		err      error
	)
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		fileName, document, err = h.readMultipart(c)
	} else {
		fileName, document, err = h.readJSON(c)
	}
	if err != nil {
		return util.AppErrorResponse(c, err)
	}

	job, err := h.extractions.Submit(c.UserContext(), usecase.SubmitInput{
		OwnerID:  middleware.Principal(c),
		FileName: fileName,
		Document: document,
	})
	if err != nil {
		return util.AppErrorResponse(c, err)
	}

	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Code:    fiber.StatusAccepted,
		Message: "Extraction job submitted",
		Data:    dto.SubmitExtractionResponse{JobID: job.ID, Status: job.Status},
	})
}

func (h *ExtractionHandler) readJSON(c *fiber.Ctx) (string, []byte, error) {
	var req dto.SubmitExtractionRequest
	if err := c.BodyParser(&req); err != nil {
		return "", nil, apperror.New(apperror.KindValidationFailure, "Request body must be JSON with documentBytesBase64 and fileName.", err)
	}
	encoded := strings.TrimSpace(req.DocumentBytesBase64)
	if strings.HasPrefix(encoded, "data:") {
		if i := strings.Index(encoded, ","); i >= 0 {
			encoded = encoded[i+1:]
		}
	}
	if encoded == "" {
		return "", nil, apperror.Validation("documentBytesBase64 is required.")
	}
	if int64(base64.StdEncoding.DecodedLen(len(encoded))) > h.maxUploadBytes+2 {
		return "", nil, h.tooLarge()
	}
	document, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, apperror.New(apperror.KindValidationFailure, "documentBytesBase64 is not valid base64.", err)
	}
	return req.FileName, document, nil
}

func (h *ExtractionHandler) readMultipart(c *fiber.Ctx) (string, []byte, error) {
	file, err := c.FormFile("file")
	if err != nil {
		return "", nil, apperror.New(apperror.KindValidationFailure, "file is required.", err)
	}
	if file.Size > h.maxUploadBytes {
		return "", nil, h.tooLarge()
	}
	f, err := file.Open()
	if err != nil {
		return "", nil, apperror.New(apperror.KindValidationFailure, "cannot read uploaded file.", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(f, h.maxUploadBytes+1)); err != nil {
		return "", nil, apperror.New(apperror.KindValidationFailure, "cannot read uploaded file.", err)
	}
	return file.Filename, buf.Bytes(), nil
}

func (h *ExtractionHandler) tooLarge() error {
	return apperror.Newf(apperror.KindValidationFailure, "Document is too large (max %d MB).", h.maxUploadBytes/(1024*1024))
}

func (h *ExtractionHandler) List(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("page_size", 20)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	jobs, total, err := h.extractions.List(c.UserContext(), middleware.Principal(c), page, pageSize)
	if err != nil {
		return util.AppErrorResponse(c, err)
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Message:    "Success list extraction jobs",
		Data:       dto.NewExtractionSummaries(jobs),
		Pagination: response.NewPagination(page, pageSize, total, len(jobs)),
	})
}

// Status is the polling endpoint. It is read-only; a terminal job always
// yields the same body.
func (h *ExtractionHandler) Status(c *fiber.Ctx) error {
	jobID, err := h.jobID(c)
	if err != nil {
		return util.AppErrorResponse(c, err)
	}
	job, err := h.extractions.GetStatus(c.UserContext(), middleware.Principal(c), jobID)
	if err != nil {
		return util.AppErrorResponse(c, err)
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Message: "Success get extraction status",
		Data:    dto.NewExtractionStatusResponse(job),
	})
}

func (h *ExtractionHandler) Import(c *fiber.Ctx) error {
	jobID, err := h.jobID(c)
	if err != nil {
		return util.AppErrorResponse(c, err)
	}

	var req dto.ImportExtractionRequest
	if len(bytes.TrimSpace(c.Body())) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return util.AppErrorResponse(c, apperror.New(apperror.KindValidationFailure, "Request body must be JSON.", err))
		}
	}

	in := usecase.ImportInput{
		OwnerID:          middleware.Principal(c),
		JobID:            jobID,
		StructuredResult: req.StructuredResult,
	}
	if o := req.Overrides; o != nil {
		in.Overrides = usecase.ImportOverrides{
			CommunityName:        o.CommunityName,
			AssessmentYear:       o.AssessmentYear,
			Province:             o.Province,
			AssessorName:         o.AssessorName,
			AssessorOrganization: o.AssessorOrganization,
		}
	}

	res, err := h.imports.Import(c.UserContext(), in)
	if err != nil {
		return util.AppErrorResponse(c, err)
	}
	counts := res.CreatedCounts
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Code:    fiber.StatusCreated,
		Message: fmt.Sprintf("Imported assessment with %d indicators", counts.IndicatorScores),
		Data: dto.ImportExtractionResponse{
			AssessmentID: res.AssessmentID,
			CommunityID:  res.CommunityID,
			CreatedCounts: dto.CreatedCounts{
				Communities:     counts.Communities,
				Assessments:     counts.Assessments,
				IndicatorScores: counts.IndicatorScores,
				Strengths:       counts.Strengths,
				Recommendations: counts.Recommendations,
			},
		},
	})
}

// jobID parses the path id. A malformed id is reported like an unknown one.
func (h *ExtractionHandler) jobID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, apperror.NotFound("extraction job not found")
	}
	return id, nil
}
