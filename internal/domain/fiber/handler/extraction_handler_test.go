package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fadilmartias/climate-tracker/internal/config"
	"github.com/fadilmartias/climate-tracker/internal/database"
	"github.com/fadilmartias/climate-tracker/internal/dto"
	"github.com/fadilmartias/climate-tracker/internal/extraction"
	"github.com/fadilmartias/climate-tracker/internal/middleware"
	"github.com/fadilmartias/climate-tracker/internal/repository"
	"github.com/fadilmartias/climate-tracker/internal/response"
	"github.com/fadilmartias/climate-tracker/internal/service"
	"github.com/fadilmartias/climate-tracker/internal/storage"
	"github.com/fadilmartias/climate-tracker/internal/usecase"
	"github.com/fadilmartias/climate-tracker/internal/util"
)

type cannedGenerator struct{ response string }

func (g *cannedGenerator) StreamGenerate(_ context.Context, _ extraction.GenerateRequest, onChunk func(string)) (extraction.Usage, error) {
	onChunk(g.response)
	return extraction.Usage{InputTokens: 1000, OutputTokens: 200}, nil
}

type queuedJobs struct{ ids []uuid.UUID }

func (q *queuedJobs) Dispatch(_ context.Context, id uuid.UUID) error {
	q.ids = append(q.ids, id)
	return nil
}

type textPage struct{ text string }

func (p textPage) NumPage() int             { return 1 }
func (p textPage) Text(int) (string, error) { return p.text, nil }
func (p textPage) Close() error             { return nil }

var calgaryPDF = []byte("%PDF-1.7\n" + strings.Repeat("Calgary climate assessment 2023 indicator table. ", 5))

type apiHarness struct {
	app         *fiber.App
	queue       *queuedJobs
	extractions *usecase.ExtractionUsecase
}

func newHarness(t *testing.T) *apiHarness {
	t.Helper()
	dir := t.TempDir()

	db, err := database.Open(&config.DBConfig{Driver: config.DBDriverSQLite, Path: filepath.Join(dir, "api.db")}, false)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	fixture, err := os.ReadFile(filepath.Join("testdata", "calgary_2023.json"))
	require.NoError(t, err)
	prompt := filepath.Join(dir, "prompt.md")
	require.NoError(t, os.WriteFile(prompt, []byte("Extract."), 0o600))
	engine, err := extraction.NewEngine(&cannedGenerator{response: string(fixture)},
		extraction.Config{Model: "gemini-2.5-flash", PromptPath: prompt}, nil)
	require.NoError(t, err)

	store, err := storage.NewLocalStore(filepath.Join(dir, "uploads"))
	require.NoError(t, err)

	opener := func(data []byte) (service.PageSource, error) {
		_, body, _ := strings.Cut(string(data), "\n")
		return textPage{text: body}, nil
	}

	jobs := repository.NewExtractionJobRepository(db)
	queue := &queuedJobs{}
	extractions := usecase.NewExtractionUsecase(usecase.ExtractionDeps{
		Jobs:       jobs,
		Store:      store,
		Dispatcher: queue,
		Text:       service.NewPDFTextService(opener, 100, nil),
		Engine:     engine,
	})
	imports := usecase.NewImportUsecase(jobs, repository.NewAssessmentRepository(db), nil, nil)

	app := fiber.New(fiber.Config{ErrorHandler: util.FiberErrorHandler})
	h := NewExtractionHandler(extractions, imports, HandlerOptions{MaxUploadBytes: 1024 * 1024, SubmitRateLimit: 100})
	h.RegisterRoutes(app, middleware.BearerAuth(map[string]string{"tok-alice": "alice", "tok-bob": "bob"}))

	return &apiHarness{app: app, queue: queue, extractions: extractions}
}

func (a *apiHarness) do(t *testing.T, method, path, token string, body io.Reader, contentType string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func (a *apiHarness) submitJSON(t *testing.T, token string, doc []byte) (int, dto.Envelope[dto.SubmitExtractionResponse]) {
	t.Helper()
	payload, _ := json.Marshal(dto.SubmitExtractionRequest{
		DocumentBytesBase64: base64.StdEncoding.EncodeToString(doc),
		FileName:            "calgary-2023.pdf",
	})
	status, raw := a.do(t, http.MethodPost, "/api/extractions", token, bytes.NewReader(payload), fiber.MIMEApplicationJSON)
	var env dto.Envelope[dto.SubmitExtractionResponse]
	require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	return status, env
}

func TestSubmitPollImportFlow(t *testing.T) {
	api := newHarness(t)

	status, submitted := api.submitJSON(t, "tok-alice", calgaryPDF)
	require.Equal(t, http.StatusAccepted, status)
	jobID := submitted.Data.JobID
	assert.Equal(t, "PROCESSING", string(submitted.Data.Status))

	code, raw := api.do(t, http.MethodGet, "/api/extractions/"+jobID.String(), "tok-alice", nil, "")
	require.Equal(t, http.StatusOK, code)
	var polled dto.Envelope[dto.ExtractionStatusResponse]
	require.NoError(t, json.Unmarshal(raw, &polled))
	assert.Equal(t, "PROCESSING", string(polled.Data.Status))
	assert.Empty(t, polled.Data.StructuredResult)

	require.Equal(t, []uuid.UUID{jobID}, api.queue.ids)
	api.extractions.ProcessJob(context.Background(), jobID)

	_, first := api.do(t, http.MethodGet, "/api/extractions/"+jobID.String(), "tok-alice", nil, "")
	_, second := api.do(t, http.MethodGet, "/api/extractions/"+jobID.String(), "tok-alice", nil, "")
	assert.Equal(t, string(first), string(second), "polls of a terminal job are byte-identical")
	require.NoError(t, json.Unmarshal(first, &polled))
	assert.Equal(t, "COMPLETED", string(polled.Data.Status))
	assert.Contains(t, string(polled.Data.StructuredResult), `"community_name":"Calgary"`)
	assert.NotNil(t, polled.Data.ElapsedMs)

	code, raw = api.do(t, http.MethodPost, "/api/extractions/"+jobID.String()+"/import", "tok-alice", nil, "")
	require.Equal(t, http.StatusCreated, code, string(raw))
	var imported dto.Envelope[dto.ImportExtractionResponse]
	require.NoError(t, json.Unmarshal(raw, &imported))
	assert.Equal(t, 10, imported.Data.CreatedCounts.IndicatorScores)
	assert.Equal(t, 3, imported.Data.CreatedCounts.Recommendations)
	assert.NotEqual(t, uuid.Nil, imported.Data.AssessmentID)

	_, again := api.submitJSON(t, "tok-alice", calgaryPDF)
	api.extractions.ProcessJob(context.Background(), again.Data.JobID)
	code, raw = api.do(t, http.MethodPost, "/api/extractions/"+again.Data.JobID.String()+"/import", "tok-alice", nil, "")
	assert.Equal(t, http.StatusConflict, code)
	var conflict dto.Envelope[json.RawMessage]
	require.NoError(t, json.Unmarshal(raw, &conflict))
	assert.Equal(t, "Conflict", conflict.Category)
	assert.Contains(t, conflict.Message, "Calgary")

	code, _ = api.do(t, http.MethodPost, "/api/extractions/"+again.Data.JobID.String()+"/import", "tok-alice",
		strings.NewReader(`{"overrides":{"assessmentYear":2024}}`), fiber.MIMEApplicationJSON)
	assert.Equal(t, http.StatusCreated, code)
}

func TestPollIsOwnerScoped(t *testing.T) {
	api := newHarness(t)
	_, submitted := api.submitJSON(t, "tok-alice", calgaryPDF)

	foreign, foreignBody := api.do(t, http.MethodGet, "/api/extractions/"+submitted.Data.JobID.String(), "tok-bob", nil, "")
	missing, missingBody := api.do(t, http.MethodGet, "/api/extractions/"+uuid.NewString(), "tok-bob", nil, "")
	assert.Equal(t, http.StatusNotFound, foreign)
	assert.Equal(t, http.StatusNotFound, missing)

	var a, b dto.Envelope[json.RawMessage]
	require.NoError(t, json.Unmarshal(foreignBody, &a))
	require.NoError(t, json.Unmarshal(missingBody, &b))
	assert.Equal(t, a.Message, b.Message)
	assert.Equal(t, "NotFound", a.Category)

	code, _ := api.do(t, http.MethodGet, "/api/extractions/not-a-uuid", "tok-bob", nil, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRequestsRequireBearerToken(t *testing.T) {
	api := newHarness(t)
	status, env := api.submitJSON(t, "", calgaryPDF)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Unauthorized", env.Category)
	assert.Empty(t, api.queue.ids)
}

func TestSubmitRejectsBadPayloads(t *testing.T) {
	api := newHarness(t)

	code, raw := api.do(t, http.MethodPost, "/api/extractions", "tok-alice",
		strings.NewReader(`{"documentBytesBase64":"%%%not-base64","fileName":"a.pdf"}`), fiber.MIMEApplicationJSON)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, string(raw), "ValidationFailure")

	huge := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("a"), 2*1024*1024))
	code, _ = api.do(t, http.MethodPost, "/api/extractions", "tok-alice",
		strings.NewReader(`{"documentBytesBase64":"`+huge+`","fileName":"a.pdf"}`), fiber.MIMEApplicationJSON)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Empty(t, api.queue.ids)
}

func TestMultipartSubmitAndList(t *testing.T) {
	api := newHarness(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "calgary-2023.pdf")
	require.NoError(t, err)
	_, _ = part.Write(calgaryPDF)
	require.NoError(t, mw.Close())

	code, raw := api.do(t, http.MethodPost, "/api/extractions", "tok-alice", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusAccepted, code, string(raw))

	api.submitJSON(t, "tok-alice", calgaryPDF)
	api.submitJSON(t, "tok-bob", calgaryPDF)

	code, raw = api.do(t, http.MethodGet, "/api/extractions?page=1&page_size=1", "tok-alice", nil, "")
	require.Equal(t, http.StatusOK, code)
	var listed struct {
		dto.Envelope[[]dto.ExtractionSummary]
		Pagination response.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(raw, &listed))
	assert.Len(t, listed.Data, 1)
	assert.Equal(t, int64(2), listed.Pagination.TotalItems)
	assert.True(t, listed.Pagination.HasMore)
}
