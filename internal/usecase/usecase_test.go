package usecase

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/fadilmartias/climate-tracker/internal/config"
	"github.com/fadilmartias/climate-tracker/internal/database"
	"github.com/fadilmartias/climate-tracker/internal/extraction"
	"github.com/fadilmartias/climate-tracker/internal/metrics"
	"github.com/fadilmartias/climate-tracker/internal/repository"
	"github.com/fadilmartias/climate-tracker/internal/service"
	"github.com/fadilmartias/climate-tracker/internal/storage"
	"github.com/fadilmartias/climate-tracker/internal/worker"
)

// stubGenerator replays a canned model response once; later calls stream
// nothing. When gate is set the stream waits for it to be closed.
type stubGenerator struct {
	mu       sync.Mutex
	response string
	usage    extraction.Usage
	err      error
	gate     chan struct{}
	calls    int
}

func (g *stubGenerator) StreamGenerate(ctx context.Context, _ extraction.GenerateRequest, onChunk func(string)) (extraction.Usage, error) {
	g.mu.Lock()
	g.calls++
	response := g.response
	g.response = ""
	g.mu.Unlock()
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return extraction.Usage{}, ctx.Err()
		}
	}
	for len(response) > 0 {
		n := min(64, len(response))
		onChunk(response[:n])
		response = response[n:]
	}
	return g.usage, g.err
}

func (g *stubGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// recordingDispatcher queues nothing; tests run jobs explicitly.
type recordingDispatcher struct {
	ids []uuid.UUID
	err error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, id uuid.UUID) error {
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, id)
	return nil
}

// fakePDF stands in for a PDF engine: the document "text" is whatever
// follows the header line.
type fakePDF struct{ text string }

func (f fakePDF) NumPage() int             { return 1 }
func (f fakePDF) Text(int) (string, error) { return f.text, nil }
func (f fakePDF) Close() error             { return nil }

func openFakePDF(data []byte) (service.PageSource, error) {
	_, body, _ := strings.Cut(string(data), "\n")
	return fakePDF{text: body}, nil
}

var (
	calgaryPDF = []byte("%PDF-1.7\n" + strings.Repeat("City of Calgary Climate Assessment 2023. Indicator scores follow. ", 5))
	scannedPDF = []byte("%PDF-1.7\n   ")
)

type testEnv struct {
	db         *gorm.DB
	jobs       *repository.ExtractionJobRepository
	gen        *stubGenerator
	dispatcher worker.Dispatcher
	metrics    *metrics.ExtractionMetrics
	extraction *ExtractionUsecase
	imports    *ImportUsecase
}

func loadCalgary(t *testing.T) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", "calgary_2023.json"))
	require.NoError(t, err)
	return string(raw)
}

func newTestEnv(t *testing.T, gen *stubGenerator, dispatcher worker.Dispatcher) *testEnv {
	t.Helper()
	dir := t.TempDir()

	db, err := database.Open(&config.DBConfig{Driver: config.DBDriverSQLite, Path: filepath.Join(dir, "test.db")}, false)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	store, err := storage.NewLocalStore(filepath.Join(dir, "uploads"))
	require.NoError(t, err)

	prompt := filepath.Join(dir, "prompt.md")
	require.NoError(t, os.WriteFile(prompt, []byte("Extract the assessment."), 0o600))
	engine, err := extraction.NewEngine(gen, extraction.Config{Model: "gemini-2.5-flash", PromptPath: prompt}, nil)
	require.NoError(t, err)

	jobs := repository.NewExtractionJobRepository(db)
	m := metrics.NewExtractionMetrics()
	return &testEnv{
		db:         db,
		jobs:       jobs,
		gen:        gen,
		dispatcher: dispatcher,
		metrics:    m,
		extraction: NewExtractionUsecase(ExtractionDeps{
			Jobs:       jobs,
			Store:      store,
			Dispatcher: dispatcher,
			Text:       service.NewPDFTextService(openFakePDF, 100, nil),
			Engine:     engine,
			Metrics:    m,
		}),
		imports: NewImportUsecase(jobs, repository.NewAssessmentRepository(db), m, nil),
	}
}
