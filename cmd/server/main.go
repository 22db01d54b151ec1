package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/fadilmartias/climate-tracker/internal/bootstrap"
	"github.com/fadilmartias/climate-tracker/internal/config"
	"github.com/fadilmartias/climate-tracker/internal/database"
	"github.com/fadilmartias/climate-tracker/internal/domain/fiber/handler"
	"github.com/fadilmartias/climate-tracker/internal/metrics"
	"github.com/fadilmartias/climate-tracker/internal/middleware"
	"github.com/fadilmartias/climate-tracker/internal/repository"
	"github.com/fadilmartias/climate-tracker/internal/storage"
	"github.com/fadilmartias/climate-tracker/internal/usecase"
	"github.com/fadilmartias/climate-tracker/internal/util"
	"github.com/fadilmartias/climate-tracker/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Could not load .env file")
	}

	appConfig := config.LoadAppConfig()
	logger := bootstrap.NewLogger(appConfig)
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appConfig := config.LoadAppConfig()
	extractionConfig := config.LoadExtractionConfig()
	queueConfig := config.LoadQueueConfig()

	db, err := database.Open(config.LoadDBConfig(), appConfig.IsProduction())
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	store, err := storage.NewLocalStore(extractionConfig.UploadDir)
	if err != nil {
		return err
	}
	text, err := bootstrap.NewTextService(extractionConfig, logger)
	if err != nil {
		return err
	}
	generator, err := bootstrap.NewGenerator(ctx, extractionConfig, logger)
	if err != nil {
		return err
	}
	engine, err := bootstrap.NewEngine(generator, extractionConfig, logger)
	if err != nil {
		return err
	}
	extractionMetrics := metrics.NewExtractionMetrics()

	var (
		dispatcher worker.Dispatcher
		pool       *worker.Pool
		natsQueue  *worker.NATSDispatcher
	)
	switch queueConfig.Driver {
	case config.QueueDriverNATS:
		natsQueue, err = worker.NewNATSDispatcher(queueConfig.NATSURL, queueConfig.NATSSubject, logger)
		if err != nil {
			return err
		}
		defer natsQueue.Close()
		dispatcher = natsQueue
	default:
		pool = worker.NewPool(logger, worker.WithWorkers(queueConfig.Workers), worker.WithQueueSize(queueConfig.Size))
		dispatcher = pool
	}

	jobRepo := repository.NewExtractionJobRepository(db)
	extractions := usecase.NewExtractionUsecase(usecase.ExtractionDeps{
		Jobs:       jobRepo,
		Store:      store,
		Dispatcher: dispatcher,
		Text:       text,
		Engine:     engine,
		Metrics:    extractionMetrics,
		JobTimeout: extractionConfig.JobTimeout,
		Logger:     logger,
	})
	imports := usecase.NewImportUsecase(jobRepo, repository.NewAssessmentRepository(db), extractionMetrics, logger)

	app := newApp(appConfig, extractionConfig, db, extractionMetrics)
	handler.NewExtractionHandler(extractions, imports, handler.HandlerOptions{
		MaxUploadBytes:  extractionConfig.MaxUploadBytes,
		SubmitRateLimit: extractionConfig.SubmitRateLimit,
		Logger:          logger,
	}).RegisterRoutes(app, middleware.BearerAuth(config.LoadAuthConfig().Tokens))

	g, ctx := errgroup.WithContext(ctx)

	if queueConfig.WorkerEnabled {
		if pool != nil {
			pool.Start(extractions.ProcessJob)
		}
		if natsQueue != nil {
			g.Go(func() error { return natsQueue.Consume(ctx, extractions.ProcessJob) })
		}
		if _, err := extractions.ResumePending(ctx); err != nil {
			logger.Warn("resume pending jobs", "error", err)
		}
	}

	g.Go(func() error {
		logger.Info("server listening", "addr", appConfig.Port, "env", appConfig.Env,
			"provider", extractionConfig.Provider, "model", extractionConfig.Model, "queue", queueConfig.Driver)
		return app.Listen(appConfig.Port)
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := app.ShutdownWithContext(shutdownCtx)
		if pool != nil {
			err = errors.Join(err, pool.Shutdown(shutdownCtx))
		}
		return err
	})

	g.Go(func() error {
		monitorGoroutines(ctx, logger)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newApp(appConfig *config.AppConfig, extractionConfig *config.ExtractionConfig, db *gorm.DB, m *metrics.ExtractionMetrics) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      appConfig.Name,
		ErrorHandler: util.FiberErrorHandler,
		// base64 inflates uploads by a third
		BodyLimit: int(extractionConfig.MaxUploadBytes*4/3) + 64*1024,
	})
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
	}))
	app.Use(recover.New(recover.Config{
		EnableStackTrace: !appConfig.IsProduction(),
	}))
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(healthcheck.New(healthcheck.Config{
		ReadinessProbe: func(c *fiber.Ctx) bool {
			sqlDB, err := db.DB()
			return err == nil && sqlDB.PingContext(c.UserContext()) == nil
		},
	}))
	app.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	}))

	app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	return app
}

func monitorGoroutines(ctx context.Context, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Debug("runtime", "goroutines", runtime.NumGoroutine())
		}
	}
}
