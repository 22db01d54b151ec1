// Package bootstrap builds the shared extraction stack from configuration
// for both the server and the operator CLI.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fadilmartias/climate-tracker/internal/config"
	"github.com/fadilmartias/climate-tracker/internal/extraction"
	"github.com/fadilmartias/climate-tracker/internal/service"
)

// NewLogger returns a JSON logger in production and a text logger otherwise.
func NewLogger(app *config.AppConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(app.LogLevel))); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if app.IsProduction() {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(h).With("app", app.Name)
}

// NewGenerator picks the configured generative backend and wraps it in a
// circuit breaker.
func NewGenerator(ctx context.Context, cfg *config.ExtractionConfig, logger *slog.Logger) (*service.GuardedGenerator, error) {
	var next extraction.TextGenerator
	switch cfg.Provider {
	case config.LLMProviderGemini:
		gemini, err := service.NewGeminiService(ctx, logger)
		if err != nil {
			return nil, err
		}
		next = gemini
	case config.LLMProviderOpenRouter:
		openRouter, err := service.NewOpenRouterService(logger)
		if err != nil {
			return nil, err
		}
		next = openRouter
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", cfg.Provider)
	}

	return service.NewGuardedGenerator(next, service.BreakerSettings{
		Name:        cfg.Provider,
		MaxFailures: uint32(max(cfg.BreakerFailures, 1)),
		Cooldown:    cfg.BreakerCooldown,
	}, logger), nil
}

// NewEngine builds the extraction engine with the configured pricing table.
func NewEngine(generator extraction.TextGenerator, cfg *config.ExtractionConfig, logger *slog.Logger) (*extraction.Engine, error) {
	pricing, err := extraction.LoadPricing(cfg.PricingFile)
	if err != nil {
		return nil, err
	}
	return extraction.NewEngine(generator, extraction.Config{
		Model:      cfg.Model,
		PromptPath: cfg.PromptPath,
		Pricing:    pricing,
	}, logger)
}

func NewTextService(cfg *config.ExtractionConfig, logger *slog.Logger) (*service.PDFTextService, error) {
	opener, err := service.OpenerForEngine(cfg.PDFEngine)
	if err != nil {
		return nil, err
	}
	return service.NewPDFTextService(opener, cfg.MinTextChars, logger), nil
}
