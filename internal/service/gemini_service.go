package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/fadilmartias/climate-tracker/internal/config"
	"github.com/fadilmartias/climate-tracker/internal/extraction"
)

// GeminiService streams completions from the Gemini API.
type GeminiService struct {
	Client      *genai.Client
	Temperature float32
	logger      *slog.Logger
}

func NewGeminiService(ctx context.Context, logger *slog.Logger) (*GeminiService, error) {
	cfg := config.LoadGeminiConfig()
	clientConfig, err := geminiClientConfig(cfg)
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiService{Client: client, Temperature: cfg.Temperature, logger: logger}, nil
}

func geminiClientConfig(cfg *config.GeminiConfig) (*genai.ClientConfig, error) {
	switch cfg.Backend {
	case "", config.GeminiBackendAPI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY not set")
		}
		return &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}, nil
	case config.GeminiBackendVertex:
		if cfg.Project == "" {
			return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT not set for the vertex backend")
		}
		return &genai.ClientConfig{
			Backend:  genai.BackendVertexAI,
			Project:  cfg.Project,
			Location: cfg.Location,
		}, nil
	default:
		return nil, fmt.Errorf("unknown GEMINI_BACKEND %q", cfg.Backend)
	}
}

func (s *GeminiService) StreamGenerate(ctx context.Context, req extraction.GenerateRequest, onChunk func(string)) (extraction.Usage, error) {
	if req.Model == "" {
		return extraction.Usage{}, fmt.Errorf("model name cannot be empty")
	}
	if strings.TrimSpace(req.UserText) == "" {
		return extraction.Usage{}, fmt.Errorf("prompt cannot be empty")
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(s.Temperature),
	}
	if req.SystemInstruction != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}

	var usage extraction.Usage
	chunks := 0
	for resp, err := range s.Client.Models.GenerateContentStream(ctx, req.Model, genai.Text(req.UserText), genConfig) {
		if err != nil {
			return usage, fmt.Errorf("gemini stream: %w", err)
		}
		if resp == nil {
			continue
		}
		// Usage metadata is cumulative; the last chunk carries the totals.
		if md := resp.UsageMetadata; md != nil {
			usage.InputTokens = int64(md.PromptTokenCount)
			usage.OutputTokens = int64(md.CandidatesTokenCount)
		}
		if text := resp.Text(); text != "" {
			chunks++
			onChunk(text)
		}
	}

	s.logger.Debug("gemini stream complete", "model", req.Model, "chunks", chunks)
	return usage, nil
}
