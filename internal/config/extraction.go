package config

import (
	"sync"
	"time"
)

const (
	LLMProviderGemini     = "gemini"
	LLMProviderOpenRouter = "openrouter"
)

type ExtractionConfig struct {
	Provider        string
	Model           string
	PromptPath      string
	PricingFile     string
	PDFEngine       string
	MinTextChars    int
	JobTimeout      time.Duration
	UploadDir       string
	MaxUploadBytes  int64
	SubmitRateLimit int
	// BreakerFailures consecutive backend failures open the circuit breaker.
	BreakerFailures int
	BreakerCooldown time.Duration
}

var (
	extractionConfig *ExtractionConfig
	extractionOnce   sync.Once
)

func LoadExtractionConfig() *ExtractionConfig {
	extractionOnce.Do(func() {
		extractionConfig = newExtractionConfig()
	})
	return extractionConfig
}

func newExtractionConfig() *ExtractionConfig {
	provider := getEnv("LLM_PROVIDER", LLMProviderGemini)
	defaultModel := "gemini-2.5-flash"
	if provider == LLMProviderOpenRouter {
		defaultModel = "anthropic/claude-sonnet-4"
	}
	return &ExtractionConfig{
		Provider:        provider,
		Model:           getEnv("LLM_MODEL", defaultModel),
		PromptPath:      getEnv("PROMPT_PATH", "prompts/climate_assessment_extraction.md"),
		PricingFile:     getEnv("PRICING_FILE", ""),
		PDFEngine:       getEnv("PDF_ENGINE", "fitz"),
		MinTextChars:    getEnvInt("MIN_TEXT_CHARS", 100),
		JobTimeout:      getEnvDuration("JOB_TIMEOUT", 5*time.Minute),
		UploadDir:       getEnv("UPLOAD_DIR", "./uploads/assessments"),
		MaxUploadBytes:  int64(getEnvInt("MAX_UPLOAD_MB", 20)) * 1024 * 1024,
		SubmitRateLimit: getEnvInt("SUBMIT_RATE_LIMIT", 10),
		BreakerFailures: getEnvInt("LLM_BREAKER_FAILURES", 5),
		BreakerCooldown: getEnvDuration("LLM_BREAKER_COOLDOWN", time.Minute),
	}
}
