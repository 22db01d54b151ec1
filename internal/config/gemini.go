package config

import (
	"log"
	"strconv"
	"strings"
	"sync"
)

const (
	GeminiBackendAPI    = "gemini"
	GeminiBackendVertex = "vertex"
)

// GeminiConfig selects the Gemini Developer API (APIKey) or Vertex AI, which
// uses application default credentials with Project and Location.
type GeminiConfig struct {
	APIKey      string
	Backend     string
	Project     string
	Location    string
	Temperature float32
}

var (
	geminiConfig *GeminiConfig
	geminiOnce   sync.Once
)

func LoadGeminiConfig() *GeminiConfig {
	geminiOnce.Do(func() {
		geminiConfig = newGeminiConfig()
	})
	return geminiConfig
}

func newGeminiConfig() *GeminiConfig {
	return &GeminiConfig{
		APIKey:      getEnv("GEMINI_API_KEY", ""),
		Backend:     strings.ToLower(getEnv("GEMINI_BACKEND", GeminiBackendAPI)),
		Project:     getEnv("GOOGLE_CLOUD_PROJECT", ""),
		Location:    getEnv("GOOGLE_CLOUD_LOCATION", "us-central1"),
		Temperature: getEnvFloat32("GEMINI_TEMPERATURE", 0.1),
	}
}

func getEnvFloat32(key string, fallback float32) float32 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		log.Printf("Warning: invalid %s=%q, using %g", key, raw, fallback)
		return fallback
	}
	return float32(v)
}
