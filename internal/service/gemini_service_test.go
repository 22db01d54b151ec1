package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/fadilmartias/climate-tracker/internal/config"
)

func TestGeminiClientConfig(t *testing.T) {
	cc, err := geminiClientConfig(&config.GeminiConfig{APIKey: "k", Backend: config.GeminiBackendAPI})
	require.NoError(t, err)
	assert.Equal(t, genai.BackendGeminiAPI, cc.Backend)
	assert.Equal(t, "k", cc.APIKey)

	cc, err = geminiClientConfig(&config.GeminiConfig{Backend: config.GeminiBackendVertex, Project: "p", Location: "europe-west4"})
	require.NoError(t, err)
	assert.Equal(t, genai.BackendVertexAI, cc.Backend)
	assert.Equal(t, "europe-west4", cc.Location)
	assert.Empty(t, cc.APIKey)

	_, err = geminiClientConfig(&config.GeminiConfig{Backend: config.GeminiBackendAPI})
	assert.ErrorContains(t, err, "GEMINI_API_KEY")
	_, err = geminiClientConfig(&config.GeminiConfig{Backend: config.GeminiBackendVertex})
	assert.ErrorContains(t, err, "GOOGLE_CLOUD_PROJECT")
	_, err = geminiClientConfig(&config.GeminiConfig{Backend: "palm"})
	assert.Error(t, err)
}
