package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fadilmartias/climate-tracker/internal/extraction"
)

func TestOpenRouterStreamsDeltasAndUsage(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": OPENROUTER PROCESSING\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"{\"assess"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"ment\":{}}"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{}}],"usage":{"prompt_tokens":1200,"completion_tokens":80}}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	svc := NewOpenRouterServiceWithClient("sk-test", srv.URL+"/", resty.New(), nil)

	var got string
	usage, err := svc.StreamGenerate(context.Background(), extraction.GenerateRequest{
		Model:             "anthropic/claude-sonnet-4",
		SystemInstruction: "system prompt",
		UserText:          "document",
	}, func(s string) { got += s })
	require.NoError(t, err)

	assert.Equal(t, `{"assessment":{}}`, got)
	assert.Equal(t, int64(1200), usage.InputTokens)
	assert.Equal(t, int64(80), usage.OutputTokens)

	assert.Equal(t, true, body["stream"])
	assert.Equal(t, "anthropic/claude-sonnet-4", body["model"])
	messages := body["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
}

func TestOpenRouterHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited"}}`)
	}))
	defer srv.Close()

	svc := NewOpenRouterServiceWithClient("sk-test", srv.URL, resty.New(), nil)
	_, err := svc.StreamGenerate(context.Background(), extraction.GenerateRequest{Model: "m", UserText: "x"}, func(string) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestOpenRouterMidStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"partial"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"error":{"message":"provider disconnected"}}`+"\n\n")
	}))
	defer srv.Close()

	svc := NewOpenRouterServiceWithClient("sk-test", srv.URL, resty.New(), nil)
	var got string
	_, err := svc.StreamGenerate(context.Background(), extraction.GenerateRequest{Model: "m", UserText: "x"}, func(s string) { got += s })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider disconnected")
	assert.Equal(t, "partial", got)
}
