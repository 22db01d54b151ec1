package service

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/fadilmartias/climate-tracker/internal/config"
	"github.com/fadilmartias/climate-tracker/internal/extraction"
)

// OpenRouterService streams chat completions from OpenRouter's
// OpenAI-compatible API as server-sent events.
type OpenRouterService struct {
	APIKey  string
	BaseURL string
	client  *resty.Client
	logger  *slog.Logger
}

func NewOpenRouterService(logger *slog.Logger) (*OpenRouterService, error) {
	cfg := config.LoadOpenRouterConfig()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY not set")
	}
	return NewOpenRouterServiceWithClient(cfg.APIKey, cfg.BaseURL, resty.New(), logger), nil
}

func NewOpenRouterServiceWithClient(apiKey, baseURL string, client *resty.Client, logger *slog.Logger) *OpenRouterService {
	if logger == nil {
		logger = slog.Default()
	}
	client.SetTimeout(10 * time.Minute)
	return &OpenRouterService{
		APIKey:  apiKey,
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

func (s *OpenRouterService) StreamGenerate(ctx context.Context, req extraction.GenerateRequest, onChunk func(string)) (extraction.Usage, error) {
	var usage extraction.Usage

	messages := []map[string]string{}
	if req.SystemInstruction != "" {
		messages = append(messages, map[string]string{"role": "system", "content": req.SystemInstruction})
	}
	messages = append(messages, map[string]string{"role": "user", "content": req.UserText})

	resp, err := s.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Authorization", "Bearer "+s.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "text/event-stream").
		SetBody(map[string]any{
			"model":       req.Model,
			"messages":    messages,
			"stream":      true,
			"temperature": 0.1,
			"usage":       map[string]bool{"include": true},
		}).
		Post(s.BaseURL + "/chat/completions")
	if err != nil {
		return usage, fmt.Errorf("openrouter request: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(body, 2048))
		errText := gjson.GetBytes(msg, "error.message").String()
		if errText == "" {
			errText = strings.TrimSpace(string(msg))
		}
		return usage, fmt.Errorf("openrouter status %d: %s", resp.StatusCode(), errText)
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		// Blank lines separate events; ":" lines are keep-alive comments.
		if line == "" || strings.HasPrefix(line, ":") || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}
		if !gjson.Valid(payload) {
			s.logger.Warn("openrouter: skipping invalid event", "payload_len", len(payload))
			continue
		}
		if errMsg := gjson.Get(payload, "error.message"); errMsg.Exists() {
			return usage, fmt.Errorf("openrouter stream error: %s", errMsg.String())
		}
		if u := gjson.Get(payload, "usage"); u.Exists() && u.IsObject() {
			usage.InputTokens = u.Get("prompt_tokens").Int()
			usage.OutputTokens = u.Get("completion_tokens").Int()
		}
		if text := gjson.Get(payload, "choices.0.delta.content").String(); text != "" {
			onChunk(text)
		}
	}
	if err := scanner.Err(); err != nil {
		return usage, fmt.Errorf("openrouter stream read: %w", err)
	}
	return usage, nil
}
