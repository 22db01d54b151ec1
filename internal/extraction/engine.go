package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fadilmartias/climate-tracker/internal/apperror"
	"github.com/fadilmartias/climate-tracker/internal/model"
	"github.com/fadilmartias/climate-tracker/internal/taxonomy"
)

// Usage is the token summary a backend reports at the end of a stream.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

type GenerateRequest struct {
	Model             string
	SystemInstruction string
	UserText          string
}

// TextGenerator streams a completion, handing each text fragment to onChunk
// in order, and returns the final usage summary.
type TextGenerator interface {
	StreamGenerate(ctx context.Context, req GenerateRequest, onChunk func(string)) (Usage, error)
}

type Config struct {
	Model      string
	PromptPath string
	Pricing    PricingTable
	// ResponseHeadBytes bounds the raw response excerpt kept for diagnostics.
	ResponseHeadBytes int
}

type Engine struct {
	generator TextGenerator
	validator *SchemaValidator
	cfg       Config
	logger    *slog.Logger
}

func NewEngine(generator TextGenerator, cfg Config, logger *slog.Logger) (*Engine, error) {
	if generator == nil {
		return nil, errors.New("extraction: generator is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("extraction: model is required")
	}
	if cfg.PromptPath == "" {
		return nil, errors.New("extraction: prompt path is required")
	}
	if cfg.Pricing == nil {
		cfg.Pricing = DefaultPricing()
	}
	if cfg.ResponseHeadBytes <= 0 {
		cfg.ResponseHeadBytes = 500
	}
	if logger == nil {
		logger = slog.Default()
	}
	validator, err := NewSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &Engine{generator: generator, validator: validator, cfg: cfg, logger: logger}, nil
}

// Outcome is the result of one extraction call. On failure Extract still
// returns the outcome when the model was reached, so usage can be recorded.
type Outcome struct {
	Result         *model.StructuredResult
	ResultJSON     string
	ConfidenceJSON *string
	Model          string
	Usage          Usage
	CostUSD        float64
	RawResponse    string
}

func (e *Engine) Model() string {
	return e.cfg.Model
}

// Extract turns document text into a StructuredResult.
func (e *Engine) Extract(ctx context.Context, text string) (*Outcome, error) {
	instruction, err := os.ReadFile(e.cfg.PromptPath)
	if err != nil {
		return nil, apperror.New(apperror.KindInternal, "Extraction instructions are unavailable.", err)
	}

	var sb strings.Builder
	req := GenerateRequest{
		Model:             e.cfg.Model,
		SystemInstruction: string(instruction),
		UserText:          buildUserText(text),
	}
	usage, genErr := e.generator.StreamGenerate(ctx, req, func(chunk string) {
		sb.WriteString(chunk)
	})

	out := &Outcome{
		Model:       e.cfg.Model,
		Usage:       usage,
		CostUSD:     e.cfg.Pricing.Estimate(e.cfg.Model, usage.InputTokens, usage.OutputTokens),
		RawResponse: sb.String(),
	}
	e.logger.Info("model stream finished",
		"model", e.cfg.Model,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"response_chars", len(out.RawResponse),
		"cost_usd", out.CostUSD,
	)

	if genErr != nil {
		msg := "The language model request failed."
		if errors.Is(genErr, context.DeadlineExceeded) {
			msg = "The language model did not finish within the time limit."
		}
		return out, apperror.New(apperror.KindModelInvocationFailure, msg, genErr)
	}
	if strings.TrimSpace(out.RawResponse) == "" {
		return out, apperror.New(apperror.KindModelInvocationFailure, "The language model returned an empty response.", nil)
	}

	result, err := e.parse(out.RawResponse)
	if err != nil {
		return out, err
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return out, apperror.New(apperror.KindInternal, "Could not encode the extracted result.", err)
	}
	out.Result = result
	out.ResultJSON = string(encoded)
	if len(result.Confidence) > 0 && string(result.Confidence) != "null" {
		c := string(result.Confidence)
		out.ConfidenceJSON = &c
	}
	return out, nil
}

func (e *Engine) parse(raw string) (*model.StructuredResult, error) {
	head := responseHead(raw, e.cfg.ResponseHeadBytes)
	malformed := func(message string, cause error) error {
		return apperror.New(apperror.KindMalformedExtraction, message, cause).
			WithDetail(fmt.Sprintf("%v\n--- response head ---\n%s", cause, head))
	}

	span, err := ExtractJSONSpan(raw)
	if err != nil {
		return nil, malformed("The model response did not contain structured data.", err)
	}
	if err := e.validator.Validate([]byte(span)); err != nil {
		return nil, malformed("The model response did not match the expected assessment structure.", err)
	}

	var result model.StructuredResult
	if err := json.Unmarshal([]byte(span), &result); err != nil {
		return nil, malformed("The model response could not be decoded.", err)
	}
	if err := RecomputePercentages(&result); err != nil {
		return nil, malformed("The model response contains inconsistent indicator scores.", err)
	}
	return &result, nil
}

// RecomputePercentages overwrites every indicator percentage with
// earned/possible*100 and rejects indicators scoring above their maximum.
func RecomputePercentages(result *model.StructuredResult) error {
	for i := range result.Indicators {
		ind := &result.Indicators[i]
		if ind.PointsPossible <= 0 {
			return fmt.Errorf("indicator %d: points_possible must be positive", ind.IndicatorID)
		}
		if ind.PointsEarned > ind.PointsPossible {
			return fmt.Errorf("indicator %d: points_earned %.2f exceeds points_possible %.2f",
				ind.IndicatorID, ind.PointsEarned, ind.PointsPossible)
		}
		ind.Percentage = taxonomy.Percentage(ind.PointsEarned, ind.PointsPossible)
	}
	return nil
}

func buildUserText(documentText string) string {
	return "Extract the climate assessment from the following document text.\n\n" +
		"<document>\n" + documentText + "\n</document>"
}
