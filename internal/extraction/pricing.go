package extraction

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rate is the USD price per million tokens for one model.
type Rate struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// PricingTable maps a model identifier to its token rates.
type PricingTable map[string]Rate

// DefaultPricing returns the built-in rates. Operators override or extend
// them with a pricing file.
func DefaultPricing() PricingTable {
	return PricingTable{
		"gemini-2.5-flash":                  {InputPerMillion: 0.30, OutputPerMillion: 2.50},
		"gemini-2.5-pro":                    {InputPerMillion: 1.25, OutputPerMillion: 10.00},
		"gemini-2.0-flash":                  {InputPerMillion: 0.10, OutputPerMillion: 0.40},
		"anthropic/claude-sonnet-4":         {InputPerMillion: 3.00, OutputPerMillion: 15.00},
		"openai/gpt-4o-mini":                {InputPerMillion: 0.15, OutputPerMillion: 0.60},
		"openai/gpt-4o":                     {InputPerMillion: 2.50, OutputPerMillion: 10.00},
		"meta-llama/llama-3.3-70b-instruct": {InputPerMillion: 0.13, OutputPerMillion: 0.40},
	}
}

type pricingFile struct {
	Models map[string]Rate `yaml:"models"`
}

// LoadPricing reads a YAML pricing file and merges it over the defaults.
// An empty path returns the defaults.
//
//	models:
//	  gemini-2.5-flash:
//	    input_per_million: 0.30
//	    output_per_million: 2.50
func LoadPricing(path string) (PricingTable, error) {
	table := DefaultPricing()
	if path == "" {
		return table, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file: %w", err)
	}
	var file pricingFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse pricing file: %w", err)
	}
	for model, rate := range file.Models {
		if rate.InputPerMillion < 0 || rate.OutputPerMillion < 0 {
			return nil, fmt.Errorf("pricing for %q must not be negative", model)
		}
		table[model] = rate
	}
	return table, nil
}

// Estimate returns the USD cost of a call. Unknown models cost 0; the value
// is telemetry only.
func (p PricingTable) Estimate(model string, inputTokens, outputTokens int64) float64 {
	rate, ok := p[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)*rate.InputPerMillion/1_000_000 +
		float64(outputTokens)*rate.OutputPerMillion/1_000_000
}
