package config

import "encoding/json"

// ModelPricing defines per-model pricing for budget enforcement.
type ModelPricing struct {
	// InputPer1M is the cost per 1M prompt tokens.
	InputPer1M float64 `json:"input_per_1m"`
	// OutputPer1M is the cost per 1M completion tokens.
	OutputPer1M float64 `json:"output_per_1m"`
}

// defaultPricing seeds budget tracking for common gateway models. The
// settings file can override or extend it under the "pricing" key.
var defaultPricing = map[string]ModelPricing{
	"gpt-4o":      {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini": {InputPer1M: 0.15, OutputPer1M: 0.60},
}

// Pricing returns the model pricing table, with settings overrides
// applied on top of the defaults.
func (s *Settings) Pricing() map[string]ModelPricing {
	table := make(map[string]ModelPricing, len(defaultPricing))
	for model, price := range defaultPricing {
		table[model] = price
	}
	if s == nil || s.Raw == nil {
		return table
	}

	rawPricing, ok := s.Raw["pricing"]
	if !ok {
		return table
	}
	encoded, err := json.Marshal(rawPricing)
	if err != nil {
		return table
	}
	var overrides map[string]ModelPricing
	if err := json.Unmarshal(encoded, &overrides); err != nil {
		return table
	}
	for model, price := range overrides {
		table[model] = price
	}
	return table
}
