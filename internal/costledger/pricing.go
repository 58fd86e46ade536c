// Package costledger implements the L0 cost ledger: per-role token→USD
// conversion, daily rollup, 30-day retention, and budget-gate queries
// (spec §4.6), grounded on internal/status/cost.go of the teacher repo.
package costledger

import (
	"fmt"
	"math"
	"strings"
)

// ModelPricing holds per-million-token pricing for one (provider, model) pair.
type ModelPricing struct {
	InputPer1M       float64
	OutputPer1M      float64
	CachedInputPer1M float64
}

// DefaultPricing mirrors real published rates, reused verbatim from the
// teacher's DefaultModelCosts table.
var DefaultPricing = map[string]map[string]ModelPricing{
	"anthropic": {
		"claude-sonnet-4-20250514":  {InputPer1M: 3.0, OutputPer1M: 15.0, CachedInputPer1M: 0.30},
		"claude-3-5-sonnet-latest":  {InputPer1M: 3.0, OutputPer1M: 15.0, CachedInputPer1M: 0.30},
		"claude-3-5-haiku-20241022": {InputPer1M: 1.0, OutputPer1M: 5.0, CachedInputPer1M: 0.10},
		"claude-3-opus-20240229":    {InputPer1M: 15.0, OutputPer1M: 75.0, CachedInputPer1M: 1.50},
		"claude-3-haiku-20240307":   {InputPer1M: 0.25, OutputPer1M: 1.25, CachedInputPer1M: 0.03},
	},
	"openai": {
		"gpt-4o":      {InputPer1M: 2.50, OutputPer1M: 10.0, CachedInputPer1M: 1.25},
		"gpt-4o-mini": {InputPer1M: 0.15, OutputPer1M: 0.60, CachedInputPer1M: 0.075},
		"gpt-4-turbo": {InputPer1M: 10.0, OutputPer1M: 30.0},
		"o1":          {InputPer1M: 15.0, OutputPer1M: 60.0, CachedInputPer1M: 7.50},
		"o1-mini":     {InputPer1M: 3.0, OutputPer1M: 12.0, CachedInputPer1M: 1.50},
	},
}

// Resolve looks up pricing for a model: exact match, then prefix match (for
// versioned model IDs), then a substring alias fallback.
func Resolve(provider, model string, custom map[string]map[string]ModelPricing) *ModelPricing {
	provider = strings.ToLower(strings.TrimSpace(provider))
	model = strings.TrimSpace(model)
	if provider == "" || model == "" {
		return nil
	}

	for _, table := range []map[string]map[string]ModelPricing{custom, DefaultPricing} {
		if table == nil {
			continue
		}
		providerCosts, ok := table[provider]
		if !ok {
			continue
		}
		if cost, ok := providerCosts[model]; ok {
			return &cost
		}
		for modelID, cost := range providerCosts {
			if strings.HasPrefix(model, modelID) || strings.HasPrefix(modelID, model) {
				costCopy := cost
				return &costCopy
			}
		}
	}

	switch provider {
	case "anthropic":
		switch {
		case strings.Contains(model, "sonnet"):
			return &ModelPricing{InputPer1M: 3.0, OutputPer1M: 15.0, CachedInputPer1M: 0.30}
		case strings.Contains(model, "haiku"):
			return &ModelPricing{InputPer1M: 1.0, OutputPer1M: 5.0, CachedInputPer1M: 0.10}
		case strings.Contains(model, "opus"):
			return &ModelPricing{InputPer1M: 15.0, OutputPer1M: 75.0, CachedInputPer1M: 1.50}
		}
	case "openai":
		switch {
		case strings.HasPrefix(model, "gpt-4o-mini"):
			return &ModelPricing{InputPer1M: 0.15, OutputPer1M: 0.60, CachedInputPer1M: 0.075}
		case strings.HasPrefix(model, "gpt-4o"):
			return &ModelPricing{InputPer1M: 2.50, OutputPer1M: 10.0, CachedInputPer1M: 1.25}
		case strings.HasPrefix(model, "o1-mini"):
			return &ModelPricing{InputPer1M: 3.0, OutputPer1M: 12.0, CachedInputPer1M: 1.50}
		case strings.HasPrefix(model, "o1"):
			return &ModelPricing{InputPer1M: 15.0, OutputPer1M: 60.0, CachedInputPer1M: 7.50}
		}
	}
	return nil
}

// EstimateUsd computes cost from token counts; nil pricing is free (unpriced model).
func EstimateUsd(input, output, cached int64, pricing *ModelPricing) float64 {
	if pricing == nil {
		return 0
	}
	total := (float64(input)*pricing.InputPer1M + float64(output)*pricing.OutputPer1M + float64(cached)*pricing.CachedInputPer1M) / 1_000_000
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return 0
	}
	return total
}

// FormatUSD formats amount as "$X.XX" or, for very small amounts, "$X.XXXX".
func FormatUSD(amount float64) string {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return ""
	}
	if amount >= 0.01 {
		return fmt.Sprintf("$%.2f", amount)
	}
	return fmt.Sprintf("$%.4f", amount)
}
