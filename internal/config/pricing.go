package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/AlexZinkM/allowance-gate/internal/common"
)

// Pricing maps a tool name to its fixed price in payment token units (decimal string).
type Pricing map[string]string

// DefaultPricing is used when no PRICING_FILE is configured.
func DefaultPricing() Pricing {
	return Pricing{
		"yield_agent.run":      "0.001",
		"swap_agent.optimized": "0.001",
		"tx_explain.deep":      "0.001",
	}
}

type pricingFile struct {
	Tools map[string]string `yaml:"tools"`
}

// LoadPricing reads a YAML pricing table of the form
//
//	tools:
//	  yield_agent.run: "0.001"
//
// An empty path returns DefaultPricing. Every price must parse with the given decimals
// and be greater than zero.
func LoadPricing(path string, decimals int) (Pricing, error) {
	if path == "" {
		return DefaultPricing(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing file: %w", err)
	}
	var f pricingFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse pricing file: %w", err)
	}
	p := Pricing(f.Tools)
	if err := p.Validate(decimals); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks that every price is a positive decimal amount.
func (p Pricing) Validate(decimals int) error {
	for tool, price := range p {
		units, err := common.ParseUnits(price, decimals)
		if err != nil {
			return fmt.Errorf("invalid price for %s: %w", tool, err)
		}
		if units == 0 {
			return fmt.Errorf("price for %s must be greater than zero", tool)
		}
	}
	return nil
}

// Price returns the configured price for tool.
func (p Pricing) Price(tool string) (string, bool) {
	price, ok := p[tool]
	return price, ok
}

// Tools returns priced tool names in sorted order.
func (p Pricing) Tools() []string {
	out := make([]string, 0, len(p))
	for name := range p {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
