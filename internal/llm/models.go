package llm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ModelLimits carries per-model request and token throughput ceilings.
type ModelLimits struct {
	RPM int `yaml:"rpm"`
	TPM int `yaml:"tpm"`
}

// ModelPricing defines token costs per 1K tokens.
type ModelPricing struct {
	InputPricePerK  float64 `yaml:"input_price_per_k"`
	OutputPricePerK float64 `yaml:"output_price_per_k"`
}

// ModelsConfig is the models.yaml shape: global defaults plus per-model
// overrides for limits and pricing.
type ModelsConfig struct {
	Defaults struct {
		RPM int `yaml:"rpm"`
		TPM int `yaml:"tpm"`
	} `yaml:"defaults"`
	Models map[string]struct {
		RPM     int          `yaml:"rpm"`
		TPM     int          `yaml:"tpm"`
		Pricing ModelPricing `yaml:"pricing"`
	} `yaml:"models"`
}

// LoadModelsConfig reads a models.yaml file.
func LoadModelsConfig(path string) (*ModelsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read models config %s: %w", path, err)
	}
	var cfg ModelsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse models config %s: %w", path, err)
	}
	return &cfg, nil
}

// LimitsFor returns the limits for model, falling back to defaults.
func (c *ModelsConfig) LimitsFor(model string) ModelLimits {
	limits := ModelLimits{RPM: c.Defaults.RPM, TPM: c.Defaults.TPM}
	if m, ok := c.Models[model]; ok {
		if m.RPM > 0 {
			limits.RPM = m.RPM
		}
		if m.TPM > 0 {
			limits.TPM = m.TPM
		}
	}
	return limits
}

// PricingFor returns the pricing for model, zero-valued when unknown.
func (c *ModelsConfig) PricingFor(model string) ModelPricing {
	if m, ok := c.Models[model]; ok {
		return m.Pricing
	}
	return ModelPricing{}
}

// EstimateCostUSD prices a usage record against the model's pricing table.
func (c *ModelsConfig) EstimateCostUSD(model string, usage Usage) float64 {
	p := c.PricingFor(model)
	return float64(usage.PromptTokens)/1000.0*p.InputPricePerK +
		float64(usage.CompletionTokens)/1000.0*p.OutputPricePerK
}
