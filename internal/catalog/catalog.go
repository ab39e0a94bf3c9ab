// Package catalog exposes the static set of known providers and models.
// The data is declarative YAML embedded at build time; adding a provider is
// a catalog entry, not code.
package catalog

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed providers.yaml
var providersYAML []byte

// ModelInfo describes one model a provider exposes
type ModelInfo struct {
	ModelID         string `yaml:"model_id" json:"model_id"`
	DisplayName     string `yaml:"display_name" json:"display_name"`
	Description     string `yaml:"description" json:"description"`
	ContextWindow   int    `yaml:"context_window" json:"context_window"`
	MaxOutputTokens int    `yaml:"max_output_tokens" json:"max_output_tokens"`
	Recommended     bool   `yaml:"recommended" json:"recommended"`
	PricingTier     string `yaml:"pricing_tier" json:"pricing_tier"`
}

// ProviderInfo describes one provider and its models
type ProviderInfo struct {
	ProviderID       string      `yaml:"provider_id" json:"provider_id"`
	DisplayName      string      `yaml:"display_name" json:"display_name"`
	Description      string      `yaml:"description" json:"description"`
	APIKeyEnvVar     string      `yaml:"api_key_env_var" json:"api_key_env_var"`
	DocumentationURL string      `yaml:"documentation_url" json:"documentation_url"`
	Models           []ModelInfo `yaml:"models" json:"models"`
}

type catalogFile struct {
	Providers []ProviderInfo `yaml:"providers"`
}

var providers []ProviderInfo

func init() {
	var file catalogFile
	if err := yaml.Unmarshal(providersYAML, &file); err != nil {
		panic(fmt.Sprintf("catalog: embedded providers.yaml is invalid: %v", err))
	}
	providers = file.Providers
}

// Providers returns the full catalog
func Providers() []ProviderInfo {
	out := make([]ProviderInfo, len(providers))
	copy(out, providers)
	return out
}

// Lookup returns the provider with the given ID, or nil
func Lookup(providerID string) *ProviderInfo {
	for i := range providers {
		if providers[i].ProviderID == providerID {
			return &providers[i]
		}
	}
	return nil
}

// IsKnownProvider reports whether the provider tag appears in the catalog
func IsKnownProvider(providerID string) bool {
	return Lookup(providerID) != nil
}

// LookupModel returns the model entry for a provider/model pair, or nil
func LookupModel(providerID, modelID string) *ModelInfo {
	provider := Lookup(providerID)
	if provider == nil {
		return nil
	}
	for i := range provider.Models {
		if provider.Models[i].ModelID == modelID {
			return &provider.Models[i]
		}
	}
	return nil
}
