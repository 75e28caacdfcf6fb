package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// ModelInfo describes one entry of the model catalog served by /ai/models.
type ModelInfo struct {
	Name           string   `yaml:"name" json:"name"`
	Provider       string   `yaml:"provider" json:"provider"`
	Description    string   `yaml:"description" json:"description"`
	MaxTokens      int      `yaml:"max_tokens" json:"max_tokens"`
	Capabilities   []string `yaml:"capabilities" json:"capabilities"`
	RecommendedFor []string `yaml:"recommended_for" json:"recommended_for"`
	CostTier       string   `yaml:"cost_tier" json:"cost_tier"`
}

// Catalog holds the model list and the Game Master texts.
type Catalog struct {
	Models           []ModelInfo `yaml:"models"`
	Persona          string      `yaml:"persona"`
	FallbackGreeting string      `yaml:"fallback_greeting"`
}

// LoadCatalog parses the embedded catalog and applies the override file at
// path when one is given. Non-empty override fields replace the defaults.
func LoadCatalog(path string) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(defaultCatalogYAML, &cat); err != nil {
		return nil, fmt.Errorf("parse embedded catalog: %w", err)
	}
	if path == "" {
		return &cat, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var override Catalog
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if len(override.Models) > 0 {
		cat.Models = override.Models
	}
	if strings.TrimSpace(override.Persona) != "" {
		cat.Persona = override.Persona
	}
	if strings.TrimSpace(override.FallbackGreeting) != "" {
		cat.FallbackGreeting = override.FallbackGreeting
	}
	return &cat, nil
}
