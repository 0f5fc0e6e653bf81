package config

import (
	"strings"

	"github.com/crystaldolphin/chatrelay/internal/providers"
)

// MatchResult is the resolved LLM provider config and registry name for a model.
type MatchResult struct {
	Provider *ProviderConfig
	Name     string // e.g. "openrouter", "anthropic"
}

// MatchProvider resolves which provider config and registry entry to use for model.
// If model is empty, agent.model is used.
//
// Priority order:
//  1. agent.provider when set
//  2. Explicit provider prefix in model string (e.g. "deepseek/deepseek-chat" → deepseek)
//  3. Keyword match in model name (registry order), with a configured key
//  4. Fallback: first provider with an API key
func (c *Config) MatchProvider(model string) MatchResult {
	if model == "" {
		model = c.Agent.Model
	}

	if name := c.Agent.Provider; name != "" {
		if p := c.Providers.ByName(name); p != nil {
			return MatchResult{Provider: p, Name: name}
		}
	}

	modelLower := strings.ToLower(model)
	modelNorm := strings.ReplaceAll(modelLower, "-", "_")
	modelPrefix, _, _ := strings.Cut(modelLower, "/")
	normalizedPrefix := strings.ReplaceAll(modelPrefix, "-", "_")

	kwMatches := func(kw string) bool {
		kw = strings.ToLower(kw)
		kwNorm := strings.ReplaceAll(kw, "-", "_")
		return strings.Contains(modelLower, kw) || strings.Contains(modelNorm, kwNorm)
	}

	// Explicit provider prefix wins.
	for _, spec := range providers.PROVIDERS {
		p := c.Providers.ByName(spec.Name)
		if p != nil && modelPrefix != "" && normalizedPrefix == spec.Name && p.APIKey != "" {
			return MatchResult{Provider: p, Name: spec.Name}
		}
	}

	for _, spec := range providers.PROVIDERS {
		p := c.Providers.ByName(spec.Name)
		if p == nil || p.APIKey == "" {
			continue
		}
		for _, kw := range spec.Keywords {
			if kwMatches(kw) {
				return MatchResult{Provider: p, Name: spec.Name}
			}
		}
	}

	for _, spec := range providers.PROVIDERS {
		p := c.Providers.ByName(spec.Name)
		if p != nil && p.APIKey != "" {
			return MatchResult{Provider: p, Name: spec.Name}
		}
	}

	return MatchResult{}
}

// GetAPIBase resolves the effective API base URL for model.
// Precedence: user-configured apiBase > the registry's default.
func (c *Config) GetAPIBase(model string) string {
	result := c.MatchProvider(model)
	if result.Provider != nil && result.Provider.APIBase != "" {
		return result.Provider.APIBase
	}
	if spec := providers.FindByName(result.Name); spec != nil {
		return spec.DefaultAPIBase
	}
	return ""
}

// ProviderParams assembles the constructor parameters for the configured
// agent model.
func (c *Config) ProviderParams() providers.Params {
	m := c.MatchProvider(c.Agent.Model)
	params := providers.Params{
		ProviderName: m.Name,
		Kind:         c.Agent.Kind,
		APIBase:      c.GetAPIBase(c.Agent.Model),
		Model:        c.Agent.Model,
		MaxTokens:    c.Agent.MaxTokens,
		Temperature:  c.Agent.Temperature,
	}
	if m.Provider != nil {
		params.APIKey = m.Provider.APIKey
		params.ExtraHeaders = m.Provider.ExtraHeaders
		params.RequestsPerSecond = m.Provider.RequestsPerSecond
	}
	return params
}
