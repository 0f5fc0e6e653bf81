package providers

import "strings"

// ModelOverride applies extra parameters for a specific model pattern.
type ModelOverride struct {
	Pattern   string         // case-insensitive substring to match in model name
	Overrides map[string]any // parameters to merge into the request body
}

// ProviderSpec is the metadata record for one LLM provider.
type ProviderSpec struct {
	Name        string   // config field name, e.g. "dashscope"
	Keywords    []string // model-name keywords for matching (lowercase)
	DisplayName string   // shown in `chatrelay status`

	Kind           Kind   // wire format spoken by this provider
	DefaultAPIBase string // fallback base URL when none is configured

	// Per-model parameter overrides
	ModelOverrides []ModelOverride
}

// Label returns the display name, defaulting to Title-cased Name.
func (s ProviderSpec) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return strings.ToTitle(s.Name[:1]) + s.Name[1:]
}

// ---------------------------------------------------------------------------
// PROVIDERS is the registry. Order = match priority.
// ---------------------------------------------------------------------------

var PROVIDERS = []ProviderSpec{
	{
		Name:           "anthropic",
		Keywords:       []string{"anthropic", "claude"},
		DisplayName:    "Anthropic",
		Kind:           KindClaude,
		DefaultAPIBase: "https://api.anthropic.com",
	},
	{
		Name:           "deepseek",
		Keywords:       []string{"deepseek"},
		DisplayName:    "DeepSeek",
		Kind:           KindDeepSeek,
		DefaultAPIBase: "https://api.deepseek.com/v1",
	},
	{
		Name:           "openai",
		Keywords:       []string{"openai", "gpt"},
		DisplayName:    "OpenAI",
		Kind:           KindOpenAI,
		DefaultAPIBase: "https://api.openai.com/v1",
	},
	{
		Name:           "dashscope",
		Keywords:       []string{"qwen", "dashscope"},
		DisplayName:    "DashScope",
		Kind:           KindQwen,
		DefaultAPIBase: "https://dashscope-intl.aliyuncs.com/compatible-mode/v1",
	},
	{
		Name:           "deepinfra",
		Keywords:       []string{"deepinfra"},
		DisplayName:    "DeepInfra",
		Kind:           KindCustom,
		DefaultAPIBase: "https://api.deepinfra.com/v1/openai",
	},
	{
		Name:           "moonshot",
		Keywords:       []string{"moonshot", "kimi"},
		DisplayName:    "Moonshot",
		Kind:           KindCustom,
		DefaultAPIBase: "https://api.moonshot.ai/v1",
		ModelOverrides: []ModelOverride{
			{Pattern: "kimi-k2.5", Overrides: map[string]any{"temperature": 1.0}},
		},
	},
	{
		Name:           "openrouter",
		Keywords:       []string{"openrouter"},
		DisplayName:    "OpenRouter",
		Kind:           KindCustom,
		DefaultAPIBase: "https://openrouter.ai/api/v1",
	},
	{
		Name:        "custom",
		DisplayName: "Custom",
		Kind:        KindCustom,
	},
}

// FindByModel matches a provider by explicit "name/" prefix first, then by
// model-name keyword (case-insensitive).
func FindByModel(model string) *ProviderSpec {
	modelLower := strings.ToLower(model)
	modelNorm := strings.ReplaceAll(modelLower, "-", "_")
	modelPrefix, _, found := strings.Cut(modelLower, "/")

	if found {
		if spec := FindByName(strings.ReplaceAll(modelPrefix, "-", "_")); spec != nil {
			return spec
		}
	}

	for i := range PROVIDERS {
		spec := &PROVIDERS[i]
		for _, kw := range spec.Keywords {
			kwNorm := strings.ReplaceAll(kw, "-", "_")
			if strings.Contains(modelLower, kw) || strings.Contains(modelNorm, kwNorm) {
				return spec
			}
		}
	}
	return nil
}

// FindByName returns the ProviderSpec whose Name equals name.
func FindByName(name string) *ProviderSpec {
	for i := range PROVIDERS {
		if PROVIDERS[i].Name == name {
			return &PROVIDERS[i]
		}
	}
	return nil
}

// FindByKind returns the first registered provider speaking kind.
func FindByKind(kind Kind) *ProviderSpec {
	for i := range PROVIDERS {
		if PROVIDERS[i].Kind == kind {
			return &PROVIDERS[i]
		}
	}
	return nil
}

// ResolveModel strips the provider-name routing prefix so the API receives
// the bare model name. A nil spec returns model unchanged.
func (s *ProviderSpec) ResolveModel(model string) string {
	if s == nil || s.Name == "openrouter" {
		return model
	}
	full := s.Name + "/"
	if strings.HasPrefix(strings.ToLower(model), full) {
		return model[len(full):]
	}
	return model
}

func (s *ProviderSpec) applyModelOverrides(model string, body map[string]any) {
	if s == nil {
		return
	}
	modelLower := strings.ToLower(model)
	for _, ov := range s.ModelOverrides {
		if strings.Contains(modelLower, strings.ToLower(ov.Pattern)) {
			for k, v := range ov.Overrides {
				body[k] = v
			}
			return
		}
	}
}
