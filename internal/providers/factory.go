package providers

import (
	"fmt"
)

// Params are the raw values needed to construct a Provider.
// Extracted from config.Config by the caller to avoid an import cycle.
type Params struct {
	ProviderName      string // registry name, e.g. "deepseek", "dashscope"
	Kind              string // optional; overrides the registry's wire format
	APIKey            string
	APIBase           string
	ExtraHeaders      map[string]string
	Model             string
	MaxTokens         int
	Temperature       float64
	RequestsPerSecond float64
}

// New creates the Provider for the given params.
//
// The wire format comes from Params.Kind when set, otherwise from the
// registry entry matched by provider name or model. Claude goes through the
// Anthropic SDK, openai through the Responses API, and every other kind
// through an OpenAI-compatible /chat/completions endpoint.
func New(p Params) (*Provider, error) {
	spec := FindByName(p.ProviderName)
	if spec == nil {
		spec = FindByModel(p.Model)
	}

	var kind Kind
	switch {
	case p.Kind != "":
		k, err := ParseKind(p.Kind)
		if err != nil {
			return nil, err
		}
		kind = k
	case spec != nil:
		kind = spec.Kind
	default:
		return nil, fmt.Errorf("%w: cannot infer provider for model %q", ErrUnknownKind, p.Model)
	}
	if spec == nil {
		spec = FindByKind(kind)
	}

	adapter, err := NewAdapter(kind)
	if err != nil {
		return nil, err
	}

	apiBase := p.APIBase
	if apiBase == "" && spec != nil {
		apiBase = spec.DefaultAPIBase
	}
	if apiBase == "" {
		return nil, fmt.Errorf("provider %q: no apiBase configured", p.ProviderName)
	}

	var transport Transport
	switch kind {
	case KindClaude:
		transport = NewAnthropicTransport(p.APIKey, apiBase, p.ExtraHeaders, p.RequestsPerSecond, spec)
	case KindOpenAI:
		transport = NewResponsesTransport(p.APIKey, apiBase, p.ExtraHeaders, p.RequestsPerSecond, spec)
	default:
		transport = NewChatCompletionsTransport(p.APIKey, apiBase, p.ExtraHeaders, p.RequestsPerSecond, spec)
	}

	name := p.ProviderName
	if name == "" && spec != nil {
		name = spec.Name
	}
	return NewProvider(name, adapter, transport, p.Model, p.MaxTokens, p.Temperature), nil
}
