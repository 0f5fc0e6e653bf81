// Package config defines the configuration schema for chatrelay.
//
// JSON keys use camelCase; YAML files use the same keys.
package config

import (
	"os"
	"path/filepath"
	"time"
)

// ProviderConfig holds credentials for one LLM provider.
type ProviderConfig struct {
	APIKey            string            `json:"apiKey" yaml:"apiKey"`
	APIBase           string            `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
	ExtraHeaders      map[string]string `json:"extraHeaders,omitempty" yaml:"extraHeaders,omitempty"`
	RequestsPerSecond float64           `json:"requestsPerSecond,omitempty" yaml:"requestsPerSecond,omitempty"`
}

// ProvidersConfig holds credentials for every provider in the registry.
type ProvidersConfig struct {
	Anthropic  ProviderConfig `json:"anthropic" yaml:"anthropic"`
	DeepSeek   ProviderConfig `json:"deepseek" yaml:"deepseek"`
	OpenAI     ProviderConfig `json:"openai" yaml:"openai"`
	DashScope  ProviderConfig `json:"dashscope" yaml:"dashscope"`
	DeepInfra  ProviderConfig `json:"deepinfra" yaml:"deepinfra"`
	Moonshot   ProviderConfig `json:"moonshot" yaml:"moonshot"`
	OpenRouter ProviderConfig `json:"openrouter" yaml:"openrouter"`
	Custom     ProviderConfig `json:"custom" yaml:"custom"`
}

// ByName returns a pointer to the ProviderConfig field matching the given
// registry name. Returns nil if the name is unknown.
func (p *ProvidersConfig) ByName(name string) *ProviderConfig {
	switch name {
	case "anthropic":
		return &p.Anthropic
	case "deepseek":
		return &p.DeepSeek
	case "openai":
		return &p.OpenAI
	case "dashscope":
		return &p.DashScope
	case "deepinfra":
		return &p.DeepInfra
	case "moonshot":
		return &p.Moonshot
	case "openrouter":
		return &p.OpenRouter
	case "custom":
		return &p.Custom
	}
	return nil
}

// AgentConfig holds the relay's model and conversation settings.
type AgentConfig struct {
	Model           string  `json:"model" yaml:"model"`
	Provider        string  `json:"provider,omitempty" yaml:"provider,omitempty"` // registry name; empty = match by model
	Kind            string  `json:"kind,omitempty" yaml:"kind,omitempty"`         // wire format override
	MaxTokens       int     `json:"maxTokens" yaml:"maxTokens"`
	Temperature     float64 `json:"temperature" yaml:"temperature"`
	MaxCycles       int     `json:"maxCycles" yaml:"maxCycles"`
	CacheTTLSeconds int     `json:"cacheTtlSeconds" yaml:"cacheTtlSeconds"`
	SystemPrompt    string  `json:"systemPrompt" yaml:"systemPrompt"`
	BotName         string  `json:"botName" yaml:"botName"`
}

const defaultSystemPrompt = `You are a helpful participant in a group chat.
Each user turn is a JSON object with the fields message, msg_id, type, author_id, author_name and date.
Answer with a single JSON object: {"message": "<your reply>", "author": "<your name>", "type": "text"}.
Set "message" to null when no reply is needed. Add "emojiReact" with a single emoji to react to the last message.`

func defaultAgentConfig() AgentConfig {
	return AgentConfig{
		Model:           "anthropic/claude-sonnet-4-5",
		MaxTokens:       4096,
		Temperature:     0.7,
		MaxCycles:       5,
		CacheTTLSeconds: 1800,
		SystemPrompt:    defaultSystemPrompt,
		BotName:         "Relay",
	}
}

// CacheTTL returns the conversation cache TTL as a duration.
func (a AgentConfig) CacheTTL() time.Duration {
	return time.Duration(a.CacheTTLSeconds) * time.Second
}

// ---- Channel configs -------------------------------------------------------

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	Token          string   `json:"token" yaml:"token"`
	AllowFrom      []string `json:"allowFrom" yaml:"allowFrom"`
	ReplyToMessage bool     `json:"replyToMessage" yaml:"replyToMessage"`
	MaxMediaBytes  int      `json:"maxMediaBytes" yaml:"maxMediaBytes"`
}

// SlackConfig configures the Slack channel (Socket Mode).
type SlackConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	BotToken       string   `json:"botToken" yaml:"botToken"`
	AppToken       string   `json:"appToken" yaml:"appToken"`
	ReplyInThread  bool     `json:"replyInThread" yaml:"replyInThread"`
	GroupPolicy    string   `json:"groupPolicy" yaml:"groupPolicy"` // open | mention | allowlist
	GroupAllowFrom []string `json:"groupAllowFrom" yaml:"groupAllowFrom"`
	AllowFrom      []string `json:"allowFrom" yaml:"allowFrom"`
}

// WhatsAppConfig configures the WhatsApp bridge channel.
type WhatsAppConfig struct {
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	BridgeURL   string   `json:"bridgeUrl" yaml:"bridgeUrl"`
	BridgeToken string   `json:"bridgeToken" yaml:"bridgeToken"`
	AllowFrom   []string `json:"allowFrom" yaml:"allowFrom"`
}

// ChannelsConfig groups all channel configurations.
type ChannelsConfig struct {
	CLI      bool           `json:"cli" yaml:"cli"`
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
	Slack    SlackConfig    `json:"slack" yaml:"slack"`
	WhatsApp WhatsAppConfig `json:"whatsapp" yaml:"whatsapp"`
}

func defaultChannelsConfig() ChannelsConfig {
	return ChannelsConfig{
		Telegram: TelegramConfig{AllowFrom: []string{}, MaxMediaBytes: 10 << 20},
		Slack: SlackConfig{
			ReplyInThread:  true,
			GroupPolicy:    "mention",
			GroupAllowFrom: []string{},
			AllowFrom:      []string{},
		},
		WhatsApp: WhatsAppConfig{BridgeURL: "ws://localhost:3001", AllowFrom: []string{}},
	}
}

// ---- Cache & tools ---------------------------------------------------------

// CacheConfig selects the conversation cache backend.
type CacheConfig struct {
	Backend string `json:"backend" yaml:"backend"` // memory | sqlite
	Path    string `json:"path" yaml:"path"`       // sqlite file, "~/" expanded
	Sweep   string `json:"sweep" yaml:"sweep"`     // cron spec for expiring entries
}

func defaultCacheConfig() CacheConfig {
	return CacheConfig{
		Backend: "memory",
		Path:    "~/.chatrelay/cache.db",
		Sweep:   "@every 1m",
	}
}

// ToolsConfig groups all tool-level settings.
type ToolsConfig struct {
	WebFetch   WebFetchConfig             `json:"webFetch" yaml:"webFetch"`
	MCPServers map[string]MCPServerConfig `json:"mcpServers,omitempty" yaml:"mcpServers,omitempty"`
}

// WebFetchConfig configures the web_fetch tool.
type WebFetchConfig struct {
	Enabled  bool `json:"enabled" yaml:"enabled"`
	MaxChars int  `json:"maxChars" yaml:"maxChars"`
}

// MCPServerConfig describes one MCP server: a command to spawn over stdio,
// or a streamable HTTP url.
type MCPServerConfig struct {
	Command        string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args           []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env            map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	URL            string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers        map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	TimeoutSeconds int               `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
}

func (m MCPServerConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

// ---- Root config -----------------------------------------------------------

// Config is the root configuration object, loaded from ~/.chatrelay/config.json.
type Config struct {
	Agent     AgentConfig     `json:"agent" yaml:"agent"`
	Providers ProvidersConfig `json:"providers" yaml:"providers"`
	Channels  ChannelsConfig  `json:"channels" yaml:"channels"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Tools     ToolsConfig     `json:"tools" yaml:"tools"`
	LogLevel  string          `json:"logLevel" yaml:"logLevel"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Agent:     defaultAgentConfig(),
		Providers: ProvidersConfig{},
		Channels:  defaultChannelsConfig(),
		Cache:     defaultCacheConfig(),
		Tools:     ToolsConfig{WebFetch: WebFetchConfig{Enabled: true, MaxChars: 20000}},
		LogLevel:  "info",
	}
}

// CachePath returns the expanded absolute path to the SQLite cache file.
func (c *Config) CachePath() string {
	return expandHome(c.Cache.Path)
}

func expandHome(p string) string {
	if len(p) >= 2 && p[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
