// Package dependency wires core chatrelay services using go.uber.org/dig.
package dependency

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/dig"

	"github.com/crystaldolphin/chatrelay/internal/agent"
	"github.com/crystaldolphin/chatrelay/internal/bus"
	"github.com/crystaldolphin/chatrelay/internal/cache"
	"github.com/crystaldolphin/chatrelay/internal/channels"
	"github.com/crystaldolphin/chatrelay/internal/config"
	"github.com/crystaldolphin/chatrelay/internal/mcp"
	"github.com/crystaldolphin/chatrelay/internal/providers"
	"github.com/crystaldolphin/chatrelay/internal/tools"
)

// Container holds the resolved core service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	cfg          *config.Config
	provider     *providers.Provider
	msgBus       *bus.MessageBus
	store        cache.Store
	janitor      *cache.Janitor
	registry     *tools.Registry
	mcpServers   *mcp.Manager
	orchestrator *agent.Orchestrator
	relay        *agent.Relay
}

func (c *Container) Config() *config.Config            { return c.cfg }
func (c *Container) Provider() *providers.Provider     { return c.provider }
func (c *Container) MessageBus() *bus.MessageBus       { return c.msgBus }
func (c *Container) Cache() cache.Store                { return c.store }
func (c *Container) Janitor() *cache.Janitor           { return c.janitor }
func (c *Container) Tools() *tools.Registry            { return c.registry }
func (c *Container) Orchestrator() *agent.Orchestrator { return c.orchestrator }
func (c *Container) Relay() *agent.Relay               { return c.relay }

// Channels builds the channel manager for the configured channels plus any
// extra channels the caller supplies. A terminal channel on stdin/stdout is
// added when channels.cli is set.
func (c *Container) Channels(extra ...channels.Channel) *channels.Manager {
	if c.cfg.Channels.CLI {
		extra = append(extra, channels.NewCLIChannel(c.msgBus, c.cfg.Agent.BotName, os.Stdin, os.Stdout))
	}
	return channels.NewManager(c.cfg, c.msgBus, extra...)
}

// Close stops MCP server processes and releases the conversation cache.
func (c *Container) Close() error {
	return errors.Join(c.mcpServers.Close(), c.store.Close())
}

// New builds and wires all core services from cfg.
func New(cfg *config.Config) (*Container, error) {
	d := dig.New()

	constructors := []any{
		func() *config.Config { return cfg },
		newProvider,
		newMessageBus,
		func(b *bus.MessageBus) bus.Bus { return b },
		newCacheStore,
		cache.NewLocks,
		newJanitor,
		newMCPManager,
		newToolRegistry,
		newOrchestrator,
		newRelay,
	}
	for _, c := range constructors {
		if err := d.Provide(c); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		provider *providers.Provider,
		msgBus *bus.MessageBus,
		store cache.Store,
		janitor *cache.Janitor,
		registry *tools.Registry,
		mcpServers *mcp.Manager,
		orchestrator *agent.Orchestrator,
		relay *agent.Relay,
	) {
		result = &Container{
			cfg:          cfg,
			provider:     provider,
			msgBus:       msgBus,
			store:        store,
			janitor:      janitor,
			registry:     registry,
			mcpServers:   mcpServers,
			orchestrator: orchestrator,
			relay:        relay,
		}
	})
	if err != nil {
		return nil, dig.RootCause(err)
	}
	return result, nil
}

func newProvider(cfg *config.Config) (*providers.Provider, error) {
	params := cfg.ProviderParams()
	if params.APIKey == "" && params.ProviderName != "custom" {
		return nil, fmt.Errorf("no API key configured for model %q: edit %s", cfg.Agent.Model, config.ConfigPath())
	}
	return providers.New(params)
}

func newMessageBus() *bus.MessageBus {
	return bus.NewMessageBus(100)
}

func newCacheStore(cfg *config.Config) (cache.Store, error) {
	return cache.Open(cfg.Cache.Backend, cfg.CachePath())
}

func newJanitor(cfg *config.Config, store cache.Store) (*cache.Janitor, error) {
	return cache.NewJanitor(store, cfg.Cache.Sweep)
}

// mcpConnectTimeout bounds the startup handshake with all MCP servers.
const mcpConnectTimeout = 30 * time.Second

func newMCPManager(cfg *config.Config) *mcp.Manager {
	servers := make(map[string]mcp.ServerConfig, len(cfg.Tools.MCPServers))
	for name, s := range cfg.Tools.MCPServers {
		servers[name] = mcp.ServerConfig{
			Command: s.Command,
			Args:    s.Args,
			Env:     s.Env,
			URL:     s.URL,
			Headers: s.Headers,
			Timeout: s.Timeout(),
		}
	}
	return mcp.NewManager(servers)
}

func newToolRegistry(cfg *config.Config, servers *mcp.Manager) *tools.Registry {
	registry := tools.NewRegistry()
	if cfg.Tools.WebFetch.Enabled {
		registry.Add(tools.NewWebFetchTool(cfg.Tools.WebFetch.MaxChars))
	}
	if len(cfg.Tools.MCPServers) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), mcpConnectTimeout)
		defer cancel()
		servers.Connect(ctx, registry)
	}
	return registry
}

func newOrchestrator(cfg *config.Config, p *providers.Provider, store cache.Store, registry *tools.Registry) *agent.Orchestrator {
	return agent.NewOrchestrator(p, store, registry,
		agent.WithMaxCycles(cfg.Agent.MaxCycles),
		agent.WithTTL(cfg.Agent.CacheTTL()),
	)
}

func newRelay(
	cfg *config.Config,
	b bus.Bus,
	o *agent.Orchestrator,
	store cache.Store,
	locks *cache.Locks,
	registry *tools.Registry,
) *agent.Relay {
	return agent.NewRelay(b, o, store, locks, registry, agent.Settings{
		SystemPrompt: cfg.Agent.SystemPrompt,
		BotName:      cfg.Agent.BotName,
	})
}
