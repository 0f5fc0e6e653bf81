package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/chatrelay/internal/providers"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show chatrelay status",
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfgPath := configPath()

	fmt.Printf("%s chatrelay Status\n\n", logo)

	_, statErr := os.Stat(cfgPath)
	cfgMark := "✗"
	if statErr == nil {
		cfgMark = "✓"
	}
	fmt.Printf("Config:    %s %s\n", cfgPath, cfgMark)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}

	match := cfg.MatchProvider(cfg.Agent.Model)
	kind := cfg.Agent.Kind
	if kind == "" {
		if spec := providers.FindByName(match.Name); spec != nil {
			kind = string(spec.Kind)
		}
	}
	fmt.Printf("Model:     %s\n", cfg.Agent.Model)
	fmt.Printf("Provider:  %s (%s)\n", orNone(match.Name), orNone(kind))
	fmt.Printf("Cache:     %s", cfg.Cache.Backend)
	if cfg.Cache.Backend == "sqlite" {
		fmt.Printf(" %s", cfg.CachePath())
	}
	fmt.Printf(", ttl %s, sweep %s\n", cfg.Agent.CacheTTL(), cfg.Cache.Sweep)
	fmt.Printf("Cycles:    %d\n\n", cfg.Agent.MaxCycles)

	fmt.Println("Providers:")
	for _, spec := range providers.PROVIDERS {
		p := cfg.Providers.ByName(spec.Name)
		if p == nil {
			continue
		}
		label := spec.Label()
		switch {
		case p.APIKey != "":
			fmt.Printf("  %-20s ✓ %s\n", label, spec.Kind)
		case spec.Name == "custom" && p.APIBase != "":
			fmt.Printf("  %-20s ✓ %s\n", label, p.APIBase)
		default:
			fmt.Printf("  %-20s (not set)\n", label)
		}
	}

	if len(cfg.Tools.MCPServers) > 0 {
		fmt.Println("\nMCP servers:")
		names := make([]string, 0, len(cfg.Tools.MCPServers))
		for name := range cfg.Tools.MCPServers {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			s := cfg.Tools.MCPServers[name]
			target := s.URL
			if s.Command != "" {
				target = s.Command
			}
			fmt.Printf("  %-20s %s\n", name, orNone(target))
		}
	}
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
