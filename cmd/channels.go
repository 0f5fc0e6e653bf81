package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Manage chat channels",
}

func init() {
	channelsCmd.AddCommand(channelsStatusCmd)
}

var channelsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show channel status",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		type row struct{ name, enabled, detail string }
		rows := []row{
			{
				"CLI",
				yesNo(cfg.Channels.CLI),
				"stdin/stdout",
			},
			{
				"Telegram",
				yesNo(cfg.Channels.Telegram.Enabled),
				tokenHint(cfg.Channels.Telegram.Token),
			},
			{
				"Slack",
				yesNo(cfg.Channels.Slack.Enabled),
				func() string {
					if cfg.Channels.Slack.AppToken != "" && cfg.Channels.Slack.BotToken != "" {
						return "socket, group policy " + cfg.Channels.Slack.GroupPolicy
					}
					return "(not configured)"
				}(),
			},
			{
				"WhatsApp",
				yesNo(cfg.Channels.WhatsApp.Enabled),
				cfg.Channels.WhatsApp.BridgeURL,
			},
		}

		fmt.Printf("%-12s %-8s %s\n", "Channel", "Enabled", "Configuration")
		fmt.Println(strings.Repeat("-", 60))
		for _, r := range rows {
			fmt.Printf("%-12s %-8s %s\n", r.name, r.enabled, r.detail)
		}
		return nil
	},
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func tokenHint(s string) string {
	if s == "" {
		return "(not configured)"
	}
	if len(s) <= 10 {
		return "token set"
	}
	return "token: " + s[:10] + "..."
}
