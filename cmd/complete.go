package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/chatrelay/internal/dependency"
	"github.com/crystaldolphin/chatrelay/internal/schema"
)

var completeSystem string

var completeCmd = &cobra.Command{
	Use:   "complete [prompt]",
	Short: "Run a single tool-free completion against the configured provider",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runComplete,
}

func init() {
	completeCmd.Flags().StringVar(&completeSystem, "system", "", "System prompt")
}

func runComplete(_ *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	container, err := dependency.New(cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	prompt := strings.Join(args, " ")
	text, err := container.Provider().Complete(ctx, completeSystem, []schema.Message{
		schema.NewTextMessage(schema.RoleUser, "user", "", prompt),
	})
	if err != nil {
		return fmt.Errorf("complete: %w", err)
	}
	fmt.Fprintln(os.Stdout, text)
	return nil
}
