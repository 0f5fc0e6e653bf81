package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/chatrelay/internal/bus"
	"github.com/crystaldolphin/chatrelay/internal/channels"
	"github.com/crystaldolphin/chatrelay/internal/dependency"
	"github.com/crystaldolphin/chatrelay/internal/schema"
	"github.com/crystaldolphin/chatrelay/internal/shared/cmdutils"
)

var (
	agentMessage string
	agentChat    string
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Chat with the relay from the terminal",
	RunE:  runAgent,
}

func init() {
	agentCmd.Flags().StringVarP(&agentMessage, "message", "m", "", "Send a single message and exit")
	agentCmd.Flags().StringVarP(&agentChat, "chat", "s", "direct", "Chat ID used as the conversation key")
}

func runAgent(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	container, err := dependency.New(cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	if agentMessage != "" {
		return runSingleMessage(container)
	}
	return runInteractive(container)
}

// runSingleMessage sends one message through the relay and prints the reply.
func runSingleMessage(container *dependency.Container) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	msg := bus.NewInboundMessage(bus.ChannelCLI, "user", agentChat, schema.ContentItem{Kind: schema.KindText, Value: agentMessage})
	msg.SetMsgID(uuid.NewString())
	msg.SetSenderName("user")

	fmt.Fprintf(os.Stderr, "  ↳ thinking...\n")
	out, err := container.Relay().Process(ctx, msg)
	if err != nil {
		return err
	}
	if out == nil {
		fmt.Fprintln(os.Stderr, "  ↳ (no reply)")
		return nil
	}
	cmdutils.PrintResponse(os.Stdout, container.Config().Agent.BotName, out.Content(), out.MetaString(bus.MetaEmojiReact))
	return nil
}

// runInteractive wires a CLI channel to the relay through the bus and runs
// the REPL until the user exits or a signal arrives.
func runInteractive(container *dependency.Container) error {
	fmt.Printf("%s Interactive mode (type 'exit' or Ctrl+C to quit)\n\n", logo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	msgBus := container.MessageBus()
	cli := channels.NewCLIChannel(msgBus, container.Config().Agent.BotName, os.Stdin, os.Stdout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return container.Relay().Run(gctx) })
	g.Go(func() error { return container.Janitor().Start(gctx) })
	g.Go(func() error {
		for {
			select {
			case msg := <-msgBus.Outbound():
				if err := cli.Send(gctx, msg); err != nil {
					return err
				}
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	g.Go(func() error {
		if err := cli.Start(gctx); err != nil {
			return err
		}
		// Input closed or exit typed: stop the rest of the group.
		return errExit
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errExit) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

var errExit = errors.New("exit")
