package channels

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/crystaldolphin/chatrelay/internal/bus"
	"github.com/crystaldolphin/chatrelay/internal/shared/cmdutils"
)

const (
	cliSenderID = "user"
	cliChatID   = "direct"
)

var cliExitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

// CLIChannel wires a terminal into the channel manager so that console input
// reaches the relay via the bus and replies are printed back.
type CLIChannel struct {
	Base
	botName string
	in      io.Reader
	out     io.Writer
	replies chan bus.OutboundMessage
}

// NewCLIChannel creates a CLIChannel reading from in and printing to out.
func NewCLIChannel(b bus.Bus, botName string, in io.Reader, out io.Writer) *CLIChannel {
	return &CLIChannel{
		Base:    NewBase(bus.ChannelCLI, b, nil),
		botName: botName,
		in:      in,
		out:     out,
		replies: make(chan bus.OutboundMessage, 1),
	}
}

func (c *CLIChannel) Name() string { return string(bus.ChannelCLI) }

// Start runs the REPL: reads lines, dispatches them to the relay, and prints
// each reply. Blocks until ctx is cancelled or input is closed.
func (c *CLIChannel) Start(ctx context.Context) error {
	fmt.Fprintf(c.out, "CLI channel ready. Type 'exit' or press Ctrl+C to quit.\n\n")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(c.out, "You: ")

		var line string
		select {
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(c.out, "\nGoodbye!")
				return nil
			}
			line = strings.TrimSpace(l)
		case <-ctx.Done():
			return ctx.Err()
		}

		if line == "" {
			continue
		}
		if cliExitCommands[strings.ToLower(line)] {
			fmt.Fprintln(c.out, "Goodbye!")
			return nil
		}

		msg := bus.NewInboundMessage(bus.ChannelCLI, cliSenderID, cliChatID, textItem(line))
		msg.SetMsgID(uuid.NewString())
		msg.SetSenderName(cliSenderID)
		c.HandleMessage(msg)
		c.waitForReply(ctx)
	}
}

// waitForReply blocks until the relay answers. A silent turn arrives as an
// empty reply and prints nothing.
func (c *CLIChannel) waitForReply(ctx context.Context) {
	select {
	case msg := <-c.replies:
		cmdutils.PrintResponse(c.out, c.botName, msg.Content(), msg.MetaString(bus.MetaEmojiReact))
	case <-ctx.Done():
	}
}

// Send hands a reply to the Start loop, which prints it.
func (c *CLIChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	select {
	case c.replies <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
