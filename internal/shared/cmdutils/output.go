package cmdutils

import (
	"fmt"
	"io"
)

const logo = "🐬"

// PrintResponse writes a bot reply to w under the bot's name. An optional
// emoji reaction is shown after the name.
func PrintResponse(w io.Writer, name, text, react string) {
	if text == "" && react == "" {
		return
	}
	header := logo + " " + name
	if react != "" {
		header += " " + react
	}
	if text == "" {
		fmt.Fprintf(w, "\n%s\n\n", header)
		return
	}
	fmt.Fprintf(w, "\n%s\n%s\n\n", header, text)
}
