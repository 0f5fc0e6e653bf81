// Package reply recovers a structured answer from a model's free-form text.
package reply

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/crystaldolphin/chatrelay/internal/schema"
	"github.com/crystaldolphin/chatrelay/internal/shared/llmutils"
)

// TypeText is the answer type used for the plain-text fallback.
const TypeText = "text"

var reFirstObject = regexp.MustCompile(`(?s)\{.*?\}`)

// ExtractAnswer decodes raw into an Answer. The first tier that yields a JSON
// object with a "message" key wins:
//
//  1. the whole text (after <think> stripping)
//  2. the first non-greedy {...} span
//  3. the first balanced {...} or [...] span
//
// When nothing parses, the stripped text becomes the message verbatim, with
// fallbackAuthor as author. ExtractAnswer returns nil only when the text is
// blank after stripping.
func ExtractAnswer(raw, fallbackAuthor string) *schema.Answer {
	stripped := llmutils.StripThink(raw)
	cleaned := strings.TrimSpace(stripped)
	if cleaned == "" {
		return nil
	}

	if a, ok := decode(cleaned); ok {
		return a
	}
	if span := reFirstObject.FindString(cleaned); span != "" {
		if a, ok := decode(span); ok {
			return a
		}
	}
	if span, ok := balancedSpan(cleaned); ok {
		if a, ok := decode(span); ok {
			return a
		}
	}

	slog.Debug("reply: no JSON answer found, using plain text", "preview", llmutils.Truncate(cleaned, 80))
	return &schema.Answer{
		Message: &stripped,
		Author:  fallbackAuthor,
		Type:    TypeText,
	}
}

// decode repairs and parses s, accepting only objects carrying "message".
func decode(s string) (*schema.Answer, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(FixControlChars(s)), &obj); err != nil {
		return nil, false
	}
	msg, ok := obj["message"]
	if !ok {
		return nil, false
	}

	a := &schema.Answer{
		Author:     stringField(obj, "author"),
		Type:       stringField(obj, "type"),
		EmojiReact: stringField(obj, "emojiReact"),
	}
	switch v := msg.(type) {
	case nil:
	case string:
		a.Message = &v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			text := fmt.Sprint(v)
			a.Message = &text
			break
		}
		text := string(b)
		a.Message = &text
	}
	return a, true
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// FixControlChars escapes literal newline, carriage-return, tab, backspace
// and form-feed characters that appear inside JSON string literals. Text
// outside strings is left untouched.
func FixControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString, escaped := false, false
	for _, r := range s {
		if !inString {
			if r == '"' {
				inString = true
			}
			b.WriteRune(r)
			continue
		}

		if escaped {
			escaped = false
			b.WriteRune(r)
			continue
		}
		switch r {
		case '\\':
			escaped = true
			b.WriteRune(r)
		case '"':
			inString = false
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// balancedSpan returns the text from the first '{' or '[' to its matching
// closer, skipping over string literals.
func balancedSpan(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
