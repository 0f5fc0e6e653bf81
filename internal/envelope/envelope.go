// Package envelope builds the provenance metadata carried inside text content
// so a model can quote message and author ids back when it calls tools.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

// FallbackNotice is the message of a synthetic carrier envelope attached to
// a message that only holds an attachment.
const FallbackNotice = "[system notice] this message only carries an attachment id"

// Envelope is the metadata object embedded as text in provider payloads.
type Envelope struct {
	Message    string `json:"message"`
	MsgID      string `json:"msg_id"`
	Type       string `json:"type"`
	AuthorID   string `json:"author_id,omitempty"`
	AuthorName string `json:"author_name,omitempty"`
	Date       string `json:"date,omitempty"`
}

// Option overrides a default field of a built Envelope.
type Option func(*Envelope)

// WithMessage replaces the message text.
func WithMessage(message string) Option {
	return func(e *Envelope) { e.Message = message }
}

// WithType replaces the type tag.
func WithType(typ string) Option {
	return func(e *Envelope) { e.Type = typ }
}

// Build returns the envelope for one content item of msg. Message defaults to
// the item value for text-like items and Type to the item kind.
func Build(msg schema.Message, item schema.ContentItem, opts ...Option) Envelope {
	e := Envelope{
		MsgID:      item.MsgID,
		Type:       string(item.Kind),
		AuthorID:   item.AuthorID,
		AuthorName: item.AuthorName,
		Date:       item.DateString,
	}
	if item.IsTextLike() {
		e.Message = item.Value
	}
	if e.AuthorName == "" {
		e.AuthorName = msg.Name
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// Fallback builds the carrier envelope for an attachment-only item.
func Fallback(msg schema.Message, item schema.ContentItem) Envelope {
	return Build(msg, item, WithMessage(FallbackNotice))
}

// Unsupported builds an envelope telling the model an attachment could not
// be forwarded to it.
func Unsupported(msg schema.Message, item schema.ContentItem) Envelope {
	return Build(msg, item, WithMessage(UnsupportedNotice(item.Kind)))
}

// UnsupportedNotice is the message used for attachments a provider can't take.
func UnsupportedNotice(kind schema.ContentKind) string {
	return "unsupported type: " + string(kind)
}

// String serializes the envelope as compact JSON without HTML escaping.
func (e Envelope) String() string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return e.Message
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// Map returns the envelope as a plain JSON object, for adapters that embed
// it unstringified.
func (e Envelope) Map() map[string]any {
	m := map[string]any{
		"message": e.Message,
		"msg_id":  e.MsgID,
		"type":    e.Type,
	}
	if e.AuthorID != "" {
		m["author_id"] = e.AuthorID
	}
	if e.AuthorName != "" {
		m["author_name"] = e.AuthorName
	}
	if e.Date != "" {
		m["date"] = e.Date
	}
	return m
}

// Parse is the inverse of String.
func Parse(s string) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal([]byte(s), &e); err != nil {
		return Envelope{}, fmt.Errorf("parse envelope: %w", err)
	}
	return e, nil
}
