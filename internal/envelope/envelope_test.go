package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/chatrelay/internal/schema"
)

func TestBuildDefaults(t *testing.T) {
	msg := schema.Message{Role: schema.RoleUser, Name: "alice"}
	item := schema.ContentItem{
		Kind:       schema.KindASR,
		Value:      "voice note text",
		MsgID:      "m-1",
		AuthorID:   "u-1",
		DateString: "2024-05-01 10:00",
	}

	e := Build(msg, item)

	assert.Equal(t, "voice note text", e.Message)
	assert.Equal(t, "asr", e.Type)
	assert.Equal(t, "m-1", e.MsgID)
	assert.Equal(t, "u-1", e.AuthorID)
	assert.Equal(t, "alice", e.AuthorName, "author name falls back to the message name")
	assert.Equal(t, "2024-05-01 10:00", e.Date)
}

func TestBuildOverrides(t *testing.T) {
	msg := schema.Message{Role: schema.RoleUser}
	item := schema.ContentItem{Kind: schema.KindImage, Value: "aGVsbG8=", MsgID: "m-2", AuthorName: "bob"}

	e := Build(msg, item, WithMessage("custom"), WithType("transcription"))

	assert.Equal(t, "custom", e.Message)
	assert.Equal(t, "transcription", e.Type)
	assert.Equal(t, "bob", e.AuthorName)
}

func TestImageItemHasNoDefaultMessage(t *testing.T) {
	e := Build(schema.Message{}, schema.ContentItem{Kind: schema.KindImage, Value: "aGVsbG8="})
	assert.Empty(t, e.Message, "base64 bodies must never leak into the envelope")
}

func TestFallbackAndUnsupported(t *testing.T) {
	item := schema.ContentItem{Kind: schema.KindFile, MsgID: "m-3"}

	assert.Equal(t, FallbackNotice, Fallback(schema.Message{}, item).Message)
	assert.Equal(t, "unsupported type: file", Unsupported(schema.Message{}, item).Message)
}

func TestStringParseRoundTrip(t *testing.T) {
	in := Envelope{Message: "a < b & \"quoted\"\nnext", MsgID: "m-4", Type: "text", AuthorName: "carol"}

	s := in.String()
	assert.Contains(t, s, "a < b & ", "html characters are not escaped")
	assert.NotContains(t, s, "author_id", "empty optional fields are omitted")

	out, err := Parse(s)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not an envelope")
	assert.Error(t, err)
}

func TestMapOmitsEmptyOptionals(t *testing.T) {
	m := Envelope{Message: "hi", MsgID: "m-5", Type: "text"}.Map()
	assert.Equal(t, map[string]any{"message": "hi", "msg_id": "m-5", "type": "text"}, m)
}
