package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/chatrelay/internal/bus"
	"github.com/crystaldolphin/chatrelay/internal/cache"
	"github.com/crystaldolphin/chatrelay/internal/envelope"
	"github.com/crystaldolphin/chatrelay/internal/providers"
	"github.com/crystaldolphin/chatrelay/internal/schema"
)

func newTestRelay(t *testing.T, p *scriptedProvider) (*Relay, *cache.Memory, *bus.MessageBus) {
	t.Helper()
	d := &recordingDispatcher{}
	o, mem := newTestOrchestrator(t, providers.KindClaude, p, d)
	b := bus.NewMessageBus(4)
	return NewRelay(b, o, mem, cache.NewLocks(), d, Settings{SystemPrompt: "sys", BotName: "Relay"}), mem, b
}

func inbound(text string) bus.InboundMessage {
	msg := bus.NewInboundMessage(bus.ChannelTelegram, "42", "chat", schema.ContentItem{Kind: schema.KindText, Value: text})
	msg.SetMsgID("m-7")
	msg.SetSenderName("Alice")
	return msg
}

func TestProcessDecodesAnswer(t *testing.T) {
	p := &scriptedProvider{responses: []schema.ChatResponse{{Content: `<think>hmm</think>{"message":"hi Alice","author":"Relay","emojiReact":"👍"}`}}}
	r, _, _ := newTestRelay(t, p)

	out, err := r.Process(context.Background(), inbound("hello"))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "hi Alice", out.Content())
	assert.Equal(t, "👍", out.MetaString(bus.MetaEmojiReact))
	assert.Equal(t, "m-7", out.MetaString(bus.MetaReplyTo))

	// The user's text reaches the provider wrapped in an envelope.
	first := p.requests[0].Messages[0]["content"].([]any)[0].(map[string]any)
	env, err := envelope.Parse(first["text"].(string))
	require.NoError(t, err)
	assert.Equal(t, "hello", env.Message)
	assert.Equal(t, "m-7", env.MsgID)
	assert.Equal(t, "Alice", env.AuthorName)
}

func TestProcessPlainTextFallsBackToBotAuthor(t *testing.T) {
	p := &scriptedProvider{responses: []schema.ChatResponse{{Content: "just words"}}}
	r, _, _ := newTestRelay(t, p)

	out, err := r.Process(context.Background(), inbound("hello"))
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "just words", out.Content())
}

func TestProcessNullMessageSendsNothing(t *testing.T) {
	p := &scriptedProvider{responses: []schema.ChatResponse{{Content: `{"message":null}`}}}
	r, _, _ := newTestRelay(t, p)

	out, err := r.Process(context.Background(), inbound("hello"))
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestProcessErrorResetsConversation(t *testing.T) {
	p := &scriptedProvider{responses: []schema.ChatResponse{{Content: "ok"}}}
	r, mem, _ := newTestRelay(t, p)
	ctx := context.Background()

	_, err := r.Process(ctx, inbound("first"))
	require.NoError(t, err)
	_, ok, _ := mem.Get(ctx, "telegram:chat")
	require.True(t, ok)

	p.err = providers.ErrTransport
	_, err = r.Process(ctx, inbound("second"))
	assert.ErrorIs(t, err, providers.ErrTransport)
	_, ok, _ = mem.Get(ctx, "telegram:chat")
	assert.False(t, ok, "a failed turn drops the cached conversation")
}

func TestSlashCommands(t *testing.T) {
	p := &scriptedProvider{responses: []schema.ChatResponse{{Content: "ok"}}}
	r, mem, _ := newTestRelay(t, p)
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, "telegram:chat", []schema.WireMessage{{"role": "user"}}, time.Hour))

	out, err := r.Process(ctx, inbound(" /NEW "))
	require.NoError(t, err)
	assert.Equal(t, newText, out.Content())
	_, ok, _ := mem.Get(ctx, "telegram:chat")
	assert.False(t, ok)

	out, err = r.Process(ctx, inbound("/help"))
	require.NoError(t, err)
	assert.Contains(t, out.Content(), "/new")
	assert.Empty(t, p.requests, "commands never reach the provider")
}

func TestRunPublishesApologyOnFailure(t *testing.T) {
	p := &scriptedProvider{err: providers.ErrTransport}
	r, _, b := newTestRelay(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	b.PublishInbound(inbound("hello"))
	select {
	case out := <-b.Outbound():
		assert.Equal(t, apologyText, out.Content())
		assert.Equal(t, bus.ChannelTelegram, out.Channel())
	case <-time.After(2 * time.Second):
		t.Fatal("no outbound message")
	}
}

func TestProcessSerializesSameChat(t *testing.T) {
	p := &scriptedProvider{
		responses: []schema.ChatResponse{{Content: `{"message":"ok"}`}},
		gate:      make(chan struct{}),
	}
	r, _, _ := newTestRelay(t, p)
	key := inbound("x").SessionKey()

	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, _ = r.Process(context.Background(), inbound("hi"))
			done <- struct{}{}
		}()
	}

	require.Eventually(t, func() bool { return r.locks.Busy(key) }, time.Second, 5*time.Millisecond)
	p.gate <- struct{}{}
	<-done
	assert.True(t, r.locks.Busy(key), "the second turn is still running or queued")

	p.gate <- struct{}{}
	<-done
	assert.False(t, r.locks.Busy(key))
	assert.Len(t, p.requests, 2)
}
