package tools

import "context"

// TurnContext carries per-turn routing metadata through the context tree.
// The relay sets it once per inbound message; tools read it inside Execute.
type TurnContext struct {
	Channel string
	ChatID  string
	MsgID   string
}

type turnKey struct{}

// WithTurnContext returns a child context that carries tc.
func WithTurnContext(ctx context.Context, tc TurnContext) context.Context {
	return context.WithValue(ctx, turnKey{}, tc)
}

// TurnCtx extracts the TurnContext from ctx.
// Returns a zero-value TurnContext if none was set.
func TurnCtx(ctx context.Context) TurnContext {
	tc, _ := ctx.Value(turnKey{}).(TurnContext)
	return tc
}
