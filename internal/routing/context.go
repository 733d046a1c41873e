package routing

import (
	"context"
)

// clientIPKey is an unexported context key for passing client IP through internal layers.
//
// Provider HTTP handlers (Gin) should resolve the real client IP and attach it to
// the request context using WithClientIP.

type clientIPKey struct{}

func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	v := ctx.Value(clientIPKey{})
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// Actor identifies the authenticated user behind an administrative action.
// Attached by HTTP middleware; audit records pick it up from context.
type Actor struct {
	UserID string
	Role   string
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	if a == (Actor{}) {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFromContext(ctx context.Context) Actor {
	v := ctx.Value(actorKey{})
	if a, ok := v.(Actor); ok {
		return a
	}
	return Actor{}
}

func actorUserID(ctx context.Context) string { return ActorFromContext(ctx).UserID }
func actorRole(ctx context.Context) string   { return ActorFromContext(ctx).Role }
