package shared

import "context"

type ctxKey int

const actorKey ctxKey = iota

// ContextWithActor stores the authenticated caller id on the context.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorKey, actorID)
}

// ActorFromContext returns the authenticated caller id, or zero when the
// request carried no identity.
func ActorFromContext(ctx context.Context) int64 {
	if v, ok := ctx.Value(actorKey).(int64); ok {
		return v
	}
	return 0
}
