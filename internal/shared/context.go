package shared

import "context"

// Actor is the authenticated identity attached to a request. Token
// verification happens upstream; by the time an Actor exists it is
// trusted.
type Actor struct {
	UserID   string
	TenantID string
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context. The second return
// value reports whether one was attached.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
