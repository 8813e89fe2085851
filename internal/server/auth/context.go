package auth

import (
	"context"

	"github.com/dmitrijs2005/cabinetsync/internal/common"
)

type actorKey struct{}

// WithActor returns ctx carrying the acting practitioner id.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

// ActorFromContext returns the acting practitioner id, or
// common.ErrorUnauthorized when the request is unauthenticated.
func ActorFromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(actorKey{}).(string)
	if !ok || id == "" {
		return "", common.ErrorUnauthorized
	}
	return id, nil
}
