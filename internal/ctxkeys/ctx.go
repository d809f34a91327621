package ctxkeys

import (
	"context"

	"github.com/nzoschke/dreamsaver/internal/model"
)

// contextKey is a type for context keys to avoid collisions
type contextKey string

const (
	OwnerKey contextKey = "owner"
)

// Owner returns the authenticated owner, or nil when the request carried no valid token.
func Owner(ctx context.Context) *model.Owner {
	owner, _ := ctx.Value(OwnerKey).(*model.Owner)
	return owner
}

func WithOwner(ctx context.Context, owner *model.Owner) context.Context {
	return context.WithValue(ctx, OwnerKey, owner)
}
