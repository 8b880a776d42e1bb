package auth

import (
	"context"
)

// UserContext holds the authenticated user. UserID is opaque; it only
// scopes the stored collections.
type UserContext struct {
	UserID string
	Email  string
	Role   string
}

type contextKey string

const userContextKey contextKey = "userContext"

// WithUserContext adds user context to the context
func WithUserContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// WithUserID is a shorthand for contexts that only carry a scope
func WithUserID(ctx context.Context, userID string) context.Context {
	return WithUserContext(ctx, &UserContext{UserID: userID})
}

// FromContext extracts user context from the context
func FromContext(ctx context.Context) (*UserContext, bool) {
	user, ok := ctx.Value(userContextKey).(*UserContext)
	return user, ok && user != nil
}

// UserIDFromContext returns the user id, or "" for anonymous contexts
func UserIDFromContext(ctx context.Context) string {
	if user, ok := FromContext(ctx); ok {
		return user.UserID
	}
	return ""
}
