package repository

import (
	"context"

	"github.com/maklermate/maklermate-api/internal/auth"
)

// ScopedKey appends the user id from ctx to base. Anonymous contexts use
// base unchanged, which keeps single-user installs on the legacy key.
func ScopedKey(ctx context.Context, base string) string {
	if userID := auth.UserIDFromContext(ctx); userID != "" {
		return base + ":" + userID
	}
	return base
}
