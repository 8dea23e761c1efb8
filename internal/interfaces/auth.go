package interfaces

import (
	"context"

	"github.com/ternarybob/praedium/internal/models"
)

// TokenSource - read side of the token lifecycle manager as seen by workers
type TokenSource interface {
	// Token returns the current bearer token. ok is false when no credential
	// is available; callers must fail their attempt with a no-credential
	// error rather than blocking.
	Token() (value string, ok bool)

	// ForceRefresh synchronously refreshes the token, used when the upstream
	// rejects the current one as stale
	ForceRefresh(ctx context.Context) error

	// Health exposes refresh statistics for monitoring
	Health() models.TokenHealth
}
