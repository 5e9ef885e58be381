// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/avreyes/pioneerchat/internal/domain"
)

// Repository defines the interface for persisting the registered session
// and UI preferences. The session is a single slot: this server fronts one
// browser identity at a time, the same way the original kept it in
// localStorage.
type Repository interface {
	// GetSession retrieves the stored session, or nil if none is stored.
	GetSession(ctx context.Context) (*domain.UserSession, error)

	// SaveSession stores the session, replacing any previous one.
	SaveSession(ctx context.Context, sess *domain.UserSession) error

	// DeleteSession removes the stored session. Preferences are untouched.
	DeleteSession(ctx context.Context) error

	// GetPreference returns the value for a preference key, or "" if unset.
	GetPreference(ctx context.Context, key string) (string, error)

	// SetPreference stores a preference value.
	SetPreference(ctx context.Context, key, value string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
