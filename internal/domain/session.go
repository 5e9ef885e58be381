package domain

import (
	"time"
)

// UserSession is the registered identity for the current browser session.
// The user ID is opaque; it is issued by the personalization service at
// registration time and keys every subsequent call to it.
type UserSession struct {
	Email        string    `json:"email"`
	UserID       string    `json:"user_id"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Age returns how long ago the session was registered.
func (s *UserSession) Age() time.Duration {
	return time.Since(s.RegisteredAt)
}

// Expired reports whether the session is older than maxAge.
func (s *UserSession) Expired(maxAge time.Duration) bool {
	return s.Age() > maxAge
}
