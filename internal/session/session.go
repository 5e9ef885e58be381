// Package session implements the registered-user session store: an email
// registered with the personalization service, the opaque user ID it
// issued, and a UI theme preference that outlives the identity.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/avreyes/pioneerchat/internal/domain"
	"github.com/avreyes/pioneerchat/internal/pioneer"
	"github.com/avreyes/pioneerchat/internal/store"
)

// DefaultMaxAge is how long a registered session stays valid.
const DefaultMaxAge = 30 * 24 * time.Hour

const themeKey = "theme"

// ErrInvalidEmail is returned for empty or malformed email addresses.
var ErrInvalidEmail = errors.New("invalid email address")

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Registrar registers an email with the personalization service and
// returns the issued user ID.
type Registrar interface {
	Register(ctx context.Context, email string) (string, error)
}

// RegistrationError carries the upstream failure detail for the UI.
type RegistrationError struct {
	Detail string
	Err    error
}

func (e *RegistrationError) Error() string {
	return "registration failed: " + e.Detail
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// Store manages the current registered session.
type Store struct {
	repo      store.Repository
	registrar Registrar
	maxAge    time.Duration
	logger    *slog.Logger
}

// NewStore creates a session store.
func NewStore(repo store.Repository, registrar Registrar, maxAge time.Duration, logger *slog.Logger) *Store {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		repo:      repo,
		registrar: registrar,
		maxAge:    maxAge,
		logger:    logger,
	}
}

// Register establishes an identity for the email.
//
// Registration is idempotent while a fresh session for the same email is
// stored: the previously issued user ID is returned without an upstream
// call. A changed email is a new identity: the stored user ID is discarded
// before the new registration, never merged.
func (s *Store) Register(ctx context.Context, email string) (*domain.UserSession, error) {
	email = strings.TrimSpace(email)
	if !emailPattern.MatchString(email) {
		return nil, ErrInvalidEmail
	}

	existing, err := s.repo.GetSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stored session: %w", err)
	}
	if existing != nil {
		if existing.Email == email && !existing.Expired(s.maxAge) {
			return existing, nil
		}
		if err := s.repo.DeleteSession(ctx); err != nil {
			return nil, fmt.Errorf("discard stored session: %w", err)
		}
		if existing.Email != email {
			s.logger.Info("email changed, discarded previous identity", "previous_user_id", existing.UserID)
		}
	}

	userID, err := s.registrar.Register(ctx, email)
	if err != nil {
		return nil, &RegistrationError{Detail: registrationDetail(err), Err: err}
	}

	sess := &domain.UserSession{
		Email:        email,
		UserID:       userID,
		RegisteredAt: time.Now().UTC(),
	}
	if err := s.repo.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	s.logger.Info("user registered", "user_id", userID)
	return sess, nil
}

// Load returns the stored session, or nil if none exists. A session past
// its max age is deleted as a side effect and reported absent.
func (s *Store) Load(ctx context.Context) (*domain.UserSession, error) {
	sess, err := s.repo.GetSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, nil
	}
	if sess.Expired(s.maxAge) {
		if err := s.repo.DeleteSession(ctx); err != nil {
			return nil, fmt.Errorf("purge expired session: %w", err)
		}
		s.logger.Info("expired session purged", "user_id", sess.UserID, "age", sess.Age().String())
		return nil, nil
	}
	return sess, nil
}

// Clear removes the stored session. The theme preference survives.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.repo.DeleteSession(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Theme returns the stored theme preference, or "" if unset.
func (s *Store) Theme(ctx context.Context) (string, error) {
	return s.repo.GetPreference(ctx, themeKey)
}

// SetTheme stores the theme preference.
func (s *Store) SetTheme(ctx context.Context, theme string) error {
	theme = strings.TrimSpace(theme)
	if theme == "" || len(theme) > 32 {
		return fmt.Errorf("invalid theme %q", theme)
	}
	return s.repo.SetPreference(ctx, themeKey, theme)
}

// registrationDetail extracts a user-facing message from an upstream error.
func registrationDetail(err error) string {
	var upstream *pioneer.UpstreamError
	if errors.As(err, &upstream) && upstream.Detail != "" {
		return upstream.Detail
	}
	if errors.Is(err, pioneer.ErrUnreachable) {
		return "the personalization service could not be reached"
	}
	return err.Error()
}
