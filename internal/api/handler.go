// Package api provides HTTP handlers for the chat API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avreyes/pioneerchat/internal/domain"
	"github.com/avreyes/pioneerchat/internal/orchestrator"
	"github.com/avreyes/pioneerchat/internal/pioneer"
	"github.com/avreyes/pioneerchat/internal/session"
	"github.com/go-chi/chi/v5"
)

// SessionService is the session store surface the handlers need.
type SessionService interface {
	Register(ctx context.Context, email string) (*domain.UserSession, error)
	Load(ctx context.Context) (*domain.UserSession, error)
	Clear(ctx context.Context) error
	Theme(ctx context.Context) (string, error)
	SetTheme(ctx context.Context, theme string) error
}

// TurnService runs chat turns.
type TurnService interface {
	HandleTurn(ctx context.Context, message string, history []domain.Turn, sess *domain.UserSession) (*orchestrator.TurnResult, error)
	ForgetProfile(userID string)
}

// Handler serves the UI-facing endpoints.
type Handler struct {
	sessions SessionService
	turns    TurnService
}

// NewHandler creates a new Handler.
func NewHandler(sessions SessionService, turns TurnService) *Handler {
	return &Handler{
		sessions: sessions,
		turns:    turns,
	}
}

// RegisterRoutes registers the chat API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/register", h.Register)
	r.Post("/chat", h.Chat)
	r.Post("/logout", h.Logout)
	r.Get("/session", h.Session)
	r.Get("/theme", h.GetTheme)
	r.Put("/theme", h.SetTheme)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

type registerRequest struct {
	Email string `json:"email"`
}

type registerResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"user_id,omitempty"`
	Message string `json:"message,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// Register establishes a user identity for the given email.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.sessions.Register(r.Context(), req.Email)
	if err != nil {
		status := http.StatusBadGateway
		detail := err.Error()

		var regErr *session.RegistrationError
		switch {
		case errors.Is(err, session.ErrInvalidEmail):
			status = http.StatusBadRequest
		case errors.As(err, &regErr):
			detail = regErr.Detail
		default:
			status = http.StatusInternalServerError
		}

		slog.Error("registration failed", "error", err)
		JSON(w, status, registerResponse{Success: false, Detail: detail})
		return
	}

	JSON(w, http.StatusOK, registerResponse{
		Success: true,
		UserID:  sess.UserID,
		Message: fmt.Sprintf("User %s registered successfully", sess.Email),
	})
}

type turnPayload struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

func (p turnPayload) toDomain() domain.Turn {
	turn := domain.Turn{
		Role:    domain.Role(p.Role),
		Content: p.Content,
	}
	if ts, err := time.Parse(time.RFC3339, p.Timestamp); err == nil {
		turn.Timestamp = ts
	}
	return turn
}

type chatRequest struct {
	Message             string        `json:"message"`
	ConversationHistory []turnPayload `json:"conversation_history"`
	UserID              string        `json:"user_id"`
	UserEmail           string        `json:"user_email"` // logging only
}

type chunkPayload struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
	Type  string  `json:"type"`
}

type chatResponse struct {
	Response        string         `json:"response"`
	RelevantContext []chunkPayload `json:"relevant_context,omitempty"`
	UserProfile     string         `json:"user_profile,omitempty"`
}

// Chat processes one chat turn.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.UserID == "" {
		Error(w, http.StatusBadRequest, "user_id is required. Please register first.")
		return
	}

	history := make([]domain.Turn, 0, len(req.ConversationHistory))
	for _, p := range req.ConversationHistory {
		history = append(history, p.toDomain())
	}

	sess := &domain.UserSession{UserID: req.UserID, Email: req.UserEmail}

	result, err := h.turns.HandleTurn(r.Context(), req.Message, history, sess)
	if err != nil {
		slog.Error("chat turn failed", "user_id", req.UserID, "error", err)
		Error(w, turnErrorStatus(err), err.Error())
		return
	}

	resp := chatResponse{
		Response:    result.Response,
		UserProfile: result.ProfileSummary,
	}
	for _, c := range result.ContextUsed {
		resp.RelevantContext = append(resp.RelevantContext, chunkPayload{
			Text:  c.Text,
			Score: c.Score,
			Type:  c.SourceType,
		})
	}
	JSON(w, http.StatusOK, resp)
}

// Logout clears the stored session. The theme preference survives.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Load(r.Context())
	if err != nil {
		slog.Error("failed to load session for logout", "error", err)
		Error(w, http.StatusInternalServerError, "failed to clear session")
		return
	}
	if err := h.sessions.Clear(r.Context()); err != nil {
		slog.Error("failed to clear session", "error", err)
		Error(w, http.StatusInternalServerError, "failed to clear session")
		return
	}
	if sess != nil {
		h.turns.ForgetProfile(sess.UserID)
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

type sessionResponse struct {
	Registered   bool   `json:"registered"`
	Email        string `json:"email,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	RegisteredAt string `json:"registered_at,omitempty"`
}

// Session reports the stored session so the UI can restore its state.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Load(r.Context())
	if err != nil {
		slog.Error("failed to load session", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if sess == nil {
		JSON(w, http.StatusOK, sessionResponse{Registered: false})
		return
	}
	JSON(w, http.StatusOK, sessionResponse{
		Registered:   true,
		Email:        sess.Email,
		UserID:       sess.UserID,
		RegisteredAt: sess.RegisteredAt.UTC().Format(time.RFC3339),
	})
}

type themePayload struct {
	Theme string `json:"theme"`
}

// GetTheme returns the stored theme preference.
func (h *Handler) GetTheme(w http.ResponseWriter, r *http.Request) {
	theme, err := h.sessions.Theme(r.Context())
	if err != nil {
		slog.Error("failed to load theme preference", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load theme")
		return
	}
	JSON(w, http.StatusOK, themePayload{Theme: theme})
}

// SetTheme stores the theme preference.
func (h *Handler) SetTheme(w http.ResponseWriter, r *http.Request) {
	var req themePayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.sessions.SetTheme(r.Context(), req.Theme); err != nil {
		Error(w, http.StatusBadRequest, "invalid theme")
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// turnErrorStatus maps turn failures to response codes: upstream rejections
// and unreachable services are 502, everything else 500.
func turnErrorStatus(err error) int {
	var upstream *pioneer.UpstreamError
	if errors.As(err, &upstream) || errors.Is(err, pioneer.ErrUnreachable) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
