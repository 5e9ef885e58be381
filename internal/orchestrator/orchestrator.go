// Package orchestrator composes one chat turn: profile summary, context
// retrieval, prompt assembly, completion, and best-effort ingestion.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/avreyes/pioneerchat/internal/completion"
	"github.com/avreyes/pioneerchat/internal/domain"
	"github.com/avreyes/pioneerchat/internal/pioneer"
)

// ErrNoSession is returned when a turn is attempted without a registered
// user identity.
var ErrNoSession = errors.New("no registered session")

const baseSystemPrompt = "You are a helpful AI assistant."

// ContextProvider fetches personalization data for a user.
type ContextProvider interface {
	Summary(ctx context.Context, userID string, maxChars int) (string, error)
	Chunks(ctx context.Context, req pioneer.ChunksRequest) ([]domain.ContextChunk, error)
}

// Completer generates the assistant reply.
type Completer interface {
	Complete(ctx context.Context, req completion.Request) (string, error)
}

// TurnIngestor accepts a finished conversation for background submission.
type TurnIngestor interface {
	Enqueue(userID string, history []domain.Turn)
}

// Config holds orchestrator parameters.
type Config struct {
	ChunkCount          int
	SimilarityThreshold float64
	SummaryMaxChars     int
}

// Orchestrator runs the per-turn sequence. It is stateless per invocation
// except for the profile summary cache, which holds each user's summary
// from first successful fetch until the session ends.
type Orchestrator struct {
	provider  ContextProvider
	completer Completer
	ingest    TurnIngestor
	cfg       Config
	logger    *slog.Logger

	mu        sync.Mutex
	summaries map[string]string
}

// New creates a new Orchestrator.
func New(provider ContextProvider, completer Completer, ingest TurnIngestor, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChunkCount <= 0 {
		cfg.ChunkCount = 5
	}
	return &Orchestrator{
		provider:  provider,
		completer: completer,
		ingest:    ingest,
		cfg:       cfg,
		logger:    logger,
		summaries: make(map[string]string),
	}
}

// TurnResult is what the UI needs to render one assistant reply.
type TurnResult struct {
	Response       string
	ContextUsed    []domain.ContextChunk
	ProfileSummary string
}

// HandleTurn processes one user message against the given history snapshot.
//
// Summary fetch failures are soft: the turn proceeds unpersonalized.
// Retrieval and completion failures abort the turn. Ingestion is handed to
// the detached queue and never blocks or fails the turn.
func (o *Orchestrator) HandleTurn(ctx context.Context, message string, history []domain.Turn, sess *domain.UserSession) (*TurnResult, error) {
	if sess == nil || sess.UserID == "" {
		return nil, ErrNoSession
	}

	summary := o.profileSummary(ctx, sess.UserID)

	userTurn := domain.Turn{
		Role:      domain.RoleUser,
		Content:   message,
		Timestamp: time.Now().UTC(),
	}
	conversation := make([]domain.Turn, 0, len(history)+2)
	conversation = append(conversation, history...)
	conversation = append(conversation, userTurn)

	chunks, err := o.provider.Chunks(ctx, pioneer.ChunksRequest{
		UserID:              sess.UserID,
		History:             conversation,
		K:                   o.cfg.ChunkCount,
		SimilarityThreshold: o.cfg.SimilarityThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve context: %w", err)
	}

	reply, err := o.completer.Complete(ctx, completion.Request{
		System:  systemPrompt(summary),
		History: history,
		Message: augmentedMessage(message, chunks),
	})
	if err != nil {
		return nil, fmt.Errorf("generate response: %w", err)
	}

	assistantTurn := domain.Turn{
		Role:        domain.RoleAssistant,
		Content:     reply,
		Timestamp:   time.Now().UTC(),
		ContextUsed: chunks,
	}
	o.ingest.Enqueue(sess.UserID, append(conversation, assistantTurn))

	return &TurnResult{
		Response:       reply,
		ContextUsed:    chunks,
		ProfileSummary: summary,
	}, nil
}

// ForgetProfile drops the cached summary for a user, e.g. on logout.
func (o *Orchestrator) ForgetProfile(userID string) {
	o.mu.Lock()
	delete(o.summaries, userID)
	o.mu.Unlock()
}

// profileSummary returns the cached summary, fetching it on first use.
// Only successful fetches are cached, so an unavailable summary is retried
// on the next turn.
func (o *Orchestrator) profileSummary(ctx context.Context, userID string) string {
	o.mu.Lock()
	cached, ok := o.summaries[userID]
	o.mu.Unlock()
	if ok {
		return cached
	}

	summary, err := o.provider.Summary(ctx, userID, o.cfg.SummaryMaxChars)
	if err != nil {
		o.logger.Warn("profile summary unavailable, continuing without it", "user_id", userID, "error", err)
		return ""
	}

	o.mu.Lock()
	o.summaries[userID] = summary
	o.mu.Unlock()
	return summary
}

func systemPrompt(summary string) string {
	if summary == "" {
		return baseSystemPrompt
	}
	return baseSystemPrompt +
		"\n\nUser Profile:\n" + summary +
		"\n\nKeep the user's preferences and context in mind when responding."
}

// augmentedMessage appends retrieved context chunks to the user message as
// supplementary grounding text.
func augmentedMessage(message string, chunks []domain.ContextChunk) string {
	if len(chunks) == 0 {
		return message
	}
	lines := make([]string, 0, len(chunks))
	for _, c := range chunks {
		lines = append(lines, "- "+c.Text)
	}
	return message + "\n\n[Relevant context from past conversations:\n" + strings.Join(lines, "\n") + "]"
}
