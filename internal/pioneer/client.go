// Package pioneer is an HTTP client for the Pioneer personalization API.
//
// One method per upstream operation, a single request each: no retries, no
// backoff, no caching. Non-2xx responses become *UpstreamError; connection
// failures wrap ErrUnreachable.
package pioneer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avreyes/pioneerchat/internal/domain"
)

// registrationPurpose is sent with every registration so the service knows
// what the collected data is used for.
const registrationPurpose = "A personalized AI chat assistant that learns from conversations and adapts to user preferences"

const maxErrorBodyBytes = 64 * 1024

// Config holds configuration for the Pioneer client.
type Config struct {
	BaseURL          string
	APIKey           string
	RegisterTimeout  time.Duration
	RetrievalTimeout time.Duration
	IngestTimeout    time.Duration
	QueryTimeout     time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:          "https://api.fastino.ai",
		RegisterTimeout:  30 * time.Second,
		RetrievalTimeout: 10 * time.Second,
		IngestTimeout:    30 * time.Second,
		QueryTimeout:     180 * time.Second,
	}
}

// Client calls the Pioneer personalization API.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *slog.Logger
}

// NewClient creates a new Pioneer client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.RegisterTimeout <= 0 {
		cfg.RegisterTimeout = defaults.RegisterTimeout
	}
	if cfg.RetrievalTimeout <= 0 {
		cfg.RetrievalTimeout = defaults.RetrievalTimeout
	}
	if cfg.IngestTimeout <= 0 {
		cfg.IngestTimeout = defaults.IngestTimeout
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaults.QueryTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		httpClient: &http.Client{},
		cfg:        cfg,
		logger:     logger,
	}
}

// ChunksRequest asks for context chunks relevant to a conversation.
type ChunksRequest struct {
	UserID              string
	History             []domain.Turn
	K                   int
	SimilarityThreshold float64
}

type wireMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

type registerRequest struct {
	Email   string            `json:"email"`
	Purpose string            `json:"purpose"`
	Traits  map[string]string `json:"traits"`
}

type registerResponse struct {
	UserID string `json:"user_id"`
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

type chunksRequest struct {
	UserID              string        `json:"user_id"`
	History             []wireMessage `json:"history"`
	K                   int           `json:"k"`
	SimilarityThreshold float64       `json:"similarity_threshold"`
}

type wireChunk struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
	Type  string  `json:"type"`
}

type chunksResponse struct {
	Chunks []wireChunk `json:"chunks"`
}

type ingestOptions struct {
	Dedupe bool `json:"dedupe"`
}

type ingestRequest struct {
	UserID         string        `json:"user_id"`
	Source         string        `json:"source"`
	MessageHistory []wireMessage `json:"message_history"`
	Options        ingestOptions `json:"options"`
}

type queryRequest struct {
	UserID   string `json:"user_id"`
	Question string `json:"question"`
	UseCache bool   `json:"use_cache"`
}

type queryResponse struct {
	Answer string `json:"answer"`
}

// Register registers an email and returns the issued opaque user ID.
func (c *Client) Register(ctx context.Context, email string) (string, error) {
	body := registerRequest{
		Email:   email,
		Purpose: registrationPurpose,
		Traits:  map[string]string{},
	}

	var resp registerResponse
	if err := c.do(ctx, "register", http.MethodPost, "/register", c.cfg.RegisterTimeout, nil, body, &resp); err != nil {
		return "", err
	}
	if resp.UserID == "" {
		return "", fmt.Errorf("register: response missing user_id")
	}
	return resp.UserID, nil
}

// Summary fetches the user's profile summary, capped at maxChars.
func (c *Client) Summary(ctx context.Context, userID string, maxChars int) (string, error) {
	params := url.Values{}
	params.Set("user_id", userID)
	if maxChars > 0 {
		params.Set("max_chars", strconv.Itoa(maxChars))
	}

	var resp summaryResponse
	if err := c.do(ctx, "summary", http.MethodGet, "/summary", c.cfg.RetrievalTimeout, params, nil, &resp); err != nil {
		return "", err
	}
	return resp.Summary, nil
}

// Chunks fetches context chunks relevant to the conversation. An empty
// result is normal for users with no prior personalization data.
func (c *Client) Chunks(ctx context.Context, req ChunksRequest) ([]domain.ContextChunk, error) {
	body := chunksRequest{
		UserID:              req.UserID,
		History:             toWireMessages(req.History, false),
		K:                   req.K,
		SimilarityThreshold: req.SimilarityThreshold,
	}

	var resp chunksResponse
	if err := c.do(ctx, "chunks", http.MethodPost, "/chunks", c.cfg.RetrievalTimeout, nil, body, &resp); err != nil {
		return nil, err
	}

	chunks := make([]domain.ContextChunk, 0, len(resp.Chunks))
	for _, ch := range resp.Chunks {
		chunks = append(chunks, domain.ContextChunk{
			Text:       ch.Text,
			Score:      ch.Score,
			SourceType: ch.Type,
		})
	}
	return chunks, nil
}

// Ingest submits a conversation for learning.
func (c *Client) Ingest(ctx context.Context, userID string, history []domain.Turn) error {
	body := ingestRequest{
		UserID:         userID,
		Source:         "chat_app",
		MessageHistory: toWireMessages(history, true),
		Options:        ingestOptions{Dedupe: true},
	}
	return c.do(ctx, "ingest", http.MethodPost, "/ingest", c.cfg.IngestTimeout, nil, body, nil)
}

// Query asks a free-form question against the user's knowledge base.
func (c *Client) Query(ctx context.Context, userID, question string) (string, error) {
	body := queryRequest{
		UserID:   userID,
		Question: question,
		UseCache: true,
	}

	var resp queryResponse
	if err := c.do(ctx, "query", http.MethodPost, "/query", c.cfg.QueryTimeout, nil, body, &resp); err != nil {
		return "", err
	}
	return resp.Answer, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, timeout time.Duration, params url.Values, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := c.cfg.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", op, ErrUnreachable, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close response body", "op", op, "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return &UpstreamError{Op: op, Status: resp.StatusCode, Detail: extractDetail(raw)}
	}

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// extractDetail pulls the structured detail field out of an error body,
// falling back to the raw body text.
func extractDetail(raw []byte) string {
	var structured struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &structured); err == nil && structured.Detail != "" {
		return structured.Detail
	}
	return strings.TrimSpace(string(raw))
}

func toWireMessages(turns []domain.Turn, withTimestamps bool) []wireMessage {
	msgs := make([]wireMessage, 0, len(turns))
	for _, t := range turns {
		msg := wireMessage{Role: string(t.Role), Content: t.Content}
		if withTimestamps {
			ts := t.Timestamp
			if ts.IsZero() {
				ts = time.Now().UTC()
			}
			msg.Timestamp = ts.UTC().Format(time.RFC3339)
		}
		msgs = append(msgs, msg)
	}
	return msgs
}
