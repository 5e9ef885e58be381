// Package completion wraps the hosted chat-completion service.
package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/avreyes/pioneerchat/internal/domain"
)

// Config holds completion client configuration. Sampling parameters are
// fixed per deployment; only the model name is expected to vary.
type Config struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int64
}

// Client requests completions from the Anthropic messages API.
type Client struct {
	api anthropic.Client
	cfg Config
}

// NewClient creates a new completion client.
func NewClient(cfg Config) *Client {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	return &Client{
		api: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		cfg: cfg,
	}
}

// Request is one completion request: a system instruction, the prior
// conversation, and the new user message (already augmented with any
// grounding context).
type Request struct {
	System  string
	History []domain.Turn
	Message string
}

// Complete requests a completion and returns its text.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.cfg.Model),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: anthropic.Float(c.cfg.Temperature),
		Messages:    buildMessages(req.History, req.Message),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := b.String()
	if text == "" {
		return "", fmt.Errorf("completion returned no text content")
	}
	return text, nil
}

func buildMessages(history []domain.Turn, message string) []anthropic.MessageParam {
	msgs := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, turn := range history {
		block := anthropic.NewTextBlock(turn.Content)
		if turn.Role == domain.RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}
	msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(message)))
	return msgs
}
