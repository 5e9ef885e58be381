// Package domain contains core domain types for the chat application.
package domain

import (
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message in the conversation log. The log lives for the
// lifetime of a UI session and is never persisted by this server; long-term
// storage is the personalization service's job.
type Turn struct {
	Role        Role           `json:"role"`
	Content     string         `json:"content"`
	Timestamp   time.Time      `json:"timestamp"`
	ContextUsed []ContextChunk `json:"context_used,omitempty"`
}

// ContextChunk is a scored piece of prior-conversation context returned by
// the personalization service. Chunks are read-only and used for one turn.
type ContextChunk struct {
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	SourceType string  `json:"type"`
}

// Known chunk source types.
const (
	SourceMemory    = "memory"
	SourceDerivedQA = "derived-qa"
)

// ProfileSummary is a natural-language summary of what the personalization
// service knows about the user. Fetched at most once per session.
type ProfileSummary struct {
	Text string `json:"text"`
}
