package pioneer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/avreyes/pioneerchat/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, APIKey: "pk-test"}, nil)
}

func TestRegisterSendsPayloadAndAPIKey(t *testing.T) {
	t.Parallel()
	var gotKey string
	var gotBody map[string]any

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/register" {
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("x-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"user_id": "usr_42"})
	})

	userID, err := client.Register(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if userID != "usr_42" {
		t.Errorf("Expected usr_42, got %q", userID)
	}
	if gotKey != "pk-test" {
		t.Errorf("Expected API key header, got %q", gotKey)
	}
	if gotBody["email"] != "ada@example.com" {
		t.Errorf("Expected email in payload, got %v", gotBody["email"])
	}
	if gotBody["purpose"] == "" || gotBody["purpose"] == nil {
		t.Error("Expected a registration purpose in the payload")
	}
}

func TestRegisterMissingUserID(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	})

	if _, err := client.Register(context.Background(), "ada@example.com"); err == nil {
		t.Fatal("Expected error for response without user_id")
	}
}

func TestNon2xxBecomesUpstreamError(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "email already registered"})
	})

	_, err := client.Register(context.Background(), "ada@example.com")
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("Expected UpstreamError, got %v", err)
	}
	if upstream.Status != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", upstream.Status)
	}
	if upstream.Detail != "email already registered" {
		t.Errorf("Expected structured detail, got %q", upstream.Detail)
	}
	if upstream.Op != "register" {
		t.Errorf("Expected op register, got %q", upstream.Op)
	}
}

func TestNon2xxWithoutStructuredDetailUsesBody(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal server error", http.StatusInternalServerError)
	})

	_, err := client.Summary(context.Background(), "usr_1", 1000)
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("Expected UpstreamError, got %v", err)
	}
	if upstream.Detail != "internal server error" {
		t.Errorf("Expected raw body detail, got %q", upstream.Detail)
	}
}

func TestConnectionFailureIsUnreachable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // deliberately dead endpoint

	client := NewClient(Config{BaseURL: srv.URL, APIKey: "pk-test"}, nil)

	_, err := client.Register(context.Background(), "ada@example.com")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("Expected ErrUnreachable, got %v", err)
	}
}

func TestSummarySendsQueryParams(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/summary" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("user_id"); got != "usr_1" {
			t.Errorf("Expected user_id=usr_1, got %q", got)
		}
		if got := r.URL.Query().Get("max_chars"); got != "1000" {
			t.Errorf("Expected max_chars=1000, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"summary": "likes spicy food"})
	})

	summary, err := client.Summary(context.Background(), "usr_1", 1000)
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary != "likes spicy food" {
		t.Errorf("Unexpected summary %q", summary)
	}
}

func TestChunksMapsWireFormat(t *testing.T) {
	t.Parallel()
	var gotBody struct {
		UserID              string `json:"user_id"`
		History             []any  `json:"history"`
		K                   int    `json:"k"`
		SimilarityThreshold float64 `json:"similarity_threshold"`
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"chunks": []map[string]any{
				{"text": "prefers thai food", "score": 0.82, "type": "memory"},
				{"text": "is allergic to peanuts", "score": 0.61, "type": "derived-qa"},
			},
		})
	})

	history := []domain.Turn{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hello"},
	}
	chunks, err := client.Chunks(context.Background(), ChunksRequest{
		UserID:              "usr_1",
		History:             history,
		K:                   5,
		SimilarityThreshold: 0.25,
	})
	if err != nil {
		t.Fatalf("Chunks failed: %v", err)
	}

	if gotBody.UserID != "usr_1" || gotBody.K != 5 || gotBody.SimilarityThreshold != 0.25 {
		t.Errorf("Unexpected request body: %+v", gotBody)
	}
	if len(gotBody.History) != 2 {
		t.Errorf("Expected 2 history messages, got %d", len(gotBody.History))
	}

	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Text != "prefers thai food" || chunks[0].Score != 0.82 || chunks[0].SourceType != domain.SourceMemory {
		t.Errorf("Unexpected first chunk: %+v", chunks[0])
	}
	if chunks[1].SourceType != domain.SourceDerivedQA {
		t.Errorf("Unexpected second chunk type: %q", chunks[1].SourceType)
	}
}

func TestChunksEmptyResultIsValid(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"chunks": []any{}})
	})

	chunks, err := client.Chunks(context.Background(), ChunksRequest{UserID: "usr_1", K: 5})
	if err != nil {
		t.Fatalf("Chunks failed: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("Expected no chunks, got %d", len(chunks))
	}
}

func TestIngestFormatsMessages(t *testing.T) {
	t.Parallel()
	var gotBody struct {
		UserID         string `json:"user_id"`
		Source         string `json:"source"`
		MessageHistory []struct {
			Role      string `json:"role"`
			Content   string `json:"content"`
			Timestamp string `json:"timestamp"`
		} `json:"message_history"`
		Options struct {
			Dedupe bool `json:"dedupe"`
		} `json:"options"`
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ingest" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	})

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	history := []domain.Turn{
		{Role: domain.RoleUser, Content: "what should I eat?", Timestamp: ts},
		{Role: domain.RoleAssistant, Content: "something spicy"}, // zero timestamp
	}
	if err := client.Ingest(context.Background(), "usr_1", history); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if gotBody.UserID != "usr_1" || gotBody.Source != "chat_app" || !gotBody.Options.Dedupe {
		t.Errorf("Unexpected ingest payload: %+v", gotBody)
	}
	if len(gotBody.MessageHistory) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(gotBody.MessageHistory))
	}
	if gotBody.MessageHistory[0].Timestamp != "2025-06-01T12:00:00Z" {
		t.Errorf("Unexpected timestamp %q", gotBody.MessageHistory[0].Timestamp)
	}
	if gotBody.MessageHistory[1].Timestamp == "" {
		t.Error("Expected a default timestamp for zero-time turns")
	}
}

func TestQueryReturnsAnswer(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"answer": "they mostly discuss cooking"})
	})

	answer, err := client.Query(context.Background(), "usr_1", "What topics come up most?")
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if answer != "they mostly discuss cooking" {
		t.Errorf("Unexpected answer %q", answer)
	}
}
