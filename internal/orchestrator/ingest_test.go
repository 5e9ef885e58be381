package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avreyes/pioneerchat/internal/domain"
)

type recordingSink struct {
	mu      sync.Mutex
	calls   []string
	errs    map[int]error // call index -> error to return
	block   chan struct{} // if set, Ingest waits on it
	notify  chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{notify: make(chan struct{}, 16)}
}

func (s *recordingSink) Ingest(ctx context.Context, userID string, history []domain.Turn) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	idx := len(s.calls)
	s.calls = append(s.calls, userID)
	err := s.errs[idx]
	s.mu.Unlock()
	s.notify <- struct{}{}
	return err
}

func (s *recordingSink) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func waitForCalls(t *testing.T, sink *recordingSink, n int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for sink.callCount() < n {
		select {
		case <-sink.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d ingest calls, got %d", n, sink.callCount())
		}
	}
}

func TestIngestQueueProcessesJobs(t *testing.T) {
	t.Parallel()
	sink := newRecordingSink()
	q := NewIngestQueue(8, sink, nil)
	defer q.Close()

	history := []domain.Turn{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hello"},
	}
	q.Enqueue("usr_1", history)

	waitForCalls(t, sink, 1)
	if sink.calls[0] != "usr_1" {
		t.Errorf("Expected ingestion for usr_1, got %q", sink.calls[0])
	}
}

func TestIngestQueueContinuesAfterFailure(t *testing.T) {
	t.Parallel()
	sink := newRecordingSink()
	sink.errs = map[int]error{0: errors.New("ingest rejected")}
	q := NewIngestQueue(8, sink, nil)
	defer q.Close()

	q.Enqueue("usr_1", nil)
	q.Enqueue("usr_2", nil)

	waitForCalls(t, sink, 2)
	if sink.calls[1] != "usr_2" {
		t.Errorf("Expected second job processed after first failed, got %q", sink.calls[1])
	}
}

func TestIngestQueueCloseDrainsPendingJobs(t *testing.T) {
	t.Parallel()
	sink := newRecordingSink()
	q := NewIngestQueue(8, sink, nil)

	for i := 0; i < 5; i++ {
		q.Enqueue("usr_1", nil)
	}
	q.Close()

	if sink.callCount() != 5 {
		t.Errorf("Expected all queued jobs drained on close, got %d", sink.callCount())
	}
}

func TestEnqueueNeverBlocksWhenFull(t *testing.T) {
	t.Parallel()
	sink := newRecordingSink()
	sink.block = make(chan struct{})
	q := NewIngestQueue(1, sink, nil)

	done := make(chan struct{})
	go func() {
		// One job occupies the worker, one fills the queue, the rest
		// must be dropped without blocking.
		for i := 0; i < 5; i++ {
			q.Enqueue("usr_1", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}

	close(sink.block)
	q.Close()

	if n := sink.callCount(); n > 2 {
		t.Errorf("Expected overflow jobs dropped, but %d were processed", n)
	}
}
