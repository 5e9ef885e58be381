package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"github.com/avreyes/pioneerchat/internal/domain"
	"github.com/google/uuid"
)

// IngestSink submits a conversation to the personalization service.
type IngestSink interface {
	Ingest(ctx context.Context, userID string, history []domain.Turn) error
}

type ingestJob struct {
	ID      string
	UserID  string
	History []domain.Turn
}

// IngestQueue is the detached task queue for conversation ingestion.
// Submission is best-effort: Enqueue never blocks the request path, and
// upstream failures are logged, never surfaced to the caller.
type IngestQueue struct {
	sink   IngestSink
	jobs   chan ingestJob
	done   chan struct{}
	logger *slog.Logger

	closeOnce sync.Once
}

// NewIngestQueue creates the queue and starts its worker.
func NewIngestQueue(queueSize int, sink IngestSink, logger *slog.Logger) *IngestQueue {
	if queueSize <= 0 {
		queueSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &IngestQueue{
		sink:   sink,
		jobs:   make(chan ingestJob, queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go q.run()
	return q
}

// Enqueue submits a conversation for ingestion. If the queue is full the
// job is dropped and logged; a lost ingestion only costs future
// personalization quality.
func (q *IngestQueue) Enqueue(userID string, history []domain.Turn) {
	job := ingestJob{
		ID:      uuid.NewString(),
		UserID:  userID,
		History: history,
	}
	select {
	case q.jobs <- job:
	default:
		q.logger.Warn("ingest queue full, dropping conversation",
			"job_id", job.ID,
			"user_id", userID,
			"turns", len(history))
	}
}

func (q *IngestQueue) run() {
	defer close(q.done)
	for job := range q.jobs {
		if err := q.sink.Ingest(context.Background(), job.UserID, job.History); err != nil {
			q.logger.Warn("conversation ingestion failed",
				"job_id", job.ID,
				"user_id", job.UserID,
				"error", err)
			continue
		}
		q.logger.Debug("conversation ingested",
			"job_id", job.ID,
			"user_id", job.UserID,
			"turns", len(job.History))
	}
}

// Close stops accepting jobs, drains the queue, and waits for the worker.
func (q *IngestQueue) Close() {
	q.closeOnce.Do(func() {
		close(q.jobs)
	})
	<-q.done
}
