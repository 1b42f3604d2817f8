package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/hello-adam-martin/offmarket-sub000/pkg/db/models"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/enums"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/logger"
)

type stubDispatchRepo struct {
	rows      []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
}

func (r *stubDispatchRepo) FetchUnpublished(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	return r.rows, nil
}

func (r *stubDispatchRepo) MarkPublished(ctx context.Context, id uuid.UUID) error {
	r.published = append(r.published, id)
	return nil
}

func (r *stubDispatchRepo) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	r.failed = append(r.failed, id)
	return nil
}

type stubDLQWriter struct {
	entries []models.OutboxDLQ
}

func (w *stubDLQWriter) Insert(ctx context.Context, entry models.OutboxDLQ) error {
	w.entries = append(w.entries, entry)
	return nil
}

type stubNotifier struct {
	failFor map[uuid.UUID]error
	seen    []uuid.UUID
}

func (n *stubNotifier) Deliver(ctx context.Context, event models.OutboxEvent) error {
	n.seen = append(n.seen, event.ID)
	if err, ok := n.failFor[event.ID]; ok {
		return err
	}
	return nil
}

func outboxRow(attempts int) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventEscrowHeld,
		AggregateType: enums.AggregateEscrowDeposit,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1}`),
		AttemptCount:  attempts,
	}
}

func newDispatchJob(t *testing.T, repo *stubDispatchRepo, dlq *stubDLQWriter, notifier *stubNotifier) Job {
	t.Helper()
	job, err := NewOutboxDispatchJob(OutboxDispatchJobParams{
		Logger:      logger.New(logger.Options{ServiceName: "cron-test"}),
		Repository:  repo,
		DLQ:         dlq,
		Notifier:    notifier,
		MaxAttempts: 3,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	return job
}

func TestDispatchPublishesDeliveredRows(t *testing.T) {
	good := outboxRow(0)
	repo := &stubDispatchRepo{rows: []models.OutboxEvent{good}}
	dlq := &stubDLQWriter{}
	notifier := &stubNotifier{}
	job := newDispatchJob(t, repo, dlq, notifier)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(repo.published) != 1 || repo.published[0] != good.ID {
		t.Fatalf("expected row marked published")
	}
	if len(dlq.entries) != 0 {
		t.Fatalf("no dlq entries expected")
	}
}

func TestDispatchFailureMarksFailedAndContinues(t *testing.T) {
	bad := outboxRow(0)
	good := outboxRow(0)
	repo := &stubDispatchRepo{rows: []models.OutboxEvent{bad, good}}
	dlq := &stubDLQWriter{}
	notifier := &stubNotifier{failFor: map[uuid.UUID]error{bad.ID: errors.New("sink down")}}
	job := newDispatchJob(t, repo, dlq, notifier)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatalf("expected combined error")
	}
	if len(repo.failed) != 1 || repo.failed[0] != bad.ID {
		t.Fatalf("expected failing row marked failed")
	}
	if len(repo.published) != 1 || repo.published[0] != good.ID {
		t.Fatalf("a failing row must not block the rest of the batch")
	}
	if len(dlq.entries) != 0 {
		t.Fatalf("row below the attempt budget must not dead-letter")
	}
}

func TestDispatchDeadLettersAtMaxAttempts(t *testing.T) {
	exhausted := outboxRow(2)
	repo := &stubDispatchRepo{rows: []models.OutboxEvent{exhausted}}
	dlq := &stubDLQWriter{}
	notifier := &stubNotifier{failFor: map[uuid.UUID]error{exhausted.ID: errors.New("sink down")}}
	job := newDispatchJob(t, repo, dlq, notifier)

	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected error from failing delivery")
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected one dlq entry, got %d", len(dlq.entries))
	}
	entry := dlq.entries[0]
	if entry.EventID != exhausted.ID.String() {
		t.Fatalf("dlq entry references wrong event")
	}
	if entry.ErrorReason != enums.DLQReasonDispatchFailed {
		t.Fatalf("unexpected dlq reason %q", entry.ErrorReason)
	}
	if len(repo.published) != 1 {
		t.Fatalf("dead-lettered row must be retired from the journal")
	}
}
