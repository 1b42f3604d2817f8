package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/hello-adam-martin/offmarket-sub000/internal/notifications"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/db/models"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/enums"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/logger"
)

const (
	defaultDispatchBatchSize = 50
	defaultMaxAttempts       = 10
)

type outboxDispatchRepo interface {
	FetchUnpublished(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause error) error
}

type dlqWriter interface {
	Insert(ctx context.Context, entry models.OutboxDLQ) error
}

// OutboxDispatchJobParams configure the dispatcher.
type OutboxDispatchJobParams struct {
	Logger      *logger.Logger
	Repository  outboxDispatchRepo
	DLQ         dlqWriter
	Notifier    notifications.Notifier
	BatchSize   int
	MaxAttempts int
}

// NewOutboxDispatchJob builds the job that delivers journal events to the
// notifier. Rows that keep failing past the attempt budget move to the DLQ.
func NewOutboxDispatchJob(params OutboxDispatchJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if params.DLQ == nil {
		return nil, fmt.Errorf("dlq repository required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultDispatchBatchSize
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &outboxDispatchJob{
		logg:        params.Logger,
		repo:        params.Repository,
		dlq:         params.DLQ,
		notifier:    params.Notifier,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
	}, nil
}

type outboxDispatchJob struct {
	logg        *logger.Logger
	repo        outboxDispatchRepo
	dlq         dlqWriter
	notifier    notifications.Notifier
	batchSize   int
	maxAttempts int
}

func (j *outboxDispatchJob) Name() string { return "outbox-dispatch" }

func (j *outboxDispatchJob) Run(ctx context.Context) error {
	rows, err := j.repo.FetchUnpublished(ctx, j.batchSize)
	if err != nil {
		return fmt.Errorf("fetch unpublished events: %w", err)
	}

	delivered := 0
	var errs []error
	for _, row := range rows {
		if err := j.dispatch(ctx, row); err != nil {
			errs = append(errs, err)
			continue
		}
		delivered++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"fetched":   len(rows),
		"delivered": delivered,
		"failed":    len(errs),
	})
	j.logg.Info(logCtx, "outbox dispatch loop complete")
	return multierr.Combine(errs...)
}

func (j *outboxDispatchJob) dispatch(ctx context.Context, row models.OutboxEvent) error {
	if err := j.notifier.Deliver(ctx, row); err != nil {
		if markErr := j.repo.MarkFailed(ctx, row.ID, err); markErr != nil {
			return fmt.Errorf("mark event failed: %w", markErr)
		}
		// attempt_count was just incremented; row.AttemptCount is the prior value.
		if row.AttemptCount+1 >= j.maxAttempts {
			if dlqErr := j.deadLetter(ctx, row, err); dlqErr != nil {
				return fmt.Errorf("dead-letter event: %w", dlqErr)
			}
			if pubErr := j.repo.MarkPublished(ctx, row.ID); pubErr != nil {
				return fmt.Errorf("retire dead-lettered event: %w", pubErr)
			}
		}
		return fmt.Errorf("deliver event %s: %w", row.ID, err)
	}
	if err := j.repo.MarkPublished(ctx, row.ID); err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	return nil
}

func (j *outboxDispatchJob) deadLetter(ctx context.Context, row models.OutboxEvent, cause error) error {
	aggregateID := row.AggregateID
	msg := cause.Error()
	return j.dlq.Insert(ctx, models.OutboxDLQ{
		ID:            uuid.New(),
		EventID:       row.ID.String(),
		EventType:     string(row.EventType),
		AggregateType: row.AggregateType,
		AggregateID:   &aggregateID,
		Payload:       row.Payload,
		ErrorReason:   enums.DLQReasonDispatchFailed,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount + 1,
	})
}
