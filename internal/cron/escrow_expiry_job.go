package cron

import (
	"context"
	"fmt"

	"github.com/hello-adam-martin/offmarket-sub000/internal/escrow"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/logger"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/metrics"
)

type escrowSweeper interface {
	Run(ctx context.Context) (*escrow.SweepResult, error)
}

// EscrowExpiryJobParams configure the expiry sweep job.
type EscrowExpiryJobParams struct {
	Logger  *logger.Logger
	Sweeper escrowSweeper
	Metrics *metrics.CronJobMetrics
}

// NewEscrowExpiryJob wraps the escrow sweeper as a scheduled job.
func NewEscrowExpiryJob(params EscrowExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	return &escrowExpiryJob{
		logg:    params.Logger,
		sweeper: params.Sweeper,
		metrics: params.Metrics,
	}, nil
}

type escrowExpiryJob struct {
	logg    *logger.Logger
	sweeper escrowSweeper
	metrics *metrics.CronJobMetrics
}

func (j *escrowExpiryJob) Name() string { return "escrow-expiry" }

func (j *escrowExpiryJob) Run(ctx context.Context) error {
	result, err := j.sweeper.Run(ctx)
	if result != nil && j.metrics != nil {
		j.metrics.AddSwept("refunded", result.Refunded)
		j.metrics.AddSwept("skipped", result.Skipped)
		j.metrics.AddSwept("failed", len(result.Errors))
	}
	if err != nil {
		return fmt.Errorf("escrow expiry sweep: %w", err)
	}
	return nil
}
