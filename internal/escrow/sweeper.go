package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/hello-adam-martin/offmarket-sub000/pkg/db/models"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/logger"
)

// inquiryReader is the slice of the inquiry store the sweep consults before
// refunding a linked deposit.
type inquiryReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Inquiry, error)
}

// SweepResult summarizes one expiry sweep batch.
type SweepResult struct {
	Processed int      `json:"processed"`
	Refunded  int      `json:"refunded"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
}

// SweeperParams groups dependencies for the expiry sweeper.
type SweeperParams struct {
	Repo      Repository
	Service   *Service
	Inquiries inquiryReader
	BatchSize int
	Logger    *logger.Logger
}

// Sweeper refunds held deposits whose expiry deadline passed without the
// inquiry resolving. It backs both the scheduled job and the admin's on-demand
// sweep.
type Sweeper struct {
	repo      Repository
	svc       *Service
	inquiries inquiryReader
	batchSize int
	logg      *logger.Logger
	now       func() time.Time
}

// NewSweeper builds an expiry sweeper.
func NewSweeper(params SweeperParams) (*Sweeper, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Service == nil {
		return nil, errors.New("escrow service is required")
	}
	if params.Inquiries == nil {
		return nil, errors.New("inquiry reader is required")
	}
	return &Sweeper{
		repo:      params.Repo,
		svc:       params.Service,
		inquiries: params.Inquiries,
		batchSize: params.BatchSize,
		logg:      params.Logger,
		now:       time.Now,
	}, nil
}

// Run processes one batch of expired held deposits. A deposit whose inquiry
// already resolved is left for that resolution to settle; everything else is
// refunded and marked expired. Per-deposit failures are collected, never
// aborting the batch, and the combined error is returned alongside the result.
func (s *Sweeper) Run(ctx context.Context) (*SweepResult, error) {
	asOf := s.now().UTC()
	deposits, err := s.repo.FindExpiredHeld(ctx, asOf, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("query expired deposits: %w", err)
	}

	result := &SweepResult{Errors: []string{}}
	var errs []error
	for _, deposit := range deposits {
		result.Processed++
		skip, err := s.shouldSkip(ctx, deposit)
		if err != nil {
			errs = append(errs, err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", deposit.ID, err))
			continue
		}
		if skip {
			result.Skipped++
			continue
		}
		if _, err := s.svc.ExpireRefund(ctx, deposit.ID); err != nil {
			errs = append(errs, err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", deposit.ID, err))
			continue
		}
		result.Refunded++
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"processed": result.Processed,
			"refunded":  result.Refunded,
			"skipped":   result.Skipped,
			"errors":    len(result.Errors),
		})
		s.logg.Info(logCtx, "escrow expiry sweep complete")
	}
	return result, multierr.Combine(errs...)
}

func (s *Sweeper) shouldSkip(ctx context.Context, deposit models.EscrowDeposit) (bool, error) {
	if deposit.InquiryID == nil {
		return false, nil
	}
	inquiry, err := s.inquiries.FindByID(ctx, *deposit.InquiryID)
	if err != nil {
		return false, fmt.Errorf("load inquiry: %w", err)
	}
	if inquiry == nil {
		// Orphaned link, treat as no inquiry.
		return false, nil
	}
	return inquiry.Status.IsResolved(), nil
}
