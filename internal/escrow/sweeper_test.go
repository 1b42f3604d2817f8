package escrow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hello-adam-martin/offmarket-sub000/pkg/db/models"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/enums"
)

type stubInquiryReader struct {
	inquiries map[uuid.UUID]*models.Inquiry
}

func (r *stubInquiryReader) FindByID(ctx context.Context, id uuid.UUID) (*models.Inquiry, error) {
	return r.inquiries[id], nil
}

func TestSweepRefundsExpiredWithPendingInquiry(t *testing.T) {
	stripeStub := &stubStripeClient{}
	svc, db := newTestService(t, stripeStub)
	past := time.Now().UTC().Add(-time.Hour)
	deposit := seedDeposit(t, db, enums.EscrowStatusHeld, &past)

	inquiryID := uuid.New()
	require.NoError(t, db.Model(&models.EscrowDeposit{}).
		Where("id = ?", deposit.ID).
		Update("inquiry_id", inquiryID).Error)

	reader := &stubInquiryReader{inquiries: map[uuid.UUID]*models.Inquiry{
		inquiryID: {ID: inquiryID, Status: enums.InquiryStatusPending},
	}}
	sweeper, err := NewSweeper(SweeperParams{Repo: NewRepository(db), Service: svc, Inquiries: reader})
	require.NoError(t, err)

	result, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Refunded)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, stripeStub.refundCalls)

	stored, err := NewRepository(db).FindByID(context.Background(), deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusExpired, stored.Status)
}

func TestSweepRefundsOrphanedDeposit(t *testing.T) {
	stripeStub := &stubStripeClient{}
	svc, db := newTestService(t, stripeStub)
	past := time.Now().UTC().Add(-time.Hour)
	deposit := seedDeposit(t, db, enums.EscrowStatusHeld, &past)

	sweeper, err := NewSweeper(SweeperParams{Repo: NewRepository(db), Service: svc, Inquiries: &stubInquiryReader{}})
	require.NoError(t, err)

	result, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Refunded)

	stored, err := NewRepository(db).FindByID(context.Background(), deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusExpired, stored.Status)
}

func TestSweepSkipsResolvedInquiry(t *testing.T) {
	stripeStub := &stubStripeClient{}
	svc, db := newTestService(t, stripeStub)
	past := time.Now().UTC().Add(-time.Hour)
	deposit := seedDeposit(t, db, enums.EscrowStatusHeld, &past)

	inquiryID := uuid.New()
	require.NoError(t, db.Model(&models.EscrowDeposit{}).
		Where("id = ?", deposit.ID).
		Update("inquiry_id", inquiryID).Error)

	reader := &stubInquiryReader{inquiries: map[uuid.UUID]*models.Inquiry{
		inquiryID: {ID: inquiryID, Status: enums.InquiryStatusAccepted},
	}}
	sweeper, err := NewSweeper(SweeperParams{Repo: NewRepository(db), Service: svc, Inquiries: reader})
	require.NoError(t, err)

	result, err := sweeper.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Zero(t, result.Refunded)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, stripeStub.refundCalls, "resolved inquiries keep their deposit untouched")

	stored, err := NewRepository(db).FindByID(context.Background(), deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusHeld, stored.Status)
}

func TestSweepCollectsPerDepositErrors(t *testing.T) {
	stripeStub := &stubStripeClient{refundErr: errors.New("processor down")}
	svc, db := newTestService(t, stripeStub)
	past := time.Now().UTC().Add(-time.Hour)
	seedDeposit(t, db, enums.EscrowStatusHeld, &past)
	seedDeposit(t, db, enums.EscrowStatusHeld, &past)

	sweeper, err := NewSweeper(SweeperParams{Repo: NewRepository(db), Service: svc, Inquiries: &stubInquiryReader{}})
	require.NoError(t, err)

	result, err := sweeper.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, result.Processed, "a failing deposit must not abort the batch")
	assert.Zero(t, result.Refunded)
	assert.Len(t, result.Errors, 2)
}
