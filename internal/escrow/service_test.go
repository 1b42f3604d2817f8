package escrow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/hello-adam-martin/offmarket-sub000/internal/billing"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/db/models"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/enums"
	pkgerrors "github.com/hello-adam-martin/offmarket-sub000/pkg/errors"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/outbox"
)

type stubStripeClient struct {
	intentStatus stripe.PaymentIntentStatus
	refundErr    error

	createCalls  int
	getCalls     int
	captureCalls int
	cancelCalls  int
	refundCalls  int
	refundKeys   []string
}

func (s *stubStripeClient) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.createCalls++
	return &stripe.PaymentIntent{ID: "pi_" + uuid.NewString(), ClientSecret: "secret_test"}, nil
}

func (s *stubStripeClient) GetPaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.getCalls++
	status := s.intentStatus
	if status == "" {
		status = stripe.PaymentIntentStatusRequiresCapture
	}
	return &stripe.PaymentIntent{ID: id, Status: status}, nil
}

func (s *stubStripeClient) CapturePaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error) {
	s.captureCalls++
	return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusSucceeded}, nil
}

func (s *stubStripeClient) CancelPaymentIntent(ctx context.Context, id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	s.cancelCalls++
	return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusCanceled}, nil
}

func (s *stubStripeClient) CreateRefund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	s.refundCalls++
	if params != nil && params.IdempotencyKey != nil {
		s.refundKeys = append(s.refundKeys, *params.IdempotencyKey)
	}
	if s.refundErr != nil {
		return nil, s.refundErr
	}
	return &stripe.Refund{ID: "re_" + uuid.NewString()}, nil
}

type settingsRepoStub struct{}

func (s *settingsRepoStub) WithTx(tx *gorm.DB) billing.Repository { return s }
func (s *settingsRepoStub) LoadSettings(ctx context.Context) (map[string]string, error) {
	return nil, nil
}
func (s *settingsRepoStub) UpsertSettings(ctx context.Context, values map[string]string) error {
	return nil
}

type testTxRunner struct {
	db *gorm.DB
}

func (r *testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

func newTestService(t *testing.T, stripeClient StripePaymentClient) (*Service, *gorm.DB) {
	t.Helper()
	db := setupEscrowTestDB(t)

	outboxDDL := `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`
	require.NoError(t, db.Exec(outboxDDL).Error)

	cache := billing.NewSettingsCache(&settingsRepoStub{})
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(db),
		Calculator:        billing.NewCalculator(cache),
		Settings:          cache,
		Stripe:            stripeClient,
		Outbox:            outbox.NewService(outbox.NewRepository(db), nil),
		TransactionRunner: &testTxRunner{db: db},
	})
	require.NoError(t, err)
	return svc, db
}

func countOutboxEvents(t *testing.T, db *gorm.DB, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func valuation(t *testing.T, value string) *decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	require.NoError(t, err)
	return &d
}

func TestQuoteConflictCarriesExistingDeposit(t *testing.T) {
	svc, db := newTestService(t, &stubStripeClient{})
	ctx := context.Background()

	held := seedDeposit(t, db, enums.EscrowStatusHeld, nil)
	params := TripleParams{OwnerID: held.OwnerID, BuyerID: held.BuyerID, PropertyID: held.PropertyID}

	_, err := svc.QuoteFee(ctx, params, valuation(t, "1200000"))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, held.ID.String(), details["depositId"])
}

func TestQuoteReturnsFeeAndTier(t *testing.T) {
	svc, _ := newTestService(t, &stubStripeClient{})

	quote, err := svc.QuoteFee(context.Background(), TripleParams{
		OwnerID:    uuid.New(),
		BuyerID:    uuid.New(),
		PropertyID: uuid.New(),
	}, valuation(t, "1200000"))
	require.NoError(t, err)
	assert.Equal(t, int64(49900), quote.AmountCents)
	assert.Equal(t, billing.FeeTierPremium, quote.FeeTier)
}

func TestCreateDeclinesWhenUnconfigured(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.Create(context.Background(), TripleParams{
		OwnerID:    uuid.New(),
		BuyerID:    uuid.New(),
		PropertyID: uuid.New(),
	}, valuation(t, "500000"))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotConfigured, pkgerrors.As(err).Code())
}

type failingCreateRepo struct {
	Repository
}

func (r *failingCreateRepo) Create(ctx context.Context, deposit *models.EscrowDeposit) error {
	return errors.New("insert failed")
}

func TestCreateCancelsIntentWhenPersistFails(t *testing.T) {
	stripeStub := &stubStripeClient{}
	db := setupEscrowTestDB(t)
	cache := billing.NewSettingsCache(&settingsRepoStub{})
	svc, err := NewService(ServiceParams{
		Repo:              &failingCreateRepo{Repository: NewRepository(db)},
		Calculator:        billing.NewCalculator(cache),
		Settings:          cache,
		Stripe:            stripeStub,
		Outbox:            outbox.NewService(outbox.NewRepository(db), nil),
		TransactionRunner: &testTxRunner{db: db},
	})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), TripleParams{
		OwnerID:    uuid.New(),
		BuyerID:    uuid.New(),
		PropertyID: uuid.New(),
	}, valuation(t, "500000"))
	require.Error(t, err)
	assert.Equal(t, 1, stripeStub.createCalls)
	assert.Equal(t, 1, stripeStub.cancelCalls, "the orphaned authorization must be voided")
}

func TestConfirmPromotesPendingToHeld(t *testing.T) {
	stripeStub := &stubStripeClient{}
	svc, db := newTestService(t, stripeStub)
	ctx := context.Background()

	pending := seedDeposit(t, db, enums.EscrowStatusPending, nil)

	confirmed, err := svc.Confirm(ctx, pending.ID, pending.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusHeld, confirmed.Status)
	assert.Equal(t, 1, stripeStub.captureCalls)
	require.NotNil(t, confirmed.ExpiresAt)

	expected := time.Now().UTC().AddDate(0, 0, 30)
	assert.WithinDuration(t, expected, *confirmed.ExpiresAt, time.Minute)
	assert.Equal(t, int64(1), countOutboxEvents(t, db, enums.EventEscrowHeld))
}

func TestConfirmAlreadyHeldIsIdempotent(t *testing.T) {
	stripeStub := &stubStripeClient{}
	svc, db := newTestService(t, stripeStub)

	held := seedDeposit(t, db, enums.EscrowStatusHeld, nil)
	confirmed, err := svc.Confirm(context.Background(), held.ID, held.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusHeld, confirmed.Status)
	assert.Zero(t, stripeStub.captureCalls)
}

func TestConfirmRejectsNonParty(t *testing.T) {
	svc, db := newTestService(t, &stubStripeClient{})

	pending := seedDeposit(t, db, enums.EscrowStatusPending, nil)
	_, err := svc.Confirm(context.Background(), pending.ID, uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())
}

func TestConfirmConflictWhenTripleAlreadyHeld(t *testing.T) {
	stripeStub := &stubStripeClient{}
	svc, db := newTestService(t, stripeStub)
	ctx := context.Background()

	held := seedDeposit(t, db, enums.EscrowStatusHeld, nil)
	pending := &models.EscrowDeposit{
		ID:                    uuid.New(),
		OwnerID:               held.OwnerID,
		BuyerID:               held.BuyerID,
		PropertyID:            held.PropertyID,
		AmountCents:           49900,
		Status:                enums.EscrowStatusPending,
		StripePaymentIntentID: "pi_" + uuid.NewString(),
	}
	require.NoError(t, db.Create(pending).Error)

	_, err := svc.Confirm(ctx, pending.ID, pending.OwnerID)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
	assert.Zero(t, stripeStub.captureCalls, "no capture before the held check")
}

func TestForceReleaseSecondCallFailsWithoutSideEffects(t *testing.T) {
	stripeStub := &stubStripeClient{}
	svc, db := newTestService(t, stripeStub)
	ctx := context.Background()

	held := seedDeposit(t, db, enums.EscrowStatusHeld, nil)

	released, err := svc.Release(ctx, held.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusReleased, released.Status)
	assert.NotNil(t, released.ReleasedAt)
	assert.Equal(t, int64(1), countOutboxEvents(t, db, enums.EventEscrowReleased))

	_, err = svc.Release(ctx, held.ID, nil)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())

	// No duplicate side effects: one released event, no processor calls.
	assert.Equal(t, int64(1), countOutboxEvents(t, db, enums.EventEscrowReleased))
	assert.Zero(t, stripeStub.refundCalls)
	assert.Zero(t, stripeStub.captureCalls)
}

func TestRefundHappensExactlyOnce(t *testing.T) {
	stripeStub := &stubStripeClient{}
	svc, db := newTestService(t, stripeStub)
	ctx := context.Background()

	held := seedDeposit(t, db, enums.EscrowStatusHeld, nil)

	refunded, err := svc.Refund(ctx, held.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusRefunded, refunded.Status)
	assert.NotNil(t, refunded.RefundedAt)
	assert.Equal(t, 1, stripeStub.refundCalls)

	_, err = svc.Refund(ctx, held.ID, nil)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
	assert.Equal(t, 1, stripeStub.refundCalls, "refund side effect must occur exactly once")
}

func TestRefundUsesDepositScopedIdempotencyKey(t *testing.T) {
	stripeStub := &stubStripeClient{}
	svc, db := newTestService(t, stripeStub)

	held := seedDeposit(t, db, enums.EscrowStatusHeld, nil)
	_, err := svc.Refund(context.Background(), held.ID, nil)
	require.NoError(t, err)

	require.Len(t, stripeStub.refundKeys, 1)
	assert.Equal(t, "escrow-refund-"+held.ID.String(), stripeStub.refundKeys[0])
}

func TestRefundRetryConvergesWhenProcessorAlreadyRefunded(t *testing.T) {
	// A prior attempt moved the money but crashed before the local transition.
	// The retry must treat the processor's duplicate rejection as success and
	// finish the transition instead of leaving the deposit held.
	stripeStub := &stubStripeClient{refundErr: &stripe.Error{Code: stripe.ErrorCodeChargeAlreadyRefunded}}
	svc, db := newTestService(t, stripeStub)
	ctx := context.Background()

	held := seedDeposit(t, db, enums.EscrowStatusHeld, nil)

	refunded, err := svc.Refund(ctx, held.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusRefunded, refunded.Status)
	assert.Equal(t, int64(1), countOutboxEvents(t, db, enums.EventEscrowRefunded))
}

func TestRefundOtherProcessorErrorsStillFail(t *testing.T) {
	stripeStub := &stubStripeClient{refundErr: &stripe.Error{Code: stripe.ErrorCodeCardDeclined}}
	svc, db := newTestService(t, stripeStub)
	ctx := context.Background()

	held := seedDeposit(t, db, enums.EscrowStatusHeld, nil)

	_, err := svc.Refund(ctx, held.ID, nil)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())

	var stored models.EscrowDeposit
	require.NoError(t, db.First(&stored, "id = ?", held.ID).Error)
	assert.Equal(t, enums.EscrowStatusHeld, stored.Status)
}

func TestExpireRefundMarksExpired(t *testing.T) {
	stripeStub := &stubStripeClient{}
	svc, db := newTestService(t, stripeStub)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	held := seedDeposit(t, db, enums.EscrowStatusHeld, &past)

	expired, err := svc.ExpireRefund(ctx, held.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusExpired, expired.Status)
	assert.Equal(t, 1, stripeStub.refundCalls)
	assert.Equal(t, int64(1), countOutboxEvents(t, db, enums.EventEscrowExpired))
}

func TestReleaseNotFound(t *testing.T) {
	svc, _ := newTestService(t, &stubStripeClient{})

	_, err := svc.Release(context.Background(), uuid.New(), nil)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}
