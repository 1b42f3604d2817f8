package subscriptions

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/hello-adam-martin/offmarket-sub000/pkg/config"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/db/models"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/enums"
	pkgerrors "github.com/hello-adam-martin/offmarket-sub000/pkg/errors"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/outbox"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r *testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

func setupSubscriptionTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	subscriptions := `
CREATE TABLE IF NOT EXISTS subscriptions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL UNIQUE,
  tier TEXT NOT NULL DEFAULT 'free',
  status TEXT NOT NULL DEFAULT 'incomplete',
  stripe_customer_id TEXT NOT NULL,
  stripe_subscription_id TEXT UNIQUE,
  current_period_start DATETIME,
  current_period_end DATETIME,
  cancel_at_period_end INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
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
	require.NoError(t, db.Exec(subscriptions).Error)
	require.NoError(t, db.Exec(outboxDDL).Error)
	return db
}

func newSubscriptionService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := setupSubscriptionTestDB(t)
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(db),
		StripeCfg:         config.StripeConfig{ProPriceID: testProPriceID},
		Outbox:            outbox.NewService(outbox.NewRepository(db), nil),
		TransactionRunner: &testTxRunner{db: db},
	})
	require.NoError(t, err)
	return svc, db
}

type stubBillingClient struct {
	remoteStatus stripe.SubscriptionStatus
	getErr       error

	getCalls      int
	checkoutCalls int
}

func (s *stubBillingClient) CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	return &stripe.Customer{ID: "cus_" + uuid.NewString()}, nil
}

func (s *stubBillingClient) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	s.checkoutCalls++
	return &stripe.CheckoutSession{URL: "https://checkout.test/session"}, nil
}

func (s *stubBillingClient) CreatePortalSession(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	return &stripe.BillingPortalSession{URL: "https://portal.test/session"}, nil
}

func (s *stubBillingClient) GetSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	s.getCalls++
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &stripe.Subscription{ID: id, Status: s.remoteStatus}, nil
}

func newSubscriptionServiceWithStripe(t *testing.T, client StripeBillingClient) (*Service, *gorm.DB) {
	t.Helper()
	db := setupSubscriptionTestDB(t)
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(db),
		Stripe:            client,
		StripeCfg:         config.StripeConfig{ProPriceID: testProPriceID},
		Outbox:            outbox.NewService(outbox.NewRepository(db), nil),
		TransactionRunner: &testTxRunner{db: db},
	})
	require.NoError(t, err)
	return svc, db
}

func stripeSubscription(userID uuid.UUID, status stripe.SubscriptionStatus) *stripe.Subscription {
	return &stripe.Subscription{
		ID:       "sub_" + uuid.NewString(),
		Status:   status,
		Metadata: map[string]string{"user_id": userID.String()},
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{
					CurrentPeriodStart: time.Now().Unix(),
					CurrentPeriodEnd:   time.Now().Add(14 * 24 * time.Hour).Unix(),
					Price:              &stripe.Price{ID: testProPriceID},
				},
			},
		},
	}
}

func countSubscriptionEvents(t *testing.T, db *gorm.DB, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func TestSyncFromStripeCreatesRecord(t *testing.T) {
	svc, db := newSubscriptionService(t)
	userID := uuid.New()
	event := stripeSubscription(userID, stripe.SubscriptionStatusPastDue)

	require.NoError(t, svc.SyncFromStripe(context.Background(), event))

	var stored models.Subscription
	require.NoError(t, db.Where("user_id = ?", userID).First(&stored).Error)
	assert.Equal(t, enums.SubscriptionTierPro, stored.Tier)
	assert.Equal(t, enums.SubscriptionStatusPastDue, stored.Status)
	require.NotNil(t, stored.StripeSubscriptionID)
	assert.Equal(t, event.ID, *stored.StripeSubscriptionID)
	require.NotNil(t, stored.CurrentPeriodEnd)
	assert.Equal(t, event.Items.Data[0].CurrentPeriodEnd, stored.CurrentPeriodEnd.Unix())
	assert.EqualValues(t, 1, countSubscriptionEvents(t, db, enums.EventSubscriptionSynced))
}

func TestSyncFromStripeStatusIsCopiedVerbatim(t *testing.T) {
	svc, db := newSubscriptionService(t)
	userID := uuid.New()
	event := stripeSubscription(userID, stripe.SubscriptionStatusPastDue)
	require.NoError(t, svc.SyncFromStripe(context.Background(), event))

	// The local record never anticipates recovery or cancellation on its own;
	// only the next event moves it.
	event.Status = stripe.SubscriptionStatusActive
	require.NoError(t, svc.SyncFromStripe(context.Background(), event))

	var stored models.Subscription
	require.NoError(t, db.Where("user_id = ?", userID).First(&stored).Error)
	assert.Equal(t, enums.SubscriptionStatusActive, stored.Status)
}

func TestSyncFromStripeFallsBackToThirtyDays(t *testing.T) {
	svc, db := newSubscriptionService(t)
	userID := uuid.New()
	event := stripeSubscription(userID, stripe.SubscriptionStatusActive)
	event.Items = nil

	require.NoError(t, svc.SyncFromStripe(context.Background(), event))

	var stored models.Subscription
	require.NoError(t, db.Where("user_id = ?", userID).First(&stored).Error)
	require.NotNil(t, stored.CurrentPeriodEnd)
	assert.WithinDuration(t, time.Now().UTC().Add(30*24*time.Hour), *stored.CurrentPeriodEnd, time.Minute)
}

func TestSyncFromStripeAdoptsCheckoutRow(t *testing.T) {
	svc, db := newSubscriptionService(t)
	userID := uuid.New()
	existing := &models.Subscription{
		ID:               uuid.New(),
		UserID:           userID,
		Tier:             enums.SubscriptionTierFree,
		Status:           enums.SubscriptionStatusIncomplete,
		StripeCustomerID: "cus_checkout",
	}
	require.NoError(t, db.Create(existing).Error)

	event := stripeSubscription(userID, stripe.SubscriptionStatusActive)
	require.NoError(t, svc.SyncFromStripe(context.Background(), event))

	var stored models.Subscription
	require.NoError(t, db.Where("user_id = ?", userID).First(&stored).Error)
	assert.Equal(t, existing.ID, stored.ID)
	assert.Equal(t, enums.SubscriptionTierPro, stored.Tier)
	assert.Equal(t, enums.SubscriptionStatusActive, stored.Status)
	require.NotNil(t, stored.StripeSubscriptionID)
	assert.Equal(t, event.ID, *stored.StripeSubscriptionID)
}

func TestSyncFromStripeRejectsMissingMetadata(t *testing.T) {
	svc, _ := newSubscriptionService(t)
	event := stripeSubscription(uuid.New(), stripe.SubscriptionStatusActive)
	event.Metadata = nil

	err := svc.SyncFromStripe(context.Background(), event)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestHandleDeletedCancelsAndClearsExternalID(t *testing.T) {
	svc, db := newSubscriptionService(t)
	userID := uuid.New()
	event := stripeSubscription(userID, stripe.SubscriptionStatusActive)
	require.NoError(t, svc.SyncFromStripe(context.Background(), event))

	require.NoError(t, svc.HandleDeleted(context.Background(), event))

	var stored models.Subscription
	require.NoError(t, db.Where("user_id = ?", userID).First(&stored).Error)
	assert.Equal(t, enums.SubscriptionStatusCanceled, stored.Status)
	assert.Nil(t, stored.StripeSubscriptionID)
	assert.EqualValues(t, 1, countSubscriptionEvents(t, db, enums.EventSubscriptionCanceled))
}

func TestHandleDeletedUnknownSubscriptionIsIgnored(t *testing.T) {
	svc, db := newSubscriptionService(t)
	event := stripeSubscription(uuid.New(), stripe.SubscriptionStatusActive)

	require.NoError(t, svc.HandleDeleted(context.Background(), event))
	assert.EqualValues(t, 0, countSubscriptionEvents(t, db, enums.EventSubscriptionCanceled))
}

func TestMeWithoutRecordReadsFree(t *testing.T) {
	svc, _ := newSubscriptionService(t)

	view, err := svc.Me(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionTierFree, view.Tier)
	assert.False(t, view.HasBillingProfile)
}

func TestMeNonActiveProReadsFree(t *testing.T) {
	svc, db := newSubscriptionService(t)
	userID := uuid.New()
	subID := "sub_" + uuid.NewString()
	require.NoError(t, db.Create(&models.Subscription{
		ID:                   uuid.New(),
		UserID:               userID,
		Tier:                 enums.SubscriptionTierPro,
		Status:               enums.SubscriptionStatusPastDue,
		StripeCustomerID:     "cus_test",
		StripeSubscriptionID: &subID,
	}).Error)

	view, err := svc.Me(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionTierFree, view.Tier)
	assert.Equal(t, enums.SubscriptionStatusPastDue, view.Status)
	assert.True(t, view.HasBillingProfile)
}

func TestHandleDeletedReplayEmitsCanceledOnce(t *testing.T) {
	svc, db := newSubscriptionService(t)
	userID := uuid.New()
	event := stripeSubscription(userID, stripe.SubscriptionStatusActive)

	require.NoError(t, svc.SyncFromStripe(context.Background(), event))
	require.NoError(t, svc.HandleDeleted(context.Background(), event))

	// A late sync re-attaches the external id, then the delete replays.
	require.NoError(t, svc.SyncFromStripe(context.Background(), event))
	require.NoError(t, svc.HandleDeleted(context.Background(), event))

	var stored models.Subscription
	require.NoError(t, db.Where("user_id = ?", userID).First(&stored).Error)
	assert.Equal(t, enums.SubscriptionStatusCanceled, stored.Status)
	assert.EqualValues(t, 1, countSubscriptionEvents(t, db, enums.EventSubscriptionCanceled))
}

func TestCheckoutDeclinesWhenSubscriptionAlreadyLive(t *testing.T) {
	client := &stubBillingClient{remoteStatus: stripe.SubscriptionStatusActive}
	svc, db := newSubscriptionServiceWithStripe(t, client)
	userID := uuid.New()
	subID := "sub_" + uuid.NewString()
	require.NoError(t, db.Create(&models.Subscription{
		ID:                   uuid.New(),
		UserID:               userID,
		Tier:                 enums.SubscriptionTierPro,
		Status:               enums.SubscriptionStatusActive,
		StripeCustomerID:     "cus_live",
		StripeSubscriptionID: &subID,
	}).Error)

	_, err := svc.Checkout(context.Background(), userID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
	assert.Equal(t, 1, client.getCalls)
	assert.Zero(t, client.checkoutCalls, "no session for an already subscribed account")
}

func TestCheckoutProceedsWhenRemoteSubscriptionDead(t *testing.T) {
	client := &stubBillingClient{remoteStatus: stripe.SubscriptionStatusCanceled}
	svc, db := newSubscriptionServiceWithStripe(t, client)
	userID := uuid.New()
	subID := "sub_" + uuid.NewString()
	require.NoError(t, db.Create(&models.Subscription{
		ID:                   uuid.New(),
		UserID:               userID,
		Tier:                 enums.SubscriptionTierFree,
		Status:               enums.SubscriptionStatusCanceled,
		StripeCustomerID:     "cus_lapsed",
		StripeSubscriptionID: &subID,
	}).Error)

	url, err := svc.Checkout(context.Background(), userID)
	require.NoError(t, err)
	assert.NotEmpty(t, url)
	assert.Equal(t, 1, client.checkoutCalls)
}

func TestCheckoutDeclinesWhenUnconfigured(t *testing.T) {
	svc, _ := newSubscriptionService(t)

	_, err := svc.Checkout(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotConfigured, pkgerrors.As(err).Code())
}
