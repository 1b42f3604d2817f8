package escrow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbpkg "github.com/hello-adam-martin/offmarket-sub000/pkg/db"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/db/models"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/enums"
)

func setupEscrowTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	deposits := `
CREATE TABLE IF NOT EXISTS escrow_deposits (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  property_id TEXT NOT NULL,
  inquiry_id TEXT,
  amount_cents INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  stripe_payment_intent_id TEXT NOT NULL UNIQUE,
  expires_at DATETIME,
  released_at DATETIME,
  refunded_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	heldTriple := `
CREATE UNIQUE INDEX IF NOT EXISTS ux_escrow_deposits_held_triple
  ON escrow_deposits (owner_id, property_id, buyer_id)
  WHERE status = 'held';`

	require.NoError(t, db.Exec(deposits).Error)
	require.NoError(t, db.Exec(heldTriple).Error)
	return db
}

func seedDeposit(t *testing.T, db *gorm.DB, status enums.EscrowStatus, expiresAt *time.Time) *models.EscrowDeposit {
	t.Helper()
	deposit := &models.EscrowDeposit{
		ID:                    uuid.New(),
		OwnerID:               uuid.New(),
		BuyerID:               uuid.New(),
		PropertyID:            uuid.New(),
		AmountCents:           49900,
		Status:                status,
		StripePaymentIntentID: "pi_" + uuid.NewString(),
		ExpiresAt:             expiresAt,
	}
	require.NoError(t, db.Create(deposit).Error)
	return deposit
}

func TestMarkHeldOnlyFromPending(t *testing.T) {
	db := setupEscrowTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	expiresAt := time.Now().UTC().AddDate(0, 0, 30)

	pending := seedDeposit(t, db, enums.EscrowStatusPending, nil)
	ok, err := repo.MarkHeld(ctx, pending.ID, expiresAt)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second promotion is a no-op.
	ok, err = repo.MarkHeld(ctx, pending.ID, expiresAt)
	require.NoError(t, err)
	assert.False(t, ok)

	released := seedDeposit(t, db, enums.EscrowStatusReleased, nil)
	ok, err = repo.MarkHeld(ctx, released.ID, expiresAt)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := repo.FindByID(ctx, released.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusReleased, stored.Status)
}

func TestTransitionFromHeldAppliesOnce(t *testing.T) {
	db := setupEscrowTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	held := seedDeposit(t, db, enums.EscrowStatusHeld, nil)

	ok, err := repo.TransitionFromHeld(ctx, held.ID, enums.EscrowStatusReleased, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TransitionFromHeld(ctx, held.ID, enums.EscrowStatusRefunded, now)
	require.NoError(t, err)
	assert.False(t, ok, "terminal deposit must not transition again")

	stored, err := repo.FindByID(ctx, held.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusReleased, stored.Status)
	assert.NotNil(t, stored.ReleasedAt)
	assert.Nil(t, stored.RefundedAt)
}

func TestTransitionFromHeldStampsRefundedAt(t *testing.T) {
	db := setupEscrowTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	held := seedDeposit(t, db, enums.EscrowStatusHeld, nil)
	ok, err := repo.TransitionFromHeld(ctx, held.ID, enums.EscrowStatusExpired, now)
	require.NoError(t, err)
	require.True(t, ok)

	stored, err := repo.FindByID(ctx, held.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusExpired, stored.Status)
	assert.NotNil(t, stored.RefundedAt)
	assert.Nil(t, stored.ReleasedAt)
}

func TestHeldTripleUniqueIndex(t *testing.T) {
	db := setupEscrowTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)

	first := seedDeposit(t, db, enums.EscrowStatusHeld, nil)

	duplicate := &models.EscrowDeposit{
		ID:                    uuid.New(),
		OwnerID:               first.OwnerID,
		BuyerID:               first.BuyerID,
		PropertyID:            first.PropertyID,
		AmountCents:           49900,
		Status:                enums.EscrowStatusHeld,
		StripePaymentIntentID: "pi_" + uuid.NewString(),
	}
	err := repo.Create(ctx, duplicate)
	require.Error(t, err)
	assert.True(t, dbpkg.IsUniqueViolation(err, "ux_escrow_deposits_held_triple"))

	// A terminal deposit for the same triple is allowed.
	resolved := &models.EscrowDeposit{
		ID:                    uuid.New(),
		OwnerID:               first.OwnerID,
		BuyerID:               first.BuyerID,
		PropertyID:            first.PropertyID,
		AmountCents:           49900,
		Status:                enums.EscrowStatusRefunded,
		StripePaymentIntentID: "pi_" + uuid.NewString(),
	}
	require.NoError(t, repo.Create(ctx, resolved))

	found, err := repo.FindHeldByTriple(ctx, first.OwnerID, first.PropertyID, first.BuyerID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)
}

func TestFindExpiredHeld(t *testing.T) {
	db := setupEscrowTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	expired := seedDeposit(t, db, enums.EscrowStatusHeld, &past)
	seedDeposit(t, db, enums.EscrowStatusHeld, &future)
	seedDeposit(t, db, enums.EscrowStatusReleased, &past)
	seedDeposit(t, db, enums.EscrowStatusHeld, nil)

	found, err := repo.FindExpiredHeld(ctx, now, 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, expired.ID, found[0].ID)
}

func TestLinkInquiryOnlyOnce(t *testing.T) {
	db := setupEscrowTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	held := seedDeposit(t, db, enums.EscrowStatusHeld, nil)
	inquiryID := uuid.New()

	ok, err := repo.LinkInquiry(ctx, held.ID, inquiryID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.LinkInquiry(ctx, held.ID, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok, "linked deposit must not re-link")

	stored, err := repo.FindByID(ctx, held.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.InquiryID)
	assert.Equal(t, inquiryID, *stored.InquiryID)
}
