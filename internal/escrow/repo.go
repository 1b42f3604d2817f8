package escrow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hello-adam-martin/offmarket-sub000/pkg/db/models"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/enums"
)

// Repository handles escrow deposit persistence. Transitions are conditional
// updates with an affected-row check, so the check-and-write is a single
// atomic operation against the store.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, deposit *models.EscrowDeposit) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.EscrowDeposit, error)
	FindHeldByTriple(ctx context.Context, ownerID, propertyID, buyerID uuid.UUID) (*models.EscrowDeposit, error)
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.EscrowDeposit, error)
	FindByInquiryID(ctx context.Context, inquiryID uuid.UUID) (*models.EscrowDeposit, error)
	FindExpiredHeld(ctx context.Context, asOf time.Time, limit int) ([]models.EscrowDeposit, error)
	MarkHeld(ctx context.Context, id uuid.UUID, expiresAt time.Time) (bool, error)
	TransitionFromHeld(ctx context.Context, id uuid.UUID, target enums.EscrowStatus, at time.Time) (bool, error)
	LinkInquiry(ctx context.Context, depositID, inquiryID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an escrow repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, deposit *models.EscrowDeposit) error {
	return r.db.WithContext(ctx).Create(deposit).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.EscrowDeposit, error) {
	var deposit models.EscrowDeposit
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&deposit).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &deposit, nil
}

func (r *repository) FindHeldByTriple(ctx context.Context, ownerID, propertyID, buyerID uuid.UUID) (*models.EscrowDeposit, error) {
	var deposit models.EscrowDeposit
	if err := r.db.WithContext(ctx).
		Where("owner_id = ? AND property_id = ? AND buyer_id = ? AND status = ?",
			ownerID, propertyID, buyerID, enums.EscrowStatusHeld).
		First(&deposit).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &deposit, nil
}

func (r *repository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.EscrowDeposit, error) {
	if paymentIntentID == "" {
		return nil, nil
	}
	var deposit models.EscrowDeposit
	if err := r.db.WithContext(ctx).
		Where("stripe_payment_intent_id = ?", paymentIntentID).
		First(&deposit).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &deposit, nil
}

func (r *repository) FindByInquiryID(ctx context.Context, inquiryID uuid.UUID) (*models.EscrowDeposit, error) {
	var deposit models.EscrowDeposit
	if err := r.db.WithContext(ctx).
		Where("inquiry_id = ?", inquiryID).
		First(&deposit).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &deposit, nil
}

func (r *repository) FindExpiredHeld(ctx context.Context, asOf time.Time, limit int) ([]models.EscrowDeposit, error) {
	if limit <= 0 {
		limit = 500
	}
	var deposits []models.EscrowDeposit
	if err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", enums.EscrowStatusHeld, asOf).
		Order("expires_at ASC").
		Limit(limit).
		Find(&deposits).Error; err != nil {
		return nil, err
	}
	return deposits, nil
}

// MarkHeld promotes a pending deposit to held. Returns false when the deposit
// was not in pending state, leaving the record untouched.
func (r *repository) MarkHeld(ctx context.Context, id uuid.UUID, expiresAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.EscrowDeposit{}).
		Where("id = ? AND status = ?", id, enums.EscrowStatusPending).
		Updates(map[string]any{
			"status":     enums.EscrowStatusHeld,
			"expires_at": expiresAt,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// TransitionFromHeld moves a held deposit to one of the terminal states.
// Returns false when the deposit was not held, leaving the record untouched.
func (r *repository) TransitionFromHeld(ctx context.Context, id uuid.UUID, target enums.EscrowStatus, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":     target,
		"updated_at": at,
	}
	switch target {
	case enums.EscrowStatusReleased:
		updates["released_at"] = at
	case enums.EscrowStatusRefunded, enums.EscrowStatusExpired:
		updates["refunded_at"] = at
	}
	result := r.db.WithContext(ctx).
		Model(&models.EscrowDeposit{}).
		Where("id = ? AND status = ?", id, enums.EscrowStatusHeld).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// LinkInquiry attaches an inquiry to a held deposit that has none yet.
func (r *repository) LinkInquiry(ctx context.Context, depositID, inquiryID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.EscrowDeposit{}).
		Where("id = ? AND status = ? AND inquiry_id IS NULL", depositID, enums.EscrowStatusHeld).
		Updates(map[string]any{
			"inquiry_id": inquiryID,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
