package inquiries

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hello-adam-martin/offmarket-sub000/pkg/db/models"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/enums"
)

// Repository handles inquiry persistence. Status changes are conditional
// updates with an affected-row check so concurrent resolvers cannot
// double-apply them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, inquiry *models.Inquiry) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Inquiry, error)
	ListByParty(ctx context.Context, userID uuid.UUID, limit int) ([]models.Inquiry, error)
	Transition(ctx context.Context, id uuid.UUID, from, to enums.InquiryStatus, at time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an inquiry repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, inquiry *models.Inquiry) error {
	return r.db.WithContext(ctx).Create(inquiry).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Inquiry, error) {
	var inquiry models.Inquiry
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&inquiry).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &inquiry, nil
}

func (r *repository) ListByParty(ctx context.Context, userID uuid.UUID, limit int) ([]models.Inquiry, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.Inquiry
	if err := r.db.WithContext(ctx).
		Where("owner_id = ? OR buyer_id = ?", userID, userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Transition moves an inquiry from one status to another. Returns false when
// the inquiry was not in the expected source status, leaving it untouched.
func (r *repository) Transition(ctx context.Context, id uuid.UUID, from, to enums.InquiryStatus, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": at,
	}
	if to.IsResolved() {
		updates["resolved_at"] = at
	}
	result := r.db.WithContext(ctx).
		Model(&models.Inquiry{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
