package subscriptions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hello-adam-martin/offmarket-sub000/pkg/db/models"
)

// Repository handles subscription persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, subscription *models.Subscription) error
	Update(ctx context.Context, subscription *models.Subscription) error
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
	FindByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a subscription repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) Update(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Save(subscription).Error
}

func (r *repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&sub).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	if stripeSubscriptionID == "" {
		return nil, nil
	}
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		First(&sub).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}
