package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/hello-adam-martin/offmarket-sub000/pkg/enums"
)

// Subscription persists the processor-owned subscription state per user.
// Tier and status are only ever written by the webhook synchronizer.
type Subscription struct {
	ID                   uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID               uuid.UUID                `gorm:"column:user_id;type:uuid;not null;uniqueIndex" json:"userId"`
	Tier                 enums.SubscriptionTier   `gorm:"column:tier;type:subscription_tier_enum;not null;default:'free'" json:"tier"`
	Status               enums.SubscriptionStatus `gorm:"column:status;type:subscription_status_enum;not null;default:'incomplete'" json:"status"`
	StripeCustomerID     string                   `gorm:"column:stripe_customer_id;not null" json:"-"`
	StripeSubscriptionID *string                  `gorm:"column:stripe_subscription_id;uniqueIndex" json:"-"`
	CurrentPeriodStart   *time.Time               `gorm:"column:current_period_start" json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd     *time.Time               `gorm:"column:current_period_end" json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd    bool                     `gorm:"column:cancel_at_period_end;not null;default:false" json:"cancelAtPeriodEnd"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}
