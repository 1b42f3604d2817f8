package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/hello-adam-martin/offmarket-sub000/pkg/enums"
)

// EscrowDeposit is one attempt by an owner to pay the finder's fee that unlocks
// contact with a buyer over a property. At most one deposit per
// (owner, property, buyer) triple may be held at a time; the partial unique
// index ux_escrow_deposits_held_triple enforces that at the storage layer.
type EscrowDeposit struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OwnerID    uuid.UUID  `gorm:"column:owner_id;type:uuid;not null;index" json:"ownerId"`
	BuyerID    uuid.UUID  `gorm:"column:buyer_id;type:uuid;not null;index" json:"buyerId"`
	PropertyID uuid.UUID  `gorm:"column:property_id;type:uuid;not null;index" json:"propertyId"`
	InquiryID  *uuid.UUID `gorm:"column:inquiry_id;type:uuid" json:"inquiryId,omitempty"`

	// AmountCents and StripePaymentIntentID are immutable after creation.
	AmountCents           int64              `gorm:"column:amount_cents;not null" json:"amountCents"`
	Status                enums.EscrowStatus `gorm:"column:status;type:escrow_status_enum;not null;default:'pending'" json:"status"`
	StripePaymentIntentID string             `gorm:"column:stripe_payment_intent_id;not null;uniqueIndex" json:"-"`

	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	ExpiresAt  *time.Time `gorm:"column:expires_at" json:"expiresAt,omitempty"`
	ReleasedAt *time.Time `gorm:"column:released_at" json:"releasedAt,omitempty"`
	RefundedAt *time.Time `gorm:"column:refunded_at" json:"refundedAt,omitempty"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (EscrowDeposit) TableName() string {
	return "escrow_deposits"
}
