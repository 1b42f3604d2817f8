package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/hello-adam-martin/offmarket-sub000/pkg/enums"
)

// Inquiry is the contact thread between an owner and a buyer over a property.
// A held escrow deposit links to it via EscrowDeposit.InquiryID once the owner
// opens the thread.
type Inquiry struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OwnerID     uuid.UUID              `gorm:"column:owner_id;type:uuid;not null;index" json:"ownerId"`
	BuyerID     uuid.UUID              `gorm:"column:buyer_id;type:uuid;not null;index" json:"buyerId"`
	PropertyID  uuid.UUID              `gorm:"column:property_id;type:uuid;not null;index" json:"propertyId"`
	Status      enums.InquiryStatus    `gorm:"column:status;type:inquiry_status_enum;not null;default:'pending'" json:"status"`
	InitiatedBy enums.InquiryInitiator `gorm:"column:initiated_by;type:inquiry_initiator_enum;not null" json:"initiatedBy"`
	Message     *string                `gorm:"column:message" json:"message,omitempty"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	ResolvedAt  *time.Time             `gorm:"column:resolved_at" json:"resolvedAt,omitempty"`
	UpdatedAt   time.Time              `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Inquiry) TableName() string {
	return "inquiries"
}
