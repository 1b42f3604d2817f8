package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hello-adam-martin/offmarket-sub000/pkg/enums"
)

// OutboxDLQ captures terminal event failures for auditing and remediation.
// Webhook handler failures land here too, so the always-acknowledge trade-off
// never drops an event silently.
type OutboxDLQ struct {
	ID            uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	EventID       string                     `gorm:"column:event_id;not null;index" json:"eventId"`
	EventType     string                     `gorm:"column:event_type;not null" json:"eventType"`
	AggregateType enums.OutboxAggregateType  `gorm:"column:aggregate_type;type:aggregate_type_enum;not null" json:"aggregateType"`
	AggregateID   *uuid.UUID                 `gorm:"column:aggregate_id;type:uuid" json:"aggregateId,omitempty"`
	Payload       json.RawMessage            `gorm:"column:payload_json;type:jsonb;not null" json:"payload"`
	ErrorReason   enums.OutboxDLQErrorReason `gorm:"column:error_reason;type:outbox_dlq_error_reason_enum;not null" json:"errorReason"`
	ErrorMessage  *string                    `gorm:"column:error_message" json:"errorMessage,omitempty"`
	AttemptCount  int                        `gorm:"column:attempt_count;not null;default:0" json:"attemptCount"`
	FailedAt      time.Time                  `gorm:"column:failed_at;autoCreateTime" json:"failedAt"`
	CreatedAt     time.Time                  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (OutboxDLQ) TableName() string {
	return "outbox_dlq"
}
