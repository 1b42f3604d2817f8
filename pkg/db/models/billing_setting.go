package models

import "time"

// BillingSetting is one flat key/value row of the billing configuration.
// Keys are namespaced under "billing."; the full set is read through the
// process-wide cache in internal/billing.
type BillingSetting struct {
	Key       string    `gorm:"column:key;primaryKey" json:"key"`
	Value     string    `gorm:"column:value;not null" json:"value"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (BillingSetting) TableName() string {
	return "billing_settings"
}
