package billing

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hello-adam-martin/offmarket-sub000/pkg/db/models"
)

// Repository handles billing settings persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LoadSettings(ctx context.Context) (map[string]string, error)
	UpsertSettings(ctx context.Context, values map[string]string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) LoadSettings(ctx context.Context) (map[string]string, error) {
	var rows []models.BillingSetting
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Key] = row.Value
	}
	return values, nil
}

func (r *repository) UpsertSettings(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	rows := make([]models.BillingSetting, 0, len(values))
	now := time.Now()
	for key, value := range values {
		rows = append(rows, models.BillingSetting{Key: key, Value: value, UpdatedAt: now})
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&rows).Error
}
