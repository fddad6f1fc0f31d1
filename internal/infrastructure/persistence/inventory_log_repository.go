package persistence

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/channelhub/backend/internal/domain/sync"
	"github.com/channelhub/backend/internal/infrastructure/persistence/models"
)

// GormInventoryLogRepository implements InventoryLogRepository using GORM.
// The table is append-only; there is no update or delete path.
type GormInventoryLogRepository struct {
	db *gorm.DB
}

// NewGormInventoryLogRepository creates a new GormInventoryLogRepository
func NewGormInventoryLogRepository(db *gorm.DB) *GormInventoryLogRepository {
	return &GormInventoryLogRepository{db: db}
}

// Append inserts a log entry
func (r *GormInventoryLogRepository) Append(ctx context.Context, log *sync.InventoryLog) error {
	model := models.InventoryLogModelFromDomain(log)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByProduct returns a page of a product's log entries, newest first
func (r *GormInventoryLogRepository) FindByProduct(ctx context.Context, productID uuid.UUID, limit int) ([]*sync.InventoryLog, error) {
	var logModels []models.InventoryLogModel
	query := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&logModels).Error; err != nil {
		return nil, err
	}

	logs := make([]*sync.InventoryLog, len(logModels))
	for i, model := range logModels {
		logs[i] = model.ToDomain()
	}
	return logs, nil
}

// Ensure GormInventoryLogRepository implements InventoryLogRepository
var _ sync.InventoryLogRepository = (*GormInventoryLogRepository)(nil)
