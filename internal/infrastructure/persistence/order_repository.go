package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/channelhub/backend/internal/domain/shared"
	"github.com/channelhub/backend/internal/domain/sync"
	"github.com/channelhub/backend/internal/infrastructure/persistence/models"
)

// GormOrderRepository implements OrderRepository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Create inserts an order together with its items. A collision on the
// (tenant, platform, platform order id) key surfaces as shared.ErrAlreadyExists
// so the caller can fall back to an update.
func (r *GormOrderRepository) Create(ctx context.Context, order *sync.Order) error {
	model := models.OrderModelFromDomain(order)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// UpdateHeader persists the order's mutable fields. Line items are never
// written from here.
func (r *GormOrderRepository) UpdateHeader(ctx context.Context, order *sync.Order) error {
	updates := map[string]any{
		"status":           order.Status,
		"total":            order.Total,
		"shipping_address": order.ShippingAddress,
		"updated_at":       order.UpdatedAt,
	}
	result := r.db.WithContext(ctx).
		Model(&models.OrderModel{}).
		Where("id = ? AND tenant_id = ?", order.ID, order.TenantID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByPlatformOrderID finds the order matching the remote idempotency key
func (r *GormOrderRepository) FindByPlatformOrderID(ctx context.Context, tenantID uuid.UUID, platform sync.Platform, platformOrderID string) (*sync.Order, error) {
	var model models.OrderModel
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("tenant_id = ? AND platform = ? AND platform_order_id = ?", tenantID, platform, platformOrderID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByID finds an order with its items within a tenant
func (r *GormOrderRepository) FindByID(ctx context.Context, tenantID, orderID uuid.UUID) (*sync.Order, error) {
	var model models.OrderModel
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ? AND tenant_id = ?", orderID, tenantID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns a page of the tenant's orders, newest first, with the total count
func (r *GormOrderRepository) List(ctx context.Context, tenantID uuid.UUID, offset, limit int) ([]*sync.Order, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.OrderModel{}).
		Where("tenant_id = ?", tenantID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orderModels []models.OrderModel
	if err := r.db.WithContext(ctx).
		Preload("Items").
		Where("tenant_id = ?", tenantID).
		Order("placed_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&orderModels).Error; err != nil {
		return nil, 0, err
	}

	orders := make([]*sync.Order, len(orderModels))
	for i, model := range orderModels {
		orders[i] = model.ToDomain()
	}
	return orders, total, nil
}

// Ensure GormOrderRepository implements OrderRepository
var _ sync.OrderRepository = (*GormOrderRepository)(nil)
