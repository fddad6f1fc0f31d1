package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/channelhub/backend/internal/domain/shared"
	"github.com/channelhub/backend/internal/domain/sync"
	"github.com/channelhub/backend/internal/infrastructure/persistence/models"
)

// GormProductRepository implements ProductRepository using GORM
type GormProductRepository struct {
	db *gorm.DB
}

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// Create inserts a new product. A tenant-level SKU collision surfaces as
// shared.ErrAlreadyExists.
func (r *GormProductRepository) Create(ctx context.Context, product *sync.Product) error {
	model := models.ProductModelFromDomain(product)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Update persists changes to an existing product
func (r *GormProductRepository) Update(ctx context.Context, product *sync.Product) error {
	model := models.ProductModelFromDomain(product)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByID finds a product by ID within a tenant
func (r *GormProductRepository) FindByID(ctx context.Context, tenantID, productID uuid.UUID) (*sync.Product, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", productID, tenantID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindBySKU finds a tenant's product by SKU
func (r *GormProductRepository) FindBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*sync.Product, error) {
	var model models.ProductModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND sku = ?", tenantID, sku).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActiveByTenant finds the tenant's ACTIVE products
func (r *GormProductRepository) FindActiveByTenant(ctx context.Context, tenantID uuid.UUID) ([]*sync.Product, error) {
	var productModels []models.ProductModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, sync.ProductStatusActive).
		Order("sku ASC").
		Find(&productModels).Error; err != nil {
		return nil, err
	}

	products := make([]*sync.Product, len(productModels))
	for i, model := range productModels {
		products[i] = model.ToDomain()
	}
	return products, nil
}

// List returns a page of the tenant's products together with the total count
func (r *GormProductRepository) List(ctx context.Context, tenantID uuid.UUID, offset, limit int) ([]*sync.Product, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.ProductModel{}).
		Where("tenant_id = ?", tenantID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var productModels []models.ProductModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&productModels).Error; err != nil {
		return nil, 0, err
	}

	products := make([]*sync.Product, len(productModels))
	for i, model := range productModels {
		products[i] = model.ToDomain()
	}
	return products, total, nil
}

// Ensure GormProductRepository implements ProductRepository
var _ sync.ProductRepository = (*GormProductRepository)(nil)

// isDuplicateKey reports whether err is a unique constraint violation. GORM
// translates the postgres error when translation is enabled; the string checks
// cover the sqlite driver used in tests.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint failed")
}
