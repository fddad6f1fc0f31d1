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

// GormListingRepository implements ListingRepository using GORM
type GormListingRepository struct {
	db *gorm.DB
}

// NewGormListingRepository creates a new GormListingRepository
func NewGormListingRepository(db *gorm.DB) *GormListingRepository {
	return &GormListingRepository{db: db}
}

// Save creates or updates a listing
func (r *GormListingRepository) Save(ctx context.Context, listing *sync.PlatformListing) error {
	model := models.PlatformListingModelFromDomain(listing)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByProductAndPlatform finds the listing for one product on one platform
func (r *GormListingRepository) FindByProductAndPlatform(ctx context.Context, productID uuid.UUID, platform sync.Platform) (*sync.PlatformListing, error) {
	var model models.PlatformListingModel
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND platform = ?", productID, platform).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByProduct finds every listing of one product
func (r *GormListingRepository) FindByProduct(ctx context.Context, productID uuid.UUID) ([]*sync.PlatformListing, error) {
	var listingModels []models.PlatformListingModel
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("platform ASC").
		Find(&listingModels).Error; err != nil {
		return nil, err
	}

	listings := make([]*sync.PlatformListing, len(listingModels))
	for i, model := range listingModels {
		listings[i] = model.ToDomain()
	}
	return listings, nil
}

// FindByTenantAndPlatform finds the tenant's listings on one platform
func (r *GormListingRepository) FindByTenantAndPlatform(ctx context.Context, tenantID uuid.UUID, platform sync.Platform) ([]*sync.PlatformListing, error) {
	var listingModels []models.PlatformListingModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND platform = ?", tenantID, platform).
		Order("created_at ASC").
		Find(&listingModels).Error; err != nil {
		return nil, err
	}

	listings := make([]*sync.PlatformListing, len(listingModels))
	for i, model := range listingModels {
		listings[i] = model.ToDomain()
	}
	return listings, nil
}

// Ensure GormListingRepository implements ListingRepository
var _ sync.ListingRepository = (*GormListingRepository)(nil)
