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

// GormConnectionRepository implements ConnectionRepository using GORM
type GormConnectionRepository struct {
	db *gorm.DB
}

// NewGormConnectionRepository creates a new GormConnectionRepository
func NewGormConnectionRepository(db *gorm.DB) *GormConnectionRepository {
	return &GormConnectionRepository{db: db}
}

// Save creates or updates a connection
func (r *GormConnectionRepository) Save(ctx context.Context, conn *sync.PlatformConnection) error {
	model := models.PlatformConnectionModelFromDomain(conn)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByTenantAndPlatform finds the connection for one tenant and platform
func (r *GormConnectionRepository) FindByTenantAndPlatform(ctx context.Context, tenantID uuid.UUID, platform sync.Platform) (*sync.PlatformConnection, error) {
	var model models.PlatformConnectionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND platform = ?", tenantID, platform).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByTenant finds all of a tenant's connections regardless of status
func (r *GormConnectionRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]*sync.PlatformConnection, error) {
	var connectionModels []models.PlatformConnectionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("platform ASC").
		Find(&connectionModels).Error; err != nil {
		return nil, err
	}

	connections := make([]*sync.PlatformConnection, len(connectionModels))
	for i, model := range connectionModels {
		connections[i] = model.ToDomain()
	}
	return connections, nil
}

// FindActiveByTenant finds the tenant's ACTIVE connections
func (r *GormConnectionRepository) FindActiveByTenant(ctx context.Context, tenantID uuid.UUID) ([]*sync.PlatformConnection, error) {
	var connectionModels []models.PlatformConnectionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, sync.ConnectionStatusActive).
		Order("platform ASC").
		Find(&connectionModels).Error; err != nil {
		return nil, err
	}

	connections := make([]*sync.PlatformConnection, len(connectionModels))
	for i, model := range connectionModels {
		connections[i] = model.ToDomain()
	}
	return connections, nil
}

// FindByShopDomain resolves a connection from the shop identifier stored in
// its metadata. The match is exact on the normalized identifier, so a stale
// or unknown shop yields shared.ErrNotFound for the caller to handle.
func (r *GormConnectionRepository) FindByShopDomain(ctx context.Context, platform sync.Platform, shopDomain string) (*sync.PlatformConnection, error) {
	if shopDomain == "" {
		return nil, shared.ErrNotFound
	}

	var connectionModels []models.PlatformConnectionModel
	if err := r.db.WithContext(ctx).
		Where("platform = ? AND status = ?", platform, sync.ConnectionStatusActive).
		Find(&connectionModels).Error; err != nil {
		return nil, err
	}

	for _, model := range connectionModels {
		conn := model.ToDomain()
		if conn.ShopDomain() == shopDomain {
			return conn, nil
		}
	}
	return nil, shared.ErrNotFound
}

// ListTenantsWithActiveConnections returns distinct tenant IDs holding at
// least one ACTIVE connection
func (r *GormConnectionRepository) ListTenantsWithActiveConnections(ctx context.Context) ([]uuid.UUID, error) {
	var tenantIDs []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.PlatformConnectionModel{}).
		Where("status = ?", sync.ConnectionStatusActive).
		Distinct("tenant_id").
		Order("tenant_id ASC").
		Pluck("tenant_id", &tenantIDs).Error; err != nil {
		return nil, err
	}
	return tenantIDs, nil
}

// Ensure GormConnectionRepository implements ConnectionRepository
var _ sync.ConnectionRepository = (*GormConnectionRepository)(nil)
