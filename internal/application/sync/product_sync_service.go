package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/shared"
	"github.com/channelhub/backend/internal/domain/sync"
)

// PlatformResult is the per-platform outcome of one product sync
type PlatformResult struct {
	Platform          sync.Platform `json:"platform"`
	Success           bool          `json:"success"`
	PlatformListingID string        `json:"platform_listing_id,omitempty"`
	Error             string        `json:"error,omitempty"`
}

// ProductSyncService pushes canonical products to platform listings.
// Platforms are synced independently: one platform's failure is recorded on
// its listing and never blocks the siblings.
type ProductSyncService struct {
	products    sync.ProductRepository
	listings    sync.ListingRepository
	connections sync.ConnectionRepository
	creds       *CredentialManager
	logger      *zap.Logger
}

// NewProductSyncService creates a new product sync service
func NewProductSyncService(
	products sync.ProductRepository,
	listings sync.ListingRepository,
	connections sync.ConnectionRepository,
	creds *CredentialManager,
	logger *zap.Logger,
) *ProductSyncService {
	return &ProductSyncService{
		products:    products,
		listings:    listings,
		connections: connections,
		creds:       creds,
		logger:      logger,
	}
}

// SyncProduct pushes one product to the given platforms, creating the listing
// on platforms that have none yet and updating it elsewhere. An empty platform
// list means every platform the tenant has an active connection for.
func (s *ProductSyncService) SyncProduct(ctx context.Context, tenantID, productID uuid.UUID, platforms []sync.Platform) ([]PlatformResult, error) {
	product, err := s.products.FindByID(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}

	if len(platforms) == 0 {
		platforms, err = s.connectedPlatforms(ctx, tenantID)
		if err != nil {
			return nil, err
		}
	}

	results := make([]PlatformResult, 0, len(platforms))
	for _, platform := range platforms {
		results = append(results, s.syncToPlatform(ctx, product, platform))
	}
	return results, nil
}

// SyncAllProducts pushes every active product of the tenant to the given
// platforms. An empty platform list means every platform the tenant has an
// active connection for. Used by scheduled runs; failures are aggregated,
// not fatal.
func (s *ProductSyncService) SyncAllProducts(ctx context.Context, tenantID uuid.UUID, platforms []sync.Platform) (*sync.SyncResult, error) {
	var err error
	if len(platforms) == 0 {
		platforms, err = s.connectedPlatforms(ctx, tenantID)
		if err != nil {
			return nil, err
		}
	}
	products, err := s.products.FindActiveByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	total := 0
	success := 0
	var failures []sync.SyncFailure
	for _, product := range products {
		for _, platform := range platforms {
			total++
			result := s.syncToPlatform(ctx, product, platform)
			if result.Success {
				success++
				continue
			}
			failures = append(failures, sync.SyncFailure{
				ItemID:       product.SKU,
				Platform:     platform,
				ErrorMessage: result.Error,
			})
		}
	}
	return sync.NewSyncResult(total, success, failures), nil
}

// syncToPlatform creates or updates one listing and records the outcome on
// its snapshot row.
func (s *ProductSyncService) syncToPlatform(ctx context.Context, product *sync.Product, platform sync.Platform) PlatformResult {
	result := PlatformResult{Platform: platform}

	listing, err := s.listings.FindByProductAndPlatform(ctx, product.ID, platform)
	if errors.Is(err, shared.ErrNotFound) {
		listing, err = sync.NewPlatformListing(product, platform)
	}
	if err != nil {
		result.Error = err.Error()
		return result
	}

	adapter, creds, err := s.creds.CredentialsFor(ctx, product.TenantID, platform)
	if err != nil {
		return s.recordFailure(ctx, product, listing, result, err)
	}

	draft := product.Draft()
	platformListingID := listing.PlatformListingID
	if platformListingID == "" {
		platformListingID, err = adapter.CreateListing(ctx, creds, draft)
	} else {
		err = adapter.UpdateListing(ctx, creds, platformListingID, draft)
	}
	if err != nil {
		return s.recordFailure(ctx, product, listing, result, err)
	}

	listing.RecordSync(platformListingID, product.Price, product.Quantity)
	if err := s.listings.Save(ctx, listing); err != nil {
		result.Error = fmt.Sprintf("saving listing snapshot: %v", err)
		return result
	}

	result.Success = true
	result.PlatformListingID = platformListingID
	return result
}

func (s *ProductSyncService) recordFailure(ctx context.Context, product *sync.Product, listing *sync.PlatformListing, result PlatformResult, cause error) PlatformResult {
	listing.RecordError(cause.Error())
	if err := s.listings.Save(ctx, listing); err != nil {
		s.logger.Error("failed to record listing error",
			zap.String("product_id", product.ID.String()),
			zap.String("platform", string(listing.Platform)),
			zap.Error(err))
	}
	s.logger.Warn("product sync failed for platform",
		zap.String("tenant_id", product.TenantID.String()),
		zap.String("sku", product.SKU),
		zap.String("platform", string(listing.Platform)),
		zap.Error(cause))
	result.Error = cause.Error()
	return result
}

func (s *ProductSyncService) connectedPlatforms(ctx context.Context, tenantID uuid.UUID) ([]sync.Platform, error) {
	conns, err := s.connections.FindActiveByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	platforms := make([]sync.Platform, 0, len(conns))
	for _, conn := range conns {
		platforms = append(platforms, conn.Platform)
	}
	return platforms, nil
}
