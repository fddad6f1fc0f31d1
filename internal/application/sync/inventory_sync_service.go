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

// maxInventoryPages bounds one import run per platform
const maxInventoryPages = 50

// InventorySyncService reconciles stock levels between the canonical store
// and platform listings. Imports are last-writer-wins on the canonical
// quantity; every change lands in the append-only inventory log.
type InventorySyncService struct {
	products      sync.ProductRepository
	listings      sync.ListingRepository
	inventoryLogs sync.InventoryLogRepository
	creds         *CredentialManager
	logger        *zap.Logger
}

// NewInventorySyncService creates a new inventory sync service
func NewInventorySyncService(
	products sync.ProductRepository,
	listings sync.ListingRepository,
	inventoryLogs sync.InventoryLogRepository,
	creds *CredentialManager,
	logger *zap.Logger,
) *InventorySyncService {
	return &InventorySyncService{
		products:      products,
		listings:      listings,
		inventoryLogs: inventoryLogs,
		creds:         creds,
		logger:        logger,
	}
}

// ImportInventory pulls the platform's stock levels and overwrites the
// canonical quantity for every product matched by SKU. Platform products
// with no canonical counterpart are skipped, not failed. Every product the
// import changed is then reconciled: the new canonical quantity is pushed
// to its other listings and the oversell guard caps the total allocation.
func (s *InventorySyncService) ImportInventory(ctx context.Context, tenantID uuid.UUID, platform sync.Platform) (*sync.SyncResult, error) {
	adapter, creds, err := s.creds.CredentialsFor(ctx, tenantID, platform)
	if err != nil {
		return nil, err
	}

	total := 0
	success := 0
	var failures []sync.SyncFailure
	changed := make(map[uuid.UUID]struct{})

	cursor := ""
	for range maxInventoryPages {
		page, err := adapter.FetchProducts(ctx, creds, cursor)
		if err != nil {
			return nil, fmt.Errorf("fetching platform stock: %w", err)
		}

		for _, pp := range page.Products {
			if pp.SKU == "" {
				continue
			}
			product, err := s.products.FindBySKU(ctx, tenantID, pp.SKU)
			if errors.Is(err, shared.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}

			total++
			// A platform reporting exactly what we last pushed is our own
			// write coming back, not a remote change. Left unfiltered it
			// would overwrite canonical stock with a capped allocation.
			if s.echoedQuantity(ctx, product.ID, platform, pp.Quantity) {
				success++
				continue
			}
			applied, err := s.applyQuantity(ctx, product, pp.Quantity, sync.InventoryReasonSyncedFrom(platform))
			if err != nil {
				failures = append(failures, sync.SyncFailure{
					ItemID:       pp.SKU,
					Platform:     platform,
					ErrorMessage: err.Error(),
				})
				continue
			}
			success++
			if applied {
				changed[product.ID] = struct{}{}
			}
		}

		if !page.HasMore || page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	for productID := range changed {
		if _, err := s.ExportInventory(ctx, tenantID, productID); err != nil {
			s.logger.Warn("propagating imported stock level failed",
				zap.String("tenant_id", tenantID.String()),
				zap.String("product_id", productID.String()),
				zap.Error(err))
		}
		if err := s.ApplyOversellGuard(ctx, tenantID, productID); err != nil {
			s.logger.Warn("oversell correction failed after import",
				zap.String("tenant_id", tenantID.String()),
				zap.String("product_id", productID.String()),
				zap.Error(err))
		}
	}

	return sync.NewSyncResult(total, success, failures), nil
}

// echoedQuantity reports whether the platform level matches the snapshot
// this service last pushed to that platform's listing
func (s *InventorySyncService) echoedQuantity(ctx context.Context, productID uuid.UUID, platform sync.Platform, quantity int) bool {
	listing, err := s.listings.FindByProductAndPlatform(ctx, productID, platform)
	if err != nil {
		return false
	}
	return listing.PlatformListingID != "" && listing.SyncedQuantity == quantity
}

// ExportInventory pushes the canonical quantity of one product to every
// platform it is listed on and refreshes the listing snapshots.
func (s *InventorySyncService) ExportInventory(ctx context.Context, tenantID, productID uuid.UUID) (*sync.SyncResult, error) {
	product, err := s.products.FindByID(ctx, tenantID, productID)
	if err != nil {
		return nil, err
	}
	activeListings, err := s.listings.FindByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	total := 0
	success := 0
	var failures []sync.SyncFailure
	for _, listing := range activeListings {
		if listing.PlatformListingID == "" {
			continue
		}
		total++
		if err := s.pushQuantity(ctx, product, listing, product.Quantity); err != nil {
			failures = append(failures, sync.SyncFailure{
				ItemID:       product.SKU,
				Platform:     listing.Platform,
				ErrorMessage: err.Error(),
			})
			continue
		}
		success++
	}
	return sync.NewSyncResult(total, success, failures), nil
}

// ApplyOversellGuard caps a product's platform allocations when their sum
// exceeds the canonical quantity. Each listing gets an equal floor share, so
// a second run over corrected listings changes nothing.
func (s *InventorySyncService) ApplyOversellGuard(ctx context.Context, tenantID, productID uuid.UUID) error {
	product, err := s.products.FindByID(ctx, tenantID, productID)
	if err != nil {
		return err
	}
	activeListings, err := s.listings.FindByProduct(ctx, productID)
	if err != nil {
		return err
	}

	listed := make([]*sync.PlatformListing, 0, len(activeListings))
	advertised := 0
	for _, listing := range activeListings {
		if listing.PlatformListingID == "" {
			continue
		}
		listed = append(listed, listing)
		advertised += listing.SyncedQuantity
	}
	if len(listed) == 0 || advertised <= product.Quantity {
		return nil
	}

	share := product.Quantity / len(listed)
	s.logger.Warn("oversell detected, capping platform allocations",
		zap.String("tenant_id", tenantID.String()),
		zap.String("sku", product.SKU),
		zap.Int("advertised", advertised),
		zap.Int("canonical", product.Quantity),
		zap.Int("per_platform_share", share))

	var firstErr error
	for _, listing := range listed {
		if err := s.pushQuantity(ctx, product, listing, share); err != nil {
			s.logger.Error("oversell correction failed for platform",
				zap.String("sku", product.SKU),
				zap.String("platform", string(listing.Platform)),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// applyQuantity overwrites the canonical quantity and appends the log
// entry. It reports whether the quantity actually moved.
func (s *InventorySyncService) applyQuantity(ctx context.Context, product *sync.Product, quantity int, reason string) (bool, error) {
	if product.Quantity == quantity {
		return false, nil
	}
	entry := product.SetQuantity(quantity, reason)
	if err := s.products.Update(ctx, product); err != nil {
		return false, err
	}
	if err := s.inventoryLogs.Append(ctx, entry); err != nil {
		return false, err
	}
	return true, nil
}

// pushQuantity sends one stock level to one platform and refreshes the
// listing snapshot
func (s *InventorySyncService) pushQuantity(ctx context.Context, product *sync.Product, listing *sync.PlatformListing, quantity int) error {
	adapter, creds, err := s.creds.CredentialsFor(ctx, product.TenantID, listing.Platform)
	if err != nil {
		return err
	}
	if err := adapter.UpdateInventory(ctx, creds, product.SKU, quantity); err != nil {
		listing.RecordError(err.Error())
		if saveErr := s.listings.Save(ctx, listing); saveErr != nil {
			s.logger.Error("failed to record listing error", zap.Error(saveErr))
		}
		return err
	}
	listing.RecordSync(listing.PlatformListingID, listing.SyncedPrice, quantity)
	return s.listings.Save(ctx, listing)
}
