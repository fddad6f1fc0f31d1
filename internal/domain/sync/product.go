package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the canonical product. Its quantity is the inventory truth every
// platform listing is reconciled against. SKU is unique within a tenant.
type Product struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	SKU         string
	Title       string
	Description string
	Price       decimal.Decimal
	Currency    string
	Quantity    int
	Status      ProductStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewProduct creates a draft product after validating its identity fields
func NewProduct(tenantID uuid.UUID, sku, title string, price decimal.Decimal, quantity int) (*Product, error) {
	if tenantID == uuid.Nil {
		return nil, ErrProductInvalidTenantID
	}
	if sku == "" {
		return nil, ErrProductInvalidSKU
	}
	if title == "" {
		return nil, ErrProductInvalidTitle
	}
	if price.IsNegative() {
		return nil, ErrProductNegativePrice
	}
	if quantity < 0 {
		quantity = 0
	}
	now := time.Now()
	return &Product{
		ID:        uuid.New(),
		TenantID:  tenantID,
		SKU:       sku,
		Title:     title,
		Price:     price,
		Currency:  "USD",
		Quantity:  quantity,
		Status:    ProductStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Activate makes the product eligible for sync
func (p *Product) Activate() {
	p.Status = ProductStatusActive
	p.UpdatedAt = time.Now()
}

// Archive retires the product
func (p *Product) Archive() {
	p.Status = ProductStatusArchived
	p.UpdatedAt = time.Now()
}

// SetQuantity overwrites the canonical quantity and returns the log entry
// recording the change. The caller persists both in one transaction.
func (p *Product) SetQuantity(quantity int, reason string) *InventoryLog {
	if quantity < 0 {
		quantity = 0
	}
	log := NewInventoryLog(p, p.Quantity, quantity, reason)
	p.Quantity = quantity
	p.UpdatedAt = time.Now()
	return log
}

// Draft returns the listing payload pushed to platforms for this product
func (p *Product) Draft() ListingDraft {
	return ListingDraft{
		SKU:         p.SKU,
		Title:       p.Title,
		Description: p.Description,
		Price:       p.Price,
		Currency:    p.Currency,
		Quantity:    p.Quantity,
	}
}

// PlatformListing is the projection of one Product onto one platform.
// (ProductID, Platform) is unique.
type PlatformListing struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	ProductID         uuid.UUID
	Platform          Platform
	PlatformListingID string
	SyncedPrice       decimal.Decimal
	SyncedQuantity    int
	Status            ListingStatus
	LastError         string
	LastSyncedAt      *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewPlatformListing creates a listing projection for a product on a platform
func NewPlatformListing(product *Product, platform Platform) (*PlatformListing, error) {
	if !platform.IsValid() {
		return nil, ErrPlatformNotSupported
	}
	now := time.Now()
	return &PlatformListing{
		ID:        uuid.New(),
		TenantID:  product.TenantID,
		ProductID: product.ID,
		Platform:  platform,
		Status:    ListingStatusInactive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// RecordSync updates the listing snapshot after a successful platform call
// and clears any prior error.
func (l *PlatformListing) RecordSync(platformListingID string, price decimal.Decimal, quantity int) {
	now := time.Now()
	l.PlatformListingID = platformListingID
	l.SyncedPrice = price
	l.SyncedQuantity = quantity
	l.Status = ListingStatusActive
	l.LastError = ""
	l.LastSyncedAt = &now
	l.UpdatedAt = now
}

// RecordError marks the listing failed without touching the last good snapshot
func (l *PlatformListing) RecordError(message string) {
	l.Status = ListingStatusError
	l.LastError = message
	l.UpdatedAt = time.Now()
}

// InventoryLog is an immutable append-only record of one quantity change.
// Rows are never mutated or deleted.
type InventoryLog struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	ProductID   uuid.UUID
	OldQuantity int
	NewQuantity int
	Reason      string
	CreatedAt   time.Time
}

// NewInventoryLog records one quantity change on a product
func NewInventoryLog(product *Product, oldQty, newQty int, reason string) *InventoryLog {
	return &InventoryLog{
		ID:          uuid.New(),
		TenantID:    product.TenantID,
		ProductID:   product.ID,
		OldQuantity: oldQty,
		NewQuantity: newQty,
		Reason:      reason,
		CreatedAt:   time.Now(),
	}
}

// InventoryReasonSyncedFrom builds the log reason for an inventory import
func InventoryReasonSyncedFrom(platform Platform) string {
	return fmt.Sprintf("synced from %s", platform)
}

// ProductRepository is the persistence port for canonical products
type ProductRepository interface {
	// Create inserts a new product; returns shared.ErrAlreadyExists when the
	// tenant already has a product with the same SKU
	Create(ctx context.Context, product *Product) error

	// Update persists changes to an existing product
	Update(ctx context.Context, product *Product) error

	// FindByID returns a product by ID, scoped to the tenant
	FindByID(ctx context.Context, tenantID, productID uuid.UUID) (*Product, error)

	// FindBySKU returns a tenant's product by SKU, or shared.ErrNotFound
	FindBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*Product, error)

	// FindActiveByTenant returns the tenant's ACTIVE products
	FindActiveByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Product, error)

	// List returns a page of the tenant's products
	List(ctx context.Context, tenantID uuid.UUID, offset, limit int) ([]*Product, int64, error)
}

// ListingRepository is the persistence port for platform listings
type ListingRepository interface {
	// Save upserts a listing by (product, platform)
	Save(ctx context.Context, listing *PlatformListing) error

	// FindByProductAndPlatform returns the listing for one product on one
	// platform, or shared.ErrNotFound
	FindByProductAndPlatform(ctx context.Context, productID uuid.UUID, platform Platform) (*PlatformListing, error)

	// FindByProduct returns every listing of one product
	FindByProduct(ctx context.Context, productID uuid.UUID) ([]*PlatformListing, error)

	// FindByTenantAndPlatform returns the tenant's listings on one platform
	FindByTenantAndPlatform(ctx context.Context, tenantID uuid.UUID, platform Platform) ([]*PlatformListing, error)
}

// InventoryLogRepository is the append-only persistence port for inventory logs
type InventoryLogRepository interface {
	// Append inserts a log entry; entries are never updated or deleted
	Append(ctx context.Context, log *InventoryLog) error

	// FindByProduct returns a page of a product's log entries, newest first
	FindByProduct(ctx context.Context, productID uuid.UUID, limit int) ([]*InventoryLog, error)
}
