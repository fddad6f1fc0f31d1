package sync

import "strings"

// ---------------------------------------------------------------------------
// Platform represents a supported external commerce platform
// ---------------------------------------------------------------------------

// Platform identifies an external commerce platform
type Platform string

const (
	// PlatformShopify represents Shopify stores
	PlatformShopify Platform = "SHOPIFY"
	// PlatformAmazon represents Amazon Seller Central
	PlatformAmazon Platform = "AMAZON"
	// PlatformEbay represents eBay stores
	PlatformEbay Platform = "EBAY"
	// PlatformEtsy represents Etsy shops
	PlatformEtsy Platform = "ETSY"
	// PlatformWooCommerce represents self-hosted WooCommerce stores
	PlatformWooCommerce Platform = "WOOCOMMERCE"
	// PlatformSquare represents Square online stores
	PlatformSquare Platform = "SQUARE"
)

// AllPlatforms lists every supported platform in a stable order
var AllPlatforms = []Platform{
	PlatformShopify,
	PlatformAmazon,
	PlatformEbay,
	PlatformEtsy,
	PlatformWooCommerce,
	PlatformSquare,
}

// IsValid returns true if the platform is supported
func (p Platform) IsValid() bool {
	switch p {
	case PlatformShopify, PlatformAmazon, PlatformEbay,
		PlatformEtsy, PlatformWooCommerce, PlatformSquare:
		return true
	default:
		return false
	}
}

// String returns the string representation of Platform
func (p Platform) String() string {
	return string(p)
}

// ParsePlatform normalizes a user-supplied platform name, such as a webhook
// route parameter, into a Platform value.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToUpper(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", ErrPlatformNotSupported
	}
	return p, nil
}

// DisplayName returns a human-readable name for the platform
func (p Platform) DisplayName() string {
	switch p {
	case PlatformShopify:
		return "Shopify"
	case PlatformAmazon:
		return "Amazon"
	case PlatformEbay:
		return "eBay"
	case PlatformEtsy:
		return "Etsy"
	case PlatformWooCommerce:
		return "WooCommerce"
	case PlatformSquare:
		return "Square"
	default:
		return string(p)
	}
}

// ---------------------------------------------------------------------------
// OrderStatus represents the canonical order status
// ---------------------------------------------------------------------------

// OrderStatus is the canonical order status every platform vocabulary is
// normalized into.
type OrderStatus string

const (
	// OrderStatusPending indicates the order is placed but not yet processed
	OrderStatusPending OrderStatus = "PENDING"
	// OrderStatusProcessing indicates payment received, fulfillment in progress
	OrderStatusProcessing OrderStatus = "PROCESSING"
	// OrderStatusShipped indicates the order has been shipped
	OrderStatusShipped OrderStatus = "SHIPPED"
	// OrderStatusDelivered indicates the order was delivered
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCancelled indicates the order was cancelled
	OrderStatusCancelled OrderStatus = "CANCELLED"
	// OrderStatusRefunded indicates the order was refunded
	OrderStatusRefunded OrderStatus = "REFUNDED"
)

// IsValid returns true if the status is valid
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// String returns the string representation of OrderStatus
func (s OrderStatus) String() string {
	return string(s)
}

// IsFinal returns true if the status is a terminal state
func (s OrderStatus) IsFinal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// ProductStatus represents the lifecycle state of a canonical product
// ---------------------------------------------------------------------------

// ProductStatus represents the lifecycle state of a canonical product
type ProductStatus string

const (
	// ProductStatusDraft indicates the product is not yet published anywhere
	ProductStatusDraft ProductStatus = "DRAFT"
	// ProductStatusActive indicates the product is live and eligible for sync
	ProductStatusActive ProductStatus = "ACTIVE"
	// ProductStatusArchived indicates the product is retired
	ProductStatusArchived ProductStatus = "ARCHIVED"
)

// IsValid returns true if the status is valid
func (s ProductStatus) IsValid() bool {
	switch s {
	case ProductStatusDraft, ProductStatusActive, ProductStatusArchived:
		return true
	default:
		return false
	}
}

// String returns the string representation of ProductStatus
func (s ProductStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// ListingStatus represents the state of one product's projection on a platform
// ---------------------------------------------------------------------------

// ListingStatus represents the state of one product's projection on a platform
type ListingStatus string

const (
	// ListingStatusActive indicates the listing is live on the platform
	ListingStatusActive ListingStatus = "ACTIVE"
	// ListingStatusInactive indicates the listing was withdrawn
	ListingStatusInactive ListingStatus = "INACTIVE"
	// ListingStatusError indicates the last sync attempt for this listing failed
	ListingStatusError ListingStatus = "ERROR"
)

// IsValid returns true if the status is valid
func (s ListingStatus) IsValid() bool {
	switch s {
	case ListingStatusActive, ListingStatusInactive, ListingStatusError:
		return true
	default:
		return false
	}
}

// String returns the string representation of ListingStatus
func (s ListingStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// ConnectionStatus represents the lifecycle state of a platform connection
// ---------------------------------------------------------------------------

// ConnectionStatus represents the lifecycle state of a platform connection
type ConnectionStatus string

const (
	// ConnectionStatusActive indicates valid credentials are stored
	ConnectionStatusActive ConnectionStatus = "ACTIVE"
	// ConnectionStatusDisconnected indicates the tenant disconnected the platform
	ConnectionStatusDisconnected ConnectionStatus = "DISCONNECTED"
	// ConnectionStatusError indicates credentials failed and could not be refreshed
	ConnectionStatusError ConnectionStatus = "ERROR"
)

// IsValid returns true if the status is valid
func (s ConnectionStatus) IsValid() bool {
	switch s {
	case ConnectionStatusActive, ConnectionStatusDisconnected, ConnectionStatusError:
		return true
	default:
		return false
	}
}

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// SyncType and SyncStatus
// ---------------------------------------------------------------------------

// SyncType identifies which engine a sync run targets
type SyncType string

const (
	// SyncTypeProducts pushes canonical products out to platform listings
	SyncTypeProducts SyncType = "products"
	// SyncTypeOrders imports orders from platforms into the canonical store
	SyncTypeOrders SyncType = "orders"
	// SyncTypeInventory reconciles stock levels in both directions
	SyncTypeInventory SyncType = "inventory"
)

// IsValid returns true if the sync type is valid
func (t SyncType) IsValid() bool {
	switch t {
	case SyncTypeProducts, SyncTypeOrders, SyncTypeInventory:
		return true
	default:
		return false
	}
}

// String returns the string representation of SyncType
func (t SyncType) String() string {
	return string(t)
}

// JobType maps the sync type onto the queue's job type vocabulary
func (t SyncType) JobType() JobType {
	switch t {
	case SyncTypeOrders:
		return JobTypeOrderSync
	case SyncTypeInventory:
		return JobTypeInventorySync
	default:
		return JobTypeProductSync
	}
}

// SyncStatus represents the outcome of a sync run
type SyncStatus string

const (
	// SyncStatusPending indicates the run has not started yet
	SyncStatusPending SyncStatus = "PENDING"
	// SyncStatusSuccess indicates every item synced
	SyncStatusSuccess SyncStatus = "SUCCESS"
	// SyncStatusPartial indicates some items synced and some failed
	SyncStatusPartial SyncStatus = "PARTIAL"
	// SyncStatusFailed indicates the run failed entirely
	SyncStatusFailed SyncStatus = "FAILED"
)

// IsValid returns true if the status is valid
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusPending, SyncStatusSuccess, SyncStatusPartial, SyncStatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of SyncStatus
func (s SyncStatus) String() string {
	return string(s)
}
