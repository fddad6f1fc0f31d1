package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// AdapterError
// ---------------------------------------------------------------------------

// AdapterError is returned for every non-success platform response. Callers
// never parse raw provider payloads; the adapter folds everything it knows
// into this type.
type AdapterError struct {
	// Platform identifies which adapter produced the error
	Platform Platform
	// StatusCode is the HTTP status returned by the platform, 0 for transport errors
	StatusCode int
	// Message is a human-readable description
	Message string
}

// Error implements the error interface
func (e *AdapterError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Platform, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Platform, e.StatusCode, e.Message)
}

// Retryable returns true if the error is transient and worth retrying.
// Rate limits and server-side failures are transient; client errors are not.
func (e *AdapterError) Retryable() bool {
	if e.StatusCode == 0 {
		return true
	}
	if e.StatusCode == 429 {
		return true
	}
	return e.StatusCode >= 500
}

// NewAdapterError creates a new adapter error
func NewAdapterError(platform Platform, statusCode int, message string) *AdapterError {
	return &AdapterError{
		Platform:   platform,
		StatusCode: statusCode,
		Message:    message,
	}
}

// ---------------------------------------------------------------------------
// Value Objects
// ---------------------------------------------------------------------------

// Credentials holds the decrypted token material for one adapter call.
// Plaintext tokens live only for the duration of that call; they are never
// persisted, cached or logged.
type Credentials struct {
	// AccessToken is the bearer or API token used for platform calls
	AccessToken string
	// RefreshToken is the rotation token, empty for platforms with permanent tokens
	RefreshToken string
	// ExpiresAt is when the access token expires, nil for permanent tokens
	ExpiresAt *time.Time
	// Scope is the granted OAuth scope string
	Scope string
	// Metadata carries platform-specific connection details such as the shop
	// domain or merchant id needed to address API calls
	Metadata map[string]string
}

// Expired returns true if the access token has an expiry in the past
func (c *Credentials) Expired() bool {
	if c.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*c.ExpiresAt)
}

// PlatformProduct represents one product as reported by a platform
type PlatformProduct struct {
	// PlatformProductID is the product/listing ID on the platform
	PlatformProductID string
	// SKU is the merchant SKU, used to match against canonical products
	SKU string
	// Title is the product title on the platform
	Title string
	// Price is the current listed price
	Price decimal.Decimal
	// Currency is the listing currency code
	Currency string
	// Quantity is the stock level advertised on the platform
	Quantity int
	// Active reports whether the listing is live
	Active bool
}

// ProductPage is one page of products fetched from a platform
type ProductPage struct {
	// Products contains the fetched products
	Products []PlatformProduct
	// NextCursor is the opaque cursor for the next page, empty on the last page
	NextCursor string
	// HasMore indicates if there are more pages
	HasMore bool
}

// PlatformOrderItem represents one line item in a platform order
type PlatformOrderItem struct {
	// PlatformLineItemID is the line item ID on the platform
	PlatformLineItemID string
	// SKU is the merchant SKU of the ordered product
	SKU string
	// Title is the product title as ordered
	Title string
	// Quantity is the ordered quantity
	Quantity int
	// UnitPrice is the per-unit price paid
	UnitPrice decimal.Decimal
}

// PlatformOrder represents one order as reported by a platform, already
// normalized into the canonical status vocabulary by the adapter.
type PlatformOrder struct {
	// PlatformOrderID is the order ID on the platform
	PlatformOrderID string
	// Status is the canonical order status after normalization
	Status OrderStatus
	// CustomerName is the buyer's name
	CustomerName string
	// CustomerEmail is the buyer's email
	CustomerEmail string
	// ShippingAddress is the full delivery address as one string
	ShippingAddress string
	// Currency is the payment currency code
	Currency string
	// Total is the total order amount
	Total decimal.Decimal
	// Items contains the ordered line items
	Items []PlatformOrderItem
	// PlacedAt is when the order was created on the platform
	PlacedAt time.Time
}

// OrderFilter bounds an order fetch
type OrderFilter struct {
	// CreatedAfter limits results to orders placed after this time
	CreatedAfter time.Time
	// Cursor is the opaque pagination cursor, empty for the first page
	Cursor string
	// PageSize is the requested page size; adapters clamp to platform limits
	PageSize int
}

// ListingDraft carries the canonical product fields pushed to a platform when
// creating or updating a listing.
type ListingDraft struct {
	// SKU is the merchant SKU
	SKU string
	// Title is the product title
	Title string
	// Description is the product description
	Description string
	// Price is the selling price
	Price decimal.Decimal
	// Currency is the listing currency code
	Currency string
	// Quantity is the stock level to advertise
	Quantity int
}

// OrderPage is one page of orders fetched from a platform
type OrderPage struct {
	// Orders contains the fetched orders
	Orders []PlatformOrder
	// NextCursor is the opaque cursor for the next page, empty on the last page
	NextCursor string
	// HasMore indicates if there are more pages
	HasMore bool
}

// ---------------------------------------------------------------------------
// Webhook value objects
// ---------------------------------------------------------------------------

// WebhookEventType is the canonical webhook event vocabulary
type WebhookEventType string

const (
	// WebhookEventOrderCreated indicates a new order was placed
	WebhookEventOrderCreated WebhookEventType = "order.created"
	// WebhookEventOrderUpdated indicates an order's fulfillment state changed
	WebhookEventOrderUpdated WebhookEventType = "order.updated"
	// WebhookEventProductUpdated indicates a listing changed on the platform
	WebhookEventProductUpdated WebhookEventType = "product.updated"
	// WebhookEventInventoryUpdated indicates a stock level changed on the platform
	WebhookEventInventoryUpdated WebhookEventType = "inventory.updated"
)

// String returns the string representation of WebhookEventType
func (t WebhookEventType) String() string {
	return string(t)
}

// WebhookRequest is the transport-agnostic view of one incoming webhook
// delivery, handed to the adapter for verification and classification.
type WebhookRequest struct {
	// Method is the HTTP method of the delivery
	Method string
	// Headers holds the request headers, canonical-cased keys
	Headers map[string][]string
	// Query holds the query parameters
	Query map[string]string
	// Body is the raw request body; signatures are computed over these
	// exact bytes
	Body []byte
	// EndpointURL is the full externally visible URL the delivery hit,
	// required by platforms that sign over the notification URL
	EndpointURL string
}

// Header returns the first value for the given header key, empty if absent
func (r *WebhookRequest) Header(key string) string {
	if vals, ok := r.Headers[key]; ok && len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// WebhookEvent is a verified, classified webhook ready for enqueueing
type WebhookEvent struct {
	// Platform identifies the originating platform
	Platform Platform
	// EventType is the canonical event classification
	EventType WebhookEventType
	// SourceID is the platform-side identifier for the shop/merchant the
	// delivery belongs to, used for tenant resolution
	SourceID string
	// DeliveryID is the platform's unique delivery identifier when provided,
	// used to suppress duplicate deliveries
	DeliveryID string
	// Payload is the raw body carried through to asynchronous processing
	Payload []byte
}

// ---------------------------------------------------------------------------
// PlatformAdapter Port Interface
// ---------------------------------------------------------------------------

// PlatformAdapter is the uniform capability contract implemented once per
// external platform. This interface follows the Ports & Adapters pattern -
// it's defined in the domain layer, and concrete implementations (Shopify,
// Amazon, eBay, Etsy, WooCommerce, Square) are in the infrastructure layer.
//
// Every method that talks to the platform takes the decrypted credentials
// explicitly; adapters hold no per-tenant state.
type PlatformAdapter interface {
	// Platform returns the platform this adapter handles
	Platform() Platform

	// ---------------------------------------------------------------------------
	// Catalog operations
	// ---------------------------------------------------------------------------

	// FetchProducts returns one page of the platform's product catalog
	FetchProducts(ctx context.Context, creds *Credentials, cursor string) (*ProductPage, error)

	// CreateListing publishes a product on the platform and returns the
	// platform listing ID
	CreateListing(ctx context.Context, creds *Credentials, draft ListingDraft) (string, error)

	// UpdateListing updates an existing platform listing
	UpdateListing(ctx context.Context, creds *Credentials, platformListingID string, draft ListingDraft) error

	// ---------------------------------------------------------------------------
	// Order operations
	// ---------------------------------------------------------------------------

	// FetchOrders returns one page of orders matching the filter, with each
	// order's status already normalized
	FetchOrders(ctx context.Context, creds *Credentials, filter OrderFilter) (*OrderPage, error)

	// ---------------------------------------------------------------------------
	// Inventory operations
	// ---------------------------------------------------------------------------

	// UpdateInventory pushes a stock level for one SKU to the platform
	UpdateInventory(ctx context.Context, creds *Credentials, sku string, quantity int) error

	// ---------------------------------------------------------------------------
	// Credential lifecycle
	// ---------------------------------------------------------------------------

	// RefreshCredentials exchanges the refresh token for a new token set.
	// Platforms with permanent tokens return ErrRefreshNotSupported.
	RefreshCredentials(ctx context.Context, creds *Credentials) (*Credentials, error)

	// AuthorizeURL builds the platform's OAuth authorization URL. The
	// challenge is the PKCE code challenge for platforms that require PKCE,
	// empty otherwise.
	AuthorizeURL(state, redirectURI, challenge string) string

	// ExchangeCode trades an authorization code for a token set. The verifier
	// is the PKCE code verifier when the platform requires PKCE.
	ExchangeCode(ctx context.Context, code, redirectURI, verifier string) (*Credentials, error)

	// RequiresPKCE reports whether the platform's OAuth flow uses PKCE
	RequiresPKCE() bool

	// ---------------------------------------------------------------------------
	// Webhook verification
	// ---------------------------------------------------------------------------

	// VerifyWebhook checks the authenticity of an incoming delivery and
	// classifies it. Returns ErrInvalidSignature when verification fails.
	VerifyWebhook(req *WebhookRequest) (*WebhookEvent, error)

	// AnswerChallenge computes the response to a subscription-time
	// challenge handshake. Platforms without a challenge scheme return
	// ErrChallengeUnsupported.
	AnswerChallenge(req *WebhookRequest) (string, error)
}

// AdapterRegistry provides access to the configured platform adapters,
// selected by a tenant connection's platform value.
type AdapterRegistry interface {
	// Get returns the adapter for the given platform
	Get(platform Platform) (PlatformAdapter, error)

	// All returns every registered adapter in a stable order
	All() []PlatformAdapter
}
