package adapters

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/sync"
	"github.com/channelhub/backend/internal/infrastructure/config"
)

const (
	ebayDefaultAPIBase = "https://api.ebay.com"
	ebayConsentURL     = "https://auth.ebay.com/oauth2/authorize"
)

// EbayAdapter implements PlatformAdapter for eBay. Token grants authenticate
// with HTTP basic auth over the app credentials; webhook subscriptions are
// confirmed with a GET challenge that hashes the challenge code, the
// verification token and the endpoint URL.
type EbayAdapter struct {
	cfg    config.PlatformCredentials
	client *resty.Client
	log    *zap.Logger
}

// NewEbayAdapter creates a new eBay adapter. The webhook verification token
// is the configured client secret.
func NewEbayAdapter(cfg config.PlatformCredentials, log *zap.Logger) *EbayAdapter {
	return &EbayAdapter{
		cfg:    cfg,
		client: newRestyClient(),
		log:    log.Named("ebay"),
	}
}

// Platform returns the platform this adapter handles
func (a *EbayAdapter) Platform() sync.Platform {
	return sync.PlatformEbay
}

func (a *EbayAdapter) apiBase() string {
	if a.cfg.APIBaseURL != "" {
		return a.cfg.APIBaseURL
	}
	return ebayDefaultAPIBase
}

func (a *EbayAdapter) request(creds *sync.Credentials) *resty.Request {
	return a.client.R().SetAuthToken(creds.AccessToken)
}

// ---------------------------------------------------------------------------
// Catalog operations
// ---------------------------------------------------------------------------

// FetchProducts returns one page of the seller's inventory items. eBay
// paginates with a numeric offset carried as the opaque cursor.
func (a *EbayAdapter) FetchProducts(ctx context.Context, creds *sync.Credentials, cursor string) (*sync.ProductPage, error) {
	req := a.request(creds).
		SetContext(ctx).
		SetQueryParam("limit", "50")
	if cursor != "" {
		req.SetQueryParam("offset", cursor)
	}

	var body ebayInventoryResponse
	resp, err := req.SetResult(&body).Get(a.apiBase() + "/sell/inventory/v1/inventory_item")
	if err != nil {
		return nil, wrapTransportErr(sync.PlatformEbay, err)
	}
	if resp.IsError() {
		return nil, apiErr(sync.PlatformEbay, resp)
	}

	page := &sync.ProductPage{Products: make([]sync.PlatformProduct, 0, len(body.InventoryItems))}
	for _, item := range body.InventoryItems {
		product := sync.PlatformProduct{
			PlatformProductID: item.SKU,
			SKU:               item.SKU,
			Title:             item.Product.Title,
			Active:            true,
		}
		if item.Availability != nil {
			product.Quantity = item.Availability.ShipToLocationAvailability.Quantity
		}
		page.Products = append(page.Products, product)
	}

	if body.Next != "" {
		if u, err := url.Parse(body.Next); err == nil {
			page.NextCursor = u.Query().Get("offset")
		}
	}
	page.HasMore = page.NextCursor != ""
	return page, nil
}

// CreateListing creates an inventory item keyed by SKU
func (a *EbayAdapter) CreateListing(ctx context.Context, creds *sync.Credentials, draft sync.ListingDraft) (string, error) {
	if err := a.putInventoryItem(ctx, creds, draft.SKU, draft); err != nil {
		return "", err
	}
	return draft.SKU, nil
}

// UpdateListing replaces the inventory item for the SKU
func (a *EbayAdapter) UpdateListing(ctx context.Context, creds *sync.Credentials, platformListingID string, draft sync.ListingDraft) error {
	return a.putInventoryItem(ctx, creds, platformListingID, draft)
}

func (a *EbayAdapter) putInventoryItem(ctx context.Context, creds *sync.Credentials, sku string, draft sync.ListingDraft) error {
	resp, err := a.request(creds).
		SetContext(ctx).
		SetHeader("Content-Language", "en-US").
		SetBody(map[string]any{
			"product": map[string]any{
				"title":       draft.Title,
				"description": draft.Description,
			},
			"availability": map[string]any{
				"shipToLocationAvailability": map[string]any{"quantity": draft.Quantity},
			},
		}).
		Put(fmt.Sprintf("%s/sell/inventory/v1/inventory_item/%s", a.apiBase(), url.PathEscape(sku)))
	if err != nil {
		return wrapTransportErr(sync.PlatformEbay, err)
	}
	if resp.IsError() {
		return apiErr(sync.PlatformEbay, resp)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Order operations
// ---------------------------------------------------------------------------

// ebayStatusMap maps eBay fulfilment statuses to the canonical vocabulary
var ebayStatusMap = map[string]sync.OrderStatus{
	"NOT_STARTED": sync.OrderStatusPending,
	"IN_PROGRESS": sync.OrderStatusProcessing,
	"FULFILLED":   sync.OrderStatusShipped,
	"DELIVERED":   sync.OrderStatusDelivered,
	"CANCELLED":   sync.OrderStatusCancelled,
	"REFUNDED":    sync.OrderStatusRefunded,
}

// FetchOrders returns one page of orders created after the filter bound
func (a *EbayAdapter) FetchOrders(ctx context.Context, creds *sync.Credentials, filter sync.OrderFilter) (*sync.OrderPage, error) {
	req := a.request(creds).
		SetContext(ctx).
		SetQueryParam("limit", "50")
	if filter.Cursor != "" {
		req.SetQueryParam("offset", filter.Cursor)
	}
	if !filter.CreatedAfter.IsZero() {
		req.SetQueryParam("filter", fmt.Sprintf("creationdate:[%s..]", filter.CreatedAfter.UTC().Format(time.RFC3339)))
	}

	var body ebayOrdersResponse
	resp, err := req.SetResult(&body).Get(a.apiBase() + "/sell/fulfillment/v1/order")
	if err != nil {
		return nil, wrapTransportErr(sync.PlatformEbay, err)
	}
	if resp.IsError() {
		return nil, apiErr(sync.PlatformEbay, resp)
	}

	page := &sync.OrderPage{Orders: make([]sync.PlatformOrder, 0, len(body.Orders))}
	for _, o := range body.Orders {
		order := sync.PlatformOrder{
			PlatformOrderID: o.OrderID,
			Status:          a.mapStatus(o.OrderFulfillmentStatus),
			CustomerName:    o.Buyer.Username,
			Currency:        o.PricingSummary.Total.Currency,
			Total:           o.PricingSummary.Total.Value,
			PlacedAt:        o.CreationDate,
			Items:           make([]sync.PlatformOrderItem, 0, len(o.LineItems)),
		}
		for _, li := range o.LineItems {
			order.Items = append(order.Items, sync.PlatformOrderItem{
				PlatformLineItemID: li.LineItemID,
				SKU:                li.SKU,
				Title:              li.Title,
				Quantity:           li.Quantity,
				UnitPrice:          li.LineItemCost.Value,
			})
		}
		if len(o.FulfillmentStartInstructions) > 0 {
			ship := o.FulfillmentStartInstructions[0].ShippingStep.ShipTo
			order.CustomerName = ship.FullName
			order.ShippingAddress = strings.TrimSpace(strings.Join([]string{
				ship.ContactAddress.AddressLine1,
				ship.ContactAddress.City,
				ship.ContactAddress.StateOrProvince,
				ship.ContactAddress.PostalCode,
				ship.ContactAddress.CountryCode,
			}, ", "))
		}
		page.Orders = append(page.Orders, order)
	}

	if body.Next != "" {
		if u, err := url.Parse(body.Next); err == nil {
			page.NextCursor = u.Query().Get("offset")
		}
	}
	page.HasMore = page.NextCursor != ""
	return page, nil
}

func (a *EbayAdapter) mapStatus(native string) sync.OrderStatus {
	if status, ok := ebayStatusMap[native]; ok {
		return status
	}
	a.log.Warn("unmapped order status", zap.String("native_status", native))
	return sync.OrderStatusPending
}

// ---------------------------------------------------------------------------
// Inventory operations
// ---------------------------------------------------------------------------

// UpdateInventory updates the available quantity for one SKU
func (a *EbayAdapter) UpdateInventory(ctx context.Context, creds *sync.Credentials, sku string, quantity int) error {
	resp, err := a.request(creds).
		SetContext(ctx).
		SetBody(map[string]any{
			"requests": []map[string]any{{
				"sku":                        sku,
				"shipToLocationAvailability": map[string]any{"quantity": quantity},
			}},
		}).
		Post(a.apiBase() + "/sell/inventory/v1/bulk_update_price_quantity")
	if err != nil {
		return wrapTransportErr(sync.PlatformEbay, err)
	}
	if resp.IsError() {
		return apiErr(sync.PlatformEbay, resp)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Credential lifecycle
// ---------------------------------------------------------------------------

func (a *EbayAdapter) basicAuth() string {
	return base64.StdEncoding.EncodeToString([]byte(a.cfg.ClientID + ":" + a.cfg.ClientSecret))
}

// RefreshCredentials rotates the user token through the refresh grant
func (a *EbayAdapter) RefreshCredentials(ctx context.Context, creds *sync.Credentials) (*sync.Credentials, error) {
	if creds.RefreshToken == "" {
		return nil, sync.ErrCredentialsMissing
	}
	return a.tokenGrant(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": creds.RefreshToken,
		"scope":         creds.Scope,
	}, creds)
}

// AuthorizeURL builds the eBay consent URL
func (a *EbayAdapter) AuthorizeURL(state, redirectURI, _ string) string {
	q := url.Values{}
	q.Set("client_id", a.cfg.ClientID)
	q.Set("response_type", "code")
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", strings.Join(a.cfg.Scopes, " "))
	q.Set("state", state)
	return ebayConsentURL + "?" + q.Encode()
}

// ExchangeCode trades the authorization code for a token pair
func (a *EbayAdapter) ExchangeCode(ctx context.Context, code, redirectURI, _ string) (*sync.Credentials, error) {
	creds, err := a.tokenGrant(ctx, map[string]string{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": redirectURI,
	}, nil)
	if err != nil {
		return nil, err
	}

	username, err := a.fetchUsername(ctx, creds)
	if err != nil {
		return nil, err
	}
	creds.Metadata = map[string]string{sync.MetadataShopDomain: username}
	return creds, nil
}

// fetchUsername resolves the seller account behind a fresh token set.
// Notifications identify the seller by username, so that is what the
// connection records.
func (a *EbayAdapter) fetchUsername(ctx context.Context, creds *sync.Credentials) (string, error) {
	var body ebayUserResponse
	resp, err := a.request(creds).
		SetContext(ctx).
		SetResult(&body).
		Get(a.apiBase() + "/commerce/identity/v1/user/")
	if err != nil {
		return "", wrapTransportErr(sync.PlatformEbay, err)
	}
	if resp.IsError() {
		return "", apiErr(sync.PlatformEbay, resp)
	}
	if body.Username == "" {
		return "", sync.ErrPlatformInvalidResponse
	}
	return body.Username, nil
}

func (a *EbayAdapter) tokenGrant(ctx context.Context, form map[string]string, prev *sync.Credentials) (*sync.Credentials, error) {
	var body ebayTokenResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Basic "+a.basicAuth()).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormData(form).
		SetResult(&body).
		Post(a.apiBase() + "/identity/v1/oauth2/token")
	if err != nil {
		return nil, wrapTransportErr(sync.PlatformEbay, err)
	}
	if resp.IsError() {
		return nil, apiErr(sync.PlatformEbay, resp)
	}
	if body.AccessToken == "" {
		return nil, sync.ErrPlatformInvalidResponse
	}

	expiresAt := time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	creds := &sync.Credentials{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    &expiresAt,
	}
	if prev != nil {
		if creds.RefreshToken == "" {
			creds.RefreshToken = prev.RefreshToken
		}
		creds.Scope = prev.Scope
		creds.Metadata = prev.Metadata
	}
	return creds, nil
}

// RequiresPKCE reports that eBay's flow does not use PKCE
func (a *EbayAdapter) RequiresPKCE() bool {
	return false
}

// ---------------------------------------------------------------------------
// Webhook verification
// ---------------------------------------------------------------------------

// ebayEventMap maps eBay notification topics to canonical event types
var ebayEventMap = map[string]sync.WebhookEventType{
	"ORDER_CREATED":     sync.WebhookEventOrderCreated,
	"ORDER_UPDATED":     sync.WebhookEventOrderUpdated,
	"ITEM_UPDATED":      sync.WebhookEventProductUpdated,
	"INVENTORY_UPDATED": sync.WebhookEventInventoryUpdated,
}

// VerifyWebhook validates the notification envelope structurally
func (a *EbayAdapter) VerifyWebhook(req *sync.WebhookRequest) (*sync.WebhookEvent, error) {
	var envelope ebayNotification
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return nil, sync.ErrInvalidSignature
	}
	if envelope.Metadata.Topic == "" || envelope.NotificationID == "" {
		return nil, sync.ErrInvalidSignature
	}

	eventType, ok := ebayEventMap[envelope.Metadata.Topic]
	if !ok {
		return nil, sync.ErrUnknownWebhookEvent
	}

	return &sync.WebhookEvent{
		Platform:   sync.PlatformEbay,
		EventType:  eventType,
		SourceID:   envelope.Notification.Data.SellerID,
		DeliveryID: envelope.NotificationID,
		Payload:    req.Body,
	}, nil
}

// AnswerChallenge answers the subscription handshake: eBay sends a GET with
// a challenge_code query parameter and expects the hex SHA-256 of
// challengeCode + verificationToken + endpointURL.
func (a *EbayAdapter) AnswerChallenge(req *sync.WebhookRequest) (string, error) {
	challenge := req.Query["challenge_code"]
	if challenge == "" {
		return "", sync.ErrInvalidSignature
	}
	h := sha256.New()
	h.Write([]byte(challenge))
	h.Write([]byte(a.cfg.ClientSecret))
	h.Write([]byte(req.EndpointURL))
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type ebayInventoryResponse struct {
	InventoryItems []struct {
		SKU     string `json:"sku"`
		Product struct {
			Title string `json:"title"`
		} `json:"product"`
		Availability *struct {
			ShipToLocationAvailability struct {
				Quantity int `json:"quantity"`
			} `json:"shipToLocationAvailability"`
		} `json:"availability"`
	} `json:"inventoryItems"`
	Next string `json:"next"`
}

type ebayAmount struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
}

type ebayOrdersResponse struct {
	Orders []struct {
		OrderID                string    `json:"orderId"`
		OrderFulfillmentStatus string    `json:"orderFulfillmentStatus"`
		CreationDate           time.Time `json:"creationDate"`
		Buyer                  struct {
			Username string `json:"username"`
		} `json:"buyer"`
		PricingSummary struct {
			Total ebayAmount `json:"total"`
		} `json:"pricingSummary"`
		LineItems []struct {
			LineItemID   string     `json:"lineItemId"`
			SKU          string     `json:"sku"`
			Title        string     `json:"title"`
			Quantity     int        `json:"quantity"`
			LineItemCost ebayAmount `json:"lineItemCost"`
		} `json:"lineItems"`
		FulfillmentStartInstructions []struct {
			ShippingStep struct {
				ShipTo struct {
					FullName       string `json:"fullName"`
					ContactAddress struct {
						AddressLine1    string `json:"addressLine1"`
						City            string `json:"city"`
						StateOrProvince string `json:"stateOrProvince"`
						PostalCode      string `json:"postalCode"`
						CountryCode     string `json:"countryCode"`
					} `json:"contactAddress"`
				} `json:"shipTo"`
			} `json:"shippingStep"`
		} `json:"fulfillmentStartInstructions"`
	} `json:"orders"`
	Next string `json:"next"`
}

type ebayUserResponse struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type ebayTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type ebayNotification struct {
	NotificationID string `json:"notificationId"`
	Metadata       struct {
		Topic string `json:"topic"`
	} `json:"metadata"`
	Notification struct {
		Data struct {
			SellerID string `json:"sellerId"`
		} `json:"data"`
	} `json:"notification"`
}

// Ensure EbayAdapter implements PlatformAdapter
var _ sync.PlatformAdapter = (*EbayAdapter)(nil)
