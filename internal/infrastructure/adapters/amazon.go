package adapters

import (
	"context"
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
	amazonDefaultAPIBase = "https://sellingpartnerapi-na.amazon.com"
	amazonLWATokenURL    = "https://api.amazon.com/auth/o2/token"
	amazonConsentURL     = "https://sellercentral.amazon.com/apps/authorize/consent"
)

// AmazonAdapter implements PlatformAdapter for the Amazon Selling Partner
// API. Access tokens are short-lived LWA bearers rotated through the refresh
// token; inbound notifications arrive pre-authenticated through the
// subscription channel, so verification is structural.
type AmazonAdapter struct {
	cfg    config.PlatformCredentials
	client *resty.Client
	log    *zap.Logger
}

// NewAmazonAdapter creates a new Amazon adapter
func NewAmazonAdapter(cfg config.PlatformCredentials, log *zap.Logger) *AmazonAdapter {
	return &AmazonAdapter{
		cfg:    cfg,
		client: newRestyClient(),
		log:    log.Named("amazon"),
	}
}

// Platform returns the platform this adapter handles
func (a *AmazonAdapter) Platform() sync.Platform {
	return sync.PlatformAmazon
}

func (a *AmazonAdapter) apiBase() string {
	if a.cfg.APIBaseURL != "" {
		return a.cfg.APIBaseURL
	}
	return amazonDefaultAPIBase
}

func (a *AmazonAdapter) tokenURL() string {
	if a.cfg.APIBaseURL != "" {
		return a.cfg.APIBaseURL + "/auth/o2/token"
	}
	return amazonLWATokenURL
}

func (a *AmazonAdapter) request(creds *sync.Credentials) *resty.Request {
	return a.client.R().SetHeader("x-amz-access-token", creds.AccessToken)
}

// ---------------------------------------------------------------------------
// Catalog operations
// ---------------------------------------------------------------------------

// FetchProducts returns one page of the seller's listings
func (a *AmazonAdapter) FetchProducts(ctx context.Context, creds *sync.Credentials, cursor string) (*sync.ProductPage, error) {
	sellerID := creds.Metadata[sync.MetadataShopDomain]
	req := a.request(creds).
		SetContext(ctx).
		SetQueryParam("sellerId", sellerID).
		SetQueryParam("pageSize", "20")
	if cursor != "" {
		req.SetQueryParam("pageToken", cursor)
	}

	var body amazonListingsResponse
	resp, err := req.SetResult(&body).Get(a.apiBase() + "/listings/2021-08-01/items")
	if err != nil {
		return nil, wrapTransportErr(sync.PlatformAmazon, err)
	}
	if resp.IsError() {
		return nil, apiErr(sync.PlatformAmazon, resp)
	}

	page := &sync.ProductPage{Products: make([]sync.PlatformProduct, 0, len(body.Items))}
	for _, item := range body.Items {
		product := sync.PlatformProduct{
			PlatformProductID: item.ASIN,
			SKU:               item.SKU,
			Active:            item.Status == "ACTIVE" || item.Status == "BUYABLE",
		}
		if len(item.Summaries) > 0 {
			product.Title = item.Summaries[0].ItemName
		}
		if len(item.Offers) > 0 {
			product.Price = item.Offers[0].Price.Amount
			product.Currency = item.Offers[0].Price.CurrencyCode
		}
		if item.FulfillmentAvailability != nil {
			product.Quantity = item.FulfillmentAvailability.Quantity
		}
		page.Products = append(page.Products, product)
	}
	page.NextCursor = body.Pagination.NextToken
	page.HasMore = body.Pagination.NextToken != ""
	return page, nil
}

// CreateListing publishes a listing under the seller's SKU
func (a *AmazonAdapter) CreateListing(ctx context.Context, creds *sync.Credentials, draft sync.ListingDraft) (string, error) {
	sellerID := creds.Metadata[sync.MetadataShopDomain]
	resp, err := a.request(creds).
		SetContext(ctx).
		SetBody(amazonListingPayload(draft)).
		Put(fmt.Sprintf("%s/listings/2021-08-01/items/%s/%s", a.apiBase(), sellerID, url.PathEscape(draft.SKU)))
	if err != nil {
		return "", wrapTransportErr(sync.PlatformAmazon, err)
	}
	if resp.IsError() {
		return "", apiErr(sync.PlatformAmazon, resp)
	}
	// Amazon keys listings by seller SKU
	return draft.SKU, nil
}

// UpdateListing patches an existing listing
func (a *AmazonAdapter) UpdateListing(ctx context.Context, creds *sync.Credentials, platformListingID string, draft sync.ListingDraft) error {
	sellerID := creds.Metadata[sync.MetadataShopDomain]
	resp, err := a.request(creds).
		SetContext(ctx).
		SetBody(amazonListingPayload(draft)).
		Patch(fmt.Sprintf("%s/listings/2021-08-01/items/%s/%s", a.apiBase(), sellerID, url.PathEscape(platformListingID)))
	if err != nil {
		return wrapTransportErr(sync.PlatformAmazon, err)
	}
	if resp.IsError() {
		return apiErr(sync.PlatformAmazon, resp)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Order operations
// ---------------------------------------------------------------------------

// amazonStatusMap maps Amazon order statuses to the canonical vocabulary
var amazonStatusMap = map[string]sync.OrderStatus{
	"Pending":          sync.OrderStatusPending,
	"Unshipped":        sync.OrderStatusProcessing,
	"PartiallyShipped": sync.OrderStatusProcessing,
	"Shipped":          sync.OrderStatusShipped,
	"Delivered":        sync.OrderStatusDelivered,
	"Canceled":         sync.OrderStatusCancelled,
	"Refunded":         sync.OrderStatusRefunded,
}

// FetchOrders returns one page of orders created after the filter bound
func (a *AmazonAdapter) FetchOrders(ctx context.Context, creds *sync.Credentials, filter sync.OrderFilter) (*sync.OrderPage, error) {
	req := a.request(creds).
		SetContext(ctx).
		SetQueryParam("MarketplaceIds", creds.Metadata["marketplace_id"]).
		SetQueryParam("MaxResultsPerPage", "50")
	if filter.Cursor != "" {
		req.SetQueryParam("NextToken", filter.Cursor)
	} else if !filter.CreatedAfter.IsZero() {
		req.SetQueryParam("CreatedAfter", filter.CreatedAfter.UTC().Format(time.RFC3339))
	}

	var body amazonOrdersResponse
	resp, err := req.SetResult(&body).Get(a.apiBase() + "/orders/v0/orders")
	if err != nil {
		return nil, wrapTransportErr(sync.PlatformAmazon, err)
	}
	if resp.IsError() {
		return nil, apiErr(sync.PlatformAmazon, resp)
	}

	page := &sync.OrderPage{Orders: make([]sync.PlatformOrder, 0, len(body.Payload.Orders))}
	for _, o := range body.Payload.Orders {
		order := sync.PlatformOrder{
			PlatformOrderID: o.AmazonOrderID,
			Status:          a.mapStatus(o.OrderStatus),
			CustomerName:    o.BuyerInfo.BuyerName,
			CustomerEmail:   o.BuyerInfo.BuyerEmail,
			Currency:        o.OrderTotal.CurrencyCode,
			Total:           o.OrderTotal.Amount,
			PlacedAt:        o.PurchaseDate,
		}
		if o.ShippingAddress != nil {
			order.ShippingAddress = strings.TrimSpace(strings.Join([]string{
				o.ShippingAddress.AddressLine1,
				o.ShippingAddress.City,
				o.ShippingAddress.StateOrRegion,
				o.ShippingAddress.PostalCode,
				o.ShippingAddress.CountryCode,
			}, ", "))
		}

		items, err := a.fetchOrderItems(ctx, creds, o.AmazonOrderID)
		if err != nil {
			return nil, err
		}
		order.Items = items
		page.Orders = append(page.Orders, order)
	}
	page.NextCursor = body.Payload.NextToken
	page.HasMore = body.Payload.NextToken != ""
	return page, nil
}

func (a *AmazonAdapter) fetchOrderItems(ctx context.Context, creds *sync.Credentials, orderID string) ([]sync.PlatformOrderItem, error) {
	var body amazonOrderItemsResponse
	resp, err := a.request(creds).
		SetContext(ctx).
		SetResult(&body).
		Get(fmt.Sprintf("%s/orders/v0/orders/%s/orderItems", a.apiBase(), url.PathEscape(orderID)))
	if err != nil {
		return nil, wrapTransportErr(sync.PlatformAmazon, err)
	}
	if resp.IsError() {
		return nil, apiErr(sync.PlatformAmazon, resp)
	}

	items := make([]sync.PlatformOrderItem, 0, len(body.Payload.OrderItems))
	for _, item := range body.Payload.OrderItems {
		unitPrice := decimal.Zero
		if item.QuantityOrdered > 0 {
			unitPrice = item.ItemPrice.Amount.Div(decimal.NewFromInt(int64(item.QuantityOrdered)))
		}
		items = append(items, sync.PlatformOrderItem{
			PlatformLineItemID: item.OrderItemID,
			SKU:                item.SellerSKU,
			Title:              item.Title,
			Quantity:           item.QuantityOrdered,
			UnitPrice:          unitPrice,
		})
	}
	return items, nil
}

func (a *AmazonAdapter) mapStatus(native string) sync.OrderStatus {
	if status, ok := amazonStatusMap[native]; ok {
		return status
	}
	a.log.Warn("unmapped order status", zap.String("native_status", native))
	return sync.OrderStatusPending
}

// ---------------------------------------------------------------------------
// Inventory operations
// ---------------------------------------------------------------------------

// UpdateInventory patches the fulfillment availability for one SKU
func (a *AmazonAdapter) UpdateInventory(ctx context.Context, creds *sync.Credentials, sku string, quantity int) error {
	sellerID := creds.Metadata[sync.MetadataShopDomain]
	resp, err := a.request(creds).
		SetContext(ctx).
		SetBody(map[string]any{
			"productType": "PRODUCT",
			"patches": []map[string]any{{
				"op":   "replace",
				"path": "/attributes/fulfillment_availability",
				"value": []map[string]any{{
					"fulfillment_channel_code": "DEFAULT",
					"quantity":                 quantity,
				}},
			}},
		}).
		Patch(fmt.Sprintf("%s/listings/2021-08-01/items/%s/%s", a.apiBase(), sellerID, url.PathEscape(sku)))
	if err != nil {
		return wrapTransportErr(sync.PlatformAmazon, err)
	}
	if resp.IsError() {
		return apiErr(sync.PlatformAmazon, resp)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Credential lifecycle
// ---------------------------------------------------------------------------

// RefreshCredentials rotates the LWA bearer through the refresh token
func (a *AmazonAdapter) RefreshCredentials(ctx context.Context, creds *sync.Credentials) (*sync.Credentials, error) {
	if creds.RefreshToken == "" {
		return nil, sync.ErrCredentialsMissing
	}

	var body amazonTokenResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": creds.RefreshToken,
			"client_id":     a.cfg.ClientID,
			"client_secret": a.cfg.ClientSecret,
		}).
		SetResult(&body).
		Post(a.tokenURL())
	if err != nil {
		return nil, wrapTransportErr(sync.PlatformAmazon, err)
	}
	if resp.IsError() {
		return nil, apiErr(sync.PlatformAmazon, resp)
	}
	if body.AccessToken == "" {
		return nil, sync.ErrPlatformInvalidResponse
	}

	expiresAt := time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	refreshToken := body.RefreshToken
	if refreshToken == "" {
		refreshToken = creds.RefreshToken
	}
	return &sync.Credentials{
		AccessToken:  body.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    &expiresAt,
		Scope:        creds.Scope,
		Metadata:     creds.Metadata,
	}, nil
}

// AuthorizeURL builds the Seller Central consent URL
func (a *AmazonAdapter) AuthorizeURL(state, redirectURI, _ string) string {
	q := url.Values{}
	q.Set("application_id", a.cfg.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("state", state)
	return amazonConsentURL + "?" + q.Encode()
}

// ExchangeCode trades the authorization code for an LWA token pair
func (a *AmazonAdapter) ExchangeCode(ctx context.Context, code, redirectURI, _ string) (*sync.Credentials, error) {
	var body amazonTokenResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "authorization_code",
			"code":          code,
			"redirect_uri":  redirectURI,
			"client_id":     a.cfg.ClientID,
			"client_secret": a.cfg.ClientSecret,
		}).
		SetResult(&body).
		Post(a.tokenURL())
	if err != nil {
		return nil, wrapTransportErr(sync.PlatformAmazon, err)
	}
	if resp.IsError() {
		return nil, apiErr(sync.PlatformAmazon, resp)
	}
	if body.AccessToken == "" {
		return nil, sync.ErrPlatformInvalidResponse
	}

	expiresAt := time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	return &sync.Credentials{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    &expiresAt,
	}, nil
}

// RequiresPKCE reports that Amazon's flow does not use PKCE
func (a *AmazonAdapter) RequiresPKCE() bool {
	return false
}

// ---------------------------------------------------------------------------
// Webhook verification
// ---------------------------------------------------------------------------

// amazonEventMap maps SP-API notification types to canonical event types
var amazonEventMap = map[string]sync.WebhookEventType{
	"ORDER_CHANGE":                      sync.WebhookEventOrderUpdated,
	"ORDER_STATUS_CHANGE":               sync.WebhookEventOrderUpdated,
	"LISTINGS_ITEM_STATUS_CHANGE":       sync.WebhookEventProductUpdated,
	"FBA_INVENTORY_AVAILABILITY_CHANGE": sync.WebhookEventInventoryUpdated,
}

// VerifyWebhook validates the notification envelope structurally. The
// subscription channel authenticates the sender upstream; a payload missing
// the envelope fields is treated as unauthenticated.
func (a *AmazonAdapter) VerifyWebhook(req *sync.WebhookRequest) (*sync.WebhookEvent, error) {
	var envelope amazonNotification
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return nil, sync.ErrInvalidSignature
	}
	if envelope.NotificationType == "" || envelope.NotificationID == "" {
		return nil, sync.ErrInvalidSignature
	}

	eventType, ok := amazonEventMap[envelope.NotificationType]
	if !ok {
		return nil, sync.ErrUnknownWebhookEvent
	}

	return &sync.WebhookEvent{
		Platform:   sync.PlatformAmazon,
		EventType:  eventType,
		SourceID:   envelope.Payload.SellerID,
		DeliveryID: envelope.NotificationID,
		Payload:    req.Body,
	}, nil
}

// AnswerChallenge is unsupported: Amazon has no challenge handshake
func (a *AmazonAdapter) AnswerChallenge(_ *sync.WebhookRequest) (string, error) {
	return "", sync.ErrChallengeUnsupported
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type amazonMoney struct {
	Amount       decimal.Decimal `json:"Amount"`
	CurrencyCode string          `json:"CurrencyCode"`
}

type amazonOffer struct {
	Price struct {
		Amount       decimal.Decimal `json:"amount"`
		CurrencyCode string          `json:"currencyCode"`
	} `json:"price"`
}

type amazonListingItem struct {
	SKU       string `json:"sku"`
	ASIN      string `json:"asin"`
	Status    string `json:"status"`
	Summaries []struct {
		ItemName string `json:"itemName"`
	} `json:"summaries"`
	Offers                  []amazonOffer `json:"offers"`
	FulfillmentAvailability *struct {
		Quantity int `json:"quantity"`
	} `json:"fulfillmentAvailability"`
}

type amazonListingsResponse struct {
	Items      []amazonListingItem `json:"items"`
	Pagination struct {
		NextToken string `json:"nextToken"`
	} `json:"pagination"`
}

type amazonAddress struct {
	AddressLine1  string `json:"AddressLine1"`
	City          string `json:"City"`
	StateOrRegion string `json:"StateOrRegion"`
	PostalCode    string `json:"PostalCode"`
	CountryCode   string `json:"CountryCode"`
}

type amazonOrder struct {
	AmazonOrderID string      `json:"AmazonOrderId"`
	OrderStatus   string      `json:"OrderStatus"`
	PurchaseDate  time.Time   `json:"PurchaseDate"`
	OrderTotal    amazonMoney `json:"OrderTotal"`
	BuyerInfo     struct {
		BuyerName  string `json:"BuyerName"`
		BuyerEmail string `json:"BuyerEmail"`
	} `json:"BuyerInfo"`
	ShippingAddress *amazonAddress `json:"ShippingAddress"`
}

type amazonOrdersResponse struct {
	Payload struct {
		Orders    []amazonOrder `json:"Orders"`
		NextToken string        `json:"NextToken"`
	} `json:"payload"`
}

type amazonOrderItemsResponse struct {
	Payload struct {
		OrderItems []struct {
			OrderItemID     string      `json:"OrderItemId"`
			SellerSKU       string      `json:"SellerSKU"`
			Title           string      `json:"Title"`
			QuantityOrdered int         `json:"QuantityOrdered"`
			ItemPrice       amazonMoney `json:"ItemPrice"`
		} `json:"OrderItems"`
	} `json:"payload"`
}

type amazonTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

type amazonNotification struct {
	NotificationType string `json:"notificationType"`
	NotificationID   string `json:"notificationId"`
	Payload          struct {
		SellerID string `json:"sellerId"`
	} `json:"payload"`
}

// amazonListingPayload builds the listings API request body
func amazonListingPayload(draft sync.ListingDraft) map[string]any {
	return map[string]any{
		"productType": "PRODUCT",
		"attributes": map[string]any{
			"item_name":           []map[string]any{{"value": draft.Title}},
			"product_description": []map[string]any{{"value": draft.Description}},
			"purchasable_offer": []map[string]any{{
				"currency": draft.Currency,
				"our_price": []map[string]any{{
					"schedule": []map[string]any{{"value_with_tax": draft.Price.StringFixed(2)}},
				}},
			}},
			"fulfillment_availability": []map[string]any{{
				"fulfillment_channel_code": "DEFAULT",
				"quantity":                 draft.Quantity,
			}},
		},
	}
}

// Ensure AmazonAdapter implements PlatformAdapter
var _ sync.PlatformAdapter = (*AmazonAdapter)(nil)
