package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/sync"
	"github.com/channelhub/backend/internal/infrastructure/config"
)

const (
	etsyDefaultAPIBase = "https://api.etsy.com/v3"
	etsyConsentURL     = "https://www.etsy.com/oauth/connect"
	etsyCentDivisor    = 100
)

// EtsyAdapter implements PlatformAdapter for Etsy. Etsy's OAuth flow
// requires PKCE; API calls carry both the app key and a rotating bearer.
type EtsyAdapter struct {
	cfg    config.PlatformCredentials
	client *resty.Client
	log    *zap.Logger
}

// NewEtsyAdapter creates a new Etsy adapter
func NewEtsyAdapter(cfg config.PlatformCredentials, log *zap.Logger) *EtsyAdapter {
	return &EtsyAdapter{
		cfg:    cfg,
		client: newRestyClient(),
		log:    log.Named("etsy"),
	}
}

// Platform returns the platform this adapter handles
func (a *EtsyAdapter) Platform() sync.Platform {
	return sync.PlatformEtsy
}

func (a *EtsyAdapter) apiBase() string {
	if a.cfg.APIBaseURL != "" {
		return a.cfg.APIBaseURL
	}
	return etsyDefaultAPIBase
}

// Etsy v3 requires x-api-key alongside the bearer on every call
func (a *EtsyAdapter) request(creds *sync.Credentials) *resty.Request {
	return a.client.R().
		SetHeader("x-api-key", a.cfg.ClientID).
		SetAuthToken(creds.AccessToken)
}

// shopID returns the numeric Etsy shop id stored in the connection metadata
func (a *EtsyAdapter) shopID(creds *sync.Credentials) (string, error) {
	id := creds.Metadata[sync.MetadataShopDomain]
	if id == "" {
		return "", sync.ErrCredentialsMissing
	}
	return id, nil
}

// ---------------------------------------------------------------------------
// Catalog operations
// ---------------------------------------------------------------------------

// FetchProducts returns one page of the shop's listings. Etsy paginates with
// a numeric offset carried as the opaque cursor.
func (a *EtsyAdapter) FetchProducts(ctx context.Context, creds *sync.Credentials, cursor string) (*sync.ProductPage, error) {
	shopID, err := a.shopID(creds)
	if err != nil {
		return nil, err
	}

	offset := 0
	if cursor != "" {
		offset, _ = strconv.Atoi(cursor)
	}

	var body etsyListingsResponse
	resp, err := a.request(creds).
		SetContext(ctx).
		SetQueryParam("limit", strconv.Itoa(defaultPageSize)).
		SetQueryParam("offset", strconv.Itoa(offset)).
		SetResult(&body).
		Get(fmt.Sprintf("%s/application/shops/%s/listings", a.apiBase(), shopID))
	if err != nil {
		return nil, wrapTransportErr(sync.PlatformEtsy, err)
	}
	if resp.IsError() {
		return nil, apiErr(sync.PlatformEtsy, resp)
	}

	page := &sync.ProductPage{Products: make([]sync.PlatformProduct, 0, len(body.Results))}
	for _, listing := range body.Results {
		product := sync.PlatformProduct{
			PlatformProductID: strconv.FormatInt(listing.ListingID, 10),
			Title:             listing.Title,
			Price:             listing.Price.Decimal(),
			Currency:          listing.Price.CurrencyCode,
			Quantity:          listing.Quantity,
			Active:            listing.State == "active",
		}
		if len(listing.SKUs) > 0 {
			product.SKU = listing.SKUs[0]
		}
		page.Products = append(page.Products, product)
	}

	next := offset + len(body.Results)
	if next < body.Count {
		page.NextCursor = strconv.Itoa(next)
		page.HasMore = true
	}
	return page, nil
}

// CreateListing publishes a draft listing in the shop
func (a *EtsyAdapter) CreateListing(ctx context.Context, creds *sync.Credentials, draft sync.ListingDraft) (string, error) {
	shopID, err := a.shopID(creds)
	if err != nil {
		return "", err
	}

	var body etsyListing
	resp, err := a.request(creds).
		SetContext(ctx).
		SetFormData(map[string]string{
			"title":       draft.Title,
			"description": draft.Description,
			"price":       draft.Price.StringFixed(2),
			"quantity":    strconv.Itoa(draft.Quantity),
			"sku":         draft.SKU,
			"who_made":    "i_did",
			"when_made":   "made_to_order",
		}).
		SetResult(&body).
		Post(fmt.Sprintf("%s/application/shops/%s/listings", a.apiBase(), shopID))
	if err != nil {
		return "", wrapTransportErr(sync.PlatformEtsy, err)
	}
	if resp.IsError() {
		return "", apiErr(sync.PlatformEtsy, resp)
	}
	if body.ListingID == 0 {
		return "", sync.ErrPlatformInvalidResponse
	}
	return strconv.FormatInt(body.ListingID, 10), nil
}

// UpdateListing patches an existing listing
func (a *EtsyAdapter) UpdateListing(ctx context.Context, creds *sync.Credentials, platformListingID string, draft sync.ListingDraft) error {
	shopID, err := a.shopID(creds)
	if err != nil {
		return err
	}

	resp, err := a.request(creds).
		SetContext(ctx).
		SetFormData(map[string]string{
			"title":       draft.Title,
			"description": draft.Description,
			"price":       draft.Price.StringFixed(2),
			"quantity":    strconv.Itoa(draft.Quantity),
		}).
		Patch(fmt.Sprintf("%s/application/shops/%s/listings/%s", a.apiBase(), shopID, platformListingID))
	if err != nil {
		return wrapTransportErr(sync.PlatformEtsy, err)
	}
	if resp.IsError() {
		return apiErr(sync.PlatformEtsy, resp)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Order operations
// ---------------------------------------------------------------------------

// etsyStatusMap maps Etsy receipt statuses to the canonical vocabulary
var etsyStatusMap = map[string]sync.OrderStatus{
	"open":               sync.OrderStatusPending,
	"paid":               sync.OrderStatusProcessing,
	"payment processing": sync.OrderStatusProcessing,
	"completed":          sync.OrderStatusShipped,
	"fully refunded":     sync.OrderStatusRefunded,
	"canceled":           sync.OrderStatusCancelled,
}

// FetchOrders returns one page of receipts created after the filter bound
func (a *EtsyAdapter) FetchOrders(ctx context.Context, creds *sync.Credentials, filter sync.OrderFilter) (*sync.OrderPage, error) {
	shopID, err := a.shopID(creds)
	if err != nil {
		return nil, err
	}

	offset := 0
	if filter.Cursor != "" {
		offset, _ = strconv.Atoi(filter.Cursor)
	}

	req := a.request(creds).
		SetContext(ctx).
		SetQueryParam("limit", strconv.Itoa(clampPageSize(filter.PageSize, 100))).
		SetQueryParam("offset", strconv.Itoa(offset))
	if !filter.CreatedAfter.IsZero() {
		req.SetQueryParam("min_created", strconv.FormatInt(filter.CreatedAfter.Unix(), 10))
	}

	var body etsyReceiptsResponse
	resp, err := req.SetResult(&body).
		Get(fmt.Sprintf("%s/application/shops/%s/receipts", a.apiBase(), shopID))
	if err != nil {
		return nil, wrapTransportErr(sync.PlatformEtsy, err)
	}
	if resp.IsError() {
		return nil, apiErr(sync.PlatformEtsy, resp)
	}

	page := &sync.OrderPage{Orders: make([]sync.PlatformOrder, 0, len(body.Results))}
	for _, r := range body.Results {
		order := sync.PlatformOrder{
			PlatformOrderID: strconv.FormatInt(r.ReceiptID, 10),
			Status:          a.mapStatus(r.Status),
			CustomerName:    r.Name,
			CustomerEmail:   r.BuyerEmail,
			ShippingAddress: strings.TrimSpace(strings.Join([]string{r.FirstLine, r.City, r.State, r.Zip, r.CountryISO}, ", ")),
			Currency:        r.GrandTotal.CurrencyCode,
			Total:           r.GrandTotal.Decimal(),
			PlacedAt:        time.Unix(r.CreateTimestamp, 0),
			Items:           make([]sync.PlatformOrderItem, 0, len(r.Transactions)),
		}
		for _, tx := range r.Transactions {
			order.Items = append(order.Items, sync.PlatformOrderItem{
				PlatformLineItemID: strconv.FormatInt(tx.TransactionID, 10),
				SKU:                tx.SKU,
				Title:              tx.Title,
				Quantity:           tx.Quantity,
				UnitPrice:          tx.Price.Decimal(),
			})
		}
		page.Orders = append(page.Orders, order)
	}

	next := offset + len(body.Results)
	if next < body.Count {
		page.NextCursor = strconv.Itoa(next)
		page.HasMore = true
	}
	return page, nil
}

func (a *EtsyAdapter) mapStatus(native string) sync.OrderStatus {
	if status, ok := etsyStatusMap[strings.ToLower(native)]; ok {
		return status
	}
	a.log.Warn("unmapped order status", zap.String("native_status", native))
	return sync.OrderStatusPending
}

// ---------------------------------------------------------------------------
// Inventory operations
// ---------------------------------------------------------------------------

// UpdateInventory adjusts the quantity on the listing matching the SKU
func (a *EtsyAdapter) UpdateInventory(ctx context.Context, creds *sync.Credentials, sku string, quantity int) error {
	shopID, err := a.shopID(creds)
	if err != nil {
		return err
	}

	var lookup etsyListingsResponse
	resp, err := a.request(creds).
		SetContext(ctx).
		SetQueryParam("sku", sku).
		SetResult(&lookup).
		Get(fmt.Sprintf("%s/application/shops/%s/listings", a.apiBase(), shopID))
	if err != nil {
		return wrapTransportErr(sync.PlatformEtsy, err)
	}
	if resp.IsError() {
		return apiErr(sync.PlatformEtsy, resp)
	}
	if len(lookup.Results) == 0 {
		return sync.NewAdapterError(sync.PlatformEtsy, 404, fmt.Sprintf("no listing with sku %q", sku))
	}

	resp, err = a.request(creds).
		SetContext(ctx).
		SetFormData(map[string]string{"quantity": strconv.Itoa(quantity)}).
		Patch(fmt.Sprintf("%s/application/shops/%s/listings/%d", a.apiBase(), shopID, lookup.Results[0].ListingID))
	if err != nil {
		return wrapTransportErr(sync.PlatformEtsy, err)
	}
	if resp.IsError() {
		return apiErr(sync.PlatformEtsy, resp)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Credential lifecycle
// ---------------------------------------------------------------------------

// RefreshCredentials rotates the bearer through the refresh grant
func (a *EtsyAdapter) RefreshCredentials(ctx context.Context, creds *sync.Credentials) (*sync.Credentials, error) {
	if creds.RefreshToken == "" {
		return nil, sync.ErrCredentialsMissing
	}

	var body etsyTokenResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"client_id":     a.cfg.ClientID,
			"refresh_token": creds.RefreshToken,
		}).
		SetResult(&body).
		Post(a.apiBase() + "/public/oauth/token")
	if err != nil {
		return nil, wrapTransportErr(sync.PlatformEtsy, err)
	}
	if resp.IsError() {
		return nil, apiErr(sync.PlatformEtsy, resp)
	}
	if body.AccessToken == "" || body.Error != "" {
		return nil, sync.ErrPlatformInvalidResponse
	}

	expiresAt := time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	return &sync.Credentials{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    &expiresAt,
		Scope:        creds.Scope,
		Metadata:     creds.Metadata,
	}, nil
}

// AuthorizeURL builds the Etsy consent URL with the PKCE code challenge
func (a *EtsyAdapter) AuthorizeURL(state, redirectURI, challenge string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", a.cfg.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", strings.Join(a.cfg.Scopes, " "))
	q.Set("state", state)
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", "S256")
	return etsyConsentURL + "?" + q.Encode()
}

// ExchangeCode trades the authorization code plus PKCE verifier for a token pair
func (a *EtsyAdapter) ExchangeCode(ctx context.Context, code, redirectURI, verifier string) (*sync.Credentials, error) {
	var body etsyTokenResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormData(map[string]string{
			"grant_type":    "authorization_code",
			"client_id":     a.cfg.ClientID,
			"redirect_uri":  redirectURI,
			"code":          code,
			"code_verifier": verifier,
		}).
		SetResult(&body).
		Post(a.apiBase() + "/public/oauth/token")
	if err != nil {
		return nil, wrapTransportErr(sync.PlatformEtsy, err)
	}
	if resp.IsError() {
		return nil, apiErr(sync.PlatformEtsy, resp)
	}
	if body.AccessToken == "" || body.Error != "" {
		return nil, sync.ErrPlatformInvalidResponse
	}

	expiresAt := time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	creds := &sync.Credentials{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    &expiresAt,
	}

	shopID, err := a.fetchShopID(ctx, creds)
	if err != nil {
		return nil, err
	}
	creds.Metadata = map[string]string{sync.MetadataShopDomain: shopID}
	return creds, nil
}

// fetchShopID resolves the numeric shop id for a freshly authorized token.
// Etsy prefixes every access token with the owning user's id.
func (a *EtsyAdapter) fetchShopID(ctx context.Context, creds *sync.Credentials) (string, error) {
	userID, _, ok := strings.Cut(creds.AccessToken, ".")
	if !ok || userID == "" {
		return "", sync.ErrPlatformInvalidResponse
	}

	var body etsyShopResponse
	resp, err := a.request(creds).
		SetContext(ctx).
		SetResult(&body).
		Get(fmt.Sprintf("%s/application/users/%s/shops", a.apiBase(), userID))
	if err != nil {
		return "", wrapTransportErr(sync.PlatformEtsy, err)
	}
	if resp.IsError() {
		return "", apiErr(sync.PlatformEtsy, resp)
	}
	if body.ShopID == 0 {
		return "", sync.ErrPlatformInvalidResponse
	}
	return strconv.FormatInt(body.ShopID, 10), nil
}

// RequiresPKCE reports that Etsy's flow uses PKCE
func (a *EtsyAdapter) RequiresPKCE() bool {
	return true
}

// ---------------------------------------------------------------------------
// Webhook verification
// ---------------------------------------------------------------------------

// VerifyWebhook validates the delivery structurally. Etsy does not sign
// push deliveries; a payload without the expected envelope is rejected.
func (a *EtsyAdapter) VerifyWebhook(req *sync.WebhookRequest) (*sync.WebhookEvent, error) {
	var envelope etsyNotification
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return nil, sync.ErrInvalidSignature
	}
	if envelope.EventType == "" || envelope.ShopID == 0 {
		return nil, sync.ErrInvalidSignature
	}

	var eventType sync.WebhookEventType
	switch envelope.EventType {
	case "receipt_created":
		eventType = sync.WebhookEventOrderCreated
	case "receipt_updated":
		eventType = sync.WebhookEventOrderUpdated
	case "listing_updated":
		eventType = sync.WebhookEventProductUpdated
	case "inventory_updated":
		eventType = sync.WebhookEventInventoryUpdated
	default:
		return nil, sync.ErrUnknownWebhookEvent
	}

	return &sync.WebhookEvent{
		Platform:   sync.PlatformEtsy,
		EventType:  eventType,
		SourceID:   strconv.FormatInt(envelope.ShopID, 10),
		DeliveryID: envelope.EventID,
		Payload:    req.Body,
	}, nil
}

// AnswerChallenge is unsupported: Etsy has no challenge handshake
func (a *EtsyAdapter) AnswerChallenge(_ *sync.WebhookRequest) (string, error) {
	return "", sync.ErrChallengeUnsupported
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

// etsyMoney is Etsy's fixed-point money representation: amount in the
// currency's minor unit with an explicit divisor.
type etsyMoney struct {
	Amount       int64  `json:"amount"`
	Divisor      int64  `json:"divisor"`
	CurrencyCode string `json:"currency_code"`
}

// Decimal converts the fixed-point amount to a decimal value
func (m etsyMoney) Decimal() decimal.Decimal {
	divisor := m.Divisor
	if divisor == 0 {
		divisor = etsyCentDivisor
	}
	return decimal.NewFromInt(m.Amount).Div(decimal.NewFromInt(divisor))
}

type etsyListing struct {
	ListingID int64     `json:"listing_id"`
	Title     string    `json:"title"`
	State     string    `json:"state"`
	Quantity  int       `json:"quantity"`
	SKUs      []string  `json:"skus"`
	Price     etsyMoney `json:"price"`
}

type etsyListingsResponse struct {
	Count   int           `json:"count"`
	Results []etsyListing `json:"results"`
}

type etsyReceiptsResponse struct {
	Count   int `json:"count"`
	Results []struct {
		ReceiptID       int64     `json:"receipt_id"`
		Status          string    `json:"status"`
		Name            string    `json:"name"`
		BuyerEmail      string    `json:"buyer_email"`
		FirstLine       string    `json:"first_line"`
		City            string    `json:"city"`
		State           string    `json:"state"`
		Zip             string    `json:"zip"`
		CountryISO      string    `json:"country_iso"`
		CreateTimestamp int64     `json:"create_timestamp"`
		GrandTotal      etsyMoney `json:"grandtotal"`
		Transactions    []struct {
			TransactionID int64     `json:"transaction_id"`
			Title         string    `json:"title"`
			SKU           string    `json:"sku"`
			Quantity      int       `json:"quantity"`
			Price         etsyMoney `json:"price"`
		} `json:"transactions"`
	} `json:"results"`
}

type etsyTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error"`
}

type etsyShopResponse struct {
	ShopID   int64  `json:"shop_id"`
	ShopName string `json:"shop_name"`
}

type etsyNotification struct {
	EventType string `json:"event_type"`
	EventID   string `json:"event_id"`
	ShopID    int64  `json:"shop_id"`
}

// Ensure EtsyAdapter implements PlatformAdapter
var _ sync.PlatformAdapter = (*EtsyAdapter)(nil)
