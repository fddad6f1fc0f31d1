package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/sync"
	"github.com/channelhub/backend/internal/infrastructure/auth"
	"github.com/channelhub/backend/internal/interfaces/http/middleware"
)

// connectStateTTL bounds how long an OAuth authorization may stay pending
const connectStateTTL = 10 * time.Minute

// PlatformsHandler serves the platform connection lifecycle: OAuth connect,
// callback completion, disconnect and the masked listing.
type PlatformsHandler struct {
	BaseHandler
	registry sync.AdapterRegistry
	vault    sync.CredentialVault
	jwt      *auth.JWTService
	logger   *zap.Logger
}

// NewPlatformsHandler creates a new platforms handler
func NewPlatformsHandler(registry sync.AdapterRegistry, vault sync.CredentialVault, jwt *auth.JWTService, logger *zap.Logger) *PlatformsHandler {
	return &PlatformsHandler{
		registry: registry,
		vault:    vault,
		jwt:      jwt,
		logger:   logger,
	}
}

// RegisterRoutes registers the platform routes
func (h *PlatformsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group("/platforms")
	group.GET("", h.List)
	group.POST("/connect", h.Connect)
	group.GET("/callback", h.Callback)
	group.POST("/disconnect", h.Disconnect)
}

// ConnectRequest starts an OAuth flow for one platform
type ConnectRequest struct {
	Platform    string `json:"platform" binding:"required,platform"`
	RedirectURI string `json:"redirect_uri" binding:"required,url"`
}

// ConnectResponse carries the authorization URL the tenant is sent to
type ConnectResponse struct {
	AuthorizeURL string `json:"authorize_url"`
	State        string `json:"state"`
}

// Connect builds the platform's authorization URL with a signed state token
func (h *PlatformsHandler) Connect(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant could not be resolved from token")
		return
	}

	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	platform, err := sync.ParsePlatform(req.Platform)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	adapter, err := h.registry.Get(platform)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	verifier, challenge := "", ""
	if adapter.RequiresPKCE() {
		verifier, challenge, err = auth.GeneratePKCEPair()
		if err != nil {
			h.HandleError(c, err)
			return
		}
	}

	state, err := h.jwt.GenerateConnectState(tenantID, platform.String(), verifier, connectStateTTL)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, ConnectResponse{
		AuthorizeURL: adapter.AuthorizeURL(state, req.RedirectURI, challenge),
		State:        state,
	})
}

// Callback completes an OAuth flow: validates the state, exchanges the code
// and stores the encrypted token set
func (h *PlatformsHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	if state == "" {
		// WooCommerce returns its key pair in the user_id field it echoes
		// back, with the consumer pair posted as "code"
		state = c.Query("user_id")
	}
	if code == "" || state == "" {
		h.BadRequest(c, "Missing code or state parameter")
		return
	}

	claims, err := h.jwt.ValidateConnectState(state)
	if err != nil {
		h.Unauthorized(c, "Invalid or expired state token")
		return
	}
	tenantID, err := claims.GetTenantUUID()
	if err != nil {
		h.Unauthorized(c, "Invalid state token")
		return
	}
	platform, err := sync.ParsePlatform(claims.Platform)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	adapter, err := h.registry.Get(platform)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	creds, err := adapter.ExchangeCode(c.Request.Context(), code, endpointURL(c), claims.PKCEVerifier)
	if err != nil {
		h.logger.Warn("OAuth code exchange failed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("platform", platform.String()),
			zap.Error(err))
		h.HandleError(c, err)
		return
	}

	// Shopify, Amazon and WooCommerce identify the store in the callback
	// query rather than the token response. Without this identifier the
	// connection cannot be resolved from inbound webhooks.
	if creds.Metadata[sync.MetadataShopDomain] == "" {
		if shop := callbackShopIdentifier(c); shop != "" {
			if creds.Metadata == nil {
				creds.Metadata = make(map[string]string, 1)
			}
			creds.Metadata[sync.MetadataShopDomain] = shop
		}
	}

	conn, err := h.vault.Store(c.Request.Context(), tenantID, platform, creds)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.logger.Info("platform connected",
		zap.String("tenant_id", tenantID.String()),
		zap.String("platform", platform.String()))
	h.Success(c, conn.Masked())
}

// callbackShopIdentifier extracts the platform-side store identifier some
// platforms echo in their OAuth callback: Shopify sends the shop domain as
// "shop", Amazon the seller id as "selling_partner_id" and WooCommerce the
// site URL as "store_url".
func callbackShopIdentifier(c *gin.Context) string {
	for _, key := range []string{"shop", "selling_partner_id", "store_url"} {
		if v := c.Query(key); v != "" {
			return v
		}
	}
	return ""
}

// DisconnectRequest names the platform to disconnect
type DisconnectRequest struct {
	Platform string `json:"platform" binding:"required,platform"`
}

// Disconnect deactivates a connection without deleting its history
func (h *PlatformsHandler) Disconnect(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant could not be resolved from token")
		return
	}

	var req DisconnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	platform, err := sync.ParsePlatform(req.Platform)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if err := h.vault.Disconnect(c.Request.Context(), tenantID, platform); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"disconnected": true})
}

// List returns the tenant's connections with tokens redacted
func (h *PlatformsHandler) List(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant could not be resolved from token")
		return
	}

	connections, err := h.vault.ListMasked(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, connections)
}
