package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/channelhub/backend/internal/application/webhook"
	"github.com/channelhub/backend/internal/domain/sync"
	"github.com/channelhub/backend/internal/interfaces/http/dto"
)

// defaultWebhookBodyLimit caps webhook payloads when no limit is configured
const defaultWebhookBodyLimit = 64 * 1024

// WebhookHandler terminates platform webhook deliveries. The routes are
// public; authenticity comes from the per-platform signature scheme, not
// from bearer tokens.
type WebhookHandler struct {
	BaseHandler
	ingest       *webhook.IngestService
	maxBodyBytes int64
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(ingest *webhook.IngestService, maxBodyBytes int64) *WebhookHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultWebhookBodyLimit
	}
	return &WebhookHandler{
		ingest:       ingest,
		maxBodyBytes: maxBodyBytes,
	}
}

// RegisterPublicRoutes registers the webhook endpoints on the engine root,
// outside the versioned authenticated API
func (h *WebhookHandler) RegisterPublicRoutes(engine *gin.Engine) {
	engine.POST("/webhooks/:platform", h.Receive)
	engine.GET("/webhooks/:platform", h.Challenge)
}

// Receive handles one webhook delivery
func (h *WebhookHandler) Receive(c *gin.Context) {
	platform, err := sync.ParsePlatform(c.Param("platform"))
	if err != nil {
		h.NotFound(c, "Unknown platform")
		return
	}

	req, err := h.buildRequest(c)
	if err != nil {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeBadRequest, "Payload too large")
		return
	}

	if err := h.ingest.Ingest(c.Request.Context(), platform, req); err != nil {
		switch {
		case errors.Is(err, sync.ErrInvalidSignature):
			h.Error(c, http.StatusUnauthorized, dto.ErrCodeInvalidSignature, "Signature verification failed")
		case errors.Is(err, sync.ErrPlatformNotSupported):
			h.NotFound(c, "Unknown platform")
		default:
			// non-2xx makes the platform redeliver, which is what we want
			// for transient storage failures
			h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "Delivery could not be accepted")
		}
		return
	}

	h.Success(c, gin.H{"received": true})
}

// Challenge answers subscription-time verification handshakes
func (h *WebhookHandler) Challenge(c *gin.Context) {
	platform, err := sync.ParsePlatform(c.Param("platform"))
	if err != nil {
		h.NotFound(c, "Unknown platform")
		return
	}

	req, err := h.buildRequest(c)
	if err != nil {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeBadRequest, "Payload too large")
		return
	}

	answer, err := h.ingest.Challenge(c.Request.Context(), platform, req)
	if err != nil {
		if errors.Is(err, sync.ErrChallengeUnsupported) {
			h.NotFound(c, "Platform does not use challenge verification")
			return
		}
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"challengeResponse": answer})
}

// buildRequest snapshots the HTTP request into the transport-agnostic shape
// the verifiers consume
func (h *WebhookHandler) buildRequest(c *gin.Context) (*sync.WebhookRequest, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > h.maxBodyBytes {
		return nil, errors.New("payload too large")
	}

	query := make(map[string]string)
	for key, vals := range c.Request.URL.Query() {
		if len(vals) > 0 {
			query[key] = vals[0]
		}
	}

	return &sync.WebhookRequest{
		Method:      c.Request.Method,
		Headers:     c.Request.Header,
		Query:       query,
		Body:        body,
		EndpointURL: endpointURL(c),
	}, nil
}

// endpointURL rebuilds the externally visible delivery URL, honoring the
// proxy headers the load balancer sets
func endpointURL(c *gin.Context) string {
	scheme := "https"
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if c.Request.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.Path
}
