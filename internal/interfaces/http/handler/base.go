package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/channelhub/backend/internal/domain/shared"
	"github.com/channelhub/backend/internal/domain/sync"
	"github.com/channelhub/backend/internal/interfaces/http/dto"
	"github.com/channelhub/backend/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID set by the RequestID middleware
func getRequestID(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDContextKey); id != "" {
		return id
	}
	return c.GetHeader("X-Request-ID")
}

// getTenantID extracts the tenant ID from JWT claims
func getTenantID(c *gin.Context) (uuid.UUID, error) {
	tenantIDStr := middleware.GetJWTTenantID(c)
	if tenantIDStr == "" {
		return uuid.Nil, errors.New("tenant ID not found in context")
	}
	return uuid.Parse(tenantIDStr)
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the given status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// HandleError maps domain errors onto the API error vocabulary
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		h.Error(c, dto.GetHTTPStatus(code), code, domainErr.Message)
		return
	}

	var adapterErr *sync.AdapterError
	if errors.As(err, &adapterErr) {
		h.Error(c, http.StatusBadGateway, dto.ErrCodePlatformUnavailable, adapterErr.Error())
		return
	}

	switch {
	case errors.Is(err, sync.ErrPlatformNotSupported):
		h.Error(c, http.StatusBadRequest, dto.ErrCodeUnsupportedPlatform, err.Error())
	case errors.Is(err, sync.ErrPlatformNotConnected),
		errors.Is(err, sync.ErrConnectionInactive):
		h.Error(c, http.StatusUnprocessableEntity, dto.ErrCodeConnectionInactive, err.Error())
	case errors.Is(err, sync.ErrCredentialsExpired),
		errors.Is(err, sync.ErrCredentialsMissing),
		errors.Is(err, sync.ErrDecryptionFailed):
		h.Error(c, http.StatusUnprocessableEntity, dto.ErrCodeCredentialsExpired, err.Error())
	case errors.Is(err, sync.ErrInvalidSignature):
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeInvalidSignature, err.Error())
	case errors.Is(err, sync.ErrJobAlreadyQueued):
		h.Error(c, http.StatusConflict, dto.ErrCodeSyncInProgress, err.Error())
	case errors.Is(err, sync.ErrJobInvalidType):
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, err.Error())
	default:
		h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "An unexpected error occurred")
	}
}
