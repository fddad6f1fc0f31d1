package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/channelhub/backend/internal/interfaces/http/dto"
)

// BodyLimit rejects request bodies over maxBytes. A declared length over
// the cap is rejected up front; chunked uploads hit the limit while the
// handler reads. Webhook routes carry their own, tighter payload cap.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				dto.NewErrorResponse(dto.ErrCodeBadRequest, "Request body too large"))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
