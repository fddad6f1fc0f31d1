package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/channelhub/backend/internal/interfaces/http/dto"
)

// RateLimiter counts requests per caller over a fixed window. State is
// per-process; a multi-instance deployment limits each instance separately.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*requestWindow
	limit   int
	span    time.Duration
}

type requestWindow struct {
	count     int
	startedAt time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per span and
// starts a background sweep of idle windows
func NewRateLimiter(limit int, span time.Duration) *RateLimiter {
	rl := &RateLimiter{
		windows: make(map[string]*requestWindow),
		limit:   limit,
		span:    span,
	}
	go rl.sweepLoop()
	return rl
}

// Allow consumes one slot for the key. It reports whether the request may
// proceed and how many slots remain in the current window.
func (rl *RateLimiter) Allow(key string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.windows[key]
	if !ok || now.Sub(w.startedAt) >= rl.span {
		rl.windows[key] = &requestWindow{count: 1, startedAt: now}
		return true, rl.limit - 1
	}
	if w.count >= rl.limit {
		return false, 0
	}
	w.count++
	return true, rl.limit - w.count
}

// sweepLoop drops windows idle for two spans so one-off callers do not
// accumulate in the map
func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.span * 2)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for key, w := range rl.windows {
			if now.Sub(w.startedAt) >= rl.span*2 {
				delete(rl.windows, key)
			}
		}
		rl.mu.Unlock()
	}
}

// RateLimit throttles callers by client IP. A tenant header narrows the key
// further so dashboards sharing an egress IP get separate budgets.
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if tenantID := c.GetHeader("X-Tenant-ID"); tenantID != "" {
			key = tenantID + "|" + key
		}

		allowed, remaining := limiter.Allow(key)
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(limiter.span.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				dto.NewErrorResponse(dto.ErrCodeRateLimited, "Too many requests"))
			return
		}

		c.Next()
	}
}
