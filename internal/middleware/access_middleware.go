// internal/middleware/access_middleware.go
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"billing-service/internal/domain/subscription"
	"billing-service/internal/pkg/response"
	"billing-service/internal/pkg/throttle"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const ctxSubscription = "subscription"

// AccessGuard decides whether an account may use a feature.
type AccessGuard interface {
	EnforceAccess(ctx context.Context, accountID uuid.UUID, feature subscription.Feature) (*subscription.Subscription, error)
}

// SubscriptionAccess rejects the request unless the guard allows feature.
// MUST be used after Auth()
func SubscriptionAccess(guard AccessGuard, feature subscription.Feature) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := GetAccountID(c)
		if !ok {
			response.Unauthorized(c, "authentication required")
			return
		}

		sub, err := guard.EnforceAccess(c.Request.Context(), accountID, feature)
		if err != nil {
			response.FromError(c, "access denied", err, map[string]interface{}{
				"feature": feature,
			})
			return
		}

		c.Set(ctxSubscription, sub)
		c.Next()
	}
}

// GetSubscription returns the subscription SubscriptionAccess allowed.
func GetSubscription(c *gin.Context) (*subscription.Subscription, bool) {
	raw, exists := c.Get(ctxSubscription)
	if !exists {
		return nil, false
	}
	sub, ok := raw.(*subscription.Subscription)
	return sub, ok
}

// RateLimit allows max requests per window for each account (or client ip
// when unauthenticated). A redis failure lets the request through.
func RateLimit(limiter *throttle.Limiter, name string, max int64, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if id, ok := GetAccountID(c); ok {
			key = id.String()
		}

		allowed, err := limiter.Allow(c.Request.Context(), name+":"+key, max, window)
		if err == nil && !allowed {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			response.Error(c, http.StatusTooManyRequests, "too many requests", nil)
			return
		}
		c.Next()
	}
}
