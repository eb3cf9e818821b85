// internal/middleware/recovery_middleware.go
package middleware

import (
	"fmt"

	xerrors "billing-service/internal/pkg/errors"
	"billing-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RecoveryMiddleware turns a handler panic into a 500 envelope and logs the
// stack with the caller's account when known.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			fields := []zap.Field{
				zap.String("panic", fmt.Sprint(rec)),
				zap.String("method", c.Request.Method),
				zap.String("route", c.FullPath()),
				zap.Stack("stack"),
			}
			if id, ok := GetAccountID(c); ok {
				fields = append(fields, zap.String("account_id", id.String()))
			}
			logger.Error("panic recovered", fields...)

			response.FromError(c, "internal server error", xerrors.ErrInternal)
		}()
		c.Next()
	}
}
