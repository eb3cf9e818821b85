// internal/app/router.go
package app

import (
	"net/http"
	"time"

	"billing-service/internal/domain/subscription"
	orphanHandler "billing-service/internal/handlers/orphan"
	paymentHandler "billing-service/internal/handlers/payment"
	pricingHandler "billing-service/internal/handlers/pricing"
	subscriptionHandler "billing-service/internal/handlers/subscription"
	"billing-service/internal/middleware"
	"billing-service/internal/pkg/throttle"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	PricingHandler      *pricingHandler.PricingHandler
	SubscriptionHandler *subscriptionHandler.SubscriptionHandler
	PaymentHandler      *paymentHandler.PaymentHandler
	WebhookHandler      *paymentHandler.WebhookHandler
	OrphanHandler       *orphanHandler.OrphanHandler
	AuthMiddleware      *middleware.AuthMiddleware
	AccessGuard         middleware.AccessGuard
	Limiter             *throttle.Limiter
	Metrics             http.Handler

	WebhookRateLimit  int64
	WebhookRateWindow time.Duration
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics))
	}

	// ==================== Pricing ====================
	api.POST("/pricing/quote", h.PricingHandler.Quote)

	// ==================== Subscription ====================
	subs := api.Group("/subscription")
	subs.Use(h.AuthMiddleware.Auth())
	{
		subs.GET("", h.SubscriptionHandler.GetSubscription)
		subs.POST("", h.SubscriptionHandler.Subscribe)
		subs.GET("/preview", h.SubscriptionHandler.Preview) // ?plan_type=monthly|yearly
		subs.PUT("/plan", h.SubscriptionHandler.ChangePlan)
		subs.POST("/sync-children", h.SubscriptionHandler.SyncChildren)
		subs.POST("/cancel", h.SubscriptionHandler.Cancel)

		subs.POST("/trial", h.SubscriptionHandler.StartTrial)
		subs.GET("/trial", h.SubscriptionHandler.TrialStatus)

		subs.GET("/access", h.SubscriptionHandler.CheckAccess) // ?feature=ai|read
	}

	// ==================== Usage ====================
	usage := api.Group("/usage")
	usage.Use(h.AuthMiddleware.Auth())
	{
		usage.POST("/ai", middleware.SubscriptionAccess(h.AccessGuard, subscription.FeatureAI), h.SubscriptionHandler.RecordAIUsage)
	}

	// ==================== Payments ====================
	// Gateways call this without a token; the body signature authenticates them.
	webhook := middleware.RateLimit(h.Limiter, "webhook", h.WebhookRateLimit, h.WebhookRateWindow)
	api.POST("/payments/webhooks/:gateway", webhook, h.WebhookHandler.HandleWebhook)

	payments := api.Group("/payments")
	payments.Use(h.AuthMiddleware.Auth())
	{
		payments.POST("", h.PaymentHandler.CreatePayment)
		payments.GET("", h.PaymentHandler.ListTransactions) // ?status=&limit=
		payments.GET("/:id", h.PaymentHandler.GetTransaction)
		payments.POST("/pkr", h.PaymentHandler.SubmitManual)
	}

	// ==================== Orphan Verification ====================
	orphans := api.Group("/orphan")
	orphans.Use(h.AuthMiddleware.Auth())
	{
		orphans.POST("/verifications", h.OrphanHandler.Submit)
		orphans.GET("/children/:child_id", h.OrphanHandler.ChildStatus)
	}

	// ==================== Admin ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.AdminOnly()...)
	{
		admin.GET("/orphan/verifications", h.OrphanHandler.ListPending)
		admin.PATCH("/orphan/verifications/:id", h.OrphanHandler.Review)
		admin.POST("/orphan/verifications/:id/revoke", h.OrphanHandler.Revoke)
		admin.GET("/orphan/verifications/:id/document", h.OrphanHandler.Document)

		admin.GET("/subscriptions", h.SubscriptionHandler.AdminList) // ?limit=
		admin.PATCH("/subscriptions/:account_id", h.SubscriptionHandler.AdminOverride)
		admin.POST("/subscriptions/:account_id/refund", h.PaymentHandler.Refund)

		admin.GET("/payments/pkr", h.PaymentHandler.ListManualPending) // ?limit=
		admin.PATCH("/payments/pkr/:id", h.PaymentHandler.ReviewManual)
		admin.GET("/payments/pkr/:id/receipt", h.PaymentHandler.ManualReceipt)
	}

	logger.Info("routes registered", zap.Int("count", len(r.Routes())))
}
