// internal/handlers/payment/webhook_handler.go
package payment

import (
	"io"
	"net/http"

	"billing-service/internal/pkg/response"
	service "billing-service/internal/service/payment"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	reconciler *service.Reconciler
	logger     *zap.Logger
}

func NewWebhookHandler(reconciler *service.Reconciler, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		logger:     logger,
	}
}

// HandleWebhook receives a gateway callback. The body is read raw because the
// signature covers the exact bytes sent. Every processed delivery, including
// duplicates and unknown transactions, is answered 200 so gateways stop
// retrying.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	gateway := c.Param("gateway")

	header, err := h.reconciler.SignatureHeader(gateway)
	if err != nil {
		response.FromError(c, "unknown gateway", err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		response.ValidationError(c, "failed to read body", err)
		return
	}

	result, err := h.reconciler.HandleWebhook(c.Request.Context(), gateway, body, c.GetHeader(header))
	if err != nil {
		response.FromError(c, "webhook rejected", err)
		return
	}

	h.logger.Info("webhook processed",
		zap.String("gateway", gateway),
		zap.String("external_id", result.ExternalID),
		zap.String("outcome", string(result.Outcome)),
	)
	response.Success(c, http.StatusOK, "webhook received", result)
}
