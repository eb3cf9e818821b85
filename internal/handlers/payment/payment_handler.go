// internal/handlers/payment/payment_handler.go
package payment

import (
	"net/http"
	"strconv"

	"billing-service/internal/domain/payment"
	"billing-service/internal/middleware"
	"billing-service/internal/pkg/response"
	service "billing-service/internal/service/payment"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	paymentService *service.PaymentService
}

func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// CreatePayment starts a checkout with the resolved gateway
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	accountID := middleware.MustGetAccountID(c)

	var req payment.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.paymentService.CreatePayment(c.Request.Context(), &payment.CreatePaymentParams{
		AccountID:            accountID,
		CreatePaymentRequest: req,
	})
	if err != nil {
		response.FromError(c, "failed to create payment", err)
		return
	}

	response.Success(c, http.StatusCreated, "payment created", result)
}

func (h *PaymentHandler) GetTransaction(c *gin.Context) {
	accountID := middleware.MustGetAccountID(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ValidationError(c, "invalid transaction ID", err)
		return
	}

	result, err := h.paymentService.GetTransaction(c.Request.Context(), accountID, id)
	if err != nil {
		response.FromError(c, "transaction not found", err)
		return
	}

	response.Success(c, http.StatusOK, "transaction retrieved", result)
}

// ListTransactions supports ?status=pending|succeeded|failed&limit=N
func (h *PaymentHandler) ListTransactions(c *gin.Context) {
	accountID := middleware.MustGetAccountID(c)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	result, err := h.paymentService.ListTransactions(c.Request.Context(), accountID, c.Query("status"), limit)
	if err != nil {
		response.FromError(c, "failed to list transactions", err)
		return
	}

	response.Success(c, http.StatusOK, "transactions retrieved", result)
}
