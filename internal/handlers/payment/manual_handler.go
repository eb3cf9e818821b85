// internal/handlers/payment/manual_handler.go
package payment

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"billing-service/internal/domain/payment"
	"billing-service/internal/middleware"
	"billing-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SubmitManual records a PKR transfer for operator review
func (h *PaymentHandler) SubmitManual(c *gin.Context) {
	accountID := middleware.MustGetAccountID(c)

	var req payment.ManualPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.paymentService.SubmitManual(c.Request.Context(), accountID, &req)
	if err != nil {
		response.FromError(c, "failed to submit payment", err)
		return
	}

	response.Success(c, http.StatusCreated, "payment submitted for verification", result)
}

func (h *PaymentHandler) ListManualPending(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	result, err := h.paymentService.ListManualPending(c.Request.Context(), limit)
	if err != nil {
		response.FromError(c, "failed to list payments", err)
		return
	}

	response.Success(c, http.StatusOK, "pending payments retrieved", result)
}

func (h *PaymentHandler) ReviewManual(c *gin.Context) {
	adminID := middleware.MustGetAccountID(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ValidationError(c, "invalid transaction ID", err)
		return
	}

	var req payment.ManualDecision
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.paymentService.ReviewManual(c.Request.Context(), adminID, id, &req)
	if err != nil {
		response.FromError(c, "failed to review payment", err)
		return
	}

	response.Success(c, http.StatusOK, "payment reviewed", result)
}

func (h *PaymentHandler) ManualReceipt(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ValidationError(c, "invalid transaction ID", err)
		return
	}

	data, mimeType, err := h.paymentService.ManualReceipt(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, "receipt not available", err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, mimeType, data)
}

// Refund cancels the subscription and records a refund; the body is optional
func (h *PaymentHandler) Refund(c *gin.Context) {
	adminID := middleware.MustGetAccountID(c)

	accountID, err := uuid.Parse(c.Param("account_id"))
	if err != nil {
		response.ValidationError(c, "invalid account ID", err)
		return
	}

	var req payment.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.paymentService.Refund(c.Request.Context(), adminID, accountID, req.Reason)
	if err != nil {
		response.FromError(c, "failed to refund subscription", err)
		return
	}

	response.Success(c, http.StatusCreated, "refund recorded", result)
}
