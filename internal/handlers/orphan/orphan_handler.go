// internal/handlers/orphan/orphan_handler.go
package orphan

import (
	"net/http"
	"strconv"

	"billing-service/internal/domain/orphan"
	"billing-service/internal/middleware"
	"billing-service/internal/pkg/response"
	service "billing-service/internal/service/orphan"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type OrphanHandler struct {
	orphanService *service.OrphanService
}

func NewOrphanHandler(orphanService *service.OrphanService) *OrphanHandler {
	return &OrphanHandler{
		orphanService: orphanService,
	}
}

// ========== Guardian Endpoints ==========

// Submit uploads a base64 document for one of the caller's children
func (h *OrphanHandler) Submit(c *gin.Context) {
	accountID := middleware.MustGetAccountID(c)

	var req orphan.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.orphanService.Submit(c.Request.Context(), accountID, &req)
	if err != nil {
		response.FromError(c, "failed to submit verification", err)
		return
	}

	response.Success(c, http.StatusCreated, "verification submitted", result)
}

func (h *OrphanHandler) ChildStatus(c *gin.Context) {
	accountID := middleware.MustGetAccountID(c)

	childID, err := uuid.Parse(c.Param("child_id"))
	if err != nil {
		response.ValidationError(c, "invalid child ID", err)
		return
	}

	result, err := h.orphanService.Status(c.Request.Context(), accountID, childID, middleware.IsAdmin(c))
	if err != nil {
		response.FromError(c, "failed to get verification status", err)
		return
	}

	response.Success(c, http.StatusOK, "verification status", result)
}

// ========== Admin Endpoints ==========

func (h *OrphanHandler) ListPending(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	result, err := h.orphanService.ListPending(c.Request.Context(), limit)
	if err != nil {
		response.FromError(c, "failed to list verifications", err)
		return
	}

	response.Success(c, http.StatusOK, "pending verifications", result)
}

func (h *OrphanHandler) Review(c *gin.Context) {
	adminID := middleware.MustGetAccountID(c)

	id, ok := verificationID(c)
	if !ok {
		return
	}

	var req orphan.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.orphanService.Review(c.Request.Context(), adminID, id, &req)
	if err != nil {
		response.FromError(c, "failed to review verification", err)
		return
	}

	response.Success(c, http.StatusOK, "verification reviewed", result)
}

func (h *OrphanHandler) Revoke(c *gin.Context) {
	adminID := middleware.MustGetAccountID(c)

	id, ok := verificationID(c)
	if !ok {
		return
	}

	var req orphan.RevokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.orphanService.Revoke(c.Request.Context(), adminID, id, req.Reason)
	if err != nil {
		response.FromError(c, "failed to revoke verification", err)
		return
	}

	response.Success(c, http.StatusOK, "orphan override revoked", result)
}

// Document streams the uploaded file to the reviewer
func (h *OrphanHandler) Document(c *gin.Context) {
	id, ok := verificationID(c)
	if !ok {
		return
	}

	data, mimeType, err := h.orphanService.Document(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, "document not available", err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, mimeType, data)
}

func verificationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ValidationError(c, "invalid verification ID", err)
		return 0, false
	}
	return id, true
}
