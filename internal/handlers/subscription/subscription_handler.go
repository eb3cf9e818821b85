// internal/handlers/subscription/subscription_handler.go
package subscription

import (
	"net/http"
	"strconv"

	"billing-service/internal/domain/pricing"
	"billing-service/internal/domain/subscription"
	"billing-service/internal/middleware"
	xerrors "billing-service/internal/pkg/errors"
	"billing-service/internal/pkg/response"
	service "billing-service/internal/service/subscription"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type SubscriptionHandler struct {
	subscriptionService *service.SubscriptionService
}

func NewSubscriptionHandler(subscriptionService *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
	}
}

// ========== Plan ==========

func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	accountID := middleware.MustGetAccountID(c)

	result, err := h.subscriptionService.Get(c.Request.Context(), accountID)
	if err != nil {
		response.FromError(c, "subscription not found", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription retrieved", result)
}

// Preview prices the plan for the account's current family, ?plan_type=monthly|yearly
func (h *SubscriptionHandler) Preview(c *gin.Context) {
	accountID := middleware.MustGetAccountID(c)

	planType := pricing.PlanType(c.DefaultQuery("plan_type", string(pricing.PlanMonthly)))
	if !planType.Valid() {
		response.ValidationError(c, "invalid plan_type", nil)
		return
	}

	result, err := h.subscriptionService.Preview(c.Request.Context(), accountID, planType)
	if err != nil {
		response.FromError(c, "failed to preview pricing", err)
		return
	}

	response.Success(c, http.StatusOK, "pricing preview", result)
}

func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	accountID := middleware.MustGetAccountID(c)

	var req subscription.PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.subscriptionService.Subscribe(c.Request.Context(), accountID, req.PlanType)
	if err != nil {
		response.FromError(c, "failed to create subscription", err)
		return
	}

	response.Success(c, http.StatusCreated, "subscription created", result)
}

func (h *SubscriptionHandler) ChangePlan(c *gin.Context) {
	accountID := middleware.MustGetAccountID(c)

	var req subscription.PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.subscriptionService.ChangePlan(c.Request.Context(), accountID, req.PlanType)
	if err != nil {
		response.FromError(c, "failed to change plan", err)
		return
	}

	response.Success(c, http.StatusOK, "plan updated", result)
}

func (h *SubscriptionHandler) SyncChildren(c *gin.Context) {
	accountID := middleware.MustGetAccountID(c)

	result, err := h.subscriptionService.SyncChildCount(c.Request.Context(), accountID)
	if err != nil {
		response.FromError(c, "failed to sync child count", err)
		return
	}

	response.Success(c, http.StatusOK, "child count synced", result)
}

func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	accountID := middleware.MustGetAccountID(c)

	result, err := h.subscriptionService.Cancel(c.Request.Context(), accountID)
	if err != nil {
		response.FromError(c, "failed to cancel subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription cancelled", result)
}

// ========== Trial ==========

func (h *SubscriptionHandler) StartTrial(c *gin.Context) {
	accountID := middleware.MustGetAccountID(c)

	result, err := h.subscriptionService.StartTrial(c.Request.Context(), accountID)
	if err != nil {
		response.FromError(c, "failed to start trial", err)
		return
	}

	response.Success(c, http.StatusCreated, "trial started", result)
}

func (h *SubscriptionHandler) TrialStatus(c *gin.Context) {
	accountID := middleware.MustGetAccountID(c)

	result, err := h.subscriptionService.TrialStatus(c.Request.Context(), accountID)
	if err != nil {
		response.FromError(c, "failed to read trial status", err)
		return
	}

	response.Success(c, http.StatusOK, "trial status", result)
}

// ========== Access ==========

// CheckAccess answers whether the caller may use ?feature=ai|read right now.
// Denials are returned as their guard status so clients can branch on the code.
func (h *SubscriptionHandler) CheckAccess(c *gin.Context) {
	accountID := middleware.MustGetAccountID(c)

	feature := subscription.Feature(c.DefaultQuery("feature", string(subscription.FeatureRead)))
	if !feature.Valid() {
		response.ValidationError(c, "invalid feature", nil)
		return
	}

	sub, err := h.subscriptionService.EnforceAccess(c.Request.Context(), accountID, feature)
	if err != nil {
		response.FromError(c, "access denied", err, subscription.AccessResult{Feature: feature})
		return
	}

	response.Success(c, http.StatusOK, "access granted", subscription.AccessResult{
		Allowed:      true,
		Feature:      feature,
		Subscription: sub,
	})
}

// RecordAIUsage logs one AI call. Routed behind SubscriptionAccess(ai).
func (h *SubscriptionHandler) RecordAIUsage(c *gin.Context) {
	accountID := middleware.MustGetAccountID(c)

	var req subscription.RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	var childID *uuid.UUID
	if req.ChildID != "" {
		id, err := uuid.Parse(req.ChildID)
		if err != nil {
			response.FromError(c, "invalid child id", xerrors.Tag(xerrors.KindValidation, err, "invalid child id"))
			return
		}
		childID = &id
	}

	if err := h.subscriptionService.RecordAIUsage(c.Request.Context(), accountID, req.Kind, childID); err != nil {
		response.FromError(c, "failed to record usage", err)
		return
	}

	response.Success(c, http.StatusCreated, "usage recorded", nil)
}

// ========== Admin ==========

func (h *SubscriptionHandler) AdminList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	result, err := h.subscriptionService.ListAll(c.Request.Context(), limit)
	if err != nil {
		response.FromError(c, "failed to list subscriptions", err)
		return
	}

	response.Success(c, http.StatusOK, "subscriptions retrieved", result)
}

func (h *SubscriptionHandler) AdminOverride(c *gin.Context) {
	adminID := middleware.MustGetAccountID(c)

	accountID, err := uuid.Parse(c.Param("account_id"))
	if err != nil {
		response.ValidationError(c, "invalid account ID", err)
		return
	}

	var req subscription.OverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.subscriptionService.Override(c.Request.Context(), adminID, accountID, &req)
	if err != nil {
		response.FromError(c, "failed to override subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription updated", result)
}
