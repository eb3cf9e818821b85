// internal/handlers/pricing/pricing_handler.go
package pricing

import (
	"net/http"

	"billing-service/internal/domain/pricing"
	xerrors "billing-service/internal/pkg/errors"
	"billing-service/internal/pkg/response"
	service "billing-service/internal/service/pricing"

	"github.com/gin-gonic/gin"
)

type PricingHandler struct {
	pricingService *service.PricingService
}

func NewPricingHandler(pricingService *service.PricingService) *PricingHandler {
	return &PricingHandler{
		pricingService: pricingService,
	}
}

// Quote prices a family size without touching any subscription
func (h *PricingHandler) Quote(c *gin.Context) {
	var req pricing.QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	currency, ok := pricing.ParseCurrency(req.Currency)
	if !ok {
		response.FromError(c, "failed to build quote", xerrors.ErrUnsupportedCurrency)
		return
	}

	result, err := h.pricingService.BuildPricing(req.ChildCount, req.PlanType, currency)
	if err != nil {
		response.FromError(c, "failed to build quote", err)
		return
	}

	response.Success(c, http.StatusOK, "pricing calculated", result)
}
