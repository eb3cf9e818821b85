// internal/domain/pricing/dto.go
package pricing

type QuoteRequest struct {
	ChildCount int      `json:"child_count"`
	PlanType   PlanType `json:"plan_type" binding:"required,oneof=monthly yearly"`
	Currency   string   `json:"currency" binding:"required,len=3"`
}
