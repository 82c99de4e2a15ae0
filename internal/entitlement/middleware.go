package entitlement

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tavolohq/tavolo/internal/billing"
	"github.com/tavolohq/tavolo/internal/reqctx"
)

// RequireFeature rejects requests from tenants whose plan lacks the
// named feature. Mount after tenant resolution.
func RequireFeature(engine *Engine, feature string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := reqctx.TenantID(c)
		ok, err := engine.HasFeature(c.Request.Context(), tenantID, feature)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "internal", "message": "entitlement check failed"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "feature_not_available", "message": "upgrade your plan to use this feature", "feature": feature})
			return
		}
		c.Next()
	}
}

// RequireActiveSubscription rejects tenants without an active or trial
// subscription.
func RequireActiveSubscription(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := reqctx.TenantID(c)
		active, err := engine.IsActive(c.Request.Context(), tenantID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "internal", "message": "subscription check failed"})
			return
		}
		if !active {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error": "subscription_inactive", "message": "subscription is not active"})
			return
		}
		c.Next()
	}
}

// Handler exposes the tenant's entitlement summary.
type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/entitlements", h.getEntitlements)
}

func (h *Handler) getEntitlements(c *gin.Context) {
	ctx := c.Request.Context()
	tenantID := reqctx.TenantID(c)

	plan, err := h.engine.Plan(ctx, tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to resolve plan"})
		return
	}
	status, err := h.engine.SubscriptionStatus(ctx, tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to resolve subscription"})
		return
	}

	usage := make(map[string]int, len(plan.Limits))
	for resource := range plan.Limits {
		n, err := h.engine.CurrentUsage(ctx, tenantID, resource)
		if err != nil {
			continue
		}
		usage[resource] = n
	}

	c.JSON(http.StatusOK, gin.H{
		"plan":   plan,
		"status": status,
		"active": billing.Status(status).Entitled(),
		"usage":  usage,
	})
}
