package billing

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tavolohq/tavolo/internal/reqctx"
)

// Handler exposes the tenant-facing subscription endpoints.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the subscription routes on a tenant-scoped
// router group.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/subscription", h.getSubscription)
	r.POST("/subscription/plan", h.changePlan)
	r.GET("/subscription/payments", h.listPayments)
	r.GET("/plans", h.listPlans)
}

func (h *Handler) getSubscription(c *gin.Context) {
	tenantID := reqctx.TenantID(c)
	sub, err := h.service.Subscription(c.Request.Context(), tenantID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "no subscription for this tenant"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to load subscription"})
		return
	}
	resp := gin.H{"subscription": sub}
	if plan, err := PlanByCode(sub.PlanCode); err == nil {
		resp["plan"] = plan
	}
	c.JSON(http.StatusOK, resp)
}

type changePlanRequest struct {
	PlanCode string `json:"planCode" binding:"required"`
}

func (h *Handler) changePlan(c *gin.Context) {
	var req changePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	tenantID := reqctx.TenantID(c)
	sub, upgrade, err := h.service.ChangePlan(c.Request.Context(), tenantID, req.PlanCode)
	if err != nil {
		switch {
		case errors.Is(err, ErrPlanNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_plan", "message": "plan code not recognized"})
		case errors.Is(err, ErrSubscriptionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "no subscription for this tenant"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to change plan"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub, "upgrade": upgrade})
}

func (h *Handler) listPayments(c *gin.Context) {
	tenantID := reqctx.TenantID(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	payments, err := h.service.Payments(c.Request.Context(), tenantID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to list payments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments, "count": len(payments)})
}

func (h *Handler) listPlans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plans": Plans})
}
