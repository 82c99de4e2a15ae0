package tenant

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tavolohq/tavolo/internal/idgen"
	"github.com/tavolohq/tavolo/internal/logging"
	"github.com/tavolohq/tavolo/internal/validation"
)

// SubscriptionStarter creates the initial trial subscription during
// onboarding. Implemented by the billing service.
type SubscriptionStarter interface {
	StartTrial(ctx context.Context, tenantID string) error
}

// Handler provides HTTP endpoints for tenant management.
type Handler struct {
	store     Store
	directory *Directory
	billing   SubscriptionStarter
}

// NewHandler creates a new tenant handler. billing may be nil in tests.
func NewHandler(store Store, directory *Directory, billing SubscriptionStarter) *Handler {
	return &Handler{store: store, directory: directory, billing: billing}
}

// RegisterAdminRoutes sets up admin-only tenant management routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/tenants", h.CreateTenant)
	r.GET("/tenants", h.ListTenants)
	r.GET("/tenants/:id", h.GetTenant)
	r.PATCH("/tenants/:id", h.UpdateTenant)
	r.POST("/tenants/:id/active", h.SetActive)
	r.DELETE("/tenants/:id", h.DeleteTenant)
}

// CreateTenant handles POST /admin/tenants — restaurant onboarding.
func (h *Handler) CreateTenant(c *gin.Context) {
	var req struct {
		Name           string `json:"name" binding:"required"`
		Slug           string `json:"slug"`
		Domain         string `json:"domain"`
		RestaurantType string `json:"restaurantType" binding:"required"`
		Email          string `json:"email" binding:"required,email"`
		Phone          string `json:"phone"`
		ThemeColor     string `json:"themeColor"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "name, restaurantType and email required"})
		return
	}

	if !ValidRestaurantType(RestaurantType(req.RestaurantType)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_restaurant_type", "message": "unknown restaurant type"})
		return
	}

	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if slug == "" {
		slug = validation.Slugify(req.Name)
	}
	if !validation.IsValidSlug(slug) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_slug",
			"message": "slug must be 3-64 lowercase alphanumeric/hyphens, start/end with alphanumeric",
		})
		return
	}

	themeColor := req.ThemeColor
	if themeColor == "" {
		themeColor = "#3498db"
	}

	now := time.Now()
	t := &Tenant{
		ID:             idgen.WithPrefix("ten_"),
		Name:           validation.SanitizeString(req.Name, 200),
		Slug:           slug,
		Domain:         strings.ToLower(strings.TrimSpace(req.Domain)),
		RestaurantType: RestaurantType(req.RestaurantType),
		Email:          strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:          validation.SanitizeString(req.Phone, 30),
		ThemeColor:     themeColor,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := h.store.Create(c.Request.Context(), t); err != nil {
		switch err {
		case ErrSlugTaken:
			c.JSON(http.StatusConflict, gin.H{"error": "slug_taken", "message": "slug already in use"})
		case ErrDomainTaken:
			c.JSON(http.StatusConflict, gin.H{"error": "domain_taken", "message": "domain already in use"})
		default:
			logging.L(c.Request.Context()).Error("create tenant failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to create tenant"})
		}
		return
	}

	// Grant the onboarding trial subscription.
	if h.billing != nil {
		if err := h.billing.StartTrial(c.Request.Context(), t.ID); err != nil {
			logging.L(c.Request.Context()).Error("trial subscription failed", "tenant", t.ID, "error", err)
			c.JSON(http.StatusCreated, gin.H{
				"tenant":  t,
				"warning": "Tenant created but trial subscription could not be started.",
			})
			return
		}
	}

	c.JSON(http.StatusCreated, gin.H{"tenant": t})
}

// GetTenant handles GET /admin/tenants/:id
func (h *Handler) GetTenant(c *gin.Context) {
	t, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if err == ErrTenantNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "tenant not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to load tenant"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenant": t})
}

// ListTenants handles GET /admin/tenants
func (h *Handler) ListTenants(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	tenants, err := h.store.List(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to list tenants"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tenants": tenants, "count": len(tenants)})
}

// UpdateTenant handles PATCH /admin/tenants/:id
func (h *Handler) UpdateTenant(c *gin.Context) {
	t, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if err == ErrTenantNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "tenant not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to load tenant"})
		return
	}

	var req struct {
		Name       *string `json:"name"`
		Domain     *string `json:"domain"`
		Email      *string `json:"email"`
		Phone      *string `json:"phone"`
		ThemeColor *string `json:"themeColor"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "malformed body"})
		return
	}

	if req.Name != nil && *req.Name != t.Name {
		t.Name = validation.SanitizeString(*req.Name, 200)
		// Renaming re-derives the slug, mirroring the onboarding flow.
		t.Slug = validation.Slugify(t.Name)
	}
	if req.Domain != nil {
		t.Domain = strings.ToLower(strings.TrimSpace(*req.Domain))
	}
	if req.Email != nil {
		t.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Phone != nil {
		t.Phone = validation.SanitizeString(*req.Phone, 30)
	}
	if req.ThemeColor != nil {
		t.ThemeColor = *req.ThemeColor
	}
	t.UpdatedAt = time.Now()

	if err := h.store.Update(c.Request.Context(), t); err != nil {
		switch err {
		case ErrSlugTaken:
			c.JSON(http.StatusConflict, gin.H{"error": "slug_taken", "message": "slug already in use"})
		case ErrDomainTaken:
			c.JSON(http.StatusConflict, gin.H{"error": "domain_taken", "message": "domain already in use"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to update tenant"})
		}
		return
	}

	// Slug/domain bindings may have changed.
	if h.directory != nil {
		h.directory.ClearCache()
	}

	c.JSON(http.StatusOK, gin.H{"tenant": t})
}

// SetActive handles POST /admin/tenants/:id/active
func (h *Handler) SetActive(c *gin.Context) {
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "active required"})
		return
	}

	if err := h.store.SetActive(c.Request.Context(), c.Param("id"), *req.Active); err != nil {
		if err == ErrTenantNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "tenant not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to update tenant"})
		return
	}

	if h.directory != nil {
		h.directory.ClearCache()
	}

	c.JSON(http.StatusOK, gin.H{"active": *req.Active})
}

// DeleteTenant handles DELETE /admin/tenants/:id
func (h *Handler) DeleteTenant(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		if err == ErrTenantNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "tenant not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "failed to delete tenant"})
		return
	}

	if h.directory != nil {
		h.directory.ClearCache()
	}

	c.Status(http.StatusNoContent)
}
