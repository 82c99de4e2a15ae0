package qraccess

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tavolohq/tavolo/internal/reqctx"
)

// Handler exposes token issuance and the public scan endpoint.
type Handler struct {
	registry *Registry
}

func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// RegisterRoutes mounts the management routes on a tenant-scoped,
// authenticated group.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/qr/table/:tableId", h.issueTable)
	r.POST("/qr/menu", h.issueMenu)
	r.POST("/qr/payment/:orderId", h.issuePayment)
	r.GET("/qr", h.list)
	r.DELETE("/qr/:id", h.deactivate)
}

// RegisterPublicRoutes mounts the scan endpoint. It sits behind tenant
// resolution but requires no authentication: guests hit it from their
// phones.
func (h *Handler) RegisterPublicRoutes(r gin.IRouter) {
	r.GET("/scan/:code", h.scan)
}

type issueRequest struct {
	Payload map[string]any `json:"payload"`
	// TTLSeconds applies to payment tokens only.
	TTLSeconds int `json:"ttlSeconds"`
}

func (h *Handler) issueTable(c *gin.Context) {
	var req issueRequest
	_ = c.ShouldBindJSON(&req)
	token, err := h.registry.IssueTable(c.Request.Context(), reqctx.TenantID(c), c.Param("tableId"), req.Payload)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "table not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to issue code"})
		return
	}
	c.JSON(http.StatusCreated, issueResponse(token))
}

func (h *Handler) issueMenu(c *gin.Context) {
	var req issueRequest
	_ = c.ShouldBindJSON(&req)
	token, err := h.registry.IssueMenu(c.Request.Context(), reqctx.TenantID(c), req.Payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to issue code"})
		return
	}
	c.JSON(http.StatusCreated, issueResponse(token))
}

func (h *Handler) issuePayment(c *gin.Context) {
	var req issueRequest
	_ = c.ShouldBindJSON(&req)
	ttl := time.Duration(req.TTLSeconds) * time.Second
	token, err := h.registry.IssuePayment(c.Request.Context(), reqctx.TenantID(c), c.Param("orderId"), ttl, req.Payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to issue code"})
		return
	}
	c.JSON(http.StatusCreated, issueResponse(token))
}

// issueResponse includes the hash: it is embedded in the printed QR
// image alongside the code and this is the only place it leaves the
// server.
func issueResponse(token *Token) gin.H {
	return gin.H{
		"id":         token.ID,
		"type":       token.Type,
		"resourceId": token.ResourceID,
		"code":       token.Code,
		"hash":       token.Hash,
		"payload":    token.Payload,
	}
}

func (h *Handler) list(c *gin.Context) {
	typ := TokenType(c.DefaultQuery("type", string(TypeTable)))
	if !ValidType(typ) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_type", "message": "unknown token type"})
		return
	}
	tokens, err := h.registry.ListByType(c.Request.Context(), reqctx.TenantID(c), typ)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to list codes"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"codes": tokens, "count": len(tokens)})
}

func (h *Handler) deactivate(c *gin.Context) {
	err := h.registry.Deactivate(c.Request.Context(), reqctx.TenantID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "code not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to deactivate code"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deactivated": true})
}

// scan validates a presented code+hash and tells the caller what the
// code points at. Redirecting to the right page is the frontend's
// concern; we only expose type and resource.
func (h *Handler) scan(c *gin.Context) {
	hash := c.Query("h")
	expectedType := TokenType(c.Query("type"))
	if expectedType != "" && !ValidType(expectedType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_type", "message": "unknown token type"})
		return
	}

	token, err := h.registry.Validate(c.Request.Context(), reqctx.TenantID(c), c.Param("code"), hash, expectedType)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			c.JSON(http.StatusNotFound, gin.H{"error": "invalid_code", "message": "invalid or expired code"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "validation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":      true,
		"type":       token.Type,
		"resourceId": token.ResourceID,
		"payload":    token.Payload,
	})
}
