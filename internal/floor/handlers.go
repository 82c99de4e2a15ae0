package floor

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tavolohq/tavolo/internal/billing"
	"github.com/tavolohq/tavolo/internal/pagination"
	"github.com/tavolohq/tavolo/internal/reqctx"
)

// LimitGuard checks plan limits before growth operations. Satisfied by
// the entitlement engine.
type LimitGuard interface {
	HasReachedLimit(ctx context.Context, tenantID, resource string, current ...int) (bool, error)
}

// Handler exposes the floor plan endpoints.
type Handler struct {
	service *Service
	limits  LimitGuard
}

func NewHandler(service *Service, limits LimitGuard) *Handler {
	return &Handler{service: service, limits: limits}
}

// RegisterRoutes mounts area and table routes on a tenant-scoped
// router group.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/areas", h.createArea)
	r.GET("/areas", h.listAreas)
	r.PATCH("/areas/:id", h.renameArea)
	r.DELETE("/areas/:id", h.deleteArea)

	r.POST("/tables", h.createTable)
	r.GET("/tables", h.listTables)
	r.GET("/tables/map", h.tableMap)
	r.PUT("/tables/positions", h.savePositions)
	r.GET("/tables/:id", h.getTable)
	r.PATCH("/tables/:id", h.updateTable)
	r.DELETE("/tables/:id", h.deleteTable)
	r.POST("/tables/:id/status", h.changeStatus)
	r.GET("/tables/:id/statistics", h.statistics)
	r.GET("/tables/:id/history", h.history)
}

type createAreaRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) createArea(c *gin.Context) {
	var req createAreaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	area, err := h.service.CreateArea(c.Request.Context(), reqctx.TenantID(c), req.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to create area"})
		return
	}
	c.JSON(http.StatusCreated, area)
}

func (h *Handler) listAreas(c *gin.Context) {
	includeInactive := c.Query("all") == "true"
	areas, err := h.service.ListAreas(c.Request.Context(), reqctx.TenantID(c), includeInactive)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to list areas"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"areas": areas, "count": len(areas)})
}

func (h *Handler) renameArea(c *gin.Context) {
	var req createAreaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	area, err := h.service.RenameArea(c.Request.Context(), reqctx.TenantID(c), c.Param("id"), req.Name)
	if err != nil {
		if errors.Is(err, ErrAreaNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "area not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to update area"})
		return
	}
	c.JSON(http.StatusOK, area)
}

func (h *Handler) deleteArea(c *gin.Context) {
	deleted, err := h.service.DeleteArea(c.Request.Context(), reqctx.TenantID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrAreaNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "area not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to delete area"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted, "deactivated": !deleted})
}

type createTableRequest struct {
	AreaID    string  `json:"areaId"`
	Number    int     `json:"number" binding:"required"`
	Name      string  `json:"name"`
	Capacity  int     `json:"capacity"`
	PositionX float64 `json:"positionX"`
	PositionY float64 `json:"positionY"`
}

func (h *Handler) createTable(c *gin.Context) {
	var req createTableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	ctx := c.Request.Context()
	tenantID := reqctx.TenantID(c)

	count, err := h.service.CountTables(ctx, tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to count tables"})
		return
	}
	reached, err := h.limits.HasReachedLimit(ctx, tenantID, billing.ResourceMaxTables, count)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "limit check failed"})
		return
	}
	if reached {
		c.JSON(http.StatusForbidden, gin.H{"error": "limit_reached", "message": "plan table limit reached"})
		return
	}

	table, err := h.service.CreateTable(ctx, tenantID, CreateTableInput{
		AreaID:    req.AreaID,
		Number:    req.Number,
		Name:      req.Name,
		Capacity:  req.Capacity,
		PositionX: req.PositionX,
		PositionY: req.PositionY,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateNumber) {
			c.JSON(http.StatusConflict, gin.H{"error": "duplicate_number", "message": "table number already in use"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to create table"})
		return
	}
	c.JSON(http.StatusCreated, table)
}

func (h *Handler) listTables(c *gin.Context) {
	tables, err := h.service.ListTables(c.Request.Context(), reqctx.TenantID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to list tables"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tables": tables, "count": len(tables)})
}

func (h *Handler) tableMap(c *gin.Context) {
	grouped, err := h.service.TableMap(c.Request.Context(), reqctx.TenantID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to build table map"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"areas": grouped})
}

func (h *Handler) getTable(c *gin.Context) {
	table, err := h.service.GetTable(c.Request.Context(), reqctx.TenantID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrTableNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "table not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to load table"})
		return
	}
	c.JSON(http.StatusOK, table)
}

type updateTableRequest struct {
	AreaID    *string  `json:"areaId"`
	Number    *int     `json:"number"`
	Name      *string  `json:"name"`
	Capacity  *int     `json:"capacity"`
	PositionX *float64 `json:"positionX"`
	PositionY *float64 `json:"positionY"`
}

func (h *Handler) updateTable(c *gin.Context) {
	var req updateTableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	table, err := h.service.UpdateTable(c.Request.Context(), reqctx.TenantID(c), c.Param("id"), TableUpdate{
		AreaID:    req.AreaID,
		Number:    req.Number,
		Name:      req.Name,
		Capacity:  req.Capacity,
		PositionX: req.PositionX,
		PositionY: req.PositionY,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrTableNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "table not found"})
		case errors.Is(err, ErrDuplicateNumber):
			c.JSON(http.StatusConflict, gin.H{"error": "duplicate_number", "message": "table number already in use"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to update table"})
		}
		return
	}
	c.JSON(http.StatusOK, table)
}

func (h *Handler) deleteTable(c *gin.Context) {
	err := h.service.DeleteTable(c.Request.Context(), reqctx.TenantID(c), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrTableNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "table not found"})
		case errors.Is(err, ErrTableOccupied):
			c.JSON(http.StatusConflict, gin.H{"error": "table_occupied", "message": "close the open seating before deleting"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to delete table"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

type changeStatusRequest struct {
	Status          string `json:"status" binding:"required"`
	Customers       int    `json:"customers"`
	OrderID         string `json:"orderId"`
	TotalSpentCents int64  `json:"totalSpentCents"`
}

func (h *Handler) changeStatus(c *gin.Context) {
	var req changeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	table, err := h.service.ChangeStatus(c.Request.Context(), reqctx.TenantID(c), c.Param("id"),
		TableStatus(req.Status), ChangeStatusInput{
			Customers:       req.Customers,
			OrderID:         req.OrderID,
			TotalSpentCents: req.TotalSpentCents,
		})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status", "message": "unknown table status"})
		case errors.Is(err, ErrTableNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "table not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to change status"})
		}
		return
	}
	c.JSON(http.StatusOK, table)
}

func (h *Handler) savePositions(c *gin.Context) {
	var req struct {
		Positions []PositionUpdate `json:"positions" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	updated, err := h.service.SavePositions(c.Request.Context(), reqctx.TenantID(c), req.Positions)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to save positions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated, "submitted": len(req.Positions)})
}

func (h *Handler) statistics(c *gin.Context) {
	windowDays, _ := strconv.Atoi(c.DefaultQuery("windowDays", "30"))
	stats, err := h.service.Statistics(c.Request.Context(), reqctx.TenantID(c), c.Param("id"), windowDays)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to compute statistics"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) history(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cursor", "message": "cursor is not valid"})
		return
	}
	entries, next, err := h.service.History(c.Request.Context(), reqctx.TenantID(c), c.Param("id"), cursor, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "failed to list history"})
		return
	}
	resp := gin.H{"history": entries, "count": len(entries)}
	if next != "" {
		resp["next_cursor"] = next
		resp["has_more"] = true
	}
	c.JSON(http.StatusOK, resp)
}
