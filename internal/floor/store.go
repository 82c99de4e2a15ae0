package floor

import (
	"context"
	"time"

	"github.com/tavolohq/tavolo/internal/pagination"
)

// Store persists areas, tables and occupancy records. Every call takes
// the tenant id; there is no cross-tenant read path.
type Store interface {
	CreateArea(ctx context.Context, area *Area) error
	GetArea(ctx context.Context, tenantID, id string) (*Area, error)
	ListAreas(ctx context.Context, tenantID string, includeInactive bool) ([]*Area, error)
	UpdateArea(ctx context.Context, area *Area) error
	// DeactivateArea soft-deletes an area that tables still reference.
	DeactivateArea(ctx context.Context, tenantID, id string) error
	DeleteArea(ctx context.Context, tenantID, id string) error
	CountTablesInArea(ctx context.Context, tenantID, areaID string) (int, error)

	// CreateTable returns ErrDuplicateNumber when the tenant already
	// has a table with the same number. Implementations enforce this
	// with a storage-level uniqueness constraint, not a pre-check.
	CreateTable(ctx context.Context, table *Table) error
	GetTable(ctx context.Context, tenantID, id string) (*Table, error)
	ListTables(ctx context.Context, tenantID string) ([]*Table, error)
	UpdateTable(ctx context.Context, tenantID, id string, upd TableUpdate) (*Table, error)
	// SetStatus writes status and occupied_since together.
	SetStatus(ctx context.Context, tenantID, id string, status TableStatus, occupiedSince *time.Time) error
	DeleteTable(ctx context.Context, tenantID, id string) error
	CountTables(ctx context.Context, tenantID string) (int, error)
	// UpdatePosition moves one table, reporting whether a row matched.
	UpdatePosition(ctx context.Context, tenantID, id string, x, y float64) (bool, error)

	OpenOccupancy(ctx context.Context, rec *OccupancyRecord) error
	// CloseOpenOccupancy closes the table's open record if one exists,
	// as a single conditional update so concurrent closers cannot both
	// claim it. Reports whether a record was closed.
	CloseOpenOccupancy(ctx context.Context, tenantID, tableID string, end time.Time, orderID string, totalSpentCents int64) (bool, error)
	ListOccupancy(ctx context.Context, tenantID, tableID string, before *pagination.Cursor, limit int) ([]*OccupancyRecord, error)
	// ClosedOccupancySince returns closed records whose start time is
	// within the window.
	ClosedOccupancySince(ctx context.Context, tenantID, tableID string, since time.Time) ([]*OccupancyRecord, error)
}
