// Package floor manages the restaurant floor plan: areas, tables, the
// table status state machine and the occupancy ledger.
package floor

import (
	"errors"
	"time"
)

var (
	ErrAreaNotFound    = errors.New("floor: area not found")
	ErrTableNotFound   = errors.New("floor: table not found")
	ErrDuplicateNumber = errors.New("floor: table number already in use")
	ErrInvalidStatus   = errors.New("floor: invalid table status")
	ErrTableOccupied   = errors.New("floor: table is occupied")
)

// TableStatus is a table's lifecycle state.
type TableStatus string

const (
	StatusAvailable TableStatus = "available"
	StatusOccupied  TableStatus = "occupied"
	StatusReserved  TableStatus = "reserved"
	StatusCleaning  TableStatus = "cleaning"
	StatusInactive  TableStatus = "inactive"
)

// ValidStatus reports whether s is a member of the status enum.
func ValidStatus(s TableStatus) bool {
	switch s {
	case StatusAvailable, StatusOccupied, StatusReserved, StatusCleaning, StatusInactive:
		return true
	}
	return false
}

// Area is a named region of the floor plan. Areas referenced by tables
// are deactivated rather than deleted.
type Area struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Table is a physical table. Number is unique within a tenant.
// OccupiedSince is set exactly when Status is occupied.
type Table struct {
	ID            string      `json:"id"`
	TenantID      string      `json:"tenantId"`
	AreaID        string      `json:"areaId,omitempty"`
	Number        int         `json:"number"`
	Name          string      `json:"name,omitempty"`
	Capacity      int         `json:"capacity"`
	PositionX     float64     `json:"positionX"`
	PositionY     float64     `json:"positionY"`
	Status        TableStatus `json:"status"`
	OccupiedSince *time.Time  `json:"occupiedSince,omitempty"`
	QRCodeID      string      `json:"qrCodeId,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

// OccupancyRecord is one seating on a table. EndTime nil means the
// seating is still open; at most one open record exists per table.
// TableNumber is a snapshot taken at open time so history stays
// readable after the table itself is deleted.
type OccupancyRecord struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenantId"`
	TableID         string     `json:"tableId"`
	TableNumber     int        `json:"tableNumber"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	OrderID         string     `json:"orderId,omitempty"`
	TotalSpentCents int64      `json:"totalSpentCents"`
	Customers       int        `json:"customers"`
}

// TableUpdate carries a partial table edit. Nil fields are left
// untouched. Status is not editable here; it only moves through
// Service.ChangeStatus.
type TableUpdate struct {
	AreaID    *string
	Number    *int
	Name      *string
	Capacity  *int
	PositionX *float64
	PositionY *float64
	QRCodeID  *string
}

// Statistics aggregates a table's closed occupancy records over a
// trailing window. A table with no closed records yields the zero
// value, never nil.
type Statistics struct {
	Seatings           int     `json:"seatings"`
	AvgDurationMinutes float64 `json:"avgDurationMinutes"`
	AvgSpentCents      float64 `json:"avgSpentCents"`
	TotalSpentCents    int64   `json:"totalSpentCents"`
	MaxSpentCents      int64   `json:"maxSpentCents"`
	AvgPartySize       float64 `json:"avgPartySize"`
}

// PositionUpdate is one entry of a bulk layout save.
type PositionUpdate struct {
	TableID   string  `json:"tableId" binding:"required"`
	PositionX float64 `json:"positionX"`
	PositionY float64 `json:"positionY"`
}
