package floor

import (
	"context"
	"errors"
	"time"

	"github.com/tavolohq/tavolo/internal/idgen"
	"github.com/tavolohq/tavolo/internal/logging"
	"github.com/tavolohq/tavolo/internal/metrics"
	"github.com/tavolohq/tavolo/internal/pagination"
	"github.com/tavolohq/tavolo/internal/syncutil"
)

// Service owns the table status state machine and the occupancy
// ledger. Status transitions for one table serialize on a sharded
// per-table lock; different tables never block each other.
type Service struct {
	store Store
	locks syncutil.ShardedMutex
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// CountTables reports the tenant's live table count, used for plan
// limit enforcement.
func (s *Service) CountTables(ctx context.Context, tenantID string) (int, error) {
	return s.store.CountTables(ctx, tenantID)
}

func (s *Service) CreateArea(ctx context.Context, tenantID, name string) (*Area, error) {
	now := time.Now().UTC()
	area := &Area{
		ID:        idgen.WithPrefix("area_"),
		TenantID:  tenantID,
		Name:      name,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateArea(ctx, area); err != nil {
		return nil, err
	}
	return area, nil
}

func (s *Service) GetArea(ctx context.Context, tenantID, id string) (*Area, error) {
	return s.store.GetArea(ctx, tenantID, id)
}

func (s *Service) ListAreas(ctx context.Context, tenantID string, includeInactive bool) ([]*Area, error) {
	return s.store.ListAreas(ctx, tenantID, includeInactive)
}

func (s *Service) RenameArea(ctx context.Context, tenantID, id, name string) (*Area, error) {
	area, err := s.store.GetArea(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	area.Name = name
	area.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateArea(ctx, area); err != nil {
		return nil, err
	}
	return area, nil
}

// DeleteArea removes an area. Areas still referenced by tables are
// deactivated instead: tables hold a weak reference and must survive
// the area going away.
func (s *Service) DeleteArea(ctx context.Context, tenantID, id string) (deleted bool, err error) {
	n, err := s.store.CountTablesInArea(ctx, tenantID, id)
	if err != nil {
		return false, err
	}
	if n > 0 {
		if err := s.store.DeactivateArea(ctx, tenantID, id); err != nil {
			return false, err
		}
		logging.L(ctx).Info("area deactivated, tables still reference it",
			"tenant_id", tenantID, "area_id", id, "tables", n)
		return false, nil
	}
	if err := s.store.DeleteArea(ctx, tenantID, id); err != nil {
		return false, err
	}
	return true, nil
}

// CreateTableInput is the caller-provided portion of a new table.
type CreateTableInput struct {
	AreaID    string
	Number    int
	Name      string
	Capacity  int
	PositionX float64
	PositionY float64
}

func (s *Service) CreateTable(ctx context.Context, tenantID string, in CreateTableInput) (*Table, error) {
	if in.Capacity <= 0 {
		in.Capacity = 4
	}
	now := time.Now().UTC()
	table := &Table{
		ID:        idgen.WithPrefix("tbl_"),
		TenantID:  tenantID,
		AreaID:    in.AreaID,
		Number:    in.Number,
		Name:      in.Name,
		Capacity:  in.Capacity,
		PositionX: in.PositionX,
		PositionY: in.PositionY,
		Status:    StatusAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateTable(ctx, table); err != nil {
		return nil, err
	}
	return table, nil
}

func (s *Service) GetTable(ctx context.Context, tenantID, id string) (*Table, error) {
	return s.store.GetTable(ctx, tenantID, id)
}

func (s *Service) ListTables(ctx context.Context, tenantID string) ([]*Table, error) {
	return s.store.ListTables(ctx, tenantID)
}

// TableMap returns the tenant's tables grouped by area for the floor
// plan view. Tables without an area land under the empty key.
func (s *Service) TableMap(ctx context.Context, tenantID string) (map[string][]*Table, error) {
	tables, err := s.store.ListTables(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]*Table)
	for _, t := range tables {
		grouped[t.AreaID] = append(grouped[t.AreaID], t)
	}
	return grouped, nil
}

func (s *Service) UpdateTable(ctx context.Context, tenantID, id string, upd TableUpdate) (*Table, error) {
	return s.store.UpdateTable(ctx, tenantID, id, upd)
}

// BindQRCode points a table at the QR token currently printed for it.
// Returns false without error when the table does not exist, so the
// issuer can distinguish a bad table id from a store failure.
func (s *Service) BindQRCode(ctx context.Context, tenantID, tableID, tokenID string) (bool, error) {
	_, err := s.store.UpdateTable(ctx, tenantID, tableID, TableUpdate{QRCodeID: &tokenID})
	if errors.Is(err, ErrTableNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UnbindQRCode clears a table's QR binding, but only while the table
// still points at tokenID. A table already rebound to a newer token
// keeps its binding.
func (s *Service) UnbindQRCode(ctx context.Context, tenantID, tableID, tokenID string) error {
	unlock := s.locks.Lock(tenantID + "/" + tableID)
	defer unlock()

	table, err := s.store.GetTable(ctx, tenantID, tableID)
	if errors.Is(err, ErrTableNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if table.QRCodeID != tokenID {
		return nil
	}
	empty := ""
	_, err = s.store.UpdateTable(ctx, tenantID, tableID, TableUpdate{QRCodeID: &empty})
	return err
}

// DeleteTable removes a table. Occupied tables cannot be deleted; the
// open seating must be closed first.
func (s *Service) DeleteTable(ctx context.Context, tenantID, id string) error {
	unlock := s.locks.Lock(tenantID + "/" + id)
	defer unlock()

	table, err := s.store.GetTable(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if table.Status == StatusOccupied {
		return ErrTableOccupied
	}
	return s.store.DeleteTable(ctx, tenantID, id)
}

// ChangeStatusInput carries the optional occupancy details of a status
// change: party size when a table opens, order and spend when it
// closes.
type ChangeStatusInput struct {
	Customers       int
	OrderID         string
	TotalSpentCents int64
}

// ChangeStatus moves a table through the status state machine.
// Entering occupied stamps occupied_since and opens a ledger record;
// leaving occupied clears it and closes the open record. Transitions
// among the non-occupied states touch only the status field.
func (s *Service) ChangeStatus(ctx context.Context, tenantID, id string, newStatus TableStatus, in ChangeStatusInput) (*Table, error) {
	if !ValidStatus(newStatus) {
		return nil, ErrInvalidStatus
	}

	unlock := s.locks.Lock(tenantID + "/" + id)
	defer unlock()

	table, err := s.store.GetTable(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	switch {
	case table.Status != StatusOccupied && newStatus == StatusOccupied:
		customers := in.Customers
		if customers <= 0 {
			customers = 1
		}
		rec := &OccupancyRecord{
			ID:          idgen.WithPrefix("occ_"),
			TenantID:    tenantID,
			TableID:     table.ID,
			TableNumber: table.Number,
			StartTime:   now,
			Customers:   customers,
		}
		if err := s.store.OpenOccupancy(ctx, rec); err != nil {
			return nil, err
		}
		if err := s.store.SetStatus(ctx, tenantID, id, newStatus, &now); err != nil {
			return nil, err
		}
		table.OccupiedSince = &now

	case table.Status == StatusOccupied && newStatus != StatusOccupied:
		closed, err := s.store.CloseOpenOccupancy(ctx, tenantID, id, now, in.OrderID, in.TotalSpentCents)
		if err != nil {
			return nil, err
		}
		if !closed {
			// Status said occupied but no open ledger row existed.
			// Heal the status anyway rather than wedging the table.
			logging.L(ctx).Warn("occupied table had no open occupancy record",
				"tenant_id", tenantID, "table_id", id)
		}
		if err := s.store.SetStatus(ctx, tenantID, id, newStatus, nil); err != nil {
			return nil, err
		}
		table.OccupiedSince = nil

	default:
		if err := s.store.SetStatus(ctx, tenantID, id, newStatus, table.OccupiedSince); err != nil {
			return nil, err
		}
	}

	table.Status = newStatus
	table.UpdatedAt = now
	metrics.TableTransitionsTotal.WithLabelValues(string(newStatus)).Inc()
	return table, nil
}

// SavePositions bulk-updates table coordinates. Entries for tables the
// tenant does not own are skipped rather than failing the batch; the
// returned count tells the caller how many rows actually moved.
func (s *Service) SavePositions(ctx context.Context, tenantID string, updates []PositionUpdate) (int, error) {
	updated := 0
	for _, u := range updates {
		ok, err := s.store.UpdatePosition(ctx, tenantID, u.TableID, u.PositionX, u.PositionY)
		if err != nil {
			return updated, err
		}
		if ok {
			updated++
		}
	}
	return updated, nil
}

// Statistics aggregates the table's closed seatings over the trailing
// windowDays. No closed seatings yields the zero struct.
func (s *Service) Statistics(ctx context.Context, tenantID, tableID string, windowDays int) (*Statistics, error) {
	if windowDays <= 0 {
		windowDays = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -windowDays)
	records, err := s.store.ClosedOccupancySince(ctx, tenantID, tableID, since)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{}
	if len(records) == 0 {
		return stats, nil
	}

	var totalMinutes float64
	var totalCustomers int
	for _, rec := range records {
		totalMinutes += rec.EndTime.Sub(rec.StartTime).Minutes()
		totalCustomers += rec.Customers
		stats.TotalSpentCents += rec.TotalSpentCents
		if rec.TotalSpentCents > stats.MaxSpentCents {
			stats.MaxSpentCents = rec.TotalSpentCents
		}
	}
	n := float64(len(records))
	stats.Seatings = len(records)
	stats.AvgDurationMinutes = totalMinutes / n
	stats.AvgSpentCents = float64(stats.TotalSpentCents) / n
	stats.AvgPartySize = float64(totalCustomers) / n
	return stats, nil
}

// HistoryEntry is an occupancy record decorated with its computed
// duration for display.
type HistoryEntry struct {
	*OccupancyRecord
	DurationMinutes float64 `json:"durationMinutes"`
	Open            bool    `json:"open"`
}

// History lists a table's seatings, newest first. The returned cursor
// is empty when no further pages exist.
func (s *Service) History(ctx context.Context, tenantID, tableID string, before *pagination.Cursor, limit int) ([]*HistoryEntry, string, error) {
	if limit <= 0 {
		limit = 50
	}
	records, err := s.store.ListOccupancy(ctx, tenantID, tableID, before, limit+1)
	if err != nil {
		return nil, "", err
	}
	records, next, _ := pagination.ComputePage(records, limit, func(rec *OccupancyRecord) (time.Time, string) {
		return rec.StartTime, rec.ID
	})
	out := make([]*HistoryEntry, 0, len(records))
	for _, rec := range records {
		entry := &HistoryEntry{OccupancyRecord: rec}
		if rec.EndTime != nil {
			entry.DurationMinutes = rec.EndTime.Sub(rec.StartTime).Minutes()
		} else {
			entry.Open = true
			entry.DurationMinutes = time.Since(rec.StartTime).Minutes()
		}
		out = append(out, entry)
	}
	return out, next, nil
}
