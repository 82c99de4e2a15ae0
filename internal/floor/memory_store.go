package floor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tavolohq/tavolo/internal/pagination"
)

// MemoryStore is an in-memory floor store for demo/development.
type MemoryStore struct {
	mu      sync.RWMutex
	areas   map[string]*Area            // by ID
	tables  map[string]*Table           // by ID
	numbers map[string]string           // tenantID#number -> table ID
	records map[string]*OccupancyRecord // by ID
	order   []string                    // record IDs in insertion order
}

// NewMemoryStore creates a new in-memory floor store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		areas:   make(map[string]*Area),
		tables:  make(map[string]*Table),
		numbers: make(map[string]string),
		records: make(map[string]*OccupancyRecord),
	}
}

func numberKey(tenantID string, number int) string {
	return fmt.Sprintf("%s#%d", tenantID, number)
}

func (m *MemoryStore) CreateArea(_ context.Context, area *Area) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *area
	m.areas[area.ID] = &cp
	return nil
}

func (m *MemoryStore) GetArea(_ context.Context, tenantID, id string) (*Area, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.areas[id]
	if !ok || a.TenantID != tenantID {
		return nil, ErrAreaNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) ListAreas(_ context.Context, tenantID string, includeInactive bool) ([]*Area, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Area
	for _, a := range m.areas {
		if a.TenantID != tenantID {
			continue
		}
		if !includeInactive && !a.Active {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) UpdateArea(_ context.Context, area *Area) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.areas[area.ID]
	if !ok || existing.TenantID != area.TenantID {
		return ErrAreaNotFound
	}
	cp := *area
	m.areas[area.ID] = &cp
	return nil
}

func (m *MemoryStore) DeactivateArea(_ context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.areas[id]
	if !ok || a.TenantID != tenantID {
		return ErrAreaNotFound
	}
	a.Active = false
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) DeleteArea(_ context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.areas[id]
	if !ok || a.TenantID != tenantID {
		return ErrAreaNotFound
	}
	delete(m.areas, id)
	return nil
}

func (m *MemoryStore) CountTablesInArea(_ context.Context, tenantID, areaID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, t := range m.tables {
		if t.TenantID == tenantID && t.AreaID == areaID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CreateTable(_ context.Context, table *Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := numberKey(table.TenantID, table.Number)
	if _, taken := m.numbers[key]; taken {
		return ErrDuplicateNumber
	}
	cp := *table
	m.tables[table.ID] = &cp
	m.numbers[key] = table.ID
	return nil
}

func (m *MemoryStore) GetTable(_ context.Context, tenantID, id string) (*Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.getTableLocked(tenantID, id)
}

func (m *MemoryStore) getTableLocked(tenantID, id string) (*Table, error) {
	t, ok := m.tables[id]
	if !ok || t.TenantID != tenantID {
		return nil, ErrTableNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) ListTables(_ context.Context, tenantID string) ([]*Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Table
	for _, t := range m.tables {
		if t.TenantID != tenantID {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *MemoryStore) UpdateTable(_ context.Context, tenantID, id string, upd TableUpdate) (*Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[id]
	if !ok || t.TenantID != tenantID {
		return nil, ErrTableNotFound
	}

	if upd.Number != nil && *upd.Number != t.Number {
		newKey := numberKey(tenantID, *upd.Number)
		if _, taken := m.numbers[newKey]; taken {
			return nil, ErrDuplicateNumber
		}
		delete(m.numbers, numberKey(tenantID, t.Number))
		m.numbers[newKey] = id
		t.Number = *upd.Number
	}
	if upd.AreaID != nil {
		t.AreaID = *upd.AreaID
	}
	if upd.Name != nil {
		t.Name = *upd.Name
	}
	if upd.Capacity != nil {
		t.Capacity = *upd.Capacity
	}
	if upd.PositionX != nil {
		t.PositionX = *upd.PositionX
	}
	if upd.PositionY != nil {
		t.PositionY = *upd.PositionY
	}
	if upd.QRCodeID != nil {
		t.QRCodeID = *upd.QRCodeID
	}
	t.UpdatedAt = time.Now().UTC()

	cp := *t
	return &cp, nil
}

func (m *MemoryStore) SetStatus(_ context.Context, tenantID, id string, status TableStatus, occupiedSince *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[id]
	if !ok || t.TenantID != tenantID {
		return ErrTableNotFound
	}
	t.Status = status
	t.OccupiedSince = occupiedSince
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) DeleteTable(_ context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[id]
	if !ok || t.TenantID != tenantID {
		return ErrTableNotFound
	}
	delete(m.numbers, numberKey(tenantID, t.Number))
	delete(m.tables, id)
	return nil
}

func (m *MemoryStore) CountTables(_ context.Context, tenantID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, t := range m.tables {
		if t.TenantID == tenantID {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) UpdatePosition(_ context.Context, tenantID, id string, x, y float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[id]
	if !ok || t.TenantID != tenantID {
		return false, nil
	}
	t.PositionX = x
	t.PositionY = y
	t.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *MemoryStore) OpenOccupancy(_ context.Context, rec *OccupancyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rec
	m.records[rec.ID] = &cp
	m.order = append(m.order, rec.ID)
	return nil
}

func (m *MemoryStore) CloseOpenOccupancy(_ context.Context, tenantID, tableID string, end time.Time, orderID string, totalSpentCents int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Newest open record wins; there should only ever be one.
	for i := len(m.order) - 1; i >= 0; i-- {
		rec := m.records[m.order[i]]
		if rec.TenantID != tenantID || rec.TableID != tableID || rec.EndTime != nil {
			continue
		}
		endCp := end
		rec.EndTime = &endCp
		if orderID != "" {
			rec.OrderID = orderID
		}
		if totalSpentCents > 0 {
			rec.TotalSpentCents = totalSpentCents
		}
		return true, nil
	}
	return false, nil
}

func (m *MemoryStore) ListOccupancy(_ context.Context, tenantID, tableID string, before *pagination.Cursor, limit int) ([]*OccupancyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*OccupancyRecord
	for i := len(m.order) - 1; i >= 0; i-- {
		rec := m.records[m.order[i]]
		if rec.TenantID != tenantID || rec.TableID != tableID {
			continue
		}
		if before != nil {
			if rec.StartTime.After(before.CreatedAt) {
				continue
			}
			if rec.StartTime.Equal(before.CreatedAt) && rec.ID >= before.ID {
				continue
			}
		}
		cp := *rec
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) ClosedOccupancySince(_ context.Context, tenantID, tableID string, since time.Time) ([]*OccupancyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*OccupancyRecord
	for _, id := range m.order {
		rec := m.records[id]
		if rec.TenantID != tenantID || rec.TableID != tableID {
			continue
		}
		if rec.EndTime == nil || rec.StartTime.Before(since) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
