package entitlement

import (
	"context"
	"sync"
	"time"
)

type usageKey struct {
	tenantID string
	resource string
	year     int
	month    time.Month
	day      int
}

// MemoryUsageStore is an in-memory usage store for demo/development.
type MemoryUsageStore struct {
	mu       sync.Mutex
	counters map[usageKey]int
}

// NewMemoryUsageStore creates a new in-memory usage store.
func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{counters: make(map[usageKey]int)}
}

func (m *MemoryUsageStore) Increment(_ context.Context, tenantID, resource string, day time.Time, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters[keyFor(tenantID, resource, day)] += count
	return nil
}

func (m *MemoryUsageStore) DayCount(_ context.Context, tenantID, resource string, day time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.counters[keyFor(tenantID, resource, day)], nil
}

func (m *MemoryUsageStore) MonthTotal(_ context.Context, tenantID, resource string, year int, month time.Month) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := 0
	for k, v := range m.counters {
		if k.tenantID == tenantID && k.resource == resource && k.year == year && k.month == month {
			total += v
		}
	}
	return total, nil
}

func keyFor(tenantID, resource string, day time.Time) usageKey {
	y, m, d := day.UTC().Date()
	return usageKey{tenantID: tenantID, resource: resource, year: y, month: m, day: d}
}

var _ UsageStore = (*MemoryUsageStore)(nil)
