package entitlement

import (
	"context"
	"time"
)

// UsageStore persists per-day resource counters keyed by
// (tenant, resource, year, month, day). Rows are increment-only and
// never deleted; they back period-based limits and reporting.
type UsageStore interface {
	// Increment adds count to the row for the given day, creating it
	// at count on first use. Implementations must make this atomic:
	// two concurrent increments both land.
	Increment(ctx context.Context, tenantID, resource string, day time.Time, count int) error

	// DayCount returns the counter for a single day, zero when absent.
	DayCount(ctx context.Context, tenantID, resource string, day time.Time) (int, error)

	// MonthTotal sums the counters for a calendar month.
	MonthTotal(ctx context.Context, tenantID, resource string, year int, month time.Month) (int, error)
}
