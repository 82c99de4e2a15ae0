package entitlement

import (
	"context"
	"database/sql"
	"time"
)

// PostgresUsageStore persists usage counters in PostgreSQL.
type PostgresUsageStore struct {
	db *sql.DB
}

// NewPostgresUsageStore creates a new PostgreSQL-backed usage store.
func NewPostgresUsageStore(db *sql.DB) *PostgresUsageStore {
	return &PostgresUsageStore{db: db}
}

func (p *PostgresUsageStore) Increment(ctx context.Context, tenantID, resource string, day time.Time, count int) error {
	y, m, d := day.UTC().Date()
	// Single atomic upsert: concurrent increments serialize on the row
	// and both land.
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO resource_usage (tenant_id, resource, year, month, day, resource_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, resource, year, month, day)
		DO UPDATE SET resource_count = resource_usage.resource_count + EXCLUDED.resource_count`,
		tenantID, resource, y, int(m), d, count,
	)
	return err
}

func (p *PostgresUsageStore) DayCount(ctx context.Context, tenantID, resource string, day time.Time) (int, error) {
	y, m, d := day.UTC().Date()
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT resource_count FROM resource_usage
		WHERE tenant_id = $1 AND resource = $2 AND year = $3 AND month = $4 AND day = $5`,
		tenantID, resource, y, int(m), d,
	).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return count, err
}

func (p *PostgresUsageStore) MonthTotal(ctx context.Context, tenantID, resource string, year int, month time.Month) (int, error) {
	var total int
	err := p.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(resource_count), 0) FROM resource_usage
		WHERE tenant_id = $1 AND resource = $2 AND year = $3 AND month = $4`,
		tenantID, resource, year, int(month),
	).Scan(&total)
	return total, err
}

var _ UsageStore = (*PostgresUsageStore)(nil)
