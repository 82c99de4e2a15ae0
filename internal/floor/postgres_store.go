package floor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/tavolohq/tavolo/internal/pagination"
)

// PostgresStore persists the floor plan in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed floor store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CreateArea(ctx context.Context, area *Area) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO restaurant_areas (id, tenant_id, name, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		area.ID, area.TenantID, area.Name, area.Active, area.CreatedAt, area.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) GetArea(ctx context.Context, tenantID, id string) (*Area, error) {
	a := &Area{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, active, created_at, updated_at
		FROM restaurant_areas WHERE tenant_id = $1 AND id = $2`, tenantID, id,
	).Scan(&a.ID, &a.TenantID, &a.Name, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAreaNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (p *PostgresStore) ListAreas(ctx context.Context, tenantID string, includeInactive bool) ([]*Area, error) {
	query := `
		SELECT id, tenant_id, name, active, created_at, updated_at
		FROM restaurant_areas WHERE tenant_id = $1`
	if !includeInactive {
		query += ` AND active`
	}
	query += ` ORDER BY name`

	rows, err := p.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Area
	for rows.Next() {
		a := &Area{}
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Name, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateArea(ctx context.Context, area *Area) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE restaurant_areas SET name = $1, active = $2, updated_at = $3
		WHERE tenant_id = $4 AND id = $5`,
		area.Name, area.Active, area.UpdatedAt, area.TenantID, area.ID,
	)
	if err != nil {
		return err
	}
	return areaRowCheck(result)
}

func (p *PostgresStore) DeactivateArea(ctx context.Context, tenantID, id string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE restaurant_areas SET active = FALSE, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`, tenantID, id,
	)
	if err != nil {
		return err
	}
	return areaRowCheck(result)
}

func (p *PostgresStore) DeleteArea(ctx context.Context, tenantID, id string) error {
	result, err := p.db.ExecContext(ctx, `
		DELETE FROM restaurant_areas WHERE tenant_id = $1 AND id = $2`, tenantID, id,
	)
	if err != nil {
		return err
	}
	return areaRowCheck(result)
}

func areaRowCheck(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAreaNotFound
	}
	return nil
}

func (p *PostgresStore) CountTablesInArea(ctx context.Context, tenantID, areaID string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tables WHERE tenant_id = $1 AND area_id = $2`, tenantID, areaID,
	).Scan(&n)
	return n, err
}

const tableColumns = `id, tenant_id, area_id, number, name, capacity,
	position_x, position_y, status, occupied_since, qr_code_id, created_at, updated_at`

func (p *PostgresStore) CreateTable(ctx context.Context, table *Table) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO tables (id, tenant_id, area_id, number, name, capacity,
			position_x, position_y, status, occupied_since, qr_code_id, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13)`,
		table.ID, table.TenantID, table.AreaID, table.Number, table.Name, table.Capacity,
		table.PositionX, table.PositionY, string(table.Status), table.OccupiedSince,
		table.QRCodeID, table.CreatedAt, table.UpdatedAt,
	)
	if err != nil {
		// tables_tenant_number_key enforces number uniqueness; the
		// pre-check in the service is advisory only.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateNumber
		}
		return err
	}
	return nil
}

func (p *PostgresStore) GetTable(ctx context.Context, tenantID, id string) (*Table, error) {
	t, err := scanTable(p.db.QueryRowContext(ctx, `
		SELECT `+tableColumns+` FROM tables WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err == sql.ErrNoRows {
		return nil, ErrTableNotFound
	}
	return t, err
}

func (p *PostgresStore) ListTables(ctx context.Context, tenantID string) ([]*Table, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+tableColumns+` FROM tables WHERE tenant_id = $1 ORDER BY number`, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateTable(ctx context.Context, tenantID, id string, upd TableUpdate) (*Table, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	t, err := scanTable(tx.QueryRowContext(ctx, `
		SELECT `+tableColumns+` FROM tables
		WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id))
	if err == sql.ErrNoRows {
		return nil, ErrTableNotFound
	}
	if err != nil {
		return nil, err
	}

	if upd.AreaID != nil {
		t.AreaID = *upd.AreaID
	}
	if upd.Number != nil {
		t.Number = *upd.Number
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

	_, err = tx.ExecContext(ctx, `
		UPDATE tables SET area_id = NULLIF($1, ''), number = $2, name = NULLIF($3, ''),
			capacity = $4, position_x = $5, position_y = $6, qr_code_id = NULLIF($7, ''),
			updated_at = $8
		WHERE tenant_id = $9 AND id = $10`,
		t.AreaID, t.Number, t.Name, t.Capacity, t.PositionX, t.PositionY,
		t.QRCodeID, t.UpdatedAt, tenantID, id,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, ErrDuplicateNumber
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return t, nil
}

func (p *PostgresStore) SetStatus(ctx context.Context, tenantID, id string, status TableStatus, occupiedSince *time.Time) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE tables SET status = $1, occupied_since = $2, updated_at = NOW()
		WHERE tenant_id = $3 AND id = $4`,
		string(status), occupiedSince, tenantID, id,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTableNotFound
	}
	return nil
}

func (p *PostgresStore) DeleteTable(ctx context.Context, tenantID, id string) error {
	result, err := p.db.ExecContext(ctx, `
		DELETE FROM tables WHERE tenant_id = $1 AND id = $2`, tenantID, id,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTableNotFound
	}
	return nil
}

func (p *PostgresStore) CountTables(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tables WHERE tenant_id = $1`, tenantID).Scan(&n)
	return n, err
}

func (p *PostgresStore) UpdatePosition(ctx context.Context, tenantID, id string, x, y float64) (bool, error) {
	result, err := p.db.ExecContext(ctx, `
		UPDATE tables SET position_x = $1, position_y = $2, updated_at = NOW()
		WHERE tenant_id = $3 AND id = $4`, x, y, tenantID, id,
	)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (p *PostgresStore) OpenOccupancy(ctx context.Context, rec *OccupancyRecord) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO table_occupancy_history (id, tenant_id, table_id, table_number,
			start_time, end_time, order_id, total_spent_cents, customers)
		VALUES ($1, $2, $3, $4, $5, NULL, NULLIF($6, ''), $7, $8)`,
		rec.ID, rec.TenantID, rec.TableID, rec.TableNumber,
		rec.StartTime, rec.OrderID, rec.TotalSpentCents, rec.Customers,
	)
	return err
}

func (p *PostgresStore) CloseOpenOccupancy(ctx context.Context, tenantID, tableID string, end time.Time, orderID string, totalSpentCents int64) (bool, error) {
	// The end_time IS NULL guard makes this safe under concurrent
	// closers: only one update matches the open row.
	result, err := p.db.ExecContext(ctx, `
		UPDATE table_occupancy_history
		SET end_time = $1,
			order_id = COALESCE(NULLIF($2, ''), order_id),
			total_spent_cents = CASE WHEN $3 > 0 THEN $3 ELSE total_spent_cents END
		WHERE tenant_id = $4 AND table_id = $5 AND end_time IS NULL`,
		end, orderID, totalSpentCents, tenantID, tableID,
	)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

const occupancyColumns = `id, tenant_id, table_id, table_number, start_time,
	end_time, order_id, total_spent_cents, customers`

func (p *PostgresStore) ListOccupancy(ctx context.Context, tenantID, tableID string, before *pagination.Cursor, limit int) ([]*OccupancyRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + occupancyColumns + ` FROM table_occupancy_history
		WHERE tenant_id = $1 AND table_id = $2`
	args := []any{tenantID, tableID}
	if before != nil {
		query += ` AND (start_time, id) < ($3, $4)`
		args = append(args, before.CreatedAt, before.ID)
	}
	query += ` ORDER BY start_time DESC, id DESC LIMIT ` + fmt.Sprintf("$%d", len(args)+1)
	args = append(args, limit)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectOccupancy(rows)
}

func (p *PostgresStore) ClosedOccupancySince(ctx context.Context, tenantID, tableID string, since time.Time) ([]*OccupancyRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+occupancyColumns+` FROM table_occupancy_history
		WHERE tenant_id = $1 AND table_id = $2 AND end_time IS NOT NULL AND start_time >= $3
		ORDER BY start_time`, tenantID, tableID, since)
	if err != nil {
		return nil, err
	}
	return collectOccupancy(rows)
}

func collectOccupancy(rows *sql.Rows) ([]*OccupancyRecord, error) {
	defer func() { _ = rows.Close() }()

	var out []*OccupancyRecord
	for rows.Next() {
		rec := &OccupancyRecord{}
		var (
			endTime sql.NullTime
			orderID sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.TableID, &rec.TableNumber,
			&rec.StartTime, &endTime, &orderID, &rec.TotalSpentCents, &rec.Customers); err != nil {
			return nil, err
		}
		if endTime.Valid {
			rec.EndTime = &endTime.Time
		}
		rec.OrderID = orderID.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

type tableScanner interface {
	Scan(dest ...any) error
}

func scanTable(r tableScanner) (*Table, error) {
	t := &Table{}
	var (
		status                 string
		areaID, name, qrCodeID sql.NullString
		occupiedSince          sql.NullTime
	)
	err := r.Scan(&t.ID, &t.TenantID, &areaID, &t.Number, &name, &t.Capacity,
		&t.PositionX, &t.PositionY, &status, &occupiedSince, &qrCodeID,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Status = TableStatus(status)
	t.AreaID = areaID.String
	t.Name = name.String
	t.QRCodeID = qrCodeID.String
	if occupiedSince.Valid {
		t.OccupiedSince = &occupiedSince.Time
	}
	return t, nil
}

var _ Store = (*PostgresStore)(nil)
