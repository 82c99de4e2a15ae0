package qraccess

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// PostgresStore persists QR tokens in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed token store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const tokenColumns = `id, tenant_id, type, resource_id, code, hash, payload,
	active, scan_count, last_scanned_at, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, token *Token) error {
	payload, err := marshalPayload(token.Payload)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO qr_codes (id, tenant_id, type, resource_id, code, hash, payload,
			active, scan_count, last_scanned_at, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12)`,
		token.ID, token.TenantID, string(token.Type), token.ResourceID, token.Code,
		token.Hash, payload, token.Active, token.ScanCount, token.LastScannedAt,
		token.CreatedAt, token.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, tenantID, id string) (*Token, error) {
	return scanToken(p.db.QueryRowContext(ctx, `
		SELECT `+tokenColumns+` FROM qr_codes WHERE tenant_id = $1 AND id = $2`, tenantID, id))
}

func (p *PostgresStore) GetByCode(ctx context.Context, tenantID, code string) (*Token, error) {
	return scanToken(p.db.QueryRowContext(ctx, `
		SELECT `+tokenColumns+` FROM qr_codes WHERE tenant_id = $1 AND code = $2`, tenantID, code))
}

func (p *PostgresStore) ListByType(ctx context.Context, tenantID string, typ TokenType) ([]*Token, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+tokenColumns+` FROM qr_codes
		WHERE tenant_id = $1 AND type = $2 ORDER BY created_at DESC`, tenantID, string(typ))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *PostgresStore) ReplaceForResource(ctx context.Context, token *Token) error {
	payload, err := marshalPayload(token.Payload)
	if err != nil {
		return err
	}

	// Deactivate-old and insert-new commit together or not at all.
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		UPDATE qr_codes SET active = FALSE, updated_at = NOW()
		WHERE tenant_id = $1 AND type = $2 AND resource_id = $3 AND active`,
		token.TenantID, string(token.Type), token.ResourceID,
	)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO qr_codes (id, tenant_id, type, resource_id, code, hash, payload,
			active, scan_count, last_scanned_at, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12)`,
		token.ID, token.TenantID, string(token.Type), token.ResourceID, token.Code,
		token.Hash, payload, token.Active, token.ScanCount, token.LastScannedAt,
		token.CreatedAt, token.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) Deactivate(ctx context.Context, tenantID, id string) error {
	// Matches the row whether active or not: deactivation is
	// idempotent, only a missing token is an error.
	result, err := p.db.ExecContext(ctx, `
		UPDATE qr_codes SET active = FALSE, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`, tenantID, id,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (p *PostgresStore) RecordScan(ctx context.Context, tenantID, id string, at time.Time) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE qr_codes SET scan_count = scan_count + 1, last_scanned_at = $1, updated_at = NOW()
		WHERE tenant_id = $2 AND id = $3`, at, tenantID, id,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func marshalPayload(payload map[string]any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	return json.Marshal(payload)
}

type tokenScanner interface {
	Scan(dest ...any) error
}

func scanToken(r tokenScanner) (*Token, error) {
	t := &Token{}
	var (
		typ           string
		resourceID    sql.NullString
		payload       []byte
		lastScannedAt sql.NullTime
	)
	err := r.Scan(&t.ID, &t.TenantID, &typ, &resourceID, &t.Code, &t.Hash, &payload,
		&t.Active, &t.ScanCount, &lastScannedAt, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Type = TokenType(typ)
	t.ResourceID = resourceID.String
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &t.Payload); err != nil {
			return nil, err
		}
	}
	if lastScannedAt.Valid {
		t.LastScannedAt = &lastScannedAt.Time
	}
	return t, nil
}

var _ Store = (*PostgresStore)(nil)
