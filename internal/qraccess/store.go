package qraccess

import (
	"context"
	"time"
)

// Store persists QR tokens. Every call takes the tenant id; codes are
// globally unique but lookups stay tenant-scoped.
type Store interface {
	Create(ctx context.Context, token *Token) error
	Get(ctx context.Context, tenantID, id string) (*Token, error)
	GetByCode(ctx context.Context, tenantID, code string) (*Token, error)
	ListByType(ctx context.Context, tenantID string, typ TokenType) ([]*Token, error)

	// ReplaceForResource deactivates any active token of the same type
	// bound to the same resource and inserts the new one, atomically.
	// There is never a window where both or neither code scans.
	ReplaceForResource(ctx context.Context, token *Token) error

	// Deactivate sets the token inactive. Deactivating an inactive
	// token is not an error; a missing token is ErrTokenNotFound.
	Deactivate(ctx context.Context, tenantID, id string) error

	// RecordScan bumps scan count and last-scanned. Best effort from
	// the caller's perspective.
	RecordScan(ctx context.Context, tenantID, id string, at time.Time) error
}
