package qraccess

import (
	"context"
	"errors"
	"time"

	"github.com/tavolohq/tavolo/internal/idgen"
	"github.com/tavolohq/tavolo/internal/logging"
	"github.com/tavolohq/tavolo/internal/metrics"
)

// DefaultPaymentTTL bounds how long a payment QR code scans.
const DefaultPaymentTTL = 30 * time.Minute

// TableBinder records which token currently hangs on a table. BindQRCode
// returns false when the table does not exist; UnbindQRCode only clears
// the binding if the table still points at the given token id.
type TableBinder interface {
	BindQRCode(ctx context.Context, tenantID, tableID, tokenID string) (bool, error)
	UnbindQRCode(ctx context.Context, tenantID, tableID, tokenID string) error
}

// Registry issues and validates QR access tokens.
type Registry struct {
	store  Store
	signer *Signer
	tables TableBinder
}

// NewRegistry builds a Registry. tables may be nil, in which case table
// tokens are issued without existence checks or back-references.
func NewRegistry(store Store, signer *Signer, tables TableBinder) *Registry {
	return &Registry{store: store, signer: signer, tables: tables}
}

// IssueTable issues a table token, replacing any active token already
// bound to the table. The old code stops scanning the moment the new
// one exists. The token id is written back onto the table so the floor
// view can show which tables carry a printed code.
func (r *Registry) IssueTable(ctx context.Context, tenantID, tableID string, payload map[string]any) (*Token, error) {
	token := r.build(tenantID, TypeTable, tableID, payload)
	if err := r.store.ReplaceForResource(ctx, token); err != nil {
		return nil, err
	}
	if r.tables != nil {
		ok, err := r.tables.BindQRCode(ctx, tenantID, tableID, token.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			// The table never existed; undo the token so a dead code
			// does not keep scanning.
			if derr := r.store.Deactivate(ctx, tenantID, token.ID); derr != nil {
				logging.L(ctx).Warn("failed to deactivate orphaned qr token",
					"token_id", token.ID, "error", derr)
			}
			return nil, ErrResourceNotFound
		}
	}
	logging.L(ctx).Info("table qr code issued",
		"tenant_id", tenantID, "table_id", tableID, "token_id", token.ID)
	return token, nil
}

// IssueMenu issues a tenant-wide menu token with no resource binding.
func (r *Registry) IssueMenu(ctx context.Context, tenantID string, payload map[string]any) (*Token, error) {
	token := r.build(tenantID, TypeMenu, "", payload)
	if err := r.store.Create(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// IssuePayment issues a short-lived payment token for an order. The
// expiry rides inside the payload so no cleanup job is needed; expired
// tokens simply stop validating.
func (r *Registry) IssuePayment(ctx context.Context, tenantID, orderID string, ttl time.Duration, payload map[string]any) (*Token, error) {
	if ttl <= 0 {
		ttl = DefaultPaymentTTL
	}
	if payload == nil {
		payload = make(map[string]any, 1)
	}
	payload["expires_at"] = time.Now().UTC().Add(ttl).Format(time.RFC3339)

	token := r.build(tenantID, TypePayment, orderID, payload)
	if err := r.store.Create(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

func (r *Registry) build(tenantID string, typ TokenType, resourceID string, payload map[string]any) *Token {
	now := time.Now().UTC()
	code := idgen.Hex(16)
	return &Token{
		ID:         idgen.WithPrefix("qr_"),
		TenantID:   tenantID,
		Type:       typ,
		ResourceID: resourceID,
		Code:       code,
		Hash:       r.signer.Hash(tenantID, resourceID, code),
		Payload:    payload,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Validate checks a presented (code, hash) pair. expectedType narrows
// the match when non-empty. Every rejection returns the same
// ErrInvalidToken; a scanner learns nothing about why a code failed.
// Successful scans bump the scan counter best-effort.
func (r *Registry) Validate(ctx context.Context, tenantID, code, hash string, expectedType TokenType) (*Token, error) {
	typeLabel := string(expectedType)
	if typeLabel == "" {
		typeLabel = "any"
	}

	token, err := r.store.GetByCode(ctx, tenantID, code)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			metrics.QRValidationsTotal.WithLabelValues(typeLabel, "rejected").Inc()
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	valid := token.Active &&
		r.signer.Verify(tenantID, token.ResourceID, code, hash) &&
		(expectedType == "" || token.Type == expectedType)

	if valid && token.Type == TypePayment {
		if expiresAt, ok := token.payloadExpiresAt(); ok && time.Now().UTC().After(expiresAt) {
			valid = false
		}
	}

	if !valid {
		metrics.QRValidationsTotal.WithLabelValues(typeLabel, "rejected").Inc()
		return nil, ErrInvalidToken
	}

	// Scan bookkeeping must never fail a valid scan.
	if err := r.store.RecordScan(ctx, tenantID, token.ID, time.Now().UTC()); err != nil {
		logging.L(ctx).Warn("failed to record qr scan", "token_id", token.ID, "error", err)
	} else {
		token.ScanCount++
	}

	metrics.QRValidationsTotal.WithLabelValues(string(token.Type), "valid").Inc()
	return token, nil
}

// Deactivate turns a token off. Calling it twice is fine. A table
// token also releases its table binding, unless the table has already
// been rebound to a newer token.
func (r *Registry) Deactivate(ctx context.Context, tenantID, tokenID string) error {
	token, err := r.store.Get(ctx, tenantID, tokenID)
	if err != nil {
		return err
	}
	if err := r.store.Deactivate(ctx, tenantID, tokenID); err != nil {
		return err
	}
	if r.tables != nil && token.Type == TypeTable && token.ResourceID != "" {
		if err := r.tables.UnbindQRCode(ctx, tenantID, token.ResourceID, tokenID); err != nil {
			logging.L(ctx).Warn("failed to unbind qr token from table",
				"token_id", tokenID, "table_id", token.ResourceID, "error", err)
		}
	}
	return nil
}

// Get returns a token by id.
func (r *Registry) Get(ctx context.Context, tenantID, tokenID string) (*Token, error) {
	return r.store.Get(ctx, tenantID, tokenID)
}

// ListByType lists the tenant's tokens of one type.
func (r *Registry) ListByType(ctx context.Context, tenantID string, typ TokenType) ([]*Token, error) {
	return r.store.ListByType(ctx, tenantID, typ)
}
