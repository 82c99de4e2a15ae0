// Package qraccess issues and validates the opaque QR tokens that
// stand in for (tenant, resource) pairs without exposing internal ids.
package qraccess

import (
	"errors"
	"time"
)

var (
	// ErrInvalidToken deliberately covers every rejection cause:
	// unknown code, bad hash, wrong type, inactive, expired. Callers
	// never learn which check failed.
	ErrInvalidToken  = errors.New("qraccess: invalid or expired code")
	ErrTokenNotFound = errors.New("qraccess: token not found")

	// ErrResourceNotFound rejects issuance against a resource that does
	// not exist, such as a table id the tenant never created.
	ErrResourceNotFound = errors.New("qraccess: resource not found")
)

// TokenType classifies what a token grants access to.
type TokenType string

const (
	TypeTable   TokenType = "table"
	TypeMenu    TokenType = "menu"
	TypePayment TokenType = "payment"
)

// ValidType reports whether t is a member of the type enum.
func ValidType(t TokenType) bool {
	switch t {
	case TypeTable, TypeMenu, TypePayment:
		return true
	}
	return false
}

// Token is an issued QR access token. Hash is derived from the tenant
// id, the bound resource id, the code and a server secret; it never
// leaves the server except printed inside the QR image, so a guessed
// code without its hash is worthless. Payment tokens carry their
// expiry inside Payload rather than a column: they are short-lived and
// expire passively on validation.
type Token struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenantId"`
	Type          TokenType      `json:"type"`
	ResourceID    string         `json:"resourceId,omitempty"`
	Code          string         `json:"code"`
	Hash          string         `json:"-"`
	Payload       map[string]any `json:"payload,omitempty"`
	Active        bool           `json:"active"`
	ScanCount     int64          `json:"scanCount"`
	LastScannedAt *time.Time     `json:"lastScannedAt,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// payloadExpiresAt reads the embedded expiry of a payment token.
// Absent or malformed values mean no expiry.
func (t *Token) payloadExpiresAt() (time.Time, bool) {
	if t.Payload == nil {
		return time.Time{}, false
	}
	raw, ok := t.Payload["expires_at"]
	if !ok {
		return time.Time{}, false
	}
	str, ok := raw.(string)
	if !ok {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
