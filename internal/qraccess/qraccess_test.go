package qraccess

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() (*Registry, *MemoryStore) {
	store := NewMemoryStore()
	return NewRegistry(store, NewSigner("test-secret-test-secret"), nil), store
}

// fakeTableBinder tracks per-table token bindings in memory. Table ids
// in missing behave as if the table does not exist.
type fakeTableBinder struct {
	missing  map[string]bool
	bindings map[string]string
}

func newFakeTableBinder() *fakeTableBinder {
	return &fakeTableBinder{missing: make(map[string]bool), bindings: make(map[string]string)}
}

func (b *fakeTableBinder) BindQRCode(_ context.Context, _, tableID, tokenID string) (bool, error) {
	if b.missing[tableID] {
		return false, nil
	}
	b.bindings[tableID] = tokenID
	return true, nil
}

func (b *fakeTableBinder) UnbindQRCode(_ context.Context, _, tableID, tokenID string) error {
	if b.bindings[tableID] == tokenID {
		delete(b.bindings, tableID)
	}
	return nil
}

func newBoundRegistry() (*Registry, *MemoryStore, *fakeTableBinder) {
	store := NewMemoryStore()
	binder := newFakeTableBinder()
	return NewRegistry(store, NewSigner("test-secret-test-secret"), binder), store, binder
}

func TestSignerDeterministic(t *testing.T) {
	s := NewSigner("secret-one")
	h1 := s.Hash("ten_abc", "tbl_1", "code123")
	h2 := s.Hash("ten_abc", "tbl_1", "code123")
	assert.Equal(t, h1, h2)
	assert.True(t, s.Verify("ten_abc", "tbl_1", "code123", h1))

	// Any component changing changes the hash.
	assert.NotEqual(t, h1, s.Hash("ten_other", "tbl_1", "code123"))
	assert.NotEqual(t, h1, s.Hash("ten_abc", "tbl_2", "code123"))
	assert.NotEqual(t, h1, s.Hash("ten_abc", "tbl_1", "code456"))
	assert.NotEqual(t, h1, NewSigner("secret-two").Hash("ten_abc", "tbl_1", "code123"))
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry()

	token, err := registry.IssueTable(ctx, "ten_abc", "tbl_1", map[string]any{"label": "Table 1"})
	require.NoError(t, err)
	assert.NotEmpty(t, token.Code)
	assert.NotEmpty(t, token.Hash)
	assert.True(t, token.Active)

	got, err := registry.Validate(ctx, "ten_abc", token.Code, token.Hash, TypeTable)
	require.NoError(t, err)
	assert.Equal(t, "tbl_1", got.ResourceID)
	assert.Equal(t, TypeTable, got.Type)
	assert.Equal(t, int64(1), got.ScanCount)

	// Scan count keeps climbing.
	got, err = registry.Validate(ctx, "ten_abc", token.Code, token.Hash, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ScanCount)
}

func TestValidateRejections(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry()

	token, err := registry.IssueTable(ctx, "ten_abc", "tbl_1", nil)
	require.NoError(t, err)

	// Unknown code.
	_, err = registry.Validate(ctx, "ten_abc", "nope", token.Hash, "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Code without its hash is worthless.
	_, err = registry.Validate(ctx, "ten_abc", token.Code, "forged", "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Wrong expected type.
	_, err = registry.Validate(ctx, "ten_abc", token.Code, token.Hash, TypePayment)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Another tenant's scope.
	_, err = registry.Validate(ctx, "ten_other", token.Code, token.Hash, "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Deactivated.
	require.NoError(t, registry.Deactivate(ctx, "ten_abc", token.ID))
	_, err = registry.Validate(ctx, "ten_abc", token.Code, token.Hash, "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIssueTableReplacesBinding(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry()

	first, err := registry.IssueTable(ctx, "ten_abc", "tbl_1", nil)
	require.NoError(t, err)
	second, err := registry.IssueTable(ctx, "ten_abc", "tbl_1", nil)
	require.NoError(t, err)

	// Only the newest code scans.
	_, err = registry.Validate(ctx, "ten_abc", first.Code, first.Hash, TypeTable)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = registry.Validate(ctx, "ten_abc", second.Code, second.Hash, TypeTable)
	require.NoError(t, err)

	// A different table's binding is untouched.
	other, err := registry.IssueTable(ctx, "ten_abc", "tbl_2", nil)
	require.NoError(t, err)
	_, err = registry.Validate(ctx, "ten_abc", other.Code, other.Hash, TypeTable)
	require.NoError(t, err)
	_, err = registry.Validate(ctx, "ten_abc", second.Code, second.Hash, TypeTable)
	require.NoError(t, err)
}

func TestIssueTableBindsToken(t *testing.T) {
	ctx := context.Background()
	registry, _, binder := newBoundRegistry()

	first, err := registry.IssueTable(ctx, "ten_abc", "tbl_1", nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, binder.bindings["tbl_1"])

	// Reissuing moves the binding to the new token.
	second, err := registry.IssueTable(ctx, "ten_abc", "tbl_1", nil)
	require.NoError(t, err)
	assert.Equal(t, second.ID, binder.bindings["tbl_1"])
}

func TestIssueTableUnknownTable(t *testing.T) {
	ctx := context.Background()
	registry, store, binder := newBoundRegistry()
	binder.missing["tbl_ghost"] = true

	_, err := registry.IssueTable(ctx, "ten_abc", "tbl_ghost", nil)
	assert.ErrorIs(t, err, ErrResourceNotFound)

	// The rejected issuance leaves no live token behind.
	tokens, err := store.ListByType(ctx, "ten_abc", TypeTable)
	require.NoError(t, err)
	for _, tok := range tokens {
		assert.False(t, tok.Active)
	}
}

func TestDeactivateReleasesTableBinding(t *testing.T) {
	ctx := context.Background()
	registry, _, binder := newBoundRegistry()

	token, err := registry.IssueTable(ctx, "ten_abc", "tbl_1", nil)
	require.NoError(t, err)
	require.NoError(t, registry.Deactivate(ctx, "ten_abc", token.ID))
	assert.Empty(t, binder.bindings["tbl_1"])

	// Deactivating a replaced token leaves the newer binding alone.
	old, err := registry.IssueTable(ctx, "ten_abc", "tbl_2", nil)
	require.NoError(t, err)
	current, err := registry.IssueTable(ctx, "ten_abc", "tbl_2", nil)
	require.NoError(t, err)
	require.NoError(t, registry.Deactivate(ctx, "ten_abc", old.ID))
	assert.Equal(t, current.ID, binder.bindings["tbl_2"])
}

func TestPaymentTokenExpiry(t *testing.T) {
	ctx := context.Background()
	registry, store := newTestRegistry()

	token, err := registry.IssuePayment(ctx, "ten_abc", "ord_1", time.Hour, nil)
	require.NoError(t, err)
	_, err = registry.Validate(ctx, "ten_abc", token.Code, token.Hash, TypePayment)
	require.NoError(t, err)

	// Rewind the embedded expiry and the same record stops validating
	// even though it is still active.
	stored, err := store.Get(ctx, "ten_abc", token.ID)
	require.NoError(t, err)
	require.True(t, stored.Active)
	stored.Payload["expires_at"] = time.Now().UTC().Add(-time.Minute).Format(time.RFC3339)
	require.NoError(t, store.ReplaceForResource(ctx, stored))

	_, err = registry.Validate(ctx, "ten_abc", token.Code, token.Hash, TypePayment)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPaymentDefaultTTL(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry()

	token, err := registry.IssuePayment(ctx, "ten_abc", "ord_1", 0, nil)
	require.NoError(t, err)
	expiresAt, ok := token.payloadExpiresAt()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().UTC().Add(DefaultPaymentTTL), expiresAt, time.Minute)
}

func TestMenuTokenTenantWide(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry()

	first, err := registry.IssueMenu(ctx, "ten_abc", nil)
	require.NoError(t, err)
	second, err := registry.IssueMenu(ctx, "ten_abc", nil)
	require.NoError(t, err)

	// Menu tokens accumulate; issuing a second does not kill the first.
	_, err = registry.Validate(ctx, "ten_abc", first.Code, first.Hash, TypeMenu)
	require.NoError(t, err)
	_, err = registry.Validate(ctx, "ten_abc", second.Code, second.Hash, TypeMenu)
	require.NoError(t, err)

	tokens, err := registry.ListByType(ctx, "ten_abc", TypeMenu)
	require.NoError(t, err)
	assert.Len(t, tokens, 2)
}

func TestDeactivateIdempotent(t *testing.T) {
	ctx := context.Background()
	registry, _ := newTestRegistry()

	token, err := registry.IssueMenu(ctx, "ten_abc", nil)
	require.NoError(t, err)

	require.NoError(t, registry.Deactivate(ctx, "ten_abc", token.ID))
	require.NoError(t, registry.Deactivate(ctx, "ten_abc", token.ID))

	assert.ErrorIs(t, registry.Deactivate(ctx, "ten_abc", "qr_missing"), ErrTokenNotFound)
	assert.ErrorIs(t, registry.Deactivate(ctx, "ten_other", token.ID), ErrTokenNotFound)
}
