package qraccess

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory token store for demo/development.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*Token // by ID
	codes  map[string]string // code -> ID
}

// NewMemoryStore creates a new in-memory token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens: make(map[string]*Token),
		codes:  make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, token *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.insertLocked(token)
	return nil
}

func (m *MemoryStore) insertLocked(token *Token) {
	cp := copyToken(token)
	m.tokens[token.ID] = cp
	m.codes[token.Code] = token.ID
}

func (m *MemoryStore) Get(_ context.Context, tenantID, id string) (*Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tokens[id]
	if !ok || t.TenantID != tenantID {
		return nil, ErrTokenNotFound
	}
	return copyToken(t), nil
}

func (m *MemoryStore) GetByCode(_ context.Context, tenantID, code string) (*Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.codes[code]
	if !ok {
		return nil, ErrTokenNotFound
	}
	t := m.tokens[id]
	if t == nil || t.TenantID != tenantID {
		return nil, ErrTokenNotFound
	}
	return copyToken(t), nil
}

func (m *MemoryStore) ListByType(_ context.Context, tenantID string, typ TokenType) ([]*Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Token
	for _, t := range m.tokens {
		if t.TenantID != tenantID || t.Type != typ {
			continue
		}
		out = append(out, copyToken(t))
	}
	return out, nil
}

func (m *MemoryStore) ReplaceForResource(_ context.Context, token *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.tokens {
		if t.TenantID == token.TenantID && t.Type == token.Type &&
			t.ResourceID == token.ResourceID && t.Active {
			t.Active = false
			t.UpdatedAt = time.Now().UTC()
		}
	}
	m.insertLocked(token)
	return nil
}

func (m *MemoryStore) Deactivate(_ context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[id]
	if !ok || t.TenantID != tenantID {
		return ErrTokenNotFound
	}
	if t.Active {
		t.Active = false
		t.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *MemoryStore) RecordScan(_ context.Context, tenantID, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tokens[id]
	if !ok || t.TenantID != tenantID {
		return ErrTokenNotFound
	}
	t.ScanCount++
	atCp := at
	t.LastScannedAt = &atCp
	return nil
}

func copyToken(t *Token) *Token {
	cp := *t
	if t.Payload != nil {
		cp.Payload = make(map[string]any, len(t.Payload))
		for k, v := range t.Payload {
			cp.Payload[k] = v
		}
	}
	return &cp
}

var _ Store = (*MemoryStore)(nil)
