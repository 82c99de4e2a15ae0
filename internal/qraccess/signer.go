package qraccess

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer derives and verifies token hashes with HMAC-SHA256 over
// tenantID|resourceID|code. One process-wide secret covers all
// tenants; the tenant id is inside the MAC so hashes never transfer
// between tenants.
type Signer struct {
	secret []byte
}

// NewSigner creates a new token signer.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Hash computes the token hash for the given binding.
func (s *Signer) Hash(tenantID, resourceID, code string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(tenantID))
	mac.Write([]byte{'|'})
	mac.Write([]byte(resourceID))
	mac.Write([]byte{'|'})
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a presented hash in constant time.
func (s *Signer) Verify(tenantID, resourceID, code, presented string) bool {
	expected := s.Hash(tenantID, resourceID, code)
	return hmac.Equal([]byte(expected), []byte(presented))
}
