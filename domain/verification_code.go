package domain

import "time"

// VerificationCode is the persisted proof-of-ownership code record for one
// identity. Only the salted hash is stored, never the plaintext code.
//
// Invariant: at most one live (non-expired) record exists per identity key,
// enforced by a unique index on IdentityKeyHash plus check-before-insert in
// the coordinator. Records are consumed by delete, never updated in place.
type VerificationCode struct {
	IdentityKeyHash string    `bson:"_id"`
	CodeHash        []byte    `bson:"code_hash"`
	CodeSalt        []byte    `bson:"code_salt"`
	CorrelationID   string    `bson:"correlation_id"`
	ExpiresAt       time.Time `bson:"expires_at"`
	CreatedAt       time.Time `bson:"created_at"`
}

// IsExpired reports whether the code is past its TTL at the given instant.
func (c *VerificationCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
