package domain

import (
	"context"
	"errors"
)

// ErrNotFound is returned by repositories when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when an insert violates a uniqueness constraint.
// For verification codes this is the backstop against duplicate-code races
// if the distributed lock is somehow bypassed.
var ErrDuplicate = errors.New("record already exists")

// IdentityRepository is the adapter over the authentication provider's user
// store. Lookup and administrative delete are the only operations this
// service is allowed to perform against it.
type IdentityRepository interface {
	GetByEmail(ctx context.Context, email string) (*Identity, error)
	GetByID(ctx context.Context, id string) (*Identity, error)
	// Delete is the provider's administrative delete. Removing the identity
	// frees the email for re-registration.
	Delete(ctx context.Context, id string) error
}

// MembershipRepository answers the primary-record existence relation:
// does any tenant/account membership exist for this identity?
type MembershipRepository interface {
	ExistsForOwner(ctx context.Context, identityID string) (bool, error)
}

// ProfileRepository answers the secondary-record existence relation:
// does an application profile exist for this identity?
type ProfileRepository interface {
	ExistsForSubject(ctx context.Context, identityID string) (bool, error)
}

// VerificationCodeRepository stores proof-code records keyed by identity key
// hash. Records expire naturally (TTL) or are consumed by delete.
type VerificationCodeRepository interface {
	// FindByIdentityKey returns the record for the key, expired or not, or
	// ErrNotFound. The caller decides what an expired record means.
	FindByIdentityKey(ctx context.Context, identityKeyHash string) (*VerificationCode, error)
	// Insert stores a new record. ErrDuplicate when a record for the key
	// already exists.
	Insert(ctx context.Context, code *VerificationCode) error
	Delete(ctx context.Context, identityKeyHash string) error
}

// CleanupAuditRepository is the append-only compliance trail.
type CleanupAuditRepository interface {
	Create(ctx context.Context, audit *CleanupAudit) error
	// Finalize moves a pending record to a terminal status. It is a no-op on
	// records already finalized, so the terminal transition happens at most
	// once.
	Finalize(ctx context.Context, id string, status CleanupStatus, errorCode string) error
	FindByCorrelationID(ctx context.Context, correlationID string) ([]*CleanupAudit, error)
}
