package services

import "context"

// CodeSender delivers a proof code to an email address. Implemented by
// delivery.FailoverSender; the transport behind it is a deployment concern.
type CodeSender interface {
	Send(ctx context.Context, email, code, correlationID string) error
}

// OrphanVerifier is the single authoritative orphan check the coordinator
// runs before any destructive step. Implemented by OrphanDetector.
type OrphanVerifier interface {
	VerifyOrphaned(ctx context.Context, identityID string) (bool, error)
}
