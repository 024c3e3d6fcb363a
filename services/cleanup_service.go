package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/loclio/identity-recovery/cache"
	"github.com/loclio/identity-recovery/domain"
	cleanuperr "github.com/loclio/identity-recovery/errors"
	"github.com/loclio/identity-recovery/internal/audit"
	pmetrics "github.com/loclio/identity-recovery/internal/metrics"
	"github.com/loclio/identity-recovery/ratelimit"
)

// RequestCodeResult is the Phase 1 outcome.
type RequestCodeResult struct {
	Delivered     bool   `json:"delivered"`
	CorrelationID string `json:"correlationId"`
}

// CleanupResult is the Phase 2 outcome.
type CleanupResult struct {
	DeletedIdentityID string `json:"deletedIdentityId"`
	CorrelationID     string `json:"correlationId"`
}

// CleanupCoordinator drives the two-phase self-service cleanup protocol.
// Phase 1 issues a proof code to the address on file; Phase 2 validates the
// code, re-verifies orphan status, and deletes the identity. Both phases are
// rate limited, mutually exclusive per identity via the distributed lock,
// and shaped to a constant response duration on every path.
type CleanupCoordinator struct {
	identities domain.IdentityRepository
	codes      domain.VerificationCodeRepository
	audits     domain.CleanupAuditRepository
	verifier   OrphanVerifier
	gate       *ratelimit.TierGate
	locker     cache.Locker
	sender     CodeSender
	issuer     *CodeIssuer
	shaper     *ResponseShaper

	codeTTL time.Duration
	lockTTL time.Duration

	now func() time.Time
}

// NewCleanupCoordinator wires the coordinator.
func NewCleanupCoordinator(
	identities domain.IdentityRepository,
	codes domain.VerificationCodeRepository,
	audits domain.CleanupAuditRepository,
	verifier OrphanVerifier,
	gate *ratelimit.TierGate,
	locker cache.Locker,
	sender CodeSender,
	issuer *CodeIssuer,
	shaper *ResponseShaper,
	codeTTL, lockTTL time.Duration,
) *CleanupCoordinator {
	return &CleanupCoordinator{
		identities: identities,
		codes:      codes,
		audits:     audits,
		verifier:   verifier,
		gate:       gate,
		locker:     locker,
		sender:     sender,
		issuer:     issuer,
		shaper:     shaper,
		codeTTL:    codeTTL,
		lockTTL:    lockTTL,
		now:        time.Now,
	}
}

// RequestCode is Phase 1. It resolves the email to an identity, confirms the
// identity is still orphaned, and delivers a proof code. Duplicate requests
// while a code is live re-send the same code instead of generating a new
// one.
func (c *CleanupCoordinator) RequestCode(ctx context.Context, email, source, correlationID string) (res *RequestCodeResult, err error) {
	start := c.now()
	// Single wrap point: every exit path of this phase is shaped.
	defer c.shaper.Shape(ctx, start)

	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	if err = c.admit(ctx, source, email, correlationID); err != nil {
		return nil, err
	}

	defer c.auditAttempt(ctx, "request_code", email, source, correlationID, &err)()

	identity, lookupErr := c.identities.GetByEmail(ctx, email)
	if lookupErr != nil {
		if errors.Is(lookupErr, domain.ErrNotFound) {
			err = cleanuperr.NewIdentityNotFound()
			return nil, err
		}
		err = cleanuperr.NewTransactionFailed("identity lookup failed")
		return nil, err
	}

	// Single authoritative check, no retry policy: a healthy identity must
	// never receive a deletion code.
	orphaned, verifyErr := c.verifier.VerifyOrphaned(ctx, identity.ID)
	if verifyErr != nil {
		err = cleanuperr.NewTransactionFailed("orphan verification failed")
		return nil, err
	}
	if !orphaned {
		err = cleanuperr.NewNotOrphaned()
		return nil, err
	}

	keyHash := IdentityKeyHash(identity.ID)
	lease, ok, lockErr := c.locker.TryAcquire(ctx, LockKey(keyHash), c.lockTTL)
	if lockErr != nil {
		err = cleanuperr.NewTransactionFailed("lock acquisition failed")
		return nil, err
	}
	if !ok {
		err = cleanuperr.NewOperationInProgress()
		return nil, err
	}
	defer c.release(ctx, lease, correlationID)

	code, codeErr := c.liveCode(ctx, keyHash, correlationID)
	if codeErr != nil {
		err = codeErr
		return nil, err
	}

	if sendErr := c.sender.Send(ctx, identity.Email, code, correlationID); sendErr != nil {
		log.Error().Err(sendErr).Str("correlation_id", correlationID).Msg("Code delivery failed on all providers")
		// The code record stays persisted: a retry of this phase re-sends
		// the same code without regenerating.
		err = cleanuperr.NewDeliveryFailed()
		return nil, err
	}

	return &RequestCodeResult{Delivered: true, CorrelationID: correlationID}, nil
}

// liveCode returns the derivable plaintext for the identity's live code
// record, creating a fresh record when none exists or the old one expired.
func (c *CleanupCoordinator) liveCode(ctx context.Context, keyHash, correlationID string) (string, error) {
	now := c.now()

	rec, err := c.codes.FindByIdentityKey(ctx, keyHash)
	switch {
	case err == nil && !rec.IsExpired(now):
		// Idempotent reuse under duplicate requests.
		return c.issuer.Derive(keyHash, rec.ExpiresAt), nil
	case err == nil:
		// Expired leftover: delete-and-recreate, never update in place.
		if delErr := c.codes.Delete(ctx, keyHash); delErr != nil {
			return "", cleanuperr.NewTransactionFailed("expired code cleanup failed")
		}
	case !errors.Is(err, domain.ErrNotFound):
		return "", cleanuperr.NewTransactionFailed("code lookup failed")
	}

	expiresAt := now.Add(c.codeTTL)
	code := c.issuer.Derive(keyHash, expiresAt)

	salt, err := NewSalt()
	if err != nil {
		return "", cleanuperr.NewTransactionFailed("salt generation failed")
	}

	record := &domain.VerificationCode{
		IdentityKeyHash: keyHash,
		CodeHash:        HashCode(code, salt),
		CodeSalt:        salt,
		CorrelationID:   correlationID,
		ExpiresAt:       expiresAt,
		CreatedAt:       now,
	}
	if err := c.codes.Insert(ctx, record); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			// The unique index caught a concurrent Phase 1 that slipped past
			// the lock.
			return "", cleanuperr.NewOperationInProgress()
		}
		return "", cleanuperr.NewTransactionFailed("code persistence failed")
	}
	return code, nil
}

// ValidateAndCleanup is Phase 2. It validates the submitted code, re-checks
// orphan status immediately before the destructive step, and deletes the
// identity through the provider's administrative delete.
func (c *CleanupCoordinator) ValidateAndCleanup(ctx context.Context, email, code, source, correlationID string) (res *CleanupResult, err error) {
	start := c.now()
	defer c.shaper.Shape(ctx, start)

	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	if err = c.admit(ctx, source, email, correlationID); err != nil {
		return nil, err
	}

	defer c.auditAttempt(ctx, "validate_and_cleanup", email, source, correlationID, &err)()

	identity, lookupErr := c.identities.GetByEmail(ctx, email)
	if lookupErr != nil {
		if errors.Is(lookupErr, domain.ErrNotFound) {
			// No identity, no code. Reported as an invalid code so the
			// response does not reveal which emails have identities.
			err = cleanuperr.NewCodeInvalid()
			return nil, err
		}
		err = cleanuperr.NewTransactionFailed("identity lookup failed")
		return nil, err
	}

	keyHash := IdentityKeyHash(identity.ID)
	lease, ok, lockErr := c.locker.TryAcquire(ctx, LockKey(keyHash), c.lockTTL)
	if lockErr != nil {
		err = cleanuperr.NewTransactionFailed("lock acquisition failed")
		return nil, err
	}
	if !ok {
		err = cleanuperr.NewOperationInProgress()
		return nil, err
	}
	defer c.release(ctx, lease, correlationID)

	rec, recErr := c.codes.FindByIdentityKey(ctx, keyHash)
	if recErr != nil {
		if errors.Is(recErr, domain.ErrNotFound) {
			err = cleanuperr.NewCodeExpired()
			return nil, err
		}
		err = cleanuperr.NewTransactionFailed("code lookup failed")
		return nil, err
	}
	if rec.IsExpired(c.now()) {
		// Expiry wins even when the characters would match.
		if delErr := c.codes.Delete(ctx, keyHash); delErr != nil {
			log.Warn().Err(delErr).Str("correlation_id", correlationID).Msg("Failed to remove expired code record")
		}
		err = cleanuperr.NewCodeExpired()
		return nil, err
	}

	if !VerifyCode(code, rec.CodeSalt, rec.CodeHash) {
		err = cleanuperr.NewCodeInvalid()
		return nil, err
	}

	// TOCTOU guard: the user may have completed registration since Phase 1.
	orphaned, verifyErr := c.verifier.VerifyOrphaned(ctx, identity.ID)
	if verifyErr != nil {
		err = cleanuperr.NewTransactionFailed("orphan verification failed")
		return nil, err
	}
	if !orphaned {
		// A success from the user's perspective: their account is whole.
		// The API layer recommends redirecting to sign-in.
		err = cleanuperr.NewNotOrphaned()
		return nil, err
	}

	if delErr := c.identities.Delete(ctx, identity.ID); delErr != nil && !errors.Is(delErr, domain.ErrNotFound) {
		err = cleanuperr.NewTransactionFailed("identity deletion failed")
		return nil, err
	}

	if delErr := c.codes.Delete(ctx, keyHash); delErr != nil {
		// The identity is already gone; the TTL index reaps the leftover.
		log.Warn().Err(delErr).Str("correlation_id", correlationID).Msg("Failed to delete consumed code record")
	}

	if pmetrics.IdentitiesDeletedTotal != nil {
		pmetrics.IdentitiesDeletedTotal.Inc()
	}
	return &CleanupResult{DeletedIdentityID: identity.ID, CorrelationID: correlationID}, nil
}

// admit applies the three rate-limit tiers. Limiter unavailability denies
// the request: the abuse control never fails open.
func (c *CleanupCoordinator) admit(ctx context.Context, source, email, correlationID string) error {
	decision, tier, err := c.gate.Allow(ctx, source, email)
	if err != nil {
		log.Error().Err(err).Str("correlation_id", correlationID).Msg("Rate limiter unavailable")
		return cleanuperr.NewTransactionFailed("rate limiter unavailable")
	}
	if !decision.Allowed {
		if pmetrics.RateLimitRejectionsTotal != nil {
			pmetrics.RateLimitRejectionsTotal.WithLabelValues(tier).Inc()
		}
		log.Warn().
			Str("tier", tier).
			Int64("count", decision.CurrentCount).
			Str("correlation_id", correlationID).
			Msg("Cleanup request rate limited")
		return cleanuperr.NewRateLimited(decision.RetryAfter)
	}
	return nil
}

// auditAttempt opens a pending audit record and returns the closure that
// finalizes it exactly once from the phase's terminal error state. Only
// hashes of the email and source are persisted.
func (c *CleanupCoordinator) auditAttempt(ctx context.Context, action, email, source, correlationID string, errp *error) func() {
	record := &domain.CleanupAudit{
		EmailHash:     EmailHash(email),
		SourceHash:    SourceHash(source),
		CorrelationID: correlationID,
	}
	// The audit trail must survive caller cancellation.
	auditCtx := context.WithoutCancel(ctx)

	if err := c.audits.Create(auditCtx, record); err != nil {
		log.Error().Err(err).Str("correlation_id", correlationID).Msg("Failed to create cleanup audit record")
		record = nil
	}

	return func() {
		err := *errp
		status := domain.CleanupStatusCompleted
		errorCode := ""
		if err != nil {
			status = domain.CleanupStatusFailed
			errorCode = wireCode(err)
		}

		audit.Log(action, correlationID, status == domain.CleanupStatusCompleted, errorCode)
		if pmetrics.CleanupRequestsTotal != nil {
			pmetrics.CleanupRequestsTotal.WithLabelValues(action, errorCode).Inc()
		}

		if record == nil {
			return
		}
		if finErr := c.audits.Finalize(auditCtx, record.ID, status, errorCode); finErr != nil {
			log.Error().Err(finErr).Str("correlation_id", correlationID).Msg("Failed to finalize cleanup audit record")
		}
	}
}

// release returns the lock on every exit path, surviving caller
// cancellation.
func (c *CleanupCoordinator) release(ctx context.Context, lease cache.Lease, correlationID string) {
	if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
		log.Warn().Err(err).Str("correlation_id", correlationID).Msg("Failed to release cleanup lock")
	}
}

// wireCode extracts the stable error code, with TRANSACTION_FAILED as the
// sanitized fallback for anything unexpected.
func wireCode(err error) string {
	if ce := cleanuperr.AsCleanupError(err); ce != nil {
		return ce.Code
	}
	return cleanuperr.TransactionFailed
}
