package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/loclio/identity-recovery/domain"
)

// SignInDecision tells the sign-in caller what to do with an authenticated
// identity.
type SignInDecision struct {
	// Proceed is true when the identity has its application records and
	// sign-in may continue.
	Proceed bool `json:"proceed"`
	// RedirectToRecovery is true when the identity is orphaned and the user
	// should be sent to the recovery UI.
	RedirectToRecovery bool `json:"redirectToRecovery"`

	Classification *domain.OrphanClassification `json:"classification"`
	CorrelationID  string                       `json:"correlationId"`
}

// SignInGate is the sign-in hook: it runs orphan detection synchronously
// and, for orphaned identities, pre-initiates cleanup so the code email is
// already on its way when the user lands on the recovery UI.
type SignInGate struct {
	detector    *OrphanDetector
	coordinator *CleanupCoordinator

	initiateTimeout time.Duration
}

// NewSignInGate creates the gate.
func NewSignInGate(detector *OrphanDetector, coordinator *CleanupCoordinator) *SignInGate {
	return &SignInGate{
		detector:        detector,
		coordinator:     coordinator,
		initiateTimeout: 15 * time.Second,
	}
}

// CheckSignIn classifies the identity. Detection failure propagates: the
// caller must block sign-in rather than let an unverified identity through.
func (g *SignInGate) CheckSignIn(ctx context.Context, identityID, email, correlationID string) (*SignInDecision, error) {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	classification, err := g.detector.Detect(ctx, identityID, correlationID)
	if err != nil {
		return nil, err
	}

	decision := &SignInDecision{
		Proceed:            !classification.IsOrphaned,
		RedirectToRecovery: classification.IsOrphaned,
		Classification:     classification,
		CorrelationID:      correlationID,
	}

	if classification.IsOrphaned {
		g.initiateCleanup(email, correlationID)
	}
	return decision, nil
}

// initiateCleanup fires Phase 1 as a detached task. Its failure is logged
// and never propagated: the sign-in response does not wait for, or depend
// on, the code email. The user can always re-request from the recovery UI.
func (g *SignInGate) initiateCleanup(email, correlationID string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("correlation_id", correlationID).Msg("Cleanup pre-initiation panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), g.initiateTimeout)
		defer cancel()

		if _, err := g.coordinator.RequestCode(ctx, email, "signin-gate", correlationID); err != nil {
			log.Warn().Err(err).Str("correlation_id", correlationID).Msg("Cleanup pre-initiation failed")
		}
	}()
}
