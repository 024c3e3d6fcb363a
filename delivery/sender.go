// Package delivery sends proof-of-ownership codes to users. Outbound email
// transport itself is a deployment concern; providers are injected at wiring
// time and this package only handles ordering, timeouts, and failover.
package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Provider is one outbound channel for a verification code.
type Provider interface {
	Name() string
	Send(ctx context.Context, email, code, correlationID string) error
}

// FailoverSender walks its providers in order, giving each a bounded number
// of attempts with a per-attempt timeout, and reports failure only when
// every provider is exhausted.
type FailoverSender struct {
	providers           []Provider
	attemptsPerProvider int
	perAttemptTimeout   time.Duration
}

// NewFailoverSender creates a sender over the given providers.
func NewFailoverSender(providers ...Provider) *FailoverSender {
	return &FailoverSender{
		providers:           providers,
		attemptsPerProvider: 2,
		perAttemptTimeout:   5 * time.Second,
	}
}

// Send delivers the code through the first provider that succeeds.
func (s *FailoverSender) Send(ctx context.Context, email, code, correlationID string) error {
	if len(s.providers) == 0 {
		return errors.New("no delivery providers configured")
	}

	var lastErr error
	for _, p := range s.providers {
		for attempt := 0; attempt < s.attemptsPerProvider; attempt++ {
			attemptCtx, cancel := context.WithTimeout(ctx, s.perAttemptTimeout)
			err := p.Send(attemptCtx, email, code, correlationID)
			cancel()
			if err == nil {
				return nil
			}
			lastErr = err
			log.Warn().Err(err).
				Str("provider", p.Name()).
				Int("attempt", attempt+1).
				Str("correlation_id", correlationID).
				Msg("Code delivery attempt failed")

			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
	return lastErr
}

// LogProvider writes codes to the application log instead of delivering
// them. Development and test wiring only.
type LogProvider struct{}

func (LogProvider) Name() string { return "log" }

func (LogProvider) Send(_ context.Context, email, code, correlationID string) error {
	log.Info().
		Str("email", email).
		Str("code", code).
		Str("correlation_id", correlationID).
		Msg("Verification code (log delivery)")
	return nil
}
