package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/loclio/identity-recovery/domain"
	pmetrics "github.com/loclio/identity-recovery/internal/metrics"
)

// detectionBackoff is the fixed retry schedule, not an exponential
// multiplier: no sleep before the first retry beyond 0ms, then 200ms, 500ms.
var detectionBackoff = []time.Duration{0, 200 * time.Millisecond, 500 * time.Millisecond}

// detectionP95Target is the latency target; slower detections log a
// performance warning.
const detectionP95Target = 200 * time.Millisecond

// DetectorOptions bound one detection call.
type DetectorOptions struct {
	MaxRetries        int
	PerAttemptTimeout time.Duration
}

// DefaultDetectorOptions mirror the sign-in path defaults.
func DefaultDetectorOptions() DetectorOptions {
	return DetectorOptions{MaxRetries: 3, PerAttemptTimeout: 500 * time.Millisecond}
}

// DetectionError is the fail-closed outcome of a detection that exhausted
// its retries. The caller must treat it as "cannot authenticate", never as
// "not orphaned".
type DetectionError struct {
	Metrics domain.DetectionMetrics
	Err     error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("orphan detection failed after %d attempts: %v", e.Metrics.Attempts, e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }

// OrphanDetector classifies an identity as orphaned or not by querying the
// two application existence relations in parallel.
type OrphanDetector struct {
	members  domain.MembershipRepository
	profiles domain.ProfileRepository
	opts     DetectorOptions

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// NewOrphanDetector creates a detector.
func NewOrphanDetector(members domain.MembershipRepository, profiles domain.ProfileRepository, opts DetectorOptions) *OrphanDetector {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.PerAttemptTimeout <= 0 {
		opts.PerAttemptTimeout = DefaultDetectorOptions().PerAttemptTimeout
	}
	return &OrphanDetector{
		members:  members,
		profiles: profiles,
		opts:     opts,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

type existenceResult struct {
	exists bool
	err    error
}

// checkOnce runs both existence checks concurrently under a single deadline.
// Both must complete before the deadline for the attempt to count.
func (d *OrphanDetector) checkOnce(ctx context.Context, identityID string) (hasPrimary, hasSecondary bool, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.opts.PerAttemptTimeout)
	defer cancel()

	primaryCh := make(chan existenceResult, 1)
	secondaryCh := make(chan existenceResult, 1)

	go func() {
		exists, checkErr := d.members.ExistsForOwner(attemptCtx, identityID)
		primaryCh <- existenceResult{exists: exists, err: checkErr}
	}()
	go func() {
		exists, checkErr := d.profiles.ExistsForSubject(attemptCtx, identityID)
		secondaryCh <- existenceResult{exists: exists, err: checkErr}
	}()

	primary := <-primaryCh
	secondary := <-secondaryCh

	if primary.err != nil {
		return false, false, fmt.Errorf("primary existence check: %w", primary.err)
	}
	if secondary.err != nil {
		return false, false, fmt.Errorf("secondary existence check: %w", secondary.err)
	}
	return primary.exists, secondary.exists, nil
}

// Detect classifies the identity. It retries transient failures on the fixed
// backoff schedule and fails closed with *DetectionError once retries are
// exhausted. Timing metrics are emitted on every outcome.
func (d *OrphanDetector) Detect(ctx context.Context, identityID, correlationID string) (*domain.OrphanClassification, error) {
	metrics := domain.DetectionMetrics{
		CorrelationID: correlationID,
		StartedAt:     d.now(),
	}

	var (
		lastErr  error
		timedOut bool
		hadError bool
	)
	for attempt := 0; attempt <= d.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := detectionBackoff[len(detectionBackoff)-1]
			if attempt-1 < len(detectionBackoff) {
				backoff = detectionBackoff[attempt-1]
			}
			d.sleep(ctx, backoff)
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		attemptStart := d.now()
		hasPrimary, hasSecondary, err := d.checkOnce(ctx, identityID)
		metrics.Attempts = attempt + 1
		metrics.AttemptDurations = append(metrics.AttemptDurations, d.now().Sub(attemptStart))

		if err == nil {
			metrics.CompletedAt = d.now()
			d.emitMetrics(metrics, true)
			countDetection(!hasPrimary && !hasSecondary)

			return &domain.OrphanClassification{
				IsOrphaned:         !hasPrimary && !hasSecondary,
				HasPrimaryRecord:   hasPrimary,
				HasSecondaryRecord: hasSecondary,
				TimedOut:           timedOut,
				HadError:           hadError,
				Metrics:            metrics,
			}, nil
		}
		lastErr = err
		hadError = true
		if errors.Is(err, context.DeadlineExceeded) {
			timedOut = true
		}
	}

	metrics.CompletedAt = d.now()
	d.emitMetrics(metrics, false)

	// Fail closed: the caller must block authentication, not assume
	// "not orphaned".
	if pmetrics.DetectionsTotal != nil {
		pmetrics.DetectionsTotal.WithLabelValues("failed").Inc()
		pmetrics.DetectionFailClosedTotal.Inc()
	}
	return nil, &DetectionError{Metrics: metrics, Err: lastErr}
}

func countDetection(orphaned bool) {
	if pmetrics.DetectionsTotal == nil {
		return
	}
	if orphaned {
		pmetrics.DetectionsTotal.WithLabelValues("orphaned").Inc()
	} else {
		pmetrics.DetectionsTotal.WithLabelValues("clean").Inc()
	}
}

// VerifyOrphaned is the single authoritative check used by the cleanup
// coordinator: one attempt, both relations, no retry policy.
func (d *OrphanDetector) VerifyOrphaned(ctx context.Context, identityID string) (bool, error) {
	hasPrimary, hasSecondary, err := d.checkOnce(ctx, identityID)
	if err != nil {
		return false, err
	}
	return !hasPrimary && !hasSecondary, nil
}

func (d *OrphanDetector) emitMetrics(metrics domain.DetectionMetrics, ok bool) {
	total := metrics.TotalDuration()
	if pmetrics.DetectionDuration != nil {
		pmetrics.DetectionDuration.Observe(total.Seconds())
	}

	event := log.Info()
	if !ok {
		event = log.Error()
	} else if total > detectionP95Target {
		event = log.Warn()
	}
	event.
		Str("correlation_id", metrics.CorrelationID).
		Dur("total_duration", total).
		Int("attempts", metrics.Attempts).
		Durs("attempt_durations", metrics.AttemptDurations).
		Bool("succeeded", ok).
		Bool("over_latency_target", total > detectionP95Target).
		Msg("Orphan detection finished")
}
