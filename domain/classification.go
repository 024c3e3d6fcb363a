package domain

import "time"

// OrphanClassification is the result of one detection call. It is produced
// fresh on every call and never cached server-side.
type OrphanClassification struct {
	IsOrphaned         bool `json:"isOrphaned"`
	HasPrimaryRecord   bool `json:"hasPrimaryRecord"`
	HasSecondaryRecord bool `json:"hasSecondaryRecord"`
	TimedOut           bool `json:"timedOut"`
	HadError           bool `json:"hadError"`

	Metrics DetectionMetrics `json:"metrics"`
}

// DetectionMetrics carries the timing data emitted with every detection
// outcome, success or failure.
type DetectionMetrics struct {
	CorrelationID    string          `json:"correlationId"`
	StartedAt        time.Time       `json:"startedAt"`
	CompletedAt      time.Time       `json:"completedAt"`
	Attempts         int             `json:"attempts"`
	AttemptDurations []time.Duration `json:"attemptDurations"`
}

// TotalDuration is the wall-clock span of the whole detection call,
// including backoff sleeps between attempts.
func (m DetectionMetrics) TotalDuration() time.Duration {
	return m.CompletedAt.Sub(m.StartedAt)
}
