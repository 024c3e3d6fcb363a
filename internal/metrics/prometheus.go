package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	DetectionsTotal          *prometheus.CounterVec
	DetectionDuration        prometheus.Histogram
	DetectionFailClosedTotal prometheus.Counter
	CleanupRequestsTotal     *prometheus.CounterVec
	RateLimitRejectionsTotal *prometheus.CounterVec
	IdentitiesDeletedTotal   prometheus.Counter
)

// InitCustomMetrics initializes and registers the service metrics.
// It should be called once at application startup.
func InitCustomMetrics(reg prometheus.Registerer) {
	DetectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recovery_detections_total",
		Help: "Total orphan detection calls by outcome (orphaned, clean, failed).",
	}, []string{"outcome"})
	DetectionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "recovery_detection_duration_seconds",
		Help:    "Wall-clock duration of orphan detection calls.",
		Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5},
	})
	DetectionFailClosedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recovery_detection_fail_closed_total",
		Help: "Detections that exhausted retries and blocked sign-in.",
	})
	CleanupRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recovery_cleanup_requests_total",
		Help: "Cleanup coordinator calls by phase and wire code (empty code = success).",
	}, []string{"phase", "code"})
	RateLimitRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recovery_rate_limit_rejections_total",
		Help: "Requests rejected by the admission tiers.",
	}, []string{"tier"})
	IdentitiesDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "recovery_identities_deleted_total",
		Help: "Orphaned identities deleted through the cleanup protocol.",
	})

	if reg != nil {
		for _, c := range []prometheus.Collector{
			DetectionsTotal,
			DetectionDuration,
			DetectionFailClosedTotal,
			CleanupRequestsTotal,
			RateLimitRejectionsTotal,
			IdentitiesDeletedTotal,
		} {
			if err := reg.Register(c); err != nil {
				log.Warn().Err(err).Msg("Failed to register metric")
			}
		}
	}
}
