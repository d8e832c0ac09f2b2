package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Activity recording outcomes.
const (
	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
	OutcomeFailed  = "failed"
)

var (
	activitiesRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "study_streak",
		Subsystem: "recorder",
		Name:      "activities_recorded_total",
		Help:      "Study activity record attempts by activity type and outcome.",
	}, []string{"activity_type", "outcome"})
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "study_streak",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent study activity persisted.",
	})
	streakReadFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "study_streak",
		Subsystem: "streak",
		Name:      "history_read_failures_total",
		Help:      "Streak reads that fell back to an empty snapshot because history was unavailable.",
	})
	currentStreakLength = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "study_streak",
		Subsystem: "streak",
		Name:      "current_length_days",
		Help:      "Distribution of current streak lengths served to clients.",
		Buckets:   []float64{0, 1, 3, 7, 14, 30, 60, 100, 365},
	})
)

func init() {
	prometheus.MustRegister(activitiesRecorded, activityPersistGauge, streakReadFailures, currentStreakLength)
}

// RecordActivityOutcome counts one record attempt.
func RecordActivityOutcome(activityType, outcome string) {
	activitiesRecorded.WithLabelValues(activityType, outcome).Inc()
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// RecordStreakReadFailure counts a streak read served from the empty fallback.
func RecordStreakReadFailure() {
	streakReadFailures.Inc()
}

// ObserveStreak records the current streak length of a served snapshot.
func ObserveStreak(days int) {
	currentStreakLength.Observe(float64(days))
}
