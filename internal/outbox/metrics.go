package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultDelivered    = "delivered"
	resultDeadLettered = "dead_lettered"

	outcomeRequeued       = "requeued"
	outcomeQuarantined    = "quarantined"
	outcomeRetryScheduled = "retry_scheduled"
)

var (
	outboxEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "study_streak",
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Outbox events handled by the dispatcher, by topic and result.",
	}, []string{"topic", "result"})

	batchSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "study_streak",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Wall time of one non-empty dispatcher batch.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqEntries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "study_streak",
		Subsystem: "dlq",
		Name:      "entries_total",
		Help:      "Dead-letter entries handled by the DLQ manager, by topic and outcome.",
	}, []string{"topic", "outcome"})

	dlqBacklog = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "study_streak",
		Subsystem: "dlq",
		Name:      "backlog",
		Help:      "Dead-letter entries still awaiting replay.",
	})
)

func init() {
	prometheus.MustRegister(outboxEvents, batchSeconds, dlqEntries, dlqBacklog)
}

func countEvents(topic, result string, n int) {
	outboxEvents.WithLabelValues(topic, result).Add(float64(n))
}

func countDLQ(entry dlqEntry, outcome string) {
	dlqEntries.WithLabelValues(entry.Topic, outcome).Inc()
}

func refreshBacklog(ctx context.Context, pool *pgxpool.Pool) {
	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NULL`).Scan(&count); err != nil {
		return
	}
	dlqBacklog.Set(float64(count))
}
