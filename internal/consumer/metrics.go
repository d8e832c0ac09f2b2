package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultProcessed    = "processed"
	resultHandlerError = "handler_error"
	resultDecodeError  = "decode_error"
)

var (
	messagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "study_streak",
		Subsystem: "consumer",
		Name:      "messages_total",
		Help:      "Kafka records seen by the consumer, by topic, event type and result. Handler errors count every failed attempt.",
	}, []string{"topic", "event_type", "result"})

	lastProcessed = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "study_streak",
		Subsystem: "consumer",
		Name:      "last_processed_timestamp_seconds",
		Help:      "Kafka timestamp of the newest committed record per topic.",
	}, []string{"topic"})

	milestonesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "study_streak",
		Subsystem: "consumer",
		Name:      "milestones_reached_total",
		Help:      "Streak milestones reached, by badge.",
	}, []string{"badge"})
)

func init() {
	prometheus.MustRegister(messagesTotal, lastProcessed, milestonesTotal)
}

func countMessage(topic, eventType, result string) {
	messagesTotal.WithLabelValues(topic, eventType, result).Inc()
}

func markProcessed(msg Message) {
	countMessage(msg.Topic, msg.EventType, resultProcessed)
	if !msg.Timestamp.IsZero() {
		lastProcessed.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}
