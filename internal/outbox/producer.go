package outbox

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// KafkaProducer publishes framed outbox records. One writer serves every
// topic; records keyed by user id hash to the same partition, so a user's
// events stay ordered.
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer. Writer errors are reported
// through logger.
func NewKafkaProducer(brokers []string, logger logrus.FieldLogger) *KafkaProducer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logger.WithField("component", "kafka_producer")
	return &KafkaProducer{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Snappy,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
		ErrorLogger:            kafka.LoggerFunc(log.Errorf),
	}}
}

// WriteMessages publishes msgs to topic and blocks until the brokers ack.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	for i := range msgs {
		msgs[i].Topic = topic
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

// Close flushes and closes the writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
