// Package outbox delivers study activity events from the transactional outbox to Kafka.
package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"example.com/studystreak/internal/events"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

type schemaRegistrar interface {
	EnsureSchema(context.Context, string, string) (int, error)
}

// Message is one outbox row.
type Message struct {
	EventID       int64
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	SchemaSubject string
	PartitionKey  string
	Payload       json.RawMessage
	// DLQAttempts counts earlier replays of this event from outbox_dlq.
	DLQAttempts int
}

// failedDelivery pairs a message with the reason it was not published.
type failedDelivery struct {
	msg Message
	err error
}

// Dispatcher polls unpublished outbox rows and publishes them to Kafka.
// Rows that cannot be published are moved to outbox_dlq in the same
// transaction that marks them handled, so no row is both pending and dead.
type Dispatcher struct {
	pool         *pgxpool.Pool
	producer     messageWriter
	registry     schemaRegistrar
	logger       logrus.FieldLogger
	pollInterval time.Duration
	batchSize    int

	mu        sync.Mutex
	schemaIDs map[string]int

	done chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, registry schemaRegistrar, logger logrus.FieldLogger, pollInterval time.Duration, batchSize int) *Dispatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{
		pool:         pool,
		producer:     producer,
		registry:     registry,
		logger:       logger.WithField("component", "outbox_dispatcher"),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		schemaIDs:    make(map[string]int),
		done:         make(chan struct{}),
	}
}

// Start polls until ctx is cancelled. Run it in its own goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.WithError(err).Error("outbox batch failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until Start has returned.
func (d *Dispatcher) Wait() {
	<-d.done
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	messages, err := d.claim(ctx)
	if err != nil || len(messages) == 0 {
		return err
	}
	defer func() { batchSeconds.Observe(time.Since(start).Seconds()) }()

	delivered, failed := d.deliver(ctx, messages)
	for _, f := range failed {
		d.logger.WithError(f.err).WithFields(logrus.Fields{
			"event_id": f.msg.EventID,
			"topic":    f.msg.Topic,
		}).Warn("outbox event not delivered, dead-lettering")
	}

	if err := d.settle(ctx, delivered, failed); err != nil {
		return err
	}
	for topic, n := range countByTopic(delivered) {
		countEvents(topic, resultDelivered, n)
	}
	for _, f := range failed {
		countEvents(f.msg.Topic, resultDeadLettered, 1)
	}
	return nil
}

// claim locks the oldest unpublished rows, stamps claimed_at and returns them.
func (d *Dispatcher) claim(ctx context.Context) ([]Message, error) {
	var messages []Message
	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT event_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dlq_attempts
              FROM outbox
             WHERE published_at IS NULL
             ORDER BY event_id
             LIMIT $1
               FOR UPDATE SKIP LOCKED`, d.batchSize)
		if err != nil {
			return err
		}
		messages, err = pgx.CollectRows(rows, pgx.RowToStructByPos[Message])
		if err != nil || len(messages) == 0 {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, eventIDs(messages))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("claim outbox rows: %w", err)
	}
	return messages, nil
}

// deliver publishes messages grouped by topic, preserving row order inside a
// topic. A message that cannot be encoded fails alone; a failed topic write
// fails every message of that topic.
func (d *Dispatcher) deliver(ctx context.Context, messages []Message) (delivered []Message, failed []failedDelivery) {
	type topicBatch struct {
		rows    []Message
		records []kafka.Message
	}
	batches := make(map[string]*topicBatch)
	var topics []string

	for _, msg := range messages {
		record, err := d.encode(ctx, msg)
		if err != nil {
			failed = append(failed, failedDelivery{msg: msg, err: err})
			continue
		}
		b, ok := batches[msg.Topic]
		if !ok {
			b = &topicBatch{}
			batches[msg.Topic] = b
			topics = append(topics, msg.Topic)
		}
		b.rows = append(b.rows, msg)
		b.records = append(b.records, record)
	}

	for _, topic := range topics {
		b := batches[topic]
		if err := d.producer.WriteMessages(ctx, topic, b.records...); err != nil {
			for _, msg := range b.rows {
				failed = append(failed, failedDelivery{msg: msg, err: fmt.Errorf("write %s: %w", topic, err)})
			}
			continue
		}
		delivered = append(delivered, b.rows...)
	}
	return delivered, failed
}

func (d *Dispatcher) encode(ctx context.Context, msg Message) (kafka.Message, error) {
	schemaID, err := d.schemaID(ctx, msg)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(msg.PartitionKey),
		Value: confluentFrame(schemaID, msg.Payload),
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: events.HeaderEventType, Value: []byte(msg.EventType)},
			{Key: events.HeaderSchemaSubject, Value: []byte(msg.SchemaSubject)},
		},
	}, nil
}

// schemaID resolves and caches the registry id for the message's subject.
func (d *Dispatcher) schemaID(ctx context.Context, msg Message) (int, error) {
	meta, ok := schemaCatalog[msg.EventType]
	if !ok {
		return 0, fmt.Errorf("no schema metadata for event_type=%s", msg.EventType)
	}

	d.mu.Lock()
	id, cached := d.schemaIDs[msg.SchemaSubject]
	d.mu.Unlock()
	if cached {
		return id, nil
	}

	id, err := d.registry.EnsureSchema(ctx, msg.SchemaSubject, meta.Schema)
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	d.schemaIDs[msg.SchemaSubject] = id
	d.mu.Unlock()
	return id, nil
}

// settle dead-letters failures and marks every handled row published.
func (d *Dispatcher) settle(ctx context.Context, delivered []Message, failed []failedDelivery) error {
	handled := append([]Message(nil), delivered...)
	err := pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		for _, f := range failed {
			reason := fmt.Sprintf("%v (topic=%s)", f.err, f.msg.Topic)
			if _, err := tx.Exec(ctx,
				`INSERT INTO outbox_dlq (event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count, next_retry_at)
                 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10, NOW())`,
				f.msg.EventID, f.msg.EventType, f.msg.Topic, f.msg.Payload, reason,
				f.msg.AggregateType, f.msg.AggregateID, f.msg.SchemaSubject, f.msg.PartitionKey, f.msg.DLQAttempts,
			); err != nil {
				return fmt.Errorf("dead-letter event %d: %w", f.msg.EventID, err)
			}
			handled = append(handled, f.msg)
		}
		_, err := tx.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, eventIDs(handled))
		return err
	})
	if err != nil {
		return fmt.Errorf("settle outbox batch: %w", err)
	}
	return nil
}

func eventIDs(messages []Message) []int64 {
	ids := make([]int64, len(messages))
	for i, msg := range messages {
		ids[i] = msg.EventID
	}
	return ids
}

func countByTopic(messages []Message) map[string]int {
	counts := make(map[string]int)
	for _, msg := range messages {
		counts[msg.Topic]++
	}
	return counts
}

// confluentFrame prefixes payload with the magic byte and big-endian schema id.
func confluentFrame(schemaID int, payload []byte) []byte {
	frame := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(frame[1:5], uint32(schemaID))
	copy(frame[5:], payload)
	return frame
}
