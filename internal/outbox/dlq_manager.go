package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

const maxBackoff = time.Hour

// dlqEntry is an outbox_dlq row due for replay. Field order follows dueQuery.
type dlqEntry struct {
	ID            int64
	EventID       int64
	EventType     string
	Topic         string
	Payload       []byte
	Reason        string
	AggregateType string
	AggregateID   string
	SchemaSubject string
	PartitionKey  string
	RetryCount    int
}

const dueQuery = `SELECT dlq_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count
                    FROM outbox_dlq
                   WHERE quarantined_at IS NULL AND (next_retry_at IS NULL OR next_retry_at <= NOW())
                   ORDER BY created_at
                   LIMIT $1`

// DLQManager replays dead-lettered events through the outbox. An entry that
// cannot be requeued backs off exponentially; one that has used up its
// retries is quarantined for manual inspection.
type DLQManager struct {
	pool       *pgxpool.Pool
	logger     logrus.FieldLogger
	maxRetries int
	baseDelay  time.Duration
}

// NewDLQManager constructs a DLQManager. Non-positive limits fall back to
// five retries and a one minute base delay.
func NewDLQManager(pool *pgxpool.Pool, logger logrus.FieldLogger, maxRetries int, baseDelay time.Duration) *DLQManager {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Minute
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DLQManager{
		pool:       pool,
		logger:     logger.WithField("component", "dlq_manager"),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
	}
}

// RunOnce handles up to batchSize due entries and returns how many were
// requeued or quarantined. Per-entry failures are joined into the error.
func (m *DLQManager) RunOnce(ctx context.Context, batchSize int) (int, error) {
	rows, err := m.pool.Query(ctx, dueQuery, batchSize)
	if err != nil {
		return 0, fmt.Errorf("select due dlq entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, pgx.RowToStructByPos[dlqEntry])
	if err != nil {
		return 0, fmt.Errorf("scan dlq entries: %w", err)
	}

	var errs []error
	settled := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		var handleErr error
		if entry.RetryCount >= m.maxRetries {
			handleErr = m.quarantine(ctx, entry)
		} else {
			handleErr = m.requeue(ctx, entry)
		}
		if handleErr != nil {
			errs = append(errs, fmt.Errorf("dlq entry %d: %w", entry.ID, handleErr))
			continue
		}
		settled++
	}
	refreshBacklog(ctx, m.pool)

	err = errors.Join(errs...)
	if settled > 0 || err != nil {
		m.logger.WithError(err).WithFields(logrus.Fields{
			"due":     len(entries),
			"settled": settled,
		}).Info("dlq pass finished")
	}
	return settled, err
}

func (m *DLQManager) quarantine(ctx context.Context, entry dlqEntry) error {
	if _, err := m.pool.Exec(ctx,
		`UPDATE outbox_dlq SET quarantined_at = NOW(), quarantine_reason = $1 WHERE dlq_id = $2`,
		fmt.Sprintf("retry limit %d reached", m.maxRetries), entry.ID,
	); err != nil {
		return err
	}
	countDLQ(entry, outcomeQuarantined)
	m.logger.WithFields(logrus.Fields{
		"dlq_id":   entry.ID,
		"event_id": entry.EventID,
		"topic":    entry.Topic,
		"reason":   entry.Reason,
	}).Warn("dlq entry quarantined")
	return nil
}

// requeue moves the entry back into the outbox, carrying its attempt count so
// a new failure dead-letters it one step closer to quarantine. If the move
// fails the entry stays in the DLQ with its next attempt pushed out by
// backoffDelay.
func (m *DLQManager) requeue(ctx context.Context, entry dlqEntry) error {
	err := pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
		if entry.SchemaSubject == "" {
			return fmt.Errorf("missing schema_subject for dlq entry %d", entry.ID)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dlq_attempts)
             VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			entry.AggregateType, entry.AggregateID, entry.EventType, entry.Topic, entry.SchemaSubject, entry.PartitionKey, entry.Payload,
			entry.RetryCount+1,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM outbox_dlq WHERE dlq_id = $1`, entry.ID)
		return err
	})
	if err == nil {
		countDLQ(entry, outcomeRequeued)
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	delay := backoffDelay(m.baseDelay, entry.RetryCount+1)
	if _, schedErr := m.pool.Exec(ctx,
		`UPDATE outbox_dlq
            SET retry_count = retry_count + 1,
                last_attempt_at = NOW(),
                next_retry_at = NOW() + $1::interval,
                reason = $2
          WHERE dlq_id = $3`,
		delay, err.Error(), entry.ID,
	); schedErr != nil {
		return errors.Join(err, schedErr)
	}
	countDLQ(entry, outcomeRetryScheduled)
	m.logger.WithError(err).WithFields(logrus.Fields{
		"dlq_id":  entry.ID,
		"attempt": entry.RetryCount + 1,
		"delay":   delay.String(),
	}).Warn("dlq requeue failed, retry scheduled")
	return nil
}

// backoffDelay doubles base per attempt, capped at one hour.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 || base >= maxBackoff {
		return maxBackoff
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
