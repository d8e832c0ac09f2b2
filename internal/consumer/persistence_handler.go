package consumer

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/studystreak/internal/events"
)

// PersistenceHandler appends consumed study events to study_event_log for auditing.
type PersistenceHandler struct {
	pool *pgxpool.Pool
}

// NewPersistenceHandler constructs a handler backed by the provided pool.
func NewPersistenceHandler(pool *pgxpool.Pool) *PersistenceHandler {
	return &PersistenceHandler{pool: pool}
}

// Handle stores the event. Redelivered offsets are ignored.
func (h *PersistenceHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != events.StudyActivityRecordedType {
		return nil
	}
	evt, day, err := decodeRecorded(msg)
	if err != nil {
		return err
	}

	_, err = h.pool.Exec(ctx,
		`INSERT INTO study_event_log (topic, partition, kafka_offset, event_type, user_id, activity_date, activity_type, first_of_day, payload)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
         ON CONFLICT (topic, partition, kafka_offset) DO NOTHING`,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.EventType,
		evt.UserID,
		day,
		evt.ActivityType,
		evt.FirstOfDay,
		msg.Payload,
	)
	if err != nil {
		return fmt.Errorf("append study_event_log: %w", err)
	}
	return nil
}
