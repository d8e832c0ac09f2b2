// Package postgres stores study activities in Postgres and appends outbox events
// in the same transaction.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/studystreak/internal/domain"
	"example.com/studystreak/internal/events"
	"example.com/studystreak/internal/observability"
)

// Repository provides Postgres-backed persistence for study activities and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping verifies the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// ListDistinctDates returns the user's activity days, most recent first.
func (r *Repository) ListDistinctDates(ctx context.Context, userID string) ([]time.Time, error) {
	const query = `SELECT DISTINCT activity_date FROM study_activities WHERE user_id = $1 ORDER BY activity_date DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, &domain.StorageError{Op: "list distinct dates", Err: err}
	}
	dates, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (time.Time, error) {
		var d time.Time
		err := row.Scan(&d)
		return domain.DateOf(d), err
	})
	if err != nil {
		return nil, &domain.StorageError{Op: "list distinct dates", Err: err}
	}
	return dates, nil
}

// Upsert writes the day row and its outbox event atomically. created reports
// whether the row was inserted rather than updated.
func (r *Repository) Upsert(ctx context.Context, record domain.ActivityRecord) (created bool, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, &domain.StorageError{Op: "upsert", Err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	const upsert = `INSERT INTO study_activities (user_id, activity_date, activity_type, text_id, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (user_id, activity_date) DO UPDATE
            SET activity_type = EXCLUDED.activity_type,
                text_id = EXCLUDED.text_id,
                updated_at = EXCLUDED.updated_at
        RETURNING (xmax = 0)`

	if err = tx.QueryRow(ctx, upsert,
		record.UserID,
		record.ActivityDate,
		string(record.ActivityType),
		record.TextID,
		record.CreatedAt,
		record.UpdatedAt,
	).Scan(&created); err != nil {
		return false, &domain.StorageError{Op: "upsert", Err: err}
	}

	if err = r.insertOutbox(ctx, tx, record, created); err != nil {
		return false, &domain.StorageError{Op: "append outbox", Err: err}
	}

	if err = tx.Commit(ctx); err != nil {
		return false, &domain.StorageError{Op: "commit", Err: err}
	}
	observability.RecordActivityPersisted(record.UpdatedAt)
	return created, nil
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, record domain.ActivityRecord, created bool) error {
	key := record.Key()
	body, err := json.Marshal(events.StudyActivityRecorded{
		UserID:       record.UserID,
		ActivityDate: domain.FormatDate(record.ActivityDate),
		ActivityType: string(record.ActivityType),
		TextID:       record.TextID,
		FirstOfDay:   created,
		RecordedAt:   record.UpdatedAt,
	})
	if err != nil {
		return err
	}

	dedupeKey := fmt.Sprintf("%s:%d", key, record.UpdatedAt.UnixNano())

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		events.AggregateStudyActivity,
		key.String(),
		events.StudyActivityRecordedType,
		events.StudyActivityTopic,
		events.StudyActivitySubject,
		record.UserID,
		body,
		dedupeKey,
	)
	return err
}
