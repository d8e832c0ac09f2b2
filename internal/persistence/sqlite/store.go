// Package sqlite is the single-file development backend for study activities.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"example.com/studystreak/internal/domain"
	"example.com/studystreak/internal/observability"
)

const timestampLayout = time.RFC3339Nano

// Store keeps study activities in SQLite.
type Store struct {
	db *sqlx.DB
}

// Open creates the database file if needed and returns a Store. Call EnsureSchema before use.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; serialising here keeps upserts atomic.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// EnsureSchema creates the activity table if it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS study_activities (
			user_id TEXT NOT NULL,
			activity_date TEXT NOT NULL,
			activity_type TEXT NOT NULL,
			text_id TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE(user_id, activity_date)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ListDistinctDates returns the user's activity days, most recent first.
func (s *Store) ListDistinctDates(ctx context.Context, userID string) ([]time.Time, error) {
	var raw []string
	if err := s.db.SelectContext(ctx, &raw,
		`SELECT DISTINCT activity_date FROM study_activities WHERE user_id = ? ORDER BY activity_date DESC`, userID,
	); err != nil {
		return nil, &domain.StorageError{Op: "list distinct dates", Err: err}
	}

	dates := make([]time.Time, 0, len(raw))
	for _, value := range raw {
		d, err := domain.ParseDate(value)
		if err != nil {
			return nil, &domain.StorageError{Op: "list distinct dates", Err: fmt.Errorf("parse %q: %w", value, err)}
		}
		dates = append(dates, d)
	}
	return dates, nil
}

type activityRow struct {
	UserID       string  `db:"user_id"`
	ActivityDate string  `db:"activity_date"`
	ActivityType string  `db:"activity_type"`
	TextID       *string `db:"text_id"`
	CreatedAt    string  `db:"created_at"`
	UpdatedAt    string  `db:"updated_at"`
}

// Upsert inserts the day row or overwrites type, text id and updated_at of the existing one.
func (s *Store) Upsert(ctx context.Context, record domain.ActivityRecord) (created bool, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, &domain.StorageError{Op: "upsert", Err: err}
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	row := activityRow{
		UserID:       record.UserID,
		ActivityDate: domain.FormatDate(record.ActivityDate),
		ActivityType: string(record.ActivityType),
		TextID:       record.TextID,
		CreatedAt:    record.CreatedAt.UTC().Format(timestampLayout),
		UpdatedAt:    record.UpdatedAt.UTC().Format(timestampLayout),
	}

	res, err := tx.NamedExecContext(ctx,
		`INSERT INTO study_activities (user_id, activity_date, activity_type, text_id, created_at, updated_at)
		 VALUES (:user_id, :activity_date, :activity_type, :text_id, :created_at, :updated_at)
		 ON CONFLICT (user_id, activity_date) DO NOTHING`, row)
	if err != nil {
		return false, &domain.StorageError{Op: "upsert", Err: err}
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, &domain.StorageError{Op: "upsert", Err: err}
	}

	if inserted == 0 {
		if _, err = tx.NamedExecContext(ctx,
			`UPDATE study_activities
			    SET activity_type = :activity_type, text_id = :text_id, updated_at = :updated_at
			  WHERE user_id = :user_id AND activity_date = :activity_date`, row); err != nil {
			return false, &domain.StorageError{Op: "upsert", Err: err}
		}
	}

	if err = tx.Commit(); err != nil {
		return false, &domain.StorageError{Op: "commit", Err: err}
	}
	observability.RecordActivityPersisted(record.UpdatedAt)
	return inserted == 1, nil
}

// Get returns the stored record for key, or nil when none exists.
func (s *Store) Get(ctx context.Context, key domain.ActivityKey) (*domain.ActivityRecord, error) {
	var rows []activityRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT user_id, activity_date, activity_type, text_id, created_at, updated_at
		   FROM study_activities WHERE user_id = ? AND activity_date = ?`,
		key.UserID, domain.FormatDate(key.Date),
	); err != nil {
		return nil, &domain.StorageError{Op: "get", Err: err}
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toRecord()
}

func (r activityRow) toRecord() (*domain.ActivityRecord, error) {
	date, err := domain.ParseDate(r.ActivityDate)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(timestampLayout, r.CreatedAt)
	if err != nil {
		return nil, err
	}
	updatedAt, err := time.Parse(timestampLayout, r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &domain.ActivityRecord{
		UserID:       r.UserID,
		ActivityDate: date,
		ActivityType: domain.ActivityType(r.ActivityType),
		TextID:       r.TextID,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}
