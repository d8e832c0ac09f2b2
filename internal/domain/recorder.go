package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"example.com/studystreak/internal/observability"
)

var (
	// ErrInvalidInput marks a record request that failed validation.
	ErrInvalidInput = errors.New("invalid activity input")
	// ErrStorage matches any *StorageError via errors.Is.
	ErrStorage = errors.New("activity store unavailable")
)

// StorageError reports that the activity store was unreachable or rejected an operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("activity store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStorage) match every StorageError.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// ActivityStore is the durable per-user, per-day activity log. Implementations
// must make Upsert atomic on ActivityKey.
type ActivityStore interface {
	// ListDistinctDates returns the user's activity days, most recent first.
	ListDistinctDates(ctx context.Context, userID string) ([]time.Time, error)
	// Upsert inserts the record or, when its key already exists, overwrites
	// ActivityType, TextID and UpdatedAt. created is true for a new row.
	Upsert(ctx context.Context, record ActivityRecord) (created bool, err error)
}

// RecordInput captures one qualifying action.
type RecordInput struct {
	UserID       string
	ActivityType ActivityType
	// Date is the caller's reference day, computed once per request from the Calendar.
	Date   time.Time
	TextID *string
}

// RecordResult describes the effect of a successful Record call.
type RecordResult struct {
	Key     ActivityKey
	Created bool
}

// Option configures a Recorder or Service.
type Option func(*options)

type options struct {
	logger logrus.FieldLogger
	now    func() time.Time
}

// WithLogger overrides the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock overrides the clock used for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger: logrus.StandardLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Recorder turns a qualifying action into an idempotent per-day upsert.
type Recorder struct {
	store  ActivityStore
	logger logrus.FieldLogger
	now    func() time.Time
}

// NewRecorder constructs a Recorder writing to store.
func NewRecorder(store ActivityStore, opts ...Option) *Recorder {
	o := buildOptions(opts)
	return &Recorder{store: store, logger: o.logger, now: o.now}
}

// Record upserts the activity for (UserID, Date). Repeated calls on the same
// day leave exactly one record.
func (r *Recorder) Record(ctx context.Context, in RecordInput) (RecordResult, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return RecordResult{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if !in.ActivityType.Valid() {
		return RecordResult{}, fmt.Errorf("%w: %w: %q", ErrInvalidInput, ErrInvalidActivityType, in.ActivityType)
	}
	if in.Date.IsZero() {
		return RecordResult{}, fmt.Errorf("%w: reference date is required", ErrInvalidInput)
	}

	now := r.now().UTC()
	record := ActivityRecord{
		UserID:       in.UserID,
		ActivityDate: DateOf(in.Date),
		ActivityType: in.ActivityType,
		TextID:       normaliseTextID(in.TextID),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := r.store.Upsert(ctx, record)
	if err != nil {
		observability.RecordActivityOutcome(string(in.ActivityType), observability.OutcomeFailed)
		var storageErr *StorageError
		if errors.As(err, &storageErr) {
			return RecordResult{}, err
		}
		return RecordResult{}, &StorageError{Op: "upsert", Err: err}
	}

	outcome := observability.OutcomeUpdated
	if created {
		outcome = observability.OutcomeCreated
	}
	observability.RecordActivityOutcome(string(in.ActivityType), outcome)

	r.logger.WithFields(logrus.Fields{
		"user_id":       record.UserID,
		"activity_date": FormatDate(record.ActivityDate),
		"activity_type": record.ActivityType,
		"created":       created,
	}).Debug("study activity recorded")

	return RecordResult{Key: record.Key(), Created: created}, nil
}

// RecordBestEffort records the activity and only logs failures. Callers use it
// when the action that triggered the recording must succeed regardless.
func (r *Recorder) RecordBestEffort(ctx context.Context, in RecordInput) {
	if _, err := r.Record(ctx, in); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":       in.UserID,
			"activity_type": in.ActivityType,
		}).Warn("failed to record study activity")
	}
}

func normaliseTextID(id *string) *string {
	if id == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*id)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
