package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ActivityType names the qualifying action behind an activity record. It is
// informational only and never changes streak math.
type ActivityType string

const (
	ActivityTypeRead          ActivityType = "read"
	ActivityTypeQuizCompleted ActivityType = "quiz_completed"
	ActivityTypeWordLookup    ActivityType = "word_lookup"
)

// ErrInvalidActivityType is returned for values outside the closed set.
var ErrInvalidActivityType = errors.New("invalid activity type")

// ParseActivityType validates raw against the known activity types.
func ParseActivityType(raw string) (ActivityType, error) {
	switch t := ActivityType(strings.TrimSpace(raw)); t {
	case ActivityTypeRead, ActivityTypeQuizCompleted, ActivityTypeWordLookup:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidActivityType, raw)
	}
}

// Valid reports whether t belongs to the closed set.
func (t ActivityType) Valid() bool {
	_, err := ParseActivityType(string(t))
	return err == nil
}

// ActivityKey is the uniqueness key of an activity record: one row per user
// per calendar day.
type ActivityKey struct {
	UserID string
	Date   time.Time
}

// NewActivityKey normalises date to a calendar day.
func NewActivityKey(userID string, date time.Time) ActivityKey {
	return ActivityKey{UserID: userID, Date: DateOf(date)}
}

// String renders the key as user:YYYY-MM-DD.
func (k ActivityKey) String() string {
	return k.UserID + ":" + FormatDate(k.Date)
}

// ActivityRecord marks that a user did something qualifying on a calendar day.
// A second activity on the same day overwrites ActivityType and TextID but never
// ActivityDate or CreatedAt.
type ActivityRecord struct {
	UserID       string
	ActivityDate time.Time
	ActivityType ActivityType
	TextID       *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Key returns the record's uniqueness key.
func (r ActivityRecord) Key() ActivityKey {
	return NewActivityKey(r.UserID, r.ActivityDate)
}
