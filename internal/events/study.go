// Package events defines the payloads the study streak service publishes.
package events

import "time"

// Event types and routing for study activity events.
const (
	AggregateStudyActivity = "study_activity"

	StudyActivityRecordedType = "study_activity.recorded"
	StudyActivityTopic        = "study_activity_events"
	StudyActivitySubject      = StudyActivityTopic + "-value"
)

// Kafka header names attached to every published event.
const (
	HeaderEventType     = "event_type"
	HeaderSchemaSubject = "schema_subject"
)

// StudyActivityRecorded is emitted whenever a user's day row is created or updated.
// FirstOfDay is true only for the action that created the row.
type StudyActivityRecorded struct {
	UserID       string    `json:"user_id"`
	ActivityDate string    `json:"activity_date"`
	ActivityType string    `json:"activity_type"`
	TextID       *string   `json:"text_id,omitempty"`
	FirstOfDay   bool      `json:"first_of_day"`
	RecordedAt   time.Time `json:"recorded_at"`
}
