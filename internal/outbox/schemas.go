package outbox

import "example.com/studystreak/internal/events"

const studyActivityRecordedSchema = `{
  "type": "object",
  "title": "StudyActivityRecorded",
  "properties": {
    "user_id": {"type": "string"},
    "activity_date": {"type": "string", "format": "date"},
    "activity_type": {"type": "string", "enum": ["read", "quiz_completed", "word_lookup"]},
    "text_id": {"type": "string"},
    "first_of_day": {"type": "boolean"},
    "recorded_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "activity_date", "activity_type", "first_of_day", "recorded_at"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.StudyActivityRecordedType: {
		Schema: studyActivityRecordedSchema,
	},
}
