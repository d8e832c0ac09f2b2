package consumer

import (
	"encoding/binary"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/studystreak/internal/domain"
	"example.com/studystreak/internal/events"
)

// DecodeError marks a record that can never be handled. The processor
// commits past it.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return "undecodable record: " + e.Reason }

// Message is a Kafka record with its Confluent framing and headers unpacked.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	Key           string
	EventType     string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

func decodeMessage(record kafka.Message) (Message, error) {
	if len(record.Value) < 5 {
		return Message{}, &DecodeError{Reason: "value shorter than wire header"}
	}
	if magic := record.Value[0]; magic != 0 {
		return Message{}, &DecodeError{Reason: "unknown magic byte " + strconv.Itoa(int(magic))}
	}

	headers := make(map[string]string, len(record.Headers))
	for _, h := range record.Headers {
		headers[h.Key] = string(h.Value)
	}
	eventType := headers[events.HeaderEventType]
	if eventType == "" {
		return Message{}, &DecodeError{Reason: "missing " + events.HeaderEventType + " header"}
	}

	payload := record.Value[5:]
	if !json.Valid(payload) {
		return Message{}, &DecodeError{Reason: "payload is not valid json"}
	}

	return Message{
		Topic:         record.Topic,
		Partition:     record.Partition,
		Offset:        record.Offset,
		Timestamp:     record.Time,
		Key:           string(record.Key),
		EventType:     eventType,
		SchemaSubject: headers[events.HeaderSchemaSubject],
		SchemaID:      int(binary.BigEndian.Uint32(record.Value[1:5])),
		Payload:       json.RawMessage(append([]byte(nil), payload...)),
	}, nil
}

// decodeRecorded unpacks a study_activity.recorded payload. Its failures are
// DecodeErrors: retrying cannot fix a malformed payload.
func decodeRecorded(msg Message) (events.StudyActivityRecorded, time.Time, error) {
	var evt events.StudyActivityRecorded
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return evt, time.Time{}, &DecodeError{Reason: msg.EventType + ": " + err.Error()}
	}
	if evt.UserID == "" {
		return evt, time.Time{}, &DecodeError{Reason: msg.EventType + ": missing user_id"}
	}
	day, err := domain.ParseDate(evt.ActivityDate)
	if err != nil {
		return evt, time.Time{}, &DecodeError{Reason: msg.EventType + ": activity_date: " + err.Error()}
	}
	return evt, day, nil
}
