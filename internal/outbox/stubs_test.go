package outbox

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"
)

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: append([]kafka.Message(nil), msgs...)})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []schemaCall
}

type schemaCall struct {
	subject string
	schema  string
}

func (s *stubRegistry) EnsureSchema(_ context.Context, subject string, schema string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, schemaCall{subject: subject, schema: schema})
	if s.err != nil {
		return 0, s.err
	}
	if s.id == 0 {
		s.id = 1
	}
	return s.id, nil
}
