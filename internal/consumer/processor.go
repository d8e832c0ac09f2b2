// Package consumer reads study activity events from Kafka and dispatches them to handlers.
package consumer

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Reader is the subset of *kafka.Reader the processor uses.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages.
type Handler interface {
	Handle(context.Context, Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(context.Context, Message) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Option configures a Processor.
type Option func(*Processor)

// WithLogger overrides the logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithRetryBackoff sets the first and the longest pause between handler
// attempts on the same record.
func WithRetryBackoff(initial, max time.Duration) Option {
	return func(p *Processor) {
		p.retryInitial = initial
		p.retryMax = max
	}
}

// Processor consumes one reader. A record is committed only after its
// handler succeeds, so a failing handler is retried on the same record with
// capped backoff and later records of the partition wait behind it.
// Undecodable records are committed and skipped.
type Processor struct {
	reader       Reader
	handler      Handler
	logger       logrus.FieldLogger
	retryInitial time.Duration
	retryMax     time.Duration
}

// NewProcessor constructs a Processor.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:       reader,
		handler:      handler,
		logger:       logrus.StandardLogger(),
		retryInitial: 250 * time.Millisecond,
		retryMax:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithField("component", "consumer")
	return p
}

// Run consumes until ctx is done or the reader fails permanently.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.WithError(err).Warn("fetch failed")
			if err := sleep(ctx, p.retryInitial); err != nil {
				return err
			}
			continue
		}

		log := p.logger.WithFields(logrus.Fields{"topic": record.Topic, "partition": record.Partition, "offset": record.Offset})

		msg, err := decodeMessage(record)
		if err != nil {
			log.WithError(err).Warn("skipping record")
			countMessage(record.Topic, "", resultDecodeError)
			p.commit(ctx, log, record)
			continue
		}

		if err := p.handleWithRetry(ctx, log, msg); err != nil {
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				return err
			}
			log.WithError(err).WithField("event_type", msg.EventType).Warn("skipping record")
			countMessage(msg.Topic, msg.EventType, resultDecodeError)
			p.commit(ctx, log, record)
			continue
		}
		if p.commit(ctx, log, record) {
			markProcessed(msg)
		}
	}
}

// handleWithRetry returns nil once the handler succeeds, a *DecodeError the
// handler raised, or ctx's error.
func (p *Processor) handleWithRetry(ctx context.Context, log logrus.FieldLogger, msg Message) error {
	delay := p.retryInitial
	for attempt := 1; ; attempt++ {
		err := p.handler.Handle(ctx, msg)
		if err == nil {
			return nil
		}
		var decodeErr *DecodeError
		if errors.As(err, &decodeErr) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		countMessage(msg.Topic, msg.EventType, resultHandlerError)
		log.WithError(err).WithFields(logrus.Fields{
			"event_type": msg.EventType,
			"attempt":    attempt,
			"retry_in":   delay.String(),
		}).Error("handler failed")

		if err := sleep(ctx, delay); err != nil {
			return err
		}
		delay = min(delay*2, p.retryMax)
	}
}

func (p *Processor) commit(ctx context.Context, log logrus.FieldLogger, record kafka.Message) bool {
	if err := p.reader.CommitMessages(ctx, record); err != nil {
		log.WithError(err).Error("commit failed")
		return false
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
