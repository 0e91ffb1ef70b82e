package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"speech-scoring-service/internal/observability/logging"
	"speech-scoring-service/internal/observability/metrics"
	"speech-scoring-service/internal/schema"
)

// Handler processes one consumed message. Returning nil acknowledges it.
type Handler func(ctx context.Context, msg kafka.Message) error

// DeadLetterer receives messages whose handling failed for good.
type DeadLetterer interface {
	PublishDeadLetter(ctx context.Context, msg kafka.Message, reason string) error
}

// messageReader is the subset of *kafka.Reader used by the consumer.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	Topic       string
	MaxAttempts int
	Backoff     time.Duration

	// Permanent reports handler errors that retrying cannot fix. Such
	// messages are dead-lettered at once, like invalid messages.
	Permanent func(error) bool
}

// Consumer delivers messages of one topic to a handler at least once.
// Offsets are committed only after the handler succeeded or the message
// was dead-lettered, so a crash mid-handling leads to redelivery.
type Consumer struct {
	reader      messageReader
	topic       string
	handler     Handler
	deadLetter  DeadLetterer
	maxAttempts int
	backoff     time.Duration
	permanent   func(error) bool
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

// NewConsumer creates a consumer group reader for cfg.Topic.
func NewConsumer(cfg ConsumerConfig, handler Handler, deadLetter DeadLetterer) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // synchronous commits
		StartOffset:    kafka.FirstOffset,
	})
	return newConsumer(reader, cfg, handler, deadLetter)
}

func newConsumer(reader messageReader, cfg ConsumerConfig, handler Handler, deadLetter DeadLetterer) *Consumer {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Consumer{
		reader:      reader,
		topic:       cfg.Topic,
		handler:     handler,
		deadLetter:  deadLetter,
		maxAttempts: attempts,
		backoff:     backoff,
		permanent:   cfg.Permanent,
		metrics:     metrics.DefaultMetrics,
		log:         logging.WithComponent("consumer").With().Str("topic", cfg.Topic).Logger(),
	}
}

// Run fetches and handles messages until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().Int("maxAttempts", c.maxAttempts).Msg("Consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info().Msg("Consumer stopped")
				return nil
			}
			c.log.Error().Err(err).Msg("Kafka fetch error")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if err := c.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error().Err(err).Int64("offset", msg.Offset).Msg("Kafka commit error")
		}
	}
}

// process runs the handler with retries. A nil return means the message may
// be committed.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	start := time.Now()
	msgLog := logging.WithMessage(msg.Topic, msg.Partition, msg.Offset)

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		lastErr = c.handler(ctx, msg)
		if lastErr == nil {
			c.metrics.RecordMessage(c.topic, "ok", time.Since(start).Seconds())
			return nil
		}
		if errors.Is(lastErr, schema.ErrInvalidMessage) {
			msgLog.Warn().Err(lastErr).Msg("Invalid message")
			c.metrics.RecordMessage(c.topic, "invalid", time.Since(start).Seconds())
			return c.deadLetter.PublishDeadLetter(ctx, msg, lastErr.Error())
		}
		if c.permanent != nil && c.permanent(lastErr) {
			msgLog.Error().Err(lastErr).Msg("Permanent handler failure")
			c.metrics.RecordMessage(c.topic, "rejected", time.Since(start).Seconds())
			return c.deadLetter.PublishDeadLetter(ctx, msg, lastErr.Error())
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		msgLog.Warn().Err(lastErr).Int("attempt", attempt).Msg("Handler failed")
		if attempt == c.maxAttempts {
			break
		}
		c.metrics.RecordRetry(c.topic)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * c.backoff):
		}
	}

	msgLog.Error().Err(lastErr).Int("attempts", c.maxAttempts).Msg("Giving up on message")
	c.metrics.RecordMessage(c.topic, "deadletter", time.Since(start).Seconds())
	if err := c.deadLetter.PublishDeadLetter(ctx, msg, lastErr.Error()); err != nil {
		return fmt.Errorf("dead letter: %w", err)
	}
	return nil
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// JSON adapts a typed stage function into a Handler. Payloads that fail to
// decode or validate are reported as schema.ErrInvalidMessage.
func JSON[T any](validate func(T) error, fn func(context.Context, T) error) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var v T
		if err := json.Unmarshal(msg.Value, &v); err != nil {
			return fmt.Errorf("%w: decode: %v", schema.ErrInvalidMessage, err)
		}
		if validate != nil {
			if err := validate(v); err != nil {
				return err
			}
		}
		return fn(ctx, v)
	}
}
