// Package events provides Kafka publishing and consuming for pipeline stage messages.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"speech-scoring-service/internal/observability/metrics"
	"speech-scoring-service/internal/schema"
)

// Publisher publishes pipeline events to one Kafka topic per stage.
type Publisher struct {
	writerConversion  *kafka.Writer
	writerRecognition *kafka.Writer
	writerAnalytics   *kafka.Writer
	writerDeadLetter  *kafka.Writer
	principal         string
	topicConversion   string
	topicRecognition  string
	topicAnalytics    string
	topicDeadLetter   string
	enabled           bool
	metrics           *metrics.Metrics
	validator         *schema.Validator
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers          []string
	TopicConversion  string
	TopicRecognition string
	TopicAnalytics   string
	TopicDeadLetter  string
	Principal        string
	Enabled          bool
}

// New creates a new Kafka event publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	// Handle nil config case
	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled:   false,
			metrics:   m,
			validator: schema.New(),
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:        cfg.Principal,
			topicConversion:  cfg.TopicConversion,
			topicRecognition: cfg.TopicRecognition,
			topicAnalytics:   cfg.TopicAnalytics,
			topicDeadLetter:  cfg.TopicDeadLetter,
			enabled:          false,
			metrics:          m,
			validator:        schema.New(),
		}
	}

	// Create a custom dialer with longer timeouts for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireAll,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicConversion", cfg.TopicConversion).
		Str("topicRecognition", cfg.TopicRecognition).
		Str("topicAnalytics", cfg.TopicAnalytics).
		Str("topicDeadLetter", cfg.TopicDeadLetter).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerConversion:  newWriter(cfg.TopicConversion),
		writerRecognition: newWriter(cfg.TopicRecognition),
		writerAnalytics:   newWriter(cfg.TopicAnalytics),
		writerDeadLetter:  newWriter(cfg.TopicDeadLetter),
		principal:         cfg.Principal,
		topicConversion:   cfg.TopicConversion,
		topicRecognition:  cfg.TopicRecognition,
		topicAnalytics:    cfg.TopicAnalytics,
		topicDeadLetter:   cfg.TopicDeadLetter,
		enabled:           true,
		metrics:           m,
		validator:         schema.New(),
	}
}

// PublishConversion publishes a conversion request. Requests the conversion
// stage would reject are not sent.
func (p *Publisher) PublishConversion(ctx context.Context, key string, event any) error {
	if err := p.validator.Validate(event); err != nil {
		return err
	}
	return p.publish(ctx, p.writerConversion, p.topicConversion, "conversion", key, event)
}

// PublishRecognition publishes a "reprocessed" recognition request.
func (p *Publisher) PublishRecognition(ctx context.Context, key string, event any) error {
	if err := p.validator.Validate(event); err != nil {
		return err
	}
	return p.publish(ctx, p.writerRecognition, p.topicRecognition, "recognition", key, event)
}

// PublishAnalytics publishes an analytic record to the analytics sink topic.
func (p *Publisher) PublishAnalytics(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerAnalytics, p.topicAnalytics, "analytics", key, event)
}

// PublishDeadLetter forwards a message that could not be handled, unchanged,
// with the source topic and failure reason as headers.
func (p *Publisher) PublishDeadLetter(ctx context.Context, msg kafka.Message, reason string) error {
	start := time.Now()

	log.Warn().
		Str("topic", p.topicDeadLetter).
		Str("sourceTopic", msg.Topic).
		Str("key", string(msg.Key)).
		Str("reason", reason).
		Msg("Dead-lettering message")

	if !p.enabled || p.writerDeadLetter == nil {
		p.metrics.RecordKafkaPublish(p.topicDeadLetter, "deadletter", nil, time.Since(start).Seconds())
		return nil
	}

	dead := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: "sourceTopic", Value: []byte(msg.Topic)},
			kafka.Header{Key: "failureReason", Value: []byte(reason)},
			kafka.Header{Key: "principal", Value: []byte(p.principal)},
		),
	}
	err := p.writerDeadLetter.WriteMessages(ctx, dead)
	if err != nil {
		log.Error().Err(err).Str("topic", p.topicDeadLetter).Msg("Failed to write dead letter")
	}
	p.metrics.RecordKafkaPublish(p.topicDeadLetter, "deadletter", err, time.Since(start).Seconds())
	return err
}

// publish is the internal method that writes to a specific Kafka writer.
func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	// Log the event
	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes all Kafka writers.
func (p *Publisher) Close() error {
	var err error
	for name, w := range map[string]*kafka.Writer{
		"conversion":  p.writerConversion,
		"recognition": p.writerRecognition,
		"analytics":   p.writerAnalytics,
		"deadletter":  p.writerDeadLetter,
	} {
		if w == nil {
			continue
		}
		if e := w.Close(); e != nil {
			log.Error().Err(e).Str("writer", name).Msg("Error closing writer")
			err = e
		}
	}
	return err
}
