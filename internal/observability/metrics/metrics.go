// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "speech_scoring"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Consumer metrics
	MessagesTotal   *prometheus.CounterVec
	MessageDuration *prometheus.HistogramVec
	MessageRetries  *prometheus.CounterVec

	// Conversion metrics
	ConversionsTotal *prometheus.CounterVec
	AudioSeconds     prometheus.Histogram

	// Recognition metrics
	RecognizerCalls   *prometheus.CounterVec
	RecognizerLatency *prometheus.HistogramVec
	GapsRerun         *prometheus.CounterVec
	SubRangeErrors    *prometheus.CounterVec
	EmptyRecognitions prometheus.Counter
	PhraseSetsCreated prometheus.Counter
	PhraseSetsDeleted prometheus.Counter

	// Scoring metrics
	AnswersScored      *prometheus.CounterVec
	RightCount         prometheus.Histogram
	DuplicateDelivered *prometheus.CounterVec
	ExamsCompleted     prometheus.Counter
	AnalyticsFailures  prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Consumer metrics
		MessagesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Total number of consumed messages by outcome",
		}, []string{"topic", "outcome"}),
		MessageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_duration_seconds",
			Help:      "Time spent handling one consumed message",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"topic"}),
		MessageRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "message_retries_total",
			Help:      "Total number of handler retries",
		}, []string{"topic"}),

		// Conversion metrics
		ConversionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Total number of audio conversions by outcome",
		}, []string{"outcome"}),
		AudioSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_audio_seconds",
			Help:      "Duration of converted answer recordings",
			Buckets:   []float64{1, 5, 10, 20, 30, 60, 120, 300, 600},
		}),

		// Recognition metrics
		RecognizerCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognizer_calls_total",
			Help:      "Total number of speech recognizer calls by recursion depth",
		}, []string{"provider", "depth"}),
		RecognizerLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recognizer_latency_seconds",
			Help:      "Speech recognizer call latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),
		GapsRerun: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gaps_rerun_total",
			Help:      "Total number of gap sub-ranges re-submitted for recognition",
		}, []string{"kind"}),
		SubRangeErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subrange_errors_total",
			Help:      "Sub-range failures converted into empty results",
		}, []string{"step"}),
		EmptyRecognitions: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "empty_recognitions_total",
			Help:      "Recognizer calls that returned no usable alternative",
		}),
		PhraseSetsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phrase_sets_created_total",
			Help:      "Total number of phrase sets created",
		}),
		PhraseSetsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phrase_sets_deleted_total",
			Help:      "Total number of phrase sets deleted",
		}),

		// Scoring metrics
		AnswersScored: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_scored_total",
			Help:      "Total number of answers scored by question type",
		}, []string{"question_type"}),
		RightCount: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_right_count",
			Help:      "Number of expected words credited per answer",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),
		DuplicateDelivered: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_deliveries_total",
			Help:      "Redelivered messages processed as no-ops",
		}, []string{"reason"}),
		ExamsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exams_completed_total",
			Help:      "Total number of exam completions transitioned to FINISHED",
		}),
		AnalyticsFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_failures_total",
			Help:      "Total number of analytic records that could not be submitted",
		}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordMessage records a consumed message outcome (ok, retried, deadletter, invalid).
func (m *Metrics) RecordMessage(topic, outcome string, durationSeconds float64) {
	m.MessagesTotal.WithLabelValues(topic, outcome).Inc()
	m.MessageDuration.WithLabelValues(topic).Observe(durationSeconds)
}

// RecordRetry records a handler retry.
func (m *Metrics) RecordRetry(topic string) {
	m.MessageRetries.WithLabelValues(topic).Inc()
}

// RecordConversion records a conversion outcome (passthrough, transcoded, unsupported, failed).
func (m *Metrics) RecordConversion(outcome string, durationSeconds float64) {
	m.ConversionsTotal.WithLabelValues(outcome).Inc()
	if durationSeconds > 0 {
		m.AudioSeconds.Observe(durationSeconds)
	}
}

// RecordRecognizerCall records one recognizer round trip.
func (m *Metrics) RecordRecognizerCall(provider string, depth int, latencySeconds float64) {
	m.RecognizerCalls.WithLabelValues(provider, strconv.Itoa(depth)).Inc()
	m.RecognizerLatency.WithLabelValues(provider).Observe(latencySeconds)
}

// RecordGapRerun records a re-submitted sub-range (kind is word or trailing).
func (m *Metrics) RecordGapRerun(kind string) {
	m.GapsRerun.WithLabelValues(kind).Inc()
}

// RecordSubRangeError records a contained sub-range failure.
func (m *Metrics) RecordSubRangeError(step string) {
	m.SubRangeErrors.WithLabelValues(step).Inc()
}

// RecordEmptyRecognition records a recognizer call without alternatives.
func (m *Metrics) RecordEmptyRecognition() {
	m.EmptyRecognitions.Inc()
}

// RecordPhraseSet records a phrase set lifecycle event.
func (m *Metrics) RecordPhraseSet(created bool) {
	if created {
		m.PhraseSetsCreated.Inc()
	} else {
		m.PhraseSetsDeleted.Inc()
	}
}

// RecordScore records a finished answer.
func (m *Metrics) RecordScore(questionType string, rightCount int) {
	m.AnswersScored.WithLabelValues(questionType).Inc()
	m.RightCount.Observe(float64(rightCount))
}

// RecordDuplicate records a redelivery handled as a no-op.
func (m *Metrics) RecordDuplicate(reason string) {
	m.DuplicateDelivered.WithLabelValues(reason).Inc()
}

// RecordExamCompleted records an exam completion transition.
func (m *Metrics) RecordExamCompleted() {
	m.ExamsCompleted.Inc()
}

// RecordAnalyticsFailure records a failed analytics submission.
func (m *Metrics) RecordAnalyticsFailure() {
	m.AnalyticsFailures.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
