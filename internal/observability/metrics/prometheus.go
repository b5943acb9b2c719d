// Package metrics provides Prometheus metrics for the safety analysis service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medrex/go-saferx/internal/domain/safety"
)

// Metrics holds all application metrics. A nil *Metrics is valid and records
// nothing, so library code never has to guard its instrumentation calls.
type Metrics struct {
	AnalysesCompleted     *prometheus.CounterVec
	InferenceAttempts     *prometheus.CounterVec
	InterpreterDegraded   prometheus.Counter
	FindingsEmitted       *prometheus.CounterVec
	AnalysesInFlight      prometheus.Gauge
	AnalysisDuration      prometheus.Histogram
	InferenceDuration     prometheus.Histogram
	KafkaMessagesProduced prometheus.Counter
	KafkaMessagesConsumed prometheus.Counter
	OutboxPending         prometheus.Gauge
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates and registers all metrics on the default registry. Call once
// per process.
func New() *Metrics {
	m := &Metrics{
		AnalysesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safety_analyses_completed_total",
			Help: "Total completed safety analyses by result provenance",
		}, []string{"source"}),
		InferenceAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inference_attempts_total",
			Help: "Total inference endpoint attempts by outcome",
		}, []string{"outcome"}),
		InterpreterDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "interpreter_degraded_total",
			Help: "Inference payloads that required heuristic text extraction",
		}),
		FindingsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safety_findings_emitted_total",
			Help: "Total findings emitted by kind",
		}, []string{"kind"}),
		AnalysesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "safety_analyses_in_flight",
			Help: "Analyses currently executing",
		}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "safety_analysis_duration_seconds",
			Help:    "End-to-end analysis duration including retries and fallback",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		InferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "inference_roundtrip_duration_seconds",
			Help:    "Single inference call round-trip duration",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		KafkaMessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_produced_total",
			Help: "Total Kafka messages produced",
		}),
		KafkaMessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kafka_messages_consumed_total",
			Help: "Total Kafka messages consumed",
		}),
		OutboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "outbox_pending_entries",
			Help: "Pending outbox entries",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	prometheus.MustRegister(
		m.AnalysesCompleted,
		m.InferenceAttempts,
		m.InterpreterDegraded,
		m.FindingsEmitted,
		m.AnalysesInFlight,
		m.AnalysisDuration,
		m.InferenceDuration,
		m.KafkaMessagesProduced,
		m.KafkaMessagesConsumed,
		m.OutboxPending,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAnalysis records one finished analysis.
func (m *Metrics) ObserveAnalysis(result safety.AnalysisResult, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.AnalysesCompleted.WithLabelValues(string(result.Source)).Inc()
	m.AnalysisDuration.Observe(elapsed.Seconds())
	m.FindingsEmitted.WithLabelValues("interaction").Add(float64(len(result.Interactions)))
	m.FindingsEmitted.WithLabelValues("allergy").Add(float64(len(result.Allergies)))
	m.FindingsEmitted.WithLabelValues("contraindication").Add(float64(len(result.Contraindications)))
	m.FindingsEmitted.WithLabelValues("alternative").Add(float64(len(result.Alternatives)))
	m.FindingsEmitted.WithLabelValues("monitoring").Add(float64(len(result.Monitoring)))
}

// ObserveInference records one inference endpoint attempt.
func (m *Metrics) ObserveInference(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.InferenceAttempts.WithLabelValues(outcome).Inc()
	m.InferenceDuration.Observe(elapsed.Seconds())
}

// AnalysisStarted marks an analysis in flight; the returned func clears it.
func (m *Metrics) AnalysisStarted() func() {
	if m == nil {
		return func() {}
	}
	m.AnalysesInFlight.Inc()
	return m.AnalysesInFlight.Dec
}

// InterpreterDegradedInc records one payload that needed heuristic text
// extraction instead of JSON decoding.
func (m *Metrics) InterpreterDegradedInc() {
	if m == nil {
		return
	}
	m.InterpreterDegraded.Inc()
}

// MessageProduced records one message handed to the broker.
func (m *Metrics) MessageProduced() {
	if m == nil {
		return
	}
	m.KafkaMessagesProduced.Inc()
}

// MessageConsumed records one message taken from the broker.
func (m *Metrics) MessageConsumed() {
	if m == nil {
		return
	}
	m.KafkaMessagesConsumed.Inc()
}

// SetOutboxPending records the size of the unrelayed outbox backlog.
func (m *Metrics) SetOutboxPending(n float64) {
	if m == nil {
		return
	}
	m.OutboxPending.Set(n)
}

// SetBreakerState records a circuit breaker state transition.
func (m *Metrics) SetBreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(state)
}
