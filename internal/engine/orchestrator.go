// Package engine implements the prescription safety analysis engine: prompt
// construction, resilient invocation of the inference endpoint, response
// interpretation, and the rule-based fallback path.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/medrex/go-saferx/internal/domain/safety"
	"github.com/medrex/go-saferx/internal/observability/metrics"
)

// InferenceClient performs one call to the inference endpoint and returns
// the first completion's message content. It knows nothing about retries
// or fallback.
type InferenceClient interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Engine is the public entry point for safety analysis. It coordinates
// rate limiting, retries of the AI path, and the decision to fall back to
// the rule-based analyzer. One AnalyzeSafety call blocks its goroutine;
// concurrent calls are safe and serialize only on the request gate.
type Engine struct {
	cfg     Config
	client  InferenceClient
	gate    *requestGate
	rules   *safety.RuleAnalyzer
	metrics *metrics.Metrics
	logger  *zap.Logger
	tracer  trace.Tracer
}

// New creates an engine. client may be nil only when cfg.Enabled is false.
// metrics may be nil.
func New(cfg Config, client InferenceClient, m *metrics.Metrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	return &Engine{
		cfg:     cfg,
		client:  client,
		gate:    newRequestGate(cfg.MinRequestInterval),
		rules:   safety.NewRuleAnalyzer(),
		metrics: m,
		logger:  logger,
		tracer:  otel.Tracer("safety-engine"),
	}
}

// AnalyzeSafety produces a safety report for the medication list. It always
// returns a result and never panics: operational failures on the AI path are
// translated into a fallback or an explicit error-status result.
func (e *Engine) AnalyzeSafety(ctx context.Context, meds []safety.MedicationItem, patient safety.PatientContext) safety.AnalysisResult {
	ctx, span := e.tracer.Start(ctx, "analyze_safety",
		trace.WithAttributes(attribute.Int("medication_count", len(meds))))
	defer span.End()

	done := e.metrics.AnalysisStarted()
	defer done()
	started := time.Now()

	if !e.cfg.Enabled || len(meds) == 0 {
		result := safety.NewResult(safety.SourceSystem, safety.RiskLow)
		result.Summary = "No analysis performed: " + e.skipReason(meds)
		e.metrics.ObserveAnalysis(result, time.Since(started))
		return result
	}

	// The prompt is deterministic, so build it once for all attempts.
	prompt := BuildPrompt(meds, patient)

	result, err := e.runInference(ctx, span, prompt)
	if err == nil {
		e.metrics.ObserveAnalysis(result, time.Since(started))
		return result
	}

	if e.cfg.FallbackEnabled {
		e.logger.Warn("inference path exhausted, using rule-based fallback",
			zap.Int("medications", len(meds)),
			zap.Error(err))
		span.SetAttributes(attribute.Bool("fallback", true))
		result = e.rules.Analyze(meds, patient)
		e.metrics.ObserveAnalysis(result, time.Since(started))
		return result
	}

	e.logger.Error("inference path exhausted with fallback disabled", zap.Error(err))
	result = safety.NewResult(safety.SourceError, safety.RiskModerate)
	result.Err = err.Error()
	result.Summary = "Safety analysis unavailable: the inference service could not be reached and fallback is disabled."
	e.metrics.ObserveAnalysis(result, time.Since(started))
	return result
}

// runInference drives the retry loop. It returns the first successfully
// interpreted result, or the last error once attempts are exhausted, a
// non-retryable error occurs, or ctx is cancelled.
func (e *Engine) runInference(ctx context.Context, span trace.Span, prompt string) (safety.AnalysisResult, error) {
	var lastErr error

	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		if err := e.gate.Wait(ctx); err != nil {
			return safety.AnalysisResult{}, fmt.Errorf("rate limit wait: %w", err)
		}

		callStart := time.Now()
		raw, err := e.client.Invoke(ctx, prompt)
		if err == nil {
			e.metrics.ObserveInference("ok", time.Since(callStart))
			span.SetAttributes(attribute.Int("attempts", attempt))

			result, degraded := interpret(raw)
			if degraded {
				e.logger.Warn("inference payload was not valid JSON, used heuristic extraction",
					zap.Int("payload_bytes", len(raw)))
				e.metrics.InterpreterDegradedInc()
			}
			return result, nil
		}

		e.metrics.ObserveInference(outcomeLabel(err), time.Since(callStart))
		e.logger.Warn("inference attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", e.cfg.MaxRetries),
			zap.Error(err))
		lastErr = err

		if !retryable(err) {
			span.SetAttributes(attribute.String("abort", "non_retryable"))
			break
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		if attempt < e.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return safety.AnalysisResult{}, ctx.Err()
			case <-time.After(e.cfg.RetryDelay):
			}
		}
	}

	return safety.AnalysisResult{}, lastErr
}

func (e *Engine) skipReason(meds []safety.MedicationItem) string {
	if len(meds) == 0 {
		return "no medications supplied."
	}
	return "analysis is administratively disabled."
}

func outcomeLabel(err error) string {
	var cfgErr *ConfigurationError
	var transErr *TransportError
	var protoErr *ProtocolError
	switch {
	case errors.As(err, &cfgErr):
		return "configuration_error"
	case errors.As(err, &transErr):
		return "transport_error"
	case errors.As(err, &protoErr):
		return "protocol_error"
	default:
		return "error"
	}
}
