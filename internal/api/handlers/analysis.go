// Package handlers provides HTTP handlers for the analysis API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/medrex/go-saferx/internal/api/middleware"
	"github.com/medrex/go-saferx/internal/domain/report"
	"github.com/medrex/go-saferx/internal/domain/safety"
	"github.com/medrex/go-saferx/internal/fhir/mapper"
	"github.com/medrex/go-saferx/internal/infrastructure/postgres"
	"github.com/medrex/go-saferx/internal/infrastructure/redpanda"
	"github.com/medrex/go-saferx/pkg/idempotency"
)

// SafetyAnalyzer runs one safety analysis. It always returns a result.
type SafetyAnalyzer interface {
	AnalyzeSafety(ctx context.Context, meds []safety.MedicationItem, patient safety.PatientContext) safety.AnalysisResult
}

// ReportStore persists report aggregates and their events.
type ReportStore interface {
	Save(ctx context.Context, rep *report.Report) error
	SaveWithOutbox(ctx context.Context, rep *report.Report, outbox []*postgres.OutboxEntry) error
	Load(ctx context.Context, id string) (*report.Report, error)
	GetEvents(ctx context.Context, aggregateID string) ([]*report.Event, error)
}

// AnalysisHandler handles analysis endpoints
type AnalysisHandler struct {
	engine SafetyAnalyzer
	store  ReportStore
	logger *zap.Logger
}

// NewAnalysisHandler creates a new handler
func NewAnalysisHandler(engine SafetyAnalyzer, store ReportStore, logger *zap.Logger) *AnalysisHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisHandler{
		engine: engine,
		store:  store,
		logger: logger,
	}
}

// Routes returns the handler routes
func (h *AnalysisHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Analyze)
	r.Post("/async", h.AnalyzeAsync)
	r.Post("/fhir", h.AnalyzeFHIR)
	r.Get("/{id}", h.Get)
	r.Get("/{id}/events", h.GetEvents)
	return r
}

// AnalyzeRequest is the request body for a safety analysis
type AnalyzeRequest struct {
	PatientRef  string                  `json:"patient_ref"`
	RequestedBy string                  `json:"requested_by,omitempty"`
	Medications []safety.MedicationItem `json:"medications"`
	Patient     safety.PatientContext   `json:"patient"`
}

// AnalyzeResponse is the synchronous analysis response
type AnalyzeResponse struct {
	ID     string                `json:"id"`
	Status string                `json:"status"`
	Result safety.AnalysisResult `json:"result"`
}

// AsyncResponse acknowledges an asynchronous analysis request
type AsyncResponse struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"`
	IdempotencyKey string    `json:"idempotency_key"`
	RequestedAt    time.Time `json:"requested_at"`
}

// Analyze handles POST /analyses: run the engine inline and persist the
// completed report.
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("analysis-handler")
	ctx, span := tracer.Start(ctx, "analyze_sync")
	defer span.End()

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Medications) == 0 {
		h.jsonError(w, "medications is required", http.StatusBadRequest)
		return
	}

	h.runAnalysis(ctx, w, span, req)
}

// AnalyzeFHIR handles POST /analyses/fhir: map a FHIR intake bundle and run
// the engine inline.
func (h *AnalysisHandler) AnalyzeFHIR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("analysis-handler")
	ctx, span := tracer.Start(ctx, "analyze_fhir")
	defer span.End()

	var intake mapper.Intake
	if err := json.NewDecoder(r.Body).Decode(&intake); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	meds, patient, err := mapper.ToAnalysisInput(intake)
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.runAnalysis(ctx, w, span, AnalyzeRequest{
		PatientRef:  mapper.PatientRef(intake),
		Medications: meds,
		Patient:     patient,
	})
}

func (h *AnalysisHandler) runAnalysis(ctx context.Context, w http.ResponseWriter, span trace.Span, req AnalyzeRequest) {
	reportID := uuid.New().String()
	span.SetAttributes(
		attribute.String("report_id", reportID),
		attribute.Int("medication_count", len(req.Medications)),
	)

	rep := report.NewReport(reportID)
	if err := rep.Request(&report.AnalysisRequestedData{
		ReportID:    reportID,
		PatientRef:  req.PatientRef,
		RequestedBy: requestedBy(ctx, req),
		Medications: req.Medications,
		Patient:     req.Patient,
		RequestedAt: time.Now().UTC(),
	}); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := rep.Start("api-inline"); err != nil {
		h.jsonError(w, "failed to start analysis", http.StatusInternalServerError)
		return
	}

	started := time.Now()
	result := h.engine.AnalyzeSafety(ctx, req.Medications, req.Patient)

	if err := rep.Complete(result, time.Since(started)); err != nil {
		h.jsonError(w, "failed to record analysis", http.StatusInternalServerError)
		return
	}

	if err := h.store.Save(ctx, rep); err != nil {
		h.logger.Error("save failed", zap.Error(err))
		h.jsonError(w, "failed to save report", http.StatusInternalServerError)
		return
	}

	h.logger.Info("analysis completed",
		zap.String("id", reportID),
		zap.String("source", string(result.Source)),
		zap.String("risk", string(result.OverallRisk)),
		zap.String("request_id", middleware.GetRequestID(ctx)),
	)

	h.writeJSON(w, http.StatusOK, AnalyzeResponse{
		ID:     reportID,
		Status: string(rep.Status()),
		Result: result,
	})
}

// AnalyzeAsync handles POST /analyses/async: persist a requested report and
// hand it to a worker through the outbox.
func (h *AnalysisHandler) AnalyzeAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("analysis-handler")
	ctx, span := tracer.Start(ctx, "analyze_async")
	defer span.End()

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Medications) == 0 {
		h.jsonError(w, "medications is required", http.StatusBadRequest)
		return
	}

	reportID := uuid.New().String()
	span.SetAttributes(attribute.String("report_id", reportID))

	requestedAt := time.Now().UTC()
	data := &report.AnalysisRequestedData{
		ReportID:    reportID,
		PatientRef:  req.PatientRef,
		RequestedBy: requestedBy(ctx, req),
		Medications: req.Medications,
		Patient:     req.Patient,
		RequestedAt: requestedAt,
	}

	rep := report.NewReport(reportID)
	if err := rep.Request(data); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	payload, err := json.Marshal(data)
	if err != nil {
		h.jsonError(w, "failed to encode request", http.StatusInternalServerError)
		return
	}

	medNames := make([]string, len(req.Medications))
	for i, m := range req.Medications {
		medNames[i] = m.Name
	}
	idemKey := idempotency.GenerateKey(req.PatientRef, medNames, requestedAt)

	entry := &postgres.OutboxEntry{
		AggregateID:   reportID,
		AggregateType: "AnalysisReport",
		EventType:     string(report.EventAnalysisRequested),
		Payload:       payload,
		KafkaTopic:    redpanda.TopicAnalysisRequests,
		KafkaKey:      idemKey,
	}

	if err := h.store.SaveWithOutbox(ctx, rep, []*postgres.OutboxEntry{entry}); err != nil {
		h.logger.Error("save failed", zap.Error(err))
		h.jsonError(w, "failed to save report", http.StatusInternalServerError)
		return
	}

	h.logger.Info("analysis queued",
		zap.String("id", reportID),
		zap.String("idempotency_key", idemKey),
		zap.String("request_id", middleware.GetRequestID(ctx)),
	)

	h.writeJSON(w, http.StatusAccepted, AsyncResponse{
		ID:             reportID,
		Status:         string(rep.Status()),
		IdempotencyKey: idemKey,
		RequestedAt:    requestedAt,
	})
}

// Get handles GET /analyses/{id}
func (h *AnalysisHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	rep, err := h.store.Load(ctx, id)
	if err != nil {
		h.jsonError(w, "report not found", http.StatusNotFound)
		return
	}

	resp := map[string]interface{}{
		"id":          rep.ID(),
		"status":      rep.Status(),
		"version":     rep.Version(),
		"patient_ref": rep.PatientRef(),
	}
	if result := rep.Result(); result != nil {
		resp["result"] = result
	}
	if reason := rep.FailReason(); reason != "" {
		resp["fail_reason"] = reason
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetEvents handles GET /analyses/{id}/events
func (h *AnalysisHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	events, err := h.store.GetEvents(ctx, id)
	if err != nil {
		h.jsonError(w, "failed to get events", http.StatusInternalServerError)
		return
	}
	if len(events) == 0 {
		h.jsonError(w, "report not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, events)
}

func requestedBy(ctx context.Context, req AnalyzeRequest) string {
	if req.RequestedBy != "" {
		return req.RequestedBy
	}
	return middleware.GetClientID(ctx)
}

func (h *AnalysisHandler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (h *AnalysisHandler) jsonError(w http.ResponseWriter, message string, code int) {
	h.writeJSON(w, code, map[string]string{"error": message})
}
