package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/medrex/go-saferx/internal/domain/report"
	"github.com/medrex/go-saferx/internal/domain/safety"
	"github.com/medrex/go-saferx/internal/infrastructure/postgres"
)

// fakeAnalyzer returns a canned result and records inputs.
type fakeAnalyzer struct {
	result safety.AnalysisResult
	calls  int
	meds   []safety.MedicationItem
}

func (f *fakeAnalyzer) AnalyzeSafety(ctx context.Context, meds []safety.MedicationItem, patient safety.PatientContext) safety.AnalysisResult {
	f.calls++
	f.meds = meds
	return f.result
}

// fakeStore keeps reports in memory.
type fakeStore struct {
	reports map[string][]*report.Event
	outbox  []*postgres.OutboxEntry
	failOn  string
}

func newFakeStore() *fakeStore {
	return &fakeStore{reports: make(map[string][]*report.Event)}
}

func (s *fakeStore) Save(ctx context.Context, rep *report.Report) error {
	return s.SaveWithOutbox(ctx, rep, nil)
}

func (s *fakeStore) SaveWithOutbox(ctx context.Context, rep *report.Report, outbox []*postgres.OutboxEntry) error {
	if s.failOn == "save" {
		return errors.New("store unavailable")
	}
	s.reports[rep.ID()] = append(s.reports[rep.ID()], rep.Changes()...)
	s.outbox = append(s.outbox, outbox...)
	rep.ClearChanges()
	return nil
}

func (s *fakeStore) Load(ctx context.Context, id string) (*report.Report, error) {
	events, ok := s.reports[id]
	if !ok {
		return nil, fmt.Errorf("report not found: %s", id)
	}
	rep := report.NewReport(id)
	rep.LoadFromHistory(events)
	return rep, nil
}

func (s *fakeStore) GetEvents(ctx context.Context, aggregateID string) ([]*report.Event, error) {
	return s.reports[aggregateID], nil
}

func analyzeBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(AnalyzeRequest{
		PatientRef: "Patient/123",
		Medications: []safety.MedicationItem{
			{Name: "Warfarin 5mg"},
			{Name: "Aspirin 81mg"},
		},
		Patient: safety.PatientContext{Age: 71},
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return body
}

func TestAnalyze_ReturnsResultAndPersists(t *testing.T) {
	analyzer := &fakeAnalyzer{result: safety.NewResult(safety.SourceAI, safety.RiskHigh)}
	store := newFakeStore()
	h := NewAnalysisHandler(analyzer, store, nil)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(analyzeBody(t)))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp AnalyzeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID == "" {
		t.Fatal("response missing report ID")
	}
	if resp.Status != string(report.StatusCompleted) {
		t.Fatalf("expected completed status, got %q", resp.Status)
	}
	if resp.Result.OverallRisk != safety.RiskHigh {
		t.Fatalf("unexpected risk %q", resp.Result.OverallRisk)
	}
	if analyzer.calls != 1 {
		t.Fatalf("expected one engine call, got %d", analyzer.calls)
	}

	// Requested, Started, Completed.
	if events := store.reports[resp.ID]; len(events) != 3 {
		t.Fatalf("expected 3 persisted events, got %d", len(events))
	}
}

func TestAnalyze_RejectsEmptyMedications(t *testing.T) {
	h := NewAnalysisHandler(&fakeAnalyzer{}, newFakeStore(), nil)

	body, _ := json.Marshal(AnalyzeRequest{PatientRef: "Patient/123"})
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAnalyze_RejectsMalformedBody(t *testing.T) {
	h := NewAnalysisHandler(&fakeAnalyzer{}, newFakeStore(), nil)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAnalyze_StoreFailure(t *testing.T) {
	store := newFakeStore()
	store.failOn = "save"
	h := NewAnalysisHandler(&fakeAnalyzer{result: safety.NewResult(safety.SourceAI, safety.RiskLow)}, store, nil)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(analyzeBody(t)))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestAnalyzeAsync_QueuesThroughOutbox(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	store := newFakeStore()
	h := NewAnalysisHandler(analyzer, store, nil)

	req := httptest.NewRequest(http.MethodPost, "/async", bytes.NewReader(analyzeBody(t)))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp AsyncResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != string(report.StatusRequested) {
		t.Fatalf("expected requested status, got %q", resp.Status)
	}
	if resp.IdempotencyKey == "" {
		t.Fatal("expected idempotency key")
	}

	if analyzer.calls != 0 {
		t.Fatal("async request must not run the engine inline")
	}
	if len(store.outbox) != 1 {
		t.Fatalf("expected 1 outbox entry, got %d", len(store.outbox))
	}
	entry := store.outbox[0]
	if entry.KafkaTopic != "analysis.requests" {
		t.Fatalf("unexpected topic %q", entry.KafkaTopic)
	}
	if entry.AggregateID != resp.ID {
		t.Fatalf("outbox entry aggregate %q != report %q", entry.AggregateID, resp.ID)
	}

	var data report.AnalysisRequestedData
	if err := json.Unmarshal(entry.Payload, &data); err != nil {
		t.Fatalf("outbox payload not a request event: %v", err)
	}
	if len(data.Medications) != 2 {
		t.Fatalf("payload should carry the medication list, got %d", len(data.Medications))
	}
}

func TestGet_ReturnsPersistedReport(t *testing.T) {
	store := newFakeStore()
	h := NewAnalysisHandler(&fakeAnalyzer{}, store, nil)

	rep := report.NewReport("rpt-42")
	if err := rep.Request(&report.AnalysisRequestedData{
		ReportID:    "rpt-42",
		PatientRef:  "Patient/9",
		Medications: []safety.MedicationItem{{Name: "Metformin 500mg"}},
		RequestedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if err := store.Save(context.Background(), rep); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/rpt-42", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["id"] != "rpt-42" || resp["status"] != string(report.StatusRequested) {
		t.Fatalf("unexpected body %v", resp)
	}
}

func TestGet_NotFound(t *testing.T) {
	h := NewAnalysisHandler(&fakeAnalyzer{}, newFakeStore(), nil)

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetEvents_NotFound(t *testing.T) {
	h := NewAnalysisHandler(&fakeAnalyzer{}, newFakeStore(), nil)

	req := httptest.NewRequest(http.MethodGet, "/missing/events", nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAnalyzeFHIR_MapsAndAnalyzes(t *testing.T) {
	analyzer := &fakeAnalyzer{result: safety.NewResult(safety.SourceAI, safety.RiskModerate)}
	store := newFakeStore()
	h := NewAnalysisHandler(analyzer, store, nil)

	body := []byte(`{
		"patient": {"resourceType": "Patient", "id": "pat-7", "gender": "male", "birthDate": "1950-01-15"},
		"medicationRequests": [{
			"resourceType": "MedicationRequest",
			"status": "active",
			"intent": "order",
			"medication": {"concept": {"text": "Warfarin 5mg"}},
			"subject": {"reference": "Patient/pat-7"}
		}]
	}`)

	req := httptest.NewRequest(http.MethodPost, "/fhir", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if analyzer.calls != 1 {
		t.Fatalf("expected one engine call, got %d", analyzer.calls)
	}
	if len(analyzer.meds) != 1 || analyzer.meds[0].Name != "Warfarin 5mg" {
		t.Fatalf("mapped medications wrong: %+v", analyzer.meds)
	}
}

func TestAnalyzeFHIR_MappingErrorIs400(t *testing.T) {
	h := NewAnalysisHandler(&fakeAnalyzer{}, newFakeStore(), nil)

	// No patient resource.
	body := []byte(`{"medicationRequests": []}`)
	req := httptest.NewRequest(http.MethodPost, "/fhir", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
