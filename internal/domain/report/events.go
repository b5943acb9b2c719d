// Package report implements the analysis report aggregate and domain events.
package report

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/medrex/go-saferx/internal/domain/safety"
)

// EventType represents the type of domain event
type EventType string

const (
	EventAnalysisRequested EventType = "AnalysisRequested"
	EventAnalysisStarted   EventType = "AnalysisStarted"
	EventAnalysisCompleted EventType = "AnalysisCompleted"
	EventAnalysisFailed    EventType = "AnalysisFailed"
	EventAnalysisCancelled EventType = "AnalysisCancelled"
)

// Event represents a domain event
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     EventType       `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	Version       int             `json:"version"`
	Timestamp     time.Time       `json:"timestamp"`
	PatientRef    string          `json:"patient_ref,omitempty"`
	RequestedBy   string          `json:"requested_by,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

// NewEvent creates a new event
func NewEvent(aggregateID string, eventType EventType, data interface{}) (*Event, error) {
	eventData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: "AnalysisReport",
		EventType:     eventType,
		EventData:     eventData,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// WithAuditInfo sets audit fields
func (e *Event) WithAuditInfo(patientRef, requestedBy string) *Event {
	e.PatientRef = patientRef
	e.RequestedBy = requestedBy
	return e
}

// AnalysisRequestedData contains the analysis request details
type AnalysisRequestedData struct {
	ReportID    string                  `json:"report_id"`
	PatientRef  string                  `json:"patient_ref"`
	RequestedBy string                  `json:"requested_by,omitempty"`
	Medications []safety.MedicationItem `json:"medications"`
	Patient     safety.PatientContext   `json:"patient"`
	RequestedAt time.Time               `json:"requested_at"`
}

// AnalysisStartedData marks the beginning of engine execution
type AnalysisStartedData struct {
	ReportID  string    `json:"report_id"`
	Worker    string    `json:"worker,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// AnalysisCompletedData carries the final safety report
type AnalysisCompletedData struct {
	ReportID    string                `json:"report_id"`
	Result      safety.AnalysisResult `json:"result"`
	DurationMS  int64                 `json:"duration_ms"`
	CompletedAt time.Time             `json:"completed_at"`
}

// AnalysisFailedData records a terminal processing failure
type AnalysisFailedData struct {
	ReportID string    `json:"report_id"`
	Reason   string    `json:"reason"`
	FailedAt time.Time `json:"failed_at"`
}

// AnalysisCancelledData records a caller-initiated cancellation
type AnalysisCancelledData struct {
	ReportID    string    `json:"report_id"`
	Reason      string    `json:"reason,omitempty"`
	CancelledAt time.Time `json:"cancelled_at"`
}
