// Package report implements the analysis report aggregate.
package report

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/medrex/go-saferx/internal/domain/safety"
)

// Status represents the report lifecycle state
type Status string

const (
	StatusNew       Status = "new"
	StatusRequested Status = "requested"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Report is the analysis report aggregate root. It tracks one safety
// analysis from request through completion, rebuilt from its events.
type Report struct {
	id          string
	version     int
	status      Status
	patientRef  string
	requestedBy string
	medications []safety.MedicationItem
	patient     safety.PatientContext
	result      *safety.AnalysisResult
	failReason  string
	createdAt   time.Time
	updatedAt   time.Time
	changes     []*Event
}

// NewReport creates a new report aggregate
func NewReport(id string) *Report {
	return &Report{
		id:        id,
		status:    StatusNew,
		createdAt: time.Now().UTC(),
		updatedAt: time.Now().UTC(),
		changes:   make([]*Event, 0),
	}
}

// ID returns the aggregate ID
func (r *Report) ID() string { return r.id }

// Version returns the current version
func (r *Report) Version() int { return r.version }

// Status returns the current status
func (r *Report) Status() Status { return r.status }

// PatientRef returns the patient reference the report belongs to
func (r *Report) PatientRef() string { return r.patientRef }

// Medications returns the medication list under analysis
func (r *Report) Medications() []safety.MedicationItem { return r.medications }

// Patient returns the clinical context under analysis
func (r *Report) Patient() safety.PatientContext { return r.patient }

// Result returns the final analysis result, or nil before completion
func (r *Report) Result() *safety.AnalysisResult { return r.result }

// FailReason returns the terminal failure reason, if any
func (r *Report) FailReason() string { return r.failReason }

// Changes returns uncommitted events
func (r *Report) Changes() []*Event { return r.changes }

// ClearChanges clears uncommitted events
func (r *Report) ClearChanges() { r.changes = make([]*Event, 0) }

// Request records the analysis request
func (r *Report) Request(data *AnalysisRequestedData) error {
	if r.status != StatusNew {
		return errors.New("analysis already requested")
	}
	if len(data.Medications) == 0 {
		return errors.New("analysis request requires at least one medication")
	}

	event, err := NewEvent(r.id, EventAnalysisRequested, data)
	if err != nil {
		return err
	}
	event.WithAuditInfo(data.PatientRef, data.RequestedBy)

	r.raise(event)
	return nil
}

// Start marks the engine execution as begun
func (r *Report) Start(worker string) error {
	if r.status != StatusRequested {
		return errors.New("analysis not in requested state")
	}

	event, err := NewEvent(r.id, EventAnalysisStarted, &AnalysisStartedData{
		ReportID:  r.id,
		Worker:    worker,
		StartedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	r.raise(event)
	return nil
}

// Complete records the finished safety analysis
func (r *Report) Complete(result safety.AnalysisResult, duration time.Duration) error {
	if r.status != StatusRunning {
		return errors.New("analysis not running")
	}

	event, err := NewEvent(r.id, EventAnalysisCompleted, &AnalysisCompletedData{
		ReportID:    r.id,
		Result:      result,
		DurationMS:  duration.Milliseconds(),
		CompletedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	event.WithAuditInfo(r.patientRef, r.requestedBy)

	r.raise(event)
	return nil
}

// Fail records a terminal processing failure
func (r *Report) Fail(reason string) error {
	if r.status != StatusRequested && r.status != StatusRunning {
		return errors.New("analysis not in progress")
	}

	event, err := NewEvent(r.id, EventAnalysisFailed, &AnalysisFailedData{
		ReportID: r.id,
		Reason:   reason,
		FailedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	r.raise(event)
	return nil
}

// Cancel withdraws a pending analysis request
func (r *Report) Cancel(reason string) error {
	if r.status != StatusRequested {
		return errors.New("only a pending request can be cancelled")
	}

	event, err := NewEvent(r.id, EventAnalysisCancelled, &AnalysisCancelledData{
		ReportID:    r.id,
		Reason:      reason,
		CancelledAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	r.raise(event)
	return nil
}

func (r *Report) raise(event *Event) {
	r.apply(event)
	r.changes = append(r.changes, event)
}

// apply applies an event to update state
func (r *Report) apply(event *Event) {
	r.version++
	r.updatedAt = event.Timestamp

	switch event.EventType {
	case EventAnalysisRequested:
		var data AnalysisRequestedData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return
		}
		r.status = StatusRequested
		r.patientRef = data.PatientRef
		r.requestedBy = data.RequestedBy
		r.medications = data.Medications
		r.patient = data.Patient

	case EventAnalysisStarted:
		r.status = StatusRunning

	case EventAnalysisCompleted:
		var data AnalysisCompletedData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return
		}
		r.status = StatusCompleted
		r.result = &data.Result

	case EventAnalysisFailed:
		var data AnalysisFailedData
		if err := json.Unmarshal(event.EventData, &data); err != nil {
			return
		}
		r.status = StatusFailed
		r.failReason = data.Reason

	case EventAnalysisCancelled:
		r.status = StatusCancelled
	}
}

// LoadFromHistory rebuilds state from events
func (r *Report) LoadFromHistory(events []*Event) {
	for _, event := range events {
		r.apply(event)
	}
}
