// Package r5 provides the FHIR R5 data structures the safety analysis
// intake accepts.
package r5

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MedicationRequest represents a FHIR R5 MedicationRequest resource. This
// is the primary intake resource: each active request becomes one
// medication on the analysis list.
type MedicationRequest struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id,omitempty"`
	Meta         *Meta  `json:"meta,omitempty"`

	Identifier []Identifier `json:"identifier,omitempty"`

	Status       string           `json:"status"` // active | on-hold | cancelled | completed | entered-in-error | stopped | draft | unknown
	StatusReason *CodeableConcept `json:"statusReason,omitempty"`

	Intent string `json:"intent"` // proposal | plan | order | original-order | reflex-order | filler-order | instance-order | option

	Category []CodeableConcept `json:"category,omitempty"`

	Priority string `json:"priority,omitempty"` // routine | urgent | asap | stat

	DoNotPerform bool `json:"doNotPerform,omitempty"`

	// Medication being requested (R5 uses CodeableReference)
	Medication CodeableReference `json:"medication"`

	// Subject (patient) for whom the medication is prescribed
	Subject Reference `json:"subject"`

	Encounter *Reference `json:"encounter,omitempty"`

	AuthoredOn time.Time `json:"authoredOn"`

	Requester *Reference `json:"requester,omitempty"`

	Reason []CodeableReference `json:"reason,omitempty"`

	Note []Annotation `json:"note,omitempty"`

	// Rendered dosage instruction (human-readable sig)
	RenderedDosageInstruction string `json:"renderedDosageInstruction,omitempty"`

	DosageInstruction []Dosage `json:"dosageInstruction,omitempty"`
}

// Dosage contains dosage instructions for the medication.
type Dosage struct {
	Sequence                 int               `json:"sequence,omitempty"`
	Text                     string            `json:"text,omitempty"`
	AdditionalInstruction    []CodeableConcept `json:"additionalInstruction,omitempty"`
	PatientInstruction       string            `json:"patientInstruction,omitempty"`
	Timing                   *Timing           `json:"timing,omitempty"`
	AsNeeded                 bool              `json:"asNeeded,omitempty"`
	AsNeededFor              []CodeableConcept `json:"asNeededFor,omitempty"`
	Site                     *CodeableConcept  `json:"site,omitempty"`
	Route                    *CodeableConcept  `json:"route,omitempty"`
	Method                   *CodeableConcept  `json:"method,omitempty"`
	DoseAndRate              []DoseAndRate     `json:"doseAndRate,omitempty"`
	MaxDosePerPeriod         []Ratio           `json:"maxDosePerPeriod,omitempty"`
	MaxDosePerAdministration *Quantity         `json:"maxDosePerAdministration,omitempty"`
	MaxDosePerLifetime       *Quantity         `json:"maxDosePerLifetime,omitempty"`
}

// DoseAndRate contains dose/rate information.
type DoseAndRate struct {
	Type         *CodeableConcept `json:"type,omitempty"`
	DoseRange    *Range           `json:"doseRange,omitempty"`
	DoseQuantity *Quantity        `json:"doseQuantity,omitempty"`
	RateRatio    *Ratio           `json:"rateRatio,omitempty"`
	RateRange    *Range           `json:"rateRange,omitempty"`
	RateQuantity *Quantity        `json:"rateQuantity,omitempty"`
}

// Timing contains timing information for dosage.
type Timing struct {
	Event  []time.Time      `json:"event,omitempty"`
	Repeat *TimingRepeat    `json:"repeat,omitempty"`
	Code   *CodeableConcept `json:"code,omitempty"`
}

// TimingRepeat contains repeat details for timing.
type TimingRepeat struct {
	BoundsDuration *Duration `json:"boundsDuration,omitempty"`
	BoundsRange    *Range    `json:"boundsRange,omitempty"`
	BoundsPeriod   *Period   `json:"boundsPeriod,omitempty"`
	Count          int       `json:"count,omitempty"`
	CountMax       int       `json:"countMax,omitempty"`
	Duration       float64   `json:"duration,omitempty"`
	DurationMax    float64   `json:"durationMax,omitempty"`
	DurationUnit   string    `json:"durationUnit,omitempty"`
	Frequency      int       `json:"frequency,omitempty"`
	FrequencyMax   int       `json:"frequencyMax,omitempty"`
	Period         float64   `json:"period,omitempty"`
	PeriodMax      float64   `json:"periodMax,omitempty"`
	PeriodUnit     string    `json:"periodUnit,omitempty"`
	DayOfWeek      []string  `json:"dayOfWeek,omitempty"`
	TimeOfDay      []string  `json:"timeOfDay,omitempty"`
	When           []string  `json:"when,omitempty"`
	Offset         int       `json:"offset,omitempty"`
}

// GetPatientID extracts the patient ID from the Subject reference.
func (m *MedicationRequest) GetPatientID() string {
	if m.Subject.Reference != "" {
		return extractIDFromReference(m.Subject.Reference)
	}
	return ""
}

// GetRxNorm extracts the RxNorm CUI from the medication.
func (m *MedicationRequest) GetRxNorm() string {
	if m.Medication.Concept == nil {
		return ""
	}
	for _, coding := range m.Medication.Concept.Coding {
		if coding.System == SystemRxNorm {
			return coding.Code
		}
	}
	return ""
}

// GetMedicationDisplay returns the display name of the medication.
func (m *MedicationRequest) GetMedicationDisplay() string {
	if m.Medication.Concept != nil && m.Medication.Concept.Text != "" {
		return m.Medication.Concept.Text
	}
	if m.Medication.Concept != nil && len(m.Medication.Concept.Coding) > 0 {
		return m.Medication.Concept.Coding[0].Display
	}
	return ""
}

// GetGenericName returns the RxNorm coding display when it differs from
// the branded display text, which is how generics usually surface.
func (m *MedicationRequest) GetGenericName() string {
	if m.Medication.Concept == nil {
		return ""
	}
	display := m.GetMedicationDisplay()
	for _, coding := range m.Medication.Concept.Coding {
		if coding.System == SystemRxNorm && coding.Display != "" && coding.Display != display {
			return coding.Display
		}
	}
	return ""
}

// GetDoseText renders the first dose quantity as "value unit", e.g. "5 mg".
func (m *MedicationRequest) GetDoseText() string {
	for _, d := range m.DosageInstruction {
		for _, dr := range d.DoseAndRate {
			if q := dr.DoseQuantity; q != nil && q.Value != 0 {
				unit := q.Unit
				if unit == "" {
					unit = q.Code
				}
				return strings.TrimSpace(fmt.Sprintf("%s %s", trimFloat(q.Value), unit))
			}
		}
	}
	return ""
}

// GetFrequencyText renders the first timing repeat as "N x per period",
// e.g. "2 x per day", or falls back to the timing code text.
func (m *MedicationRequest) GetFrequencyText() string {
	for _, d := range m.DosageInstruction {
		if d.Timing == nil {
			continue
		}
		if r := d.Timing.Repeat; r != nil && r.Frequency > 0 {
			period := periodUnitName(r.PeriodUnit)
			if r.Period > 1 {
				return fmt.Sprintf("%d x per %s %ss", r.Frequency, trimFloat(r.Period), period)
			}
			return fmt.Sprintf("%d x per %s", r.Frequency, period)
		}
		if d.Timing.Code != nil && d.Timing.Code.Text != "" {
			return d.Timing.Code.Text
		}
	}
	return ""
}

// GetSigText returns the rendered dosage instruction (sig).
func (m *MedicationRequest) GetSigText() string {
	if m.RenderedDosageInstruction != "" {
		return m.RenderedDosageInstruction
	}
	if len(m.DosageInstruction) > 0 && m.DosageInstruction[0].Text != "" {
		return m.DosageInstruction[0].Text
	}
	return ""
}

// IsActiveOrder reports whether this request should enter the analysis:
// an active order that is not flagged do-not-perform.
func (m *MedicationRequest) IsActiveOrder() bool {
	return m.Status == StatusActive && !m.DoNotPerform
}

// ToJSON serializes the MedicationRequest to JSON.
func (m *MedicationRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FromJSON deserializes a MedicationRequest from JSON.
func (m *MedicationRequest) FromJSON(data []byte) error {
	return json.Unmarshal(data, m)
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

func periodUnitName(code string) string {
	switch code {
	case "s":
		return "second"
	case "min":
		return "minute"
	case "h":
		return "hour"
	case "d", "":
		return "day"
	case "wk":
		return "week"
	case "mo":
		return "month"
	case "a":
		return "year"
	}
	return code
}

// extractIDFromReference extracts the ID from a FHIR reference string.
func extractIDFromReference(ref string) string {
	// Handles "Patient/123" and "urn:uuid:123".
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == '/' || ref[i] == ':' {
			return ref[i+1:]
		}
	}
	return ref
}
