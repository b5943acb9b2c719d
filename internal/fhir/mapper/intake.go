// Package mapper converts FHIR R5 intake bundles into the flat medication
// list and patient context the safety engine consumes.
package mapper

import (
	"fmt"
	"strings"
	"time"

	"github.com/medrex/go-saferx/internal/domain/safety"
	"github.com/medrex/go-saferx/internal/fhir/r5"
)

// MapError describes a single intake mapping failure.
type MapError struct {
	Field   string
	Code    string
	Message string
}

func (e *MapError) Error() string {
	return fmt.Sprintf("intake mapping failed: %s (%s): %s", e.Field, e.Code, e.Message)
}

// Intake is one analysis request expressed as FHIR resources. Patient is
// required; Allergies and Conditions are optional context.
type Intake struct {
	MedicationRequests []r5.MedicationRequest  `json:"medicationRequests"`
	Patient            *r5.Patient             `json:"patient"`
	Allergies          []r5.AllergyIntolerance `json:"allergies,omitempty"`
	Conditions         []r5.Condition          `json:"conditions,omitempty"`
}

// ToAnalysisInput converts the intake to engine inputs. Only active,
// performable medication requests are included; inactive allergy and
// condition records are dropped. It returns a MapError when the intake
// cannot yield a valid analysis request.
func ToAnalysisInput(in Intake) ([]safety.MedicationItem, safety.PatientContext, error) {
	if in.Patient == nil {
		return nil, safety.PatientContext{}, &MapError{
			Field:   "patient",
			Code:    "required",
			Message: "intake requires a Patient resource",
		}
	}

	var meds []safety.MedicationItem
	for i := range in.MedicationRequests {
		mr := &in.MedicationRequests[i]
		if !mr.IsActiveOrder() {
			continue
		}

		name := mr.GetMedicationDisplay()
		if name == "" {
			return nil, safety.PatientContext{}, &MapError{
				Field:   fmt.Sprintf("medicationRequests[%d].medication", i),
				Code:    "invalid",
				Message: "medication has neither display text nor codings",
			}
		}

		meds = append(meds, safety.MedicationItem{
			Name:        name,
			GenericName: mr.GetGenericName(),
			Dosage:      mr.GetDoseText(),
			Frequency:   mr.GetFrequencyText(),
		})
	}

	if len(meds) == 0 {
		return nil, safety.PatientContext{}, &MapError{
			Field:   "medicationRequests",
			Code:    "required",
			Message: "intake carries no active medication requests",
		}
	}

	patient := safety.PatientContext{
		Age:               in.Patient.AgeAt(time.Now().UTC()),
		Gender:            in.Patient.Gender,
		Allergies:         joinAllergies(in.Allergies),
		MedicalConditions: joinConditions(in.Conditions),
	}

	return meds, patient, nil
}

// PatientRef returns the reference string identifying the intake's patient.
func PatientRef(in Intake) string {
	if in.Patient == nil {
		return ""
	}
	if in.Patient.ID != "" {
		return "Patient/" + in.Patient.ID
	}
	for _, id := range in.Patient.Identifier {
		if id.Value != "" {
			return id.Value
		}
	}
	return ""
}

func joinAllergies(allergies []r5.AllergyIntolerance) string {
	var parts []string
	for i := range allergies {
		a := &allergies[i]
		if !a.IsActive() {
			continue
		}
		if text := a.DisplayText(); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(dedupe(parts), ", ")
}

func joinConditions(conditions []r5.Condition) string {
	var parts []string
	for i := range conditions {
		c := &conditions[i]
		if !c.IsActive() {
			continue
		}
		if text := c.DisplayText(); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(dedupe(parts), ", ")
}

// dedupe removes case-insensitive duplicates while preserving order.
func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		key := strings.ToLower(strings.TrimSpace(item))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}
