// Package safety defines the value types and rule-based analysis for
// prescription safety reports.
package safety

import "time"

// RiskLevel is the overall risk classification of an analysis.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// ParseRiskLevel maps free text onto a valid RiskLevel. The second return
// reports whether the input was one of the three recognized values.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	switch RiskLevel(s) {
	case RiskLow, RiskModerate, RiskHigh:
		return RiskLevel(s), true
	}
	return RiskModerate, false
}

// Severity classifies a drug-drug interaction.
type Severity string

const (
	SeverityMajor    Severity = "major"
	SeverityModerate Severity = "moderate"
	SeverityMinor    Severity = "minor"
)

// Source marks the provenance of an AnalysisResult. Callers use it to decide
// how much confidence to place in the findings.
type Source string

const (
	// SourceAI marks results interpreted from the inference endpoint.
	SourceAI Source = "ai"
	// SourceFallback marks results from the local rule-based analyzer.
	SourceFallback Source = "fallback"
	// SourceSystem marks trivial short-circuit results (feature disabled,
	// nothing to analyze).
	SourceSystem Source = "system"
	// SourceError marks results produced after all attempts failed with
	// fallback disabled.
	SourceError Source = "error"
)

// MedicationItem is one prescribed medication as supplied by the caller.
// Only Name is required. The engine never mutates it.
type MedicationItem struct {
	Name        string `json:"name"`
	GenericName string `json:"generic_name,omitempty"`
	Dosage      string `json:"dosage,omitempty"`
	Frequency   string `json:"frequency,omitempty"`
}

// PatientContext is the clinical context for one analysis. Age <= 0 means
// unknown. Allergies and MedicalConditions are comma- or semicolon-delimited
// free text; both may be empty.
type PatientContext struct {
	Age               int    `json:"age,omitempty"`
	Gender            string `json:"gender,omitempty"`
	Allergies         string `json:"allergies,omitempty"`
	MedicalConditions string `json:"medical_conditions,omitempty"`
}

// InteractionFinding reports a potential drug-drug interaction between two
// or more of the prescribed medications.
type InteractionFinding struct {
	Drugs          []string `json:"drugs"`
	Severity       Severity `json:"severity"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation"`
}

// AllergyFinding reports a prescribed medication conflicting with a
// documented patient allergy.
type AllergyFinding struct {
	Drug    string `json:"drug"`
	Allergy string `json:"allergy"`
	Risk    string `json:"risk"`
}

// ContraindicationFinding reports a medication contraindicated by a
// documented medical condition.
type ContraindicationFinding struct {
	Drug      string `json:"drug"`
	Condition string `json:"condition"`
	Risk      string `json:"risk"`
}

// AlternativeSuggestion proposes a safer substitute for one medication.
type AlternativeSuggestion struct {
	InsteadOf string `json:"instead_of"`
	Suggested string `json:"suggested"`
	Reason    string `json:"reason"`
}

// MonitoringItem recommends a clinical parameter to watch while the patient
// is on a medication.
type MonitoringItem struct {
	Parameter string `json:"parameter"`
	Frequency string `json:"frequency"`
	Reason    string `json:"reason"`
}

// AnalysisResult is the complete safety report for one medication list.
// OverallRisk is always one of the three enumerated levels and Source is
// always set. Err is populated only when Source is SourceError.
type AnalysisResult struct {
	Interactions      []InteractionFinding      `json:"interactions"`
	Allergies         []AllergyFinding          `json:"allergies"`
	Contraindications []ContraindicationFinding `json:"contraindications"`
	Alternatives      []AlternativeSuggestion   `json:"alternatives"`
	Monitoring        []MonitoringItem          `json:"monitoring"`
	OverallRisk       RiskLevel                 `json:"overall_risk"`
	Summary           string                    `json:"summary"`
	Source            Source                    `json:"source"`
	Err               string                    `json:"error,omitempty"`
	Timestamp         time.Time                 `json:"timestamp"`
}

// NewResult returns an AnalysisResult with all finding lists initialized
// empty, so serialized results always carry arrays rather than nulls.
func NewResult(source Source, risk RiskLevel) AnalysisResult {
	return AnalysisResult{
		Interactions:      []InteractionFinding{},
		Allergies:         []AllergyFinding{},
		Contraindications: []ContraindicationFinding{},
		Alternatives:      []AlternativeSuggestion{},
		Monitoring:        []MonitoringItem{},
		OverallRisk:       risk,
		Source:            source,
		Timestamp:         time.Now().UTC(),
	}
}
