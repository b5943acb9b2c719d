// Package r5 provides the FHIR R5 data structures the safety analysis
// intake accepts.
package r5

import (
	"time"
)

// Patient represents a FHIR R5 Patient resource, limited to the elements
// the analysis cares about.
type Patient struct {
	ResourceType string       `json:"resourceType"`
	ID           string       `json:"id,omitempty"`
	Meta         *Meta        `json:"meta,omitempty"`
	Identifier   []Identifier `json:"identifier,omitempty"`
	Active       bool         `json:"active,omitempty"`
	Name         []HumanName  `json:"name,omitempty"`
	Gender       string       `json:"gender,omitempty"` // male | female | other | unknown
	BirthDate    string       `json:"birthDate,omitempty"`
}

// GetOfficialName returns the patient's official name, or first available.
func (p *Patient) GetOfficialName() *HumanName {
	for i := range p.Name {
		if p.Name[i].Use == "official" {
			return &p.Name[i]
		}
	}
	if len(p.Name) > 0 {
		return &p.Name[0]
	}
	return nil
}

// GetFullName returns the patient's full name as a string.
func (p *Patient) GetFullName() string {
	name := p.GetOfficialName()
	if name == nil {
		return ""
	}
	if name.Text != "" {
		return name.Text
	}
	result := ""
	for _, g := range name.Given {
		if result != "" {
			result += " "
		}
		result += g
	}
	if name.Family != "" {
		if result != "" {
			result += " "
		}
		result += name.Family
	}
	return result
}

// AgeAt returns the patient's age in whole years at the given instant, or 0
// when birthDate is absent or unparseable. FHIR allows partial dates; a bare
// year or year-month still yields a usable age.
func (p *Patient) AgeAt(now time.Time) int {
	if p.BirthDate == "" {
		return 0
	}

	var born time.Time
	var err error
	switch len(p.BirthDate) {
	case 4:
		born, err = time.Parse("2006", p.BirthDate)
	case 7:
		born, err = time.Parse("2006-01", p.BirthDate)
	default:
		born, err = time.Parse("2006-01-02", p.BirthDate)
	}
	if err != nil {
		return 0
	}

	years := now.Year() - born.Year()
	if now.YearDay() < born.YearDay() {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// AllergyIntolerance represents a FHIR R5 AllergyIntolerance resource.
type AllergyIntolerance struct {
	ResourceType       string              `json:"resourceType"`
	ID                 string              `json:"id,omitempty"`
	Meta               *Meta               `json:"meta,omitempty"`
	Identifier         []Identifier        `json:"identifier,omitempty"`
	ClinicalStatus     *CodeableConcept    `json:"clinicalStatus,omitempty"`     // active | inactive | resolved
	VerificationStatus *CodeableConcept    `json:"verificationStatus,omitempty"` // unconfirmed | presumed | confirmed | refuted | entered-in-error
	Type               *CodeableConcept    `json:"type,omitempty"`               // allergy | intolerance
	Category           []string            `json:"category,omitempty"`           // food | medication | environment | biologic
	Criticality        string              `json:"criticality,omitempty"`        // low | high | unable-to-assess
	Code               *CodeableConcept    `json:"code,omitempty"`
	Patient            Reference           `json:"patient"`
	RecordedDate       *time.Time          `json:"recordedDate,omitempty"`
	Reaction           []AllergyReaction   `json:"reaction,omitempty"`
	Note               []Annotation        `json:"note,omitempty"`
	Participant        []AllergyRecordedBy `json:"participant,omitempty"`
}

// AllergyReaction describes an adverse reaction event.
type AllergyReaction struct {
	Substance     *CodeableConcept  `json:"substance,omitempty"`
	Manifestation []CodeableConcept `json:"manifestation,omitempty"`
	Description   string            `json:"description,omitempty"`
	Severity      string            `json:"severity,omitempty"` // mild | moderate | severe
}

// AllergyRecordedBy identifies who recorded the allergy.
type AllergyRecordedBy struct {
	Function *CodeableConcept `json:"function,omitempty"`
	Actor    Reference        `json:"actor"`
}

// IsActive reports whether the allergy's clinical status is active. An
// absent status counts as active, matching how intake treats unreviewed
// records conservatively.
func (a *AllergyIntolerance) IsActive() bool {
	if a.ClinicalStatus == nil {
		return true
	}
	for _, c := range a.ClinicalStatus.Coding {
		if c.Code == "active" {
			return true
		}
	}
	// A populated coding set that never matched is a definitive non-active
	// status; Text is only authoritative when there are no codings.
	if len(a.ClinicalStatus.Coding) > 0 {
		return false
	}
	return a.ClinicalStatus.Text == "active" || a.ClinicalStatus.Text == ""
}

// DisplayText returns the human-readable substance name.
func (a *AllergyIntolerance) DisplayText() string {
	return conceptText(a.Code)
}

// Condition represents a FHIR R5 Condition resource.
type Condition struct {
	ResourceType       string           `json:"resourceType"`
	ID                 string           `json:"id,omitempty"`
	Meta               *Meta            `json:"meta,omitempty"`
	Identifier         []Identifier     `json:"identifier,omitempty"`
	ClinicalStatus     *CodeableConcept `json:"clinicalStatus,omitempty"`     // active | recurrence | relapse | inactive | remission | resolved
	VerificationStatus *CodeableConcept `json:"verificationStatus,omitempty"` // unconfirmed | provisional | differential | confirmed | refuted | entered-in-error
	Category           []CodeableConcept `json:"category,omitempty"`
	Severity           *CodeableConcept `json:"severity,omitempty"`
	Code               *CodeableConcept `json:"code,omitempty"`
	Subject            Reference        `json:"subject"`
	OnsetDateTime      *time.Time       `json:"onsetDateTime,omitempty"`
	RecordedDate       *time.Time       `json:"recordedDate,omitempty"`
	Note               []Annotation     `json:"note,omitempty"`
}

// IsActive reports whether the condition's clinical status is active,
// recurrence, or relapse. An absent status counts as active.
func (c *Condition) IsActive() bool {
	if c.ClinicalStatus == nil {
		return true
	}
	for _, coding := range c.ClinicalStatus.Coding {
		switch coding.Code {
		case "active", "recurrence", "relapse":
			return true
		}
	}
	if len(c.ClinicalStatus.Coding) > 0 {
		return false
	}
	switch c.ClinicalStatus.Text {
	case "active", "recurrence", "relapse", "":
		return true
	}
	return false
}

// DisplayText returns the human-readable condition name.
func (c *Condition) DisplayText() string {
	return conceptText(c.Code)
}

// conceptText prefers the concept's text, then the first coding display.
func conceptText(cc *CodeableConcept) string {
	if cc == nil {
		return ""
	}
	if cc.Text != "" {
		return cc.Text
	}
	for _, coding := range cc.Coding {
		if coding.Display != "" {
			return coding.Display
		}
	}
	return ""
}
