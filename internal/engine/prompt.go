package engine

import (
	"fmt"
	"strings"

	"github.com/medrex/go-saferx/internal/domain/safety"
)

// BuildPrompt renders the analysis request sent to the inference endpoint.
// It is a pure function: the same medications and patient context always
// produce the same text.
func BuildPrompt(meds []safety.MedicationItem, patient safety.PatientContext) string {
	var b strings.Builder

	b.WriteString("You are a clinical pharmacist reviewing a prescription for safety concerns.\n\n")

	b.WriteString("PRESCRIBED MEDICATIONS:\n")
	for _, m := range meds {
		generic := strings.TrimSpace(m.GenericName)
		if generic == "" {
			generic = "N/A"
		}
		fmt.Fprintf(&b, "- %s (%s) - %s %s\n",
			strings.TrimSpace(m.Name), generic,
			strings.TrimSpace(m.Dosage), strings.TrimSpace(m.Frequency))
	}

	b.WriteString("\nPATIENT CONTEXT:\n")
	if patient.Age > 0 {
		fmt.Fprintf(&b, "- Age: %d\n", patient.Age)
	} else {
		b.WriteString("- Age: Unknown\n")
	}
	fmt.Fprintf(&b, "- Gender: %s\n", orDefault(patient.Gender, "Unknown"))
	fmt.Fprintf(&b, "- Known allergies: %s\n", orDefault(patient.Allergies, "None known"))
	fmt.Fprintf(&b, "- Medical conditions: %s\n", orDefault(patient.MedicalConditions, "None reported"))

	b.WriteString(`
Review the medication list for drug-drug interactions, allergy conflicts,
contraindications against the documented conditions, safer alternatives, and
monitoring requirements.

Respond with a single JSON object and nothing else, using exactly this schema:
{
  "interactions": [{"drugs": ["...", "..."], "severity": "major|moderate|minor", "description": "...", "recommendation": "..."}],
  "allergies": [{"drug": "...", "allergy": "...", "risk": "..."}],
  "contraindications": [{"drug": "...", "condition": "...", "risk": "..."}],
  "alternatives": [{"instead_of": "...", "suggested": "...", "reason": "..."}],
  "monitoring": [{"parameter": "...", "frequency": "...", "reason": "..."}],
  "overall_risk": "low|moderate|high",
  "summary": "..."
}

Use empty arrays for categories with no findings. The summary is for a human
clinician and must note that findings require professional verification.`)

	return b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}
