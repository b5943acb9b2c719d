package engine

import (
	"strings"
	"testing"

	"github.com/medrex/go-saferx/internal/domain/safety"
)

func TestBuildPrompt_Deterministic(t *testing.T) {
	meds := []safety.MedicationItem{
		{Name: "Warfarin 5mg", GenericName: "warfarin", Dosage: "5mg", Frequency: "daily"},
		{Name: "Aspirin 81mg"},
	}
	patient := safety.PatientContext{Age: 67, Gender: "female", Allergies: "sulfa", MedicalConditions: "hypertension"}

	first := BuildPrompt(meds, patient)
	second := BuildPrompt(meds, patient)

	if first != second {
		t.Fatal("prompt must be deterministic for identical inputs")
	}
}

func TestBuildPrompt_MedicationLine(t *testing.T) {
	prompt := BuildPrompt([]safety.MedicationItem{
		{Name: "Warfarin 5mg", GenericName: "warfarin", Dosage: "5mg", Frequency: "daily"},
	}, safety.PatientContext{})

	if !strings.Contains(prompt, "- Warfarin 5mg (warfarin) - 5mg daily") {
		t.Fatalf("medication line not rendered as expected:\n%s", prompt)
	}
}

func TestBuildPrompt_MissingFieldsGetDefaults(t *testing.T) {
	prompt := BuildPrompt([]safety.MedicationItem{{Name: "Lisinopril"}}, safety.PatientContext{})

	for _, want := range []string{"(N/A)", "Age: Unknown", "Gender: Unknown", "Known allergies: None known", "Medical conditions: None reported"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing default %q:\n%s", want, prompt)
		}
	}
}

func TestBuildPrompt_RequestsSchemaFields(t *testing.T) {
	prompt := BuildPrompt([]safety.MedicationItem{{Name: "Metformin"}}, safety.PatientContext{})

	for _, field := range []string{`"interactions"`, `"allergies"`, `"contraindications"`, `"alternatives"`, `"monitoring"`, `"overall_risk"`, `"summary"`} {
		if !strings.Contains(prompt, field) {
			t.Fatalf("instruction block missing schema field %s", field)
		}
	}
	if !strings.Contains(prompt, "clinical pharmacist") {
		t.Fatal("prompt should carry the clinical-pharmacist framing")
	}
}
