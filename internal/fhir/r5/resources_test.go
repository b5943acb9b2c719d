package r5

import "testing"

func codedStatus(code string) *CodeableConcept {
	return &CodeableConcept{Coding: []Coding{{System: "http://terminology.hl7.org/CodeSystem/allergyintolerance-clinical", Code: code}}}
}

func TestAllergyIntolerance_IsActive(t *testing.T) {
	tests := []struct {
		name   string
		status *CodeableConcept
		want   bool
	}{
		{"absent status", nil, true},
		{"coded active", codedStatus("active"), true},
		{"coded inactive", codedStatus("inactive"), false},
		{"coded resolved", codedStatus("resolved"), false},
		{"text active", &CodeableConcept{Text: "active"}, true},
		{"text resolved", &CodeableConcept{Text: "resolved"}, false},
		{"empty concept", &CodeableConcept{}, true},
		{"resolved coding with empty text", &CodeableConcept{Coding: []Coding{{Code: "resolved"}}, Text: ""}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &AllergyIntolerance{ClinicalStatus: tt.status}
			if got := a.IsActive(); got != tt.want {
				t.Errorf("IsActive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCondition_IsActive(t *testing.T) {
	tests := []struct {
		name   string
		status *CodeableConcept
		want   bool
	}{
		{"absent status", nil, true},
		{"coded active", codedStatus("active"), true},
		{"coded recurrence", codedStatus("recurrence"), true},
		{"coded relapse", codedStatus("relapse"), true},
		{"coded remission", codedStatus("remission"), false},
		{"coded resolved", codedStatus("resolved"), false},
		{"text relapse", &CodeableConcept{Text: "relapse"}, true},
		{"text inactive", &CodeableConcept{Text: "inactive"}, false},
		{"empty concept", &CodeableConcept{}, true},
		{"resolved coding with empty text", &CodeableConcept{Coding: []Coding{{Code: "resolved"}}, Text: ""}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Condition{ClinicalStatus: tt.status}
			if got := c.IsActive(); got != tt.want {
				t.Errorf("IsActive() = %v, want %v", got, tt.want)
			}
		})
	}
}
