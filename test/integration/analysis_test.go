// Package integration exercises the full intake-to-report path: FHIR
// resources through the mapper into the safety engine, with both a live
// (stubbed) inference endpoint and the rule-based fallback.
package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/medrex/go-saferx/internal/domain/safety"
	"github.com/medrex/go-saferx/internal/engine"
	"github.com/medrex/go-saferx/internal/fhir/mapper"
	"github.com/medrex/go-saferx/internal/infrastructure/openrouter"
	"github.com/medrex/go-saferx/pkg/idempotency"
)

const intakeJSON = `{
	"patient": {
		"resourceType": "Patient",
		"id": "pat-001",
		"gender": "female",
		"birthDate": "1954-03-20",
		"name": [{"use": "official", "family": "Doe", "given": ["Jane"]}]
	},
	"medicationRequests": [
		{
			"resourceType": "MedicationRequest",
			"status": "active",
			"intent": "order",
			"medication": {"concept": {"text": "Warfarin 5mg"}},
			"subject": {"reference": "Patient/pat-001"},
			"dosageInstruction": [{
				"doseAndRate": [{"doseQuantity": {"value": 5, "unit": "mg"}}],
				"timing": {"repeat": {"frequency": 1, "period": 1, "periodUnit": "d"}}
			}]
		},
		{
			"resourceType": "MedicationRequest",
			"status": "active",
			"intent": "order",
			"medication": {"concept": {"text": "Aspirin 81mg"}},
			"subject": {"reference": "Patient/pat-001"}
		},
		{
			"resourceType": "MedicationRequest",
			"status": "cancelled",
			"intent": "order",
			"medication": {"concept": {"text": "Lisinopril 10mg"}},
			"subject": {"reference": "Patient/pat-001"}
		}
	],
	"allergies": [{
		"resourceType": "AllergyIntolerance",
		"clinicalStatus": {"coding": [{"code": "active"}]},
		"code": {"text": "Penicillin"},
		"patient": {"reference": "Patient/pat-001"}
	}]
}`

func decodeIntake(t *testing.T) mapper.Intake {
	t.Helper()
	var intake mapper.Intake
	if err := json.Unmarshal([]byte(intakeJSON), &intake); err != nil {
		t.Fatalf("unmarshal intake: %v", err)
	}
	return intake
}

func fastEngineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.MaxRetries = 2
	cfg.RetryDelay = time.Millisecond
	cfg.MinRequestInterval = time.Millisecond
	return cfg
}

func TestIntakeThroughInferenceEndpoint(t *testing.T) {
	var gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		for _, m := range req.Messages {
			if m.Role == "user" {
				gotPrompt = m.Content
			}
		}

		analysis := `{"overall_risk":"high","summary":"Bleeding risk.","interactions":[{"drugs":["Warfarin","Aspirin"],"severity":"major","description":"Additive anticoagulation."}]}`
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": analysis}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	meds, patient, err := mapper.ToAnalysisInput(decodeIntake(t))
	if err != nil {
		t.Fatalf("map intake: %v", err)
	}
	if len(meds) != 2 {
		t.Fatalf("expected 2 active medications, got %d", len(meds))
	}

	clientCfg := openrouter.DefaultConfig()
	clientCfg.BaseURL = server.URL
	clientCfg.APIKey = "test-key"
	client := openrouter.New(clientCfg, nil)

	eng := engine.New(fastEngineConfig(), client, nil, nil)
	result := eng.AnalyzeSafety(context.Background(), meds, patient)

	if result.Source != safety.SourceAI {
		t.Fatalf("expected AI-sourced result, got %q", result.Source)
	}
	if result.OverallRisk != safety.RiskHigh {
		t.Fatalf("expected high risk, got %q", result.OverallRisk)
	}
	if len(result.Interactions) != 1 {
		t.Fatalf("expected 1 interaction, got %d", len(result.Interactions))
	}

	// The prompt must carry the mapped clinical context.
	for _, want := range []string{"Warfarin 5mg", "Aspirin 81mg", "Penicillin"} {
		if !strings.Contains(gotPrompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(gotPrompt, "Lisinopril") {
		t.Error("prompt should not include the cancelled order")
	}
}

func TestIntakeFallsBackWhenEndpointIsDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	meds, patient, err := mapper.ToAnalysisInput(decodeIntake(t))
	if err != nil {
		t.Fatalf("map intake: %v", err)
	}

	clientCfg := openrouter.DefaultConfig()
	clientCfg.BaseURL = server.URL
	clientCfg.APIKey = "test-key"
	client := openrouter.New(clientCfg, nil)

	eng := engine.New(fastEngineConfig(), client, nil, nil)
	result := eng.AnalyzeSafety(context.Background(), meds, patient)

	if result.Source != safety.SourceFallback {
		t.Fatalf("expected fallback-sourced result, got %q", result.Source)
	}

	// The rule table knows the warfarin/aspirin pair.
	var found bool
	for _, inter := range result.Interactions {
		pair := strings.ToLower(strings.Join(inter.Drugs, " "))
		if strings.Contains(pair, "warfarin") && strings.Contains(pair, "aspirin") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected warfarin/aspirin interaction, got %+v", result.Interactions)
	}
}

func TestIdempotencyKeyStableAcrossMapping(t *testing.T) {
	intake := decodeIntake(t)
	requestedAt := time.Date(2026, 3, 14, 10, 30, 12, 0, time.UTC)

	keyFor := func() string {
		meds, _, err := mapper.ToAnalysisInput(intake)
		if err != nil {
			t.Fatalf("map intake: %v", err)
		}
		names := make([]string, len(meds))
		for i, m := range meds {
			names[i] = m.Name
		}
		return idempotency.GenerateKey(mapper.PatientRef(intake), names, requestedAt)
	}

	first := keyFor()
	second := keyFor()
	if first != second {
		t.Fatalf("key not stable: %q vs %q", first, second)
	}

	other := idempotency.GenerateKey("Patient/other", []string{"Warfarin 5mg"}, requestedAt)
	if first == other {
		t.Fatal("different patients must not share a key")
	}
}
