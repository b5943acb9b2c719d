package engine

import (
	"strings"
	"testing"

	"github.com/medrex/go-saferx/internal/domain/safety"
)

const wellFormedPayload = `{
	"interactions": [{"drugs": ["warfarin", "aspirin"], "severity": "major", "description": "Bleeding risk", "recommendation": "Avoid combination"}],
	"allergies": [],
	"contraindications": [],
	"alternatives": [{"instead_of": "aspirin", "suggested": "acetaminophen", "reason": "No anticoagulant interaction"}],
	"monitoring": [{"parameter": "INR", "frequency": "weekly", "reason": "anticoagulation"}],
	"overall_risk": "high",
	"summary": "Significant bleeding risk from the warfarin/aspirin combination."
}`

func TestInterpret_WellFormedJSON(t *testing.T) {
	result := Interpret(wellFormedPayload)

	if result.Source != safety.SourceAI {
		t.Fatalf("expected source ai, got %q", result.Source)
	}
	if result.OverallRisk != safety.RiskHigh {
		t.Fatalf("expected high risk, got %q", result.OverallRisk)
	}
	if len(result.Interactions) != 1 || result.Interactions[0].Severity != safety.SeverityMajor {
		t.Fatalf("unexpected interactions: %+v", result.Interactions)
	}
	if len(result.Alternatives) != 1 || len(result.Monitoring) != 1 {
		t.Fatalf("expected alternative and monitoring findings to survive parsing")
	}
}

func TestInterpret_CodeFencedJSON(t *testing.T) {
	fenced := "```json\n" + wellFormedPayload + "\n```"
	result := Interpret(fenced)

	if result.OverallRisk != safety.RiskHigh {
		t.Fatalf("fenced payload should parse structurally, got risk %q", result.OverallRisk)
	}
	if len(result.Interactions) != 1 {
		t.Fatalf("expected one interaction from fenced payload, got %d", len(result.Interactions))
	}
}

func TestInterpret_JSONEmbeddedInProse(t *testing.T) {
	text := "Here is the analysis you requested:\n" + wellFormedPayload + "\nLet me know if you need more detail."
	result := Interpret(text)

	if len(result.Interactions) != 1 {
		t.Fatalf("expected brace extraction to recover the object, got %d interactions", len(result.Interactions))
	}
}

func TestInterpret_MissingFieldsDefaulted(t *testing.T) {
	result := Interpret(`{"overall_risk": "low"}`)

	if result.OverallRisk != safety.RiskLow {
		t.Fatalf("expected low risk, got %q", result.OverallRisk)
	}
	if result.Interactions == nil || len(result.Interactions) != 0 {
		t.Fatalf("missing list fields must default to empty, got %#v", result.Interactions)
	}
	if result.Summary == "" {
		t.Fatal("missing summary must be defaulted, got empty string")
	}
}

func TestInterpret_WrongTypesDefaulted(t *testing.T) {
	result := Interpret(`{"interactions": "not a list", "monitoring": 42, "overall_risk": "catastrophic", "summary": ""}`)

	if len(result.Interactions) != 0 || len(result.Monitoring) != 0 {
		t.Fatalf("wrong-typed list fields must default to empty")
	}
	if result.OverallRisk != safety.RiskModerate {
		t.Fatalf("invalid risk must default to moderate, got %q", result.OverallRisk)
	}
	if result.Summary == "" {
		t.Fatal("empty summary must be replaced with the default")
	}
}

func TestInterpret_FreeTextMonitoring(t *testing.T) {
	result := Interpret("Patient should avoid NSAIDs, monitor kidney function closely")

	if len(result.Monitoring) < 1 {
		t.Fatal("expected at least one monitoring item from heuristic extraction")
	}
	switch result.OverallRisk {
	case safety.RiskLow, safety.RiskModerate, safety.RiskHigh:
	default:
		t.Fatalf("risk must be one of the enumerated values, got %q", result.OverallRisk)
	}
	if result.Source != safety.SourceAI {
		t.Fatalf("heuristic path is still AI provenance, got %q", result.Source)
	}
}

func TestInterpret_FreeTextRiskKeywords(t *testing.T) {
	cases := []struct {
		text string
		want safety.RiskLevel
	}{
		{"This combination is dangerous and carries severe bleeding risk", safety.RiskHigh},
		{"The regimen appears safe with only minor considerations", safety.RiskLow},
		{"Some caution is advisable with this regimen", safety.RiskModerate},
	}
	for _, tc := range cases {
		result := Interpret(tc.text)
		if result.OverallRisk != tc.want {
			t.Fatalf("Interpret(%q) risk = %q, want %q", tc.text, result.OverallRisk, tc.want)
		}
	}
}

func TestInterpret_FreeTextInteractionKeyword(t *testing.T) {
	result := Interpret("These drugs may interact; review with pharmacy before dispensing.")

	if len(result.Interactions) != 1 {
		t.Fatalf("expected one generic interaction finding, got %d", len(result.Interactions))
	}
	if result.Interactions[0].Severity != safety.SeverityModerate {
		t.Fatalf("generic finding should be moderate, got %q", result.Interactions[0].Severity)
	}
}

func TestInterpret_SummaryEmbedsRawPrefix(t *testing.T) {
	long := strings.Repeat("caution advised ", 50)
	result := Interpret(long)

	if !strings.Contains(result.Summary, "caution advised") {
		t.Fatalf("summary should embed a prefix of the raw text, got %q", result.Summary)
	}
	// 200 runes plus the marker prefix and ellipsis.
	if len(result.Summary) > 260 {
		t.Fatalf("summary prefix should be truncated, got %d bytes", len(result.Summary))
	}
}

func TestInterpret_MultibyteTruncationSafe(t *testing.T) {
	raw := strings.Repeat("注意が必要です。", 60)
	result := Interpret(raw)

	for _, r := range result.Summary {
		if r == '�' {
			t.Fatal("summary truncation split a multibyte character")
		}
	}
}

func TestStripCodeFences(t *testing.T) {
	cases := []struct{ in, want string }{
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{`{"a":1}`, `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tc := range cases {
		if got := stripCodeFences(tc.in); got != tc.want {
			t.Fatalf("stripCodeFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestExtractJSONObject_RespectsStrings(t *testing.T) {
	text := `prefix {"note": "brace } inside string", "n": 1} suffix`
	got := extractJSONObject(text)
	want := `{"note": "brace } inside string", "n": 1}`
	if got != want {
		t.Fatalf("extractJSONObject = %q, want %q", got, want)
	}
}
