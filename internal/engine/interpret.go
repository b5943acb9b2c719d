package engine

import (
	"encoding/json"
	"strings"

	"github.com/medrex/go-saferx/internal/domain/safety"
)

const fallbackSummary = "Safety analysis completed; review individual findings for details."

// summaryPrefixRunes bounds how much raw model output is embedded in the
// summary when the payload could not be parsed.
const summaryPrefixRunes = 200

// Interpret turns the raw inference payload into a validated AnalysisResult.
// It never fails: a well-formed JSON payload is coerced field by field, and
// anything else goes through keyword extraction so the caller always gets a
// usable report. Both paths are marked Source=ai.
func Interpret(raw string) safety.AnalysisResult {
	result, _ := interpret(raw)
	return result
}

// interpret additionally reports whether the heuristic text path was used.
func interpret(raw string) (safety.AnalysisResult, bool) {
	text := stripCodeFences(raw)

	if result, ok := interpretJSON(text); ok {
		return result, false
	}
	if obj := extractJSONObject(text); obj != "" {
		if result, ok := interpretJSON(obj); ok {
			return result, false
		}
	}
	return interpretText(raw), true
}

// rawReport mirrors the requested response schema with every field held as
// a raw message so one malformed field cannot poison the rest.
type rawReport struct {
	Interactions      json.RawMessage `json:"interactions"`
	Allergies         json.RawMessage `json:"allergies"`
	Contraindications json.RawMessage `json:"contraindications"`
	Alternatives      json.RawMessage `json:"alternatives"`
	Monitoring        json.RawMessage `json:"monitoring"`
	OverallRisk       string          `json:"overall_risk"`
	Summary           string          `json:"summary"`
}

func interpretJSON(text string) (safety.AnalysisResult, bool) {
	var report rawReport
	if err := json.Unmarshal([]byte(text), &report); err != nil {
		return safety.AnalysisResult{}, false
	}

	result := safety.NewResult(safety.SourceAI, safety.RiskModerate)
	coerceList(report.Interactions, &result.Interactions)
	coerceList(report.Allergies, &result.Allergies)
	coerceList(report.Contraindications, &result.Contraindications)
	coerceList(report.Alternatives, &result.Alternatives)
	coerceList(report.Monitoring, &result.Monitoring)

	if risk, ok := safety.ParseRiskLevel(strings.ToLower(strings.TrimSpace(report.OverallRisk))); ok {
		result.OverallRisk = risk
	}

	result.Summary = strings.TrimSpace(report.Summary)
	if result.Summary == "" {
		result.Summary = fallbackSummary
	}
	return result, true
}

// coerceList decodes a raw list field into dst, leaving dst's empty slice in
// place when the field is absent or of the wrong type.
func coerceList[T any](raw json.RawMessage, dst *[]T) {
	if len(raw) == 0 {
		return
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return
	}
	if items != nil {
		*dst = items
	}
}

// interpretText is the heuristic path for free-form model output. Keyword
// presence drives a single generic finding per category so a reviewer is
// pointed at the raw text rather than left with an empty report.
func interpretText(raw string) safety.AnalysisResult {
	lower := strings.ToLower(raw)
	result := safety.NewResult(safety.SourceAI, safety.RiskModerate)

	if containsAny(lower, "interaction", "interact", "contraindicated") {
		result.Interactions = append(result.Interactions, safety.InteractionFinding{
			Drugs:          []string{"See summary"},
			Severity:       safety.SeverityModerate,
			Description:    "The analysis text mentions a potential interaction or contraindication.",
			Recommendation: "Review the full analysis text and verify against a drug interaction reference.",
		})
	}
	if containsAny(lower, "monitor", "check", "follow", "watch") {
		result.Monitoring = append(result.Monitoring, safety.MonitoringItem{
			Parameter: "See analysis text",
			Frequency: "As clinically indicated",
			Reason:    "The analysis text recommends clinical monitoring.",
		})
	}

	switch {
	case containsAny(lower, "high risk", "dangerous", "severe", "major"):
		result.OverallRisk = safety.RiskHigh
	case containsAny(lower, "low risk", "safe", "minor"):
		result.OverallRisk = safety.RiskLow
	}

	result.Summary = "Unstructured analysis (verify manually): " + truncateRunes(strings.TrimSpace(raw), summaryPrefixRunes)
	return result
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// stripCodeFences removes a surrounding ``` or ```json block if present.
func stripCodeFences(s string) string {
	text := strings.TrimSpace(s)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	// Drop a language tag like "json" on the opening fence line.
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		firstLine := strings.TrimSpace(text[:idx])
		if firstLine == "" || isFenceTag(firstLine) {
			text = text[idx+1:]
		}
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func isFenceTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

// extractJSONObject returns the first balanced top-level JSON object in s,
// or "" when none exists. Braces inside string literals are skipped.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// truncateRunes shortens s to at most n runes without splitting a character.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + "..."
		}
		count++
	}
	return s
}
