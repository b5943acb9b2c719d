package safety

import (
	"fmt"
	"strings"
)

// interactionRule fires only when at least two of its drug substrings match
// distinct entries in the prescribed medication list.
type interactionRule struct {
	drugs          []string
	severity       Severity
	description    string
	recommendation string
}

type contraindicationRule struct {
	drug      string
	condition string
	risk      string
}

type monitoringRule struct {
	drug      string
	parameter string
	frequency string
	reason    string
}

// The tables below are an illustrative pattern set for offline operation,
// not a pharmacology reference. Matching is case-insensitive substring
// containment against medication names and generic names.
var interactionRules = []interactionRule{
	{
		drugs:          []string{"warfarin", "aspirin"},
		severity:       SeverityMajor,
		description:    "Concurrent warfarin and aspirin significantly increases bleeding risk.",
		recommendation: "Avoid combination unless specifically indicated; if continued, monitor INR closely and watch for signs of bleeding.",
	},
	{
		drugs:          []string{"warfarin", "ibuprofen"},
		severity:       SeverityMajor,
		description:    "NSAIDs potentiate warfarin and raise the risk of GI bleeding.",
		recommendation: "Prefer acetaminophen for analgesia; if an NSAID is unavoidable, add gastroprotection and monitor INR.",
	},
	{
		drugs:          []string{"methotrexate", "ibuprofen"},
		severity:       SeverityMajor,
		description:    "NSAIDs reduce renal clearance of methotrexate and can cause toxicity.",
		recommendation: "Avoid NSAIDs around methotrexate dosing days; monitor renal function and blood counts.",
	},
	{
		drugs:          []string{"simvastatin", "amiodarone"},
		severity:       SeverityMajor,
		description:    "Amiodarone inhibits simvastatin metabolism, raising myopathy and rhabdomyolysis risk.",
		recommendation: "Limit simvastatin to 20mg daily or switch to a statin with less interaction potential.",
	},
	{
		drugs:          []string{"lisinopril", "spironolactone"},
		severity:       SeverityModerate,
		description:    "ACE inhibitor plus potassium-sparing diuretic can cause hyperkalemia.",
		recommendation: "Monitor serum potassium and renal function, especially after dose changes.",
	},
	{
		drugs:          []string{"sertraline", "tramadol"},
		severity:       SeverityModerate,
		description:    "SSRI plus tramadol increases serotonin syndrome risk and lowers seizure threshold.",
		recommendation: "Use the lowest effective tramadol dose and counsel the patient on serotonin syndrome symptoms.",
	},
	{
		drugs:          []string{"clopidogrel", "omeprazole"},
		severity:       SeverityModerate,
		description:    "Omeprazole inhibits CYP2C19 activation of clopidogrel, reducing antiplatelet effect.",
		recommendation: "Consider pantoprazole or an H2 blocker if acid suppression is required.",
	},
	{
		drugs:          []string{"digoxin", "furosemide"},
		severity:       SeverityModerate,
		description:    "Loop-diuretic-induced hypokalemia predisposes to digoxin toxicity.",
		recommendation: "Monitor potassium and digoxin levels; supplement potassium as needed.",
	},
}

var contraindicationRules = []contraindicationRule{
	{
		drug:      "metformin",
		condition: "kidney disease",
		risk:      "Impaired renal clearance of metformin raises the risk of lactic acidosis.",
	},
	{
		drug:      "ibuprofen",
		condition: "kidney disease",
		risk:      "NSAIDs can further reduce renal perfusion in chronic kidney disease.",
	},
	{
		drug:      "ibuprofen",
		condition: "heart failure",
		risk:      "NSAID-related fluid retention can worsen heart failure.",
	},
	{
		drug:      "naproxen",
		condition: "ulcer",
		risk:      "NSAIDs increase the risk of recurrent GI bleeding in ulcer disease.",
	},
	{
		drug:      "aspirin",
		condition: "asthma",
		risk:      "Aspirin can provoke bronchospasm in aspirin-sensitive asthma.",
	},
	{
		drug:      "metoprolol",
		condition: "asthma",
		risk:      "Beta-blockade may trigger bronchoconstriction in asthmatic patients.",
	},
	{
		drug:      "lisinopril",
		condition: "pregnancy",
		risk:      "ACE inhibitors are fetotoxic and contraindicated in pregnancy.",
	},
}

var monitoringRules = []monitoringRule{
	{
		drug:      "warfarin",
		parameter: "INR",
		frequency: "Weekly until stable, then monthly",
		reason:    "Anticoagulation intensity requires regular titration.",
	},
	{
		drug:      "metformin",
		parameter: "Renal function (eGFR)",
		frequency: "Every 6-12 months",
		reason:    "Metformin dosing depends on renal clearance.",
	},
	{
		drug:      "lisinopril",
		parameter: "Serum potassium and creatinine",
		frequency: "1-2 weeks after initiation or dose change",
		reason:    "ACE inhibitors can cause hyperkalemia and renal impairment.",
	},
	{
		drug:      "statin",
		parameter: "Liver enzymes (ALT/AST)",
		frequency: "At baseline, then as clinically indicated",
		reason:    "Statins carry a small risk of hepatotoxicity.",
	},
	{
		drug:      "levothyroxine",
		parameter: "TSH",
		frequency: "6-8 weeks after any dose change",
		reason:    "Thyroid replacement requires titration to TSH.",
	},
	{
		drug:      "digoxin",
		parameter: "Serum digoxin level and electrolytes",
		frequency: "Every 6 months, or with symptoms of toxicity",
		reason:    "Digoxin has a narrow therapeutic index.",
	},
}

// allergy values that mean "no known allergies"
var allergySentinels = map[string]bool{
	"none":       true,
	"none known": true,
	"nka":        true,
}

// RuleAnalyzer performs a fully local, deterministic safety check against
// static pattern tables. It holds no state and is safe for concurrent use.
type RuleAnalyzer struct{}

// NewRuleAnalyzer creates a rule-based analyzer.
func NewRuleAnalyzer() *RuleAnalyzer {
	return &RuleAnalyzer{}
}

// Analyze produces a safety report from the static tables alone. It never
// fails; given the same inputs it returns the same findings.
func (a *RuleAnalyzer) Analyze(meds []MedicationItem, patient PatientContext) AnalysisResult {
	result := NewResult(SourceFallback, RiskLow)

	names := medicationNames(meds)

	for _, rule := range interactionRules {
		if matched := matchDrugs(names, rule.drugs); len(matched) >= 2 {
			result.Interactions = append(result.Interactions, InteractionFinding{
				Drugs:          matched,
				Severity:       rule.severity,
				Description:    rule.description,
				Recommendation: rule.recommendation,
			})
		}
	}

	result.Allergies = append(result.Allergies, checkAllergies(meds, patient.Allergies)...)

	conditions := strings.ToLower(patient.MedicalConditions)
	for _, rule := range contraindicationRules {
		if conditions == "" || !strings.Contains(conditions, rule.condition) {
			continue
		}
		for _, med := range meds {
			if medMatches(med, rule.drug) {
				result.Contraindications = append(result.Contraindications, ContraindicationFinding{
					Drug:      med.Name,
					Condition: rule.condition,
					Risk:      rule.risk,
				})
			}
		}
	}

	for _, rule := range monitoringRules {
		for _, med := range meds {
			if medMatches(med, rule.drug) {
				result.Monitoring = append(result.Monitoring, MonitoringItem{
					Parameter: rule.parameter,
					Frequency: rule.frequency,
					Reason:    rule.reason,
				})
			}
		}
	}

	result.OverallRisk = deriveRisk(result.Interactions, result.Contraindications)
	result.Summary = fmt.Sprintf(
		"Analyzed %d medication(s): %d potential interaction(s), %d allergy concern(s). "+
			"This is a basic rule-based safety check, not an AI-backed analysis; consult a pharmacist for a comprehensive review.",
		len(meds), len(result.Interactions), len(result.Allergies))

	return result
}

// medicationNames returns the lowercase union of names and generic names.
func medicationNames(meds []MedicationItem) []string {
	names := make([]string, 0, len(meds)*2)
	for _, m := range meds {
		if n := strings.ToLower(strings.TrimSpace(m.Name)); n != "" {
			names = append(names, n)
		}
		if g := strings.ToLower(strings.TrimSpace(m.GenericName)); g != "" {
			names = append(names, g)
		}
	}
	return names
}

// matchDrugs returns the rule patterns that matched at least one prescribed
// medication. A pattern counts once no matter how many medications match it.
func matchDrugs(names []string, patterns []string) []string {
	var matched []string
	for _, p := range patterns {
		for _, n := range names {
			if strings.Contains(n, p) {
				matched = append(matched, p)
				break
			}
		}
	}
	return matched
}

func medMatches(med MedicationItem, pattern string) bool {
	return strings.Contains(strings.ToLower(med.Name), pattern) ||
		strings.Contains(strings.ToLower(med.GenericName), pattern)
}

func checkAllergies(meds []MedicationItem, allergies string) []AllergyFinding {
	trimmed := strings.TrimSpace(allergies)
	if trimmed == "" || allergySentinels[strings.ToLower(trimmed)] {
		return nil
	}

	var findings []AllergyFinding
	normalized := strings.ReplaceAll(trimmed, ";", ",")
	for _, raw := range strings.Split(normalized, ",") {
		allergy := strings.ToLower(strings.TrimSpace(raw))
		if allergy == "" || allergySentinels[allergy] {
			continue
		}
		for _, med := range meds {
			if medMatches(med, allergy) {
				findings = append(findings, AllergyFinding{
					Drug:    med.Name,
					Allergy: strings.TrimSpace(raw),
					Risk:    "Prescribed medication matches a documented allergy; verify before administration.",
				})
			}
		}
	}
	return findings
}

func deriveRisk(interactions []InteractionFinding, contraindications []ContraindicationFinding) RiskLevel {
	risk := RiskLow
	if len(interactions) > 0 || len(contraindications) > 0 {
		risk = RiskModerate
	}
	for _, f := range interactions {
		if f.Severity == SeverityMajor {
			return RiskHigh
		}
	}
	return risk
}
