// Package safety detects self-harm and medical-crisis language in user
// messages using a versioned, rule-driven trigger table.
package safety

// Severity classifies how concerning a message is. Values are strictly
// ordered: general < emotional_support < high_concern < crisis.
type Severity string

const (
	SeverityGeneral          Severity = "general"
	SeverityEmotionalSupport Severity = "emotional_support"
	SeverityHighConcern      Severity = "high_concern"
	SeverityCrisis           Severity = "crisis"
)

// Level returns the ordinal position of the severity, 1 (general) through
// 4 (crisis). Unknown values collapse to 1.
func (s Severity) Level() int {
	switch s {
	case SeverityEmotionalSupport:
		return 2
	case SeverityHighConcern:
		return 3
	case SeverityCrisis:
		return 4
	default:
		return 1
	}
}

// AtLeast reports whether s is at or above the given severity.
func (s Severity) AtLeast(other Severity) bool {
	return s.Level() >= other.Level()
}

// Category groups triggers by the kind of concern they signal.
type Category string

const (
	CategorySuicideIdeation   Category = "suicide_ideation"
	CategorySelfHarm          Category = "self_harm"
	CategoryLifeThreatening   Category = "life_threatening"
	CategorySevereBleeding    Category = "severe_bleeding"
	CategoryOverdose          Category = "overdose"
	CategoryAbuseDisclosure   Category = "abuse_disclosure"
	CategoryEmotionalDistress Category = "emotional_distress"
	CategoryHealthAnxiety     Category = "health_anxiety"
	CategoryCallbackRequest   Category = "callback_request"
)

// MatchType records which analysis pass produced a trigger match.
type MatchType string

const (
	MatchExact      MatchType = "exact"
	MatchFuzzy      MatchType = "fuzzy"
	MatchPattern    MatchType = "pattern"
	MatchContextual MatchType = "contextual"
)
