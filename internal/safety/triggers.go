package safety

import (
	"regexp"
	"strings"
)

// Trigger is a single phrase or pattern in the trigger table.
type Trigger struct {
	ID         string
	Phrase     string         // used by the exact and fuzzy passes
	Pattern    *regexp.Regexp // used by the pattern pass when set
	Category   Category
	Severity   Severity
	Confidence float64
}

// TriggerTable is an immutable, versioned set of triggers. Tables are built
// once at startup and swapped whole for updates; they are never mutated at
// runtime.
type TriggerTable struct {
	version           string
	triggers          []Trigger
	contextIndicators []string
	normalizedPhrases []string // parallel to triggers, pre-normalized
}

// NewTriggerTable builds a table from a trigger list. Fuzzy-pass phrase
// normalization is precomputed here so the analyzer stays allocation-light.
func NewTriggerTable(version string, triggers []Trigger, contextIndicators []string) *TriggerTable {
	normalized := make([]string, len(triggers))
	for i, t := range triggers {
		normalized[i] = normalizeText(t.Phrase)
	}
	return &TriggerTable{
		version:           version,
		triggers:          triggers,
		contextIndicators: contextIndicators,
		normalizedPhrases: normalized,
	}
}

// Version returns the table version identifier.
func (t *TriggerTable) Version() string { return t.version }

// Len returns the number of triggers in the table.
func (t *TriggerTable) Len() int { return len(t.triggers) }

// normalizeText lowercases, strips punctuation, and collapses whitespace so
// "self-harm" and "Self harm!" compare equal.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// DefaultTriggerTableVersion identifies the built-in table.
const DefaultTriggerTableVersion = "2026-02"

// DefaultTriggerTable returns the built-in trigger table. Phrases are matched
// by containment against the lowercased message (exact pass) and against a
// punctuation-normalized form (fuzzy pass).
func DefaultTriggerTable() *TriggerTable {
	triggers := []Trigger{
		// Suicide ideation
		{ID: "suicide.want_to_die", Phrase: "want to die", Category: CategorySuicideIdeation, Severity: SeverityCrisis, Confidence: 0.95},
		{ID: "suicide.kill_myself", Phrase: "kill myself", Category: CategorySuicideIdeation, Severity: SeverityCrisis, Confidence: 0.95},
		{ID: "suicide.end_my_life", Phrase: "end my life", Category: CategorySuicideIdeation, Severity: SeverityCrisis, Confidence: 0.95},
		{ID: "suicide.keyword", Phrase: "suicide", Category: CategorySuicideIdeation, Severity: SeverityCrisis, Confidence: 0.85},
		{ID: "suicide.better_off_dead", Phrase: "better off dead", Category: CategorySuicideIdeation, Severity: SeverityCrisis, Confidence: 0.9},
		{ID: "suicide.end_it_all", Phrase: "end it all", Category: CategorySuicideIdeation, Severity: SeverityCrisis, Confidence: 0.85},
		{ID: "suicide.no_reason_to_live", Pattern: regexp.MustCompile(`(?i)\bno\s+reason\s+(left\s+)?to\s+(live|carry\s+on|go\s+on)\b`), Category: CategorySuicideIdeation, Severity: SeverityCrisis, Confidence: 0.9},
		{ID: "suicide.dont_want_to_be_here", Pattern: regexp.MustCompile(`(?i)\bdon'?t\s+want\s+to\s+be\s+here\s+any\s*more\b`), Category: CategorySuicideIdeation, Severity: SeverityCrisis, Confidence: 0.85},

		// Self harm
		{ID: "selfharm.hurt_myself", Phrase: "hurt myself", Category: CategorySelfHarm, Severity: SeverityCrisis, Confidence: 0.9},
		{ID: "selfharm.harm_myself", Phrase: "harm myself", Category: CategorySelfHarm, Severity: SeverityCrisis, Confidence: 0.9},
		{ID: "selfharm.cut_myself", Phrase: "cut myself", Category: CategorySelfHarm, Severity: SeverityCrisis, Confidence: 0.9},
		{ID: "selfharm.keyword", Phrase: "self harm", Category: CategorySelfHarm, Severity: SeverityCrisis, Confidence: 0.85},
		{ID: "selfharm.pattern", Pattern: regexp.MustCompile(`(?i)\b(hurting|harming|cutting)\s+myself\b`), Category: CategorySelfHarm, Severity: SeverityCrisis, Confidence: 0.9},

		// Life-threatening symptoms
		{ID: "emergency.cant_breathe", Phrase: "can't breathe", Category: CategoryLifeThreatening, Severity: SeverityCrisis, Confidence: 0.9},
		{ID: "emergency.chest_pain", Phrase: "chest pain", Category: CategoryLifeThreatening, Severity: SeverityCrisis, Confidence: 0.85},
		{ID: "emergency.unconscious", Phrase: "unconscious", Category: CategoryLifeThreatening, Severity: SeverityCrisis, Confidence: 0.85},
		{ID: "emergency.collapsed", Phrase: "collapsed", Category: CategoryLifeThreatening, Severity: SeverityCrisis, Confidence: 0.8},
		{ID: "emergency.not_breathing", Phrase: "not breathing", Category: CategoryLifeThreatening, Severity: SeverityCrisis, Confidence: 0.9},

		// Severe bleeding
		{ID: "bleeding.heavy", Phrase: "bleeding heavily", Category: CategorySevereBleeding, Severity: SeverityCrisis, Confidence: 0.9},
		{ID: "bleeding.wont_stop", Pattern: regexp.MustCompile(`(?i)\b(?:(won'?t|will\s+not|can'?t)\s+stop\s+(the\s+)?bleeding|bleeding\s+(won'?t|will\s+not)\s+stop)\b`), Category: CategorySevereBleeding, Severity: SeverityCrisis, Confidence: 0.9},
		{ID: "bleeding.everywhere", Phrase: "blood everywhere", Category: CategorySevereBleeding, Severity: SeverityCrisis, Confidence: 0.85},
		{ID: "bleeding.haemorrhage", Phrase: "haemorrhaging", Category: CategorySevereBleeding, Severity: SeverityCrisis, Confidence: 0.85},

		// Overdose
		{ID: "overdose.keyword", Phrase: "overdose", Category: CategoryOverdose, Severity: SeverityCrisis, Confidence: 0.9},
		{ID: "overdose.pills", Pattern: regexp.MustCompile(`(?i)\b(took|taken|swallowed)\s+(too\s+many|a\s+lot\s+of|all\s+(the|my))\s+(pills|tablets|paracetamol)\b`), Category: CategoryOverdose, Severity: SeverityCrisis, Confidence: 0.9},

		// Abuse disclosure
		{ID: "abuse.being_abused", Phrase: "being abused", Category: CategoryAbuseDisclosure, Severity: SeverityHighConcern, Confidence: 0.85},
		{ID: "abuse.domestic", Phrase: "domestic abuse", Category: CategoryAbuseDisclosure, Severity: SeverityHighConcern, Confidence: 0.85},
		{ID: "abuse.afraid_of_partner", Pattern: regexp.MustCompile(`(?i)\b(afraid|scared|frightened)\s+of\s+my\s+(partner|husband|wife|boyfriend|girlfriend)\b`), Category: CategoryAbuseDisclosure, Severity: SeverityHighConcern, Confidence: 0.8},
		{ID: "abuse.hits_me", Pattern: regexp.MustCompile(`(?i)\b(he|she|they)\s+(hits?|hurts?|beats?)\s+me\b`), Category: CategoryAbuseDisclosure, Severity: SeverityHighConcern, Confidence: 0.85},

		// Emotional distress
		{ID: "distress.hopeless", Phrase: "feel hopeless", Category: CategoryEmotionalDistress, Severity: SeverityEmotionalSupport, Confidence: 0.7},
		{ID: "distress.cant_cope", Phrase: "can't cope", Category: CategoryEmotionalDistress, Severity: SeverityEmotionalSupport, Confidence: 0.7},
		{ID: "distress.struggling", Phrase: "really struggling", Category: CategoryEmotionalDistress, Severity: SeverityEmotionalSupport, Confidence: 0.65},
		{ID: "distress.so_alone", Phrase: "feel so alone", Category: CategoryEmotionalDistress, Severity: SeverityEmotionalSupport, Confidence: 0.65},
		{ID: "distress.depressed", Phrase: "so depressed", Category: CategoryEmotionalDistress, Severity: SeverityEmotionalSupport, Confidence: 0.7},
		{ID: "distress.crying", Phrase: "crying all the time", Category: CategoryEmotionalDistress, Severity: SeverityEmotionalSupport, Confidence: 0.65},

		// Health anxiety
		{ID: "anxiety.terrified_cancer", Pattern: regexp.MustCompile(`(?i)\b(terrified|petrified)\s+(it'?s|of)\s+cancer\b`), Category: CategoryHealthAnxiety, Severity: SeverityEmotionalSupport, Confidence: 0.7},
		{ID: "anxiety.scared_results", Pattern: regexp.MustCompile(`(?i)\b(scared|worried|anxious)\s+(about|of)\s+(my|the)\s+results?\b`), Category: CategoryHealthAnxiety, Severity: SeverityEmotionalSupport, Confidence: 0.6},
		{ID: "anxiety.worried_sick", Phrase: "worried sick", Category: CategoryHealthAnxiety, Severity: SeverityEmotionalSupport, Confidence: 0.6},

		// Callback requests
		{ID: "callback.call_me_back", Pattern: regexp.MustCompile(`(?i)\bcall\s*(me\s*)?(back|please)\b`), Category: CategoryCallbackRequest, Severity: SeverityEmotionalSupport, Confidence: 0.8},
		{ID: "callback.speak_to_nurse", Pattern: regexp.MustCompile(`(?i)\b(speak|talk)\s+(to|with)\s+(a\s+)?(nurse|someone|a\s+person)\b`), Category: CategoryCallbackRequest, Severity: SeverityEmotionalSupport, Confidence: 0.8},
		{ID: "callback.want_call", Pattern: regexp.MustCompile(`(?i)\b(want|need|prefer)\s+(a\s+)?(phone\s+)?call\b`), Category: CategoryCallbackRequest, Severity: SeverityEmotionalSupport, Confidence: 0.75},
	}

	// Phrases that, when present in recent history, raise contextual concern
	// for an otherwise lower-severity message.
	contextIndicators := []string{
		"hopeless", "worthless", "give up", "giving up", "no point",
		"can't go on", "burden", "alone", "scared",
	}

	return NewTriggerTable(DefaultTriggerTableVersion, triggers, contextIndicators)
}
