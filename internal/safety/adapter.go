package safety

// Legacy callers use a five-level severity scale and a different escalation
// type vocabulary. The canonical taxonomy is the four-level one; these
// mappings exist only at that boundary.

// LegacySeverity maps the canonical severity to the legacy scale.
func LegacySeverity(s Severity) string {
	switch s {
	case SeverityCrisis:
		return "critical"
	case SeverityHighConcern:
		return "high"
	case SeverityEmotionalSupport:
		return "medium"
	default:
		return "low"
	}
}

// LegacyEscalationType maps matched trigger categories to the legacy
// escalation type vocabulary.
func LegacyEscalationType(matches []TriggerMatch) string {
	for _, m := range matches {
		if m.Category == CategoryLifeThreatening {
			return "medical_emergency"
		}
	}
	for _, m := range matches {
		if m.Category == CategorySelfHarm {
			return "self_harm"
		}
	}
	return "inappropriate_content"
}
