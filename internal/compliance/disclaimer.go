package compliance

// MHRA positioning requires every health information response to state that
// the service provides information, not medical advice. Three lengths cover
// the different surfaces the text appears on.

const (
	// DisclaimerShort suits inline chat bubbles.
	DisclaimerShort = "General information only, not medical advice."

	// DisclaimerMedium suits full responses.
	DisclaimerMedium = "This is general health information, not medical advice. " +
		"Please speak to your GP or the Ask Eve nurse team about your individual situation."

	// DisclaimerFull suits onboarding and consent screens.
	DisclaimerFull = "Ask Eve provides general health information from trusted sources. " +
		"It is not a medical device and does not provide diagnosis, treatment recommendations, " +
		"or medical advice. Nothing in this conversation replaces consultation with a qualified " +
		"healthcare professional. If you think you may have a medical emergency, call 999 immediately."
)

// DisclaimerForSurface returns the disclaimer for a rendering surface.
// Unknown surfaces get the medium form.
func DisclaimerForSurface(surface string) string {
	switch surface {
	case "inline":
		return DisclaimerShort
	case "onboarding", "consent":
		return DisclaimerFull
	default:
		return DisclaimerMedium
	}
}
