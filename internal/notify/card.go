package notify

import (
	"encoding/json"
	"fmt"
	"strings"
)

// messageCard is the legacy Office 365 connector card format the nurse
// team's channel expects.
type messageCard struct {
	Type            string        `json:"@type"`
	Context         string        `json:"@context"`
	ThemeColor      string        `json:"themeColor"`
	Summary         string        `json:"summary"`
	Sections        []cardSection `json:"sections"`
	PotentialAction []cardAction  `json:"potentialAction,omitempty"`
}

type cardSection struct {
	ActivityTitle    string     `json:"activityTitle"`
	ActivitySubtitle string     `json:"activitySubtitle,omitempty"`
	Facts            []cardFact `json:"facts,omitempty"`
}

type cardFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type cardAction struct {
	Type    string       `json:"@type"`
	Name    string       `json:"name"`
	Targets []cardTarget `json:"targets"`
}

type cardTarget struct {
	OS  string `json:"os"`
	URI string `json:"uri"`
}

// urgencyTheme maps urgency to the card's theme color and title emoji.
func urgencyTheme(urgency string) (color, emoji string) {
	switch urgency {
	case "immediate":
		return "FF0000", "🚨"
	case "high":
		return "FF6600", "⚠️"
	case "medium":
		return "FFCC00", "⚡"
	default:
		return "00CC00", "ℹ️"
	}
}

// sanitizeUserID keeps the first 8 characters and masks the rest so alert
// cards never carry a full user identifier.
func sanitizeUserID(userID string) string {
	if userID == "" {
		return "unknown"
	}
	if len(userID) <= 8 {
		return userID + "***"
	}
	return userID[:8] + "***"
}

// formatTriggers truncates the trigger list for the card, appending a
// "(+N more)" suffix past the cap.
func formatTriggers(triggers []string) string {
	if len(triggers) == 0 {
		return "none"
	}
	if len(triggers) <= maxTriggerFacts {
		return strings.Join(triggers, ", ")
	}
	shown := strings.Join(triggers[:maxTriggerFacts], ", ")
	return fmt.Sprintf("%s (+%d more)", shown, len(triggers)-maxTriggerFacts)
}

func buildMessageCard(p Payload, dashboardURL string) ([]byte, error) {
	color, emoji := urgencyTheme(p.Urgency)

	facts := []cardFact{
		{Name: "Escalation ID", Value: p.EscalationID},
		{Name: "Severity", Value: p.Severity},
		{Name: "Urgency", Value: p.Urgency},
		{Name: "Type", Value: p.EscalationType},
		{Name: "User", Value: sanitizeUserID(p.UserID)},
		{Name: "Triggers", Value: formatTriggers(p.Triggers)},
		{Name: "Callback requested", Value: fmt.Sprintf("%t", p.RequiresCallback)},
	}
	if p.ContactName != "" {
		facts = append(facts, cardFact{Name: "Contact name", Value: p.ContactName})
	}
	if p.ContactPhone != "" {
		facts = append(facts, cardFact{Name: "Contact phone", Value: p.ContactPhone})
	}
	if p.ContactEmail != "" {
		facts = append(facts, cardFact{Name: "Contact email", Value: p.ContactEmail})
	}

	card := messageCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: color,
		Summary:    fmt.Sprintf("%s escalation %s", p.Severity, p.EscalationID),
		Sections: []cardSection{
			{
				ActivityTitle:    fmt.Sprintf("%s %s escalation", emoji, strings.ToUpper(p.Urgency)),
				ActivitySubtitle: p.Summary,
				Facts:            facts,
			},
		},
	}

	if dashboardURL != "" {
		card.PotentialAction = []cardAction{
			{
				Type: "OpenUri",
				Name: "Open in dashboard",
				Targets: []cardTarget{
					{OS: "default", URI: fmt.Sprintf("%s/escalations/%s", dashboardURL, p.EscalationID)},
				},
			},
		}
	}

	return json.Marshal(card)
}
