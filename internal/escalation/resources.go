// Package escalation turns safety verdicts into progressive user-facing
// responses and tracked nurse-team escalation events.
package escalation

// Resource is a support or emergency contact offered to the user.
type Resource struct {
	Name         string `json:"name"`
	Phone        string `json:"phone,omitempty"`
	Text         string `json:"text,omitempty"`
	Description  string `json:"description,omitempty"`
	Availability string `json:"availability,omitempty"`
}

// UK support and emergency resources. The numbers are part of the response
// contract: crisis replies must surface 999 and the Samaritans line.
var (
	resourceEmergency = Resource{
		Name:         "Emergency services",
		Phone:        "999",
		Description:  "Call 999 now if you or someone else is in immediate danger",
		Availability: "24/7",
	}
	resourceSamaritans = Resource{
		Name:         "Samaritans",
		Phone:        "116 123",
		Description:  "Free, confidential emotional support",
		Availability: "24/7",
	}
	resourceNHS111 = Resource{
		Name:         "NHS 111",
		Phone:        "111",
		Description:  "Urgent medical help when it's not a 999 emergency",
		Availability: "24/7",
	}
	resourceShout = Resource{
		Name:         "Shout",
		Text:         "85258",
		Description:  "Text SHOUT to 85258 for confidential crisis support by text",
		Availability: "24/7",
	}
	resourceMind = Resource{
		Name:         "Mind Infoline",
		Phone:        "0300 123 3393",
		Description:  "Mental health information and signposting",
		Availability: "Mon-Fri 9am-6pm",
	}
	resourceNurseLine = Resource{
		Name:         "Ask Eve nurse service",
		Phone:        "0808 802 0019",
		Description:  "Free and confidential gynaecological health information service",
		Availability: "Mon-Fri 9am-5pm",
	}
	resourceUrgentMentalHealth = Resource{
		Name:         "NHS urgent mental health helpline",
		Phone:        "111, option 2",
		Description:  "Speak to a local mental health professional",
		Availability: "24/7",
	}
)

func supportResources() []Resource {
	return []Resource{resourceSamaritans, resourceShout, resourceMind, resourceNurseLine}
}

func emergencyContacts() []Resource {
	return []Resource{resourceEmergency, resourceSamaritans, resourceNHS111}
}

func urgentCareContacts() []Resource {
	return []Resource{resourceNHS111, resourceUrgentMentalHealth, resourceNurseLine}
}
