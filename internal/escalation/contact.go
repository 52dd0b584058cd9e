package escalation

import (
	"fmt"
	"regexp"
	"strings"
)

// ContactDetails holds optional user contact data. Nothing here is trusted
// until Validate passes; no escalation event is finalized with invalid
// contact details.
type ContactDetails struct {
	Name               string `json:"name"`
	Phone              string `json:"phone,omitempty"`
	Email              string `json:"email,omitempty"`
	PreferredChannel   string `json:"preferred_channel,omitempty"` // phone or email
	BestTimeToCall     string `json:"best_time_to_call,omitempty"`
	AlternativeContact string `json:"alternative_contact,omitempty"`
}

// ValidationError describes a single rejected field. Validation failures are
// structured results, never thrown.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("escalation: invalid %s: %s", e.Field, e.Reason)
}

// ukMobileRe matches a UK mobile number after spaces, dashes, and
// parentheses are stripped: 07 plus nine digits, or the +44 equivalent.
var ukMobileRe = regexp.MustCompile(`^(?:\+447\d{9}|07\d{9})$`)

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func normalizePhone(phone string) string {
	replacer := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
	return replacer.Replace(strings.TrimSpace(phone))
}

// ValidUKMobile reports whether the phone number is a well-formed UK mobile.
func ValidUKMobile(phone string) bool {
	return ukMobileRe.MatchString(normalizePhone(phone))
}

// ValidEmail reports whether the address is a well-formed email.
func ValidEmail(email string) bool {
	return emailRe.MatchString(strings.TrimSpace(email))
}

// Validate checks the contact details and returns all field errors found.
// A valid contact has a name of at least two characters and at least one of
// a valid phone number or email address.
func (c *ContactDetails) Validate() []ValidationError {
	var errs []ValidationError

	if len(strings.TrimSpace(c.Name)) < 2 {
		errs = append(errs, ValidationError{Field: "name", Reason: "name must be at least 2 characters"})
	}

	phone := strings.TrimSpace(c.Phone)
	email := strings.TrimSpace(c.Email)

	if phone == "" && email == "" {
		errs = append(errs, ValidationError{Field: "contact", Reason: "at least one of phone or email is required"})
		return errs
	}
	if phone != "" && !ValidUKMobile(phone) {
		errs = append(errs, ValidationError{Field: "phone", Reason: "not a valid UK mobile number"})
	}
	if email != "" && !ValidEmail(email) {
		errs = append(errs, ValidationError{Field: "email", Reason: "not a valid email address"})
	}
	return errs
}
