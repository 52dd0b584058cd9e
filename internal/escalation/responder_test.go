package escalation

import (
	"strings"
	"testing"

	"github.com/simonlevelai/askeve-platform/internal/safety"
)

func TestLevelForSeverityMonotonic(t *testing.T) {
	ordered := []safety.Severity{
		safety.SeverityGeneral,
		safety.SeverityEmotionalSupport,
		safety.SeverityHighConcern,
		safety.SeverityCrisis,
	}
	prev := ResponseLevel(0)
	for _, s := range ordered {
		level := LevelForSeverity(s)
		if level <= prev {
			t.Fatalf("level for %s = %d, want > %d", s, level, prev)
		}
		prev = level
	}
}

func TestRespondInformation(t *testing.T) {
	r := NewResponder()
	resp := r.Respond(safety.SafetyResult{Severity: safety.SeverityGeneral}, "what are ovarian cancer symptoms?")

	if resp.Level != LevelInformation {
		t.Fatalf("level = %d, want %d", resp.Level, LevelInformation)
	}
	if resp.Tone != "informative" {
		t.Errorf("tone = %q", resp.Tone)
	}
	if resp.RequiresEscalation {
		t.Error("information response must not escalate")
	}
	if len(resp.Disclaimers) != 2 {
		t.Errorf("disclaimers = %d, want 2", len(resp.Disclaimers))
	}
}

func TestRespondConcern(t *testing.T) {
	r := NewResponder()
	result := safety.SafetyResult{
		Severity: safety.SeverityEmotionalSupport,
		Matches: []safety.TriggerMatch{
			{Category: safety.CategoryCallbackRequest},
		},
	}
	resp := r.Respond(result, "")

	if resp.Level != LevelConcern {
		t.Fatalf("level = %d, want %d", resp.Level, LevelConcern)
	}
	if !resp.RequiresEscalation {
		t.Error("concern response should flag escalation")
	}
	if !resp.RequiresCallback {
		t.Error("callback category should set RequiresCallback")
	}
	if len(resp.SupportResources) == 0 {
		t.Error("concern response should include support resources")
	}
}

func TestRespondWarning(t *testing.T) {
	r := NewResponder()
	resp := r.Respond(safety.SafetyResult{Severity: safety.SeverityHighConcern}, "")

	if resp.Level != LevelWarning {
		t.Fatalf("level = %d, want %d", resp.Level, LevelWarning)
	}
	if !resp.NurseEscalation {
		t.Error("warning response should escalate to nurse team")
	}
	if resp.Priority != "high" {
		t.Errorf("priority = %q, want high", resp.Priority)
	}
	if !strings.Contains(resp.Text, "111") {
		t.Error("warning response should point at NHS 111")
	}
	if len(resp.EmergencyContacts) == 0 {
		t.Error("warning response should carry emergency contacts")
	}
}

func TestRespondCrisis(t *testing.T) {
	r := NewResponder()
	resp := r.Respond(safety.SafetyResult{Severity: safety.SeverityCrisis}, "")

	if resp.Level != LevelCrisis {
		t.Fatalf("level = %d, want %d", resp.Level, LevelCrisis)
	}
	if !strings.Contains(resp.Text, "999") {
		t.Error("crisis response must include 999")
	}
	if !strings.Contains(resp.Text, "116 123") {
		t.Error("crisis response must include the Samaritans number")
	}
	if resp.Priority != "immediate" {
		t.Errorf("priority = %q, want immediate", resp.Priority)
	}
	if !resp.RequiresCallback {
		t.Error("crisis response must request a callback")
	}
	if len(resp.ImmediateActions) == 0 {
		t.Error("crisis response must list immediate actions")
	}
}

func TestRespondAccessibilityAlwaysSet(t *testing.T) {
	r := NewResponder()
	for _, s := range []safety.Severity{
		safety.SeverityGeneral,
		safety.SeverityEmotionalSupport,
		safety.SeverityHighConcern,
		safety.SeverityCrisis,
	} {
		resp := r.Respond(safety.SafetyResult{Severity: s}, "")
		if !resp.Accessibility.ScreenReaderCompatible || !resp.Accessibility.MHRACompliant {
			t.Errorf("severity %s: accessibility metadata missing", s)
		}
	}
}

func TestViolatesClinicalPolicy(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"You probably have cancer based on those symptoms.", true},
		{"You should stop taking your medication.", true},
		{"The diagnosis is clear.", true},
		{"Common symptoms include bloating and pelvic pain.", false},
		{"Your GP can talk through your individual situation.", false},
	}
	for _, tc := range cases {
		if got := violatesClinicalPolicy(tc.text); got != tc.want {
			t.Errorf("violatesClinicalPolicy(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}
