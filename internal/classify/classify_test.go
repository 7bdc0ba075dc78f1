package classify

import "testing"

func TestIsEmergency(t *testing.T) {
	c := New()

	tests := []struct {
		text string
		want bool
	}{
		{"Need HELP now", true},
		{"hello there", false},
		{"emergency: fire on 5th street", true},
		{"call 911", true},
		{"SOS", true},
		{"soS please", true},
		{"is dinner urgentish or can it wait", true}, // substring match, by policy
		{"meeting at the firehouse museum", true},    // ditto
		{"", false},
		{"all quiet tonight", false},
		{"MEDICAL supplies needed", true},
		{"danger ahead", true},
		{"the police station is closed", true},
	}
	for _, tt := range tests {
		if got := c.IsEmergency(tt.text); got != tt.want {
			t.Errorf("IsEmergency(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestExtraKeywords(t *testing.T) {
	c := New("Avalanche", "  ")

	if !c.IsEmergency("avalanche warning on the ridge") {
		t.Error("extra keyword should match case-insensitively")
	}
	// Built-ins still apply with extras configured.
	if !c.IsEmergency("send help") {
		t.Error("builtin keyword should still match")
	}
	if c.IsEmergency("clear skies") {
		t.Error("unrelated text should not match")
	}
}
