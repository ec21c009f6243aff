package ids

import "testing"

func TestNewAgentID(t *testing.T) {
	a := NewAgentID()
	if !ValidAgentID(string(a)) {
		t.Fatalf("generated id %q did not validate", a)
	}
	b := NewAgentID()
	if a == b {
		t.Fatalf("expected distinct ids, got %q twice", a)
	}
}

func TestValidPrefixes(t *testing.T) {
	cases := []struct {
		id    string
		valid func(string) bool
		want  bool
	}{
		{"agent-abc123", ValidAgentID, true},
		{"host-abc123", ValidAgentID, false},
		{"agent-", ValidAgentID, false},
		{"host-deadbeef", ValidHostID, true},
		{"snap-deadbeef", ValidSnapshotID, true},
		{"vol-deadbeef", ValidVolumeID, true},
		{"", ValidHostID, false},
	}
	for _, c := range cases {
		if got := c.valid(c.id); got != c.want {
			t.Errorf("validate(%q) = %v, want %v", c.id, got, c.want)
		}
	}
}

func TestNameValidate(t *testing.T) {
	if err := AgentName("").Validate(); err == nil {
		t.Error("expected error for empty name")
	}
	if err := AgentName("has/slash").Validate(); err == nil {
		t.Error("expected error for name with slash")
	}
	if err := AgentName("fine-name_1").Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
