package track

import "testing"

func TestParseState(t *testing.T) {
	for _, raw := range []string{"unchanged", "added", "modified", "deleted"} {
		s, err := ParseState(raw)
		if err != nil {
			t.Fatalf("ParseState(%q): %v", raw, err)
		}
		if string(s) != raw {
			t.Fatalf("ParseState(%q) = %q", raw, s)
		}
	}
	if _, err := ParseState("detached"); err == nil {
		t.Fatal("expected error for unknown state")
	}
	if _, err := ParseState(""); err == nil {
		t.Fatal("expected error for empty state")
	}
}

func TestStateValid(t *testing.T) {
	if !StateAdded.Valid() {
		t.Fatal("StateAdded should be valid")
	}
	if State("pending").Valid() {
		t.Fatal("unknown state should be invalid")
	}
}

func TestZeroTrackingReportsUnchanged(t *testing.T) {
	c := newChild()
	if got := c.TrackingState(); got != StateUnchanged {
		t.Fatalf("zero tracking state = %q, want %q", got, StateUnchanged)
	}
}
