package permissions

import (
	"math"
	"testing"
)

func TestGroupRoundTrip(t *testing.T) {
	for _, g := range Groups() {
		if got := IDOf(NameOf(int(g))); got != g {
			t.Errorf("IDOf(NameOf(%d)) = %d", g, got)
		}
	}
	if len(Groups()) != GroupCount {
		t.Errorf("Groups() has %d entries, want %d", len(Groups()), GroupCount)
	}
}

func TestNameOfOutOfRange(t *testing.T) {
	for _, id := range []int{-1, 8, 42, math.MinInt32, math.MaxInt32} {
		if got := NameOf(id); got != "Viewer" {
			t.Errorf("NameOf(%d) = %q, want Viewer", id, got)
		}
	}
}

func TestIDOfUnknown(t *testing.T) {
	for _, name := range []string{"", "viewer", "MODERATOR", "Owner", "Moderator "} {
		if got := IDOf(name); got != Viewer {
			t.Errorf("IDOf(%q) = %d, want Viewer", name, got)
		}
	}
	if got := IDOf("Moderator"); got != Moderator {
		t.Errorf("IDOf(Moderator) = %d", got)
	}
}

func TestClampAndParse(t *testing.T) {
	tests := []struct {
		in     string
		want   GroupID
		wantOK bool
	}{
		{"0", Caster, true},
		{"3", Subscriber, true},
		{"7", Viewer, true},
		{"8", Viewer, true},
		{"-2", Viewer, true},
		{"abc", Viewer, false},
		{"", Viewer, false},
	}
	for _, tt := range tests {
		got, ok := ParseID(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseID(%q) = %d,%v want %d,%v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
	if Clamp(2) != Moderator || Clamp(-1) != Viewer || Clamp(100) != Viewer {
		t.Error("Clamp did not map out-of-range ids to Viewer")
	}
	if GroupID(9).Valid() || !Regular.Valid() {
		t.Error("Valid mismatch")
	}
	if GroupID(-3).String() != "Viewer" || Hoster.String() != "Hoster" {
		t.Error("String mismatch")
	}
}
