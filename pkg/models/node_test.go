package models

import "testing"

func strPtr(s string) *string { return &s }

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want string
	}{
		{"both names", Node{NodeID: "!0000beef", LongName: strPtr("Alpha Bravo"), ShortName: strPtr("AB12")}, "Alpha Bravo (AB12)"},
		{"long only", Node{NodeID: "!0000beef", LongName: strPtr("Alpha Bravo")}, "Alpha Bravo"},
		{"short only", Node{NodeID: "!0000beef", ShortName: strPtr("AB12")}, "AB12"},
		{"no names", Node{NodeID: "!0000beef"}, "!0000beef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.node.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNodeNumToID(t *testing.T) {
	tests := []struct {
		num  uint32
		want string
	}{
		{1234567890, "!499602d2"},
		{0xbeef, "!0000beef"},
		{0, "!00000000"},
	}
	for _, tt := range tests {
		if got := NodeNumToID(tt.num); got != tt.want {
			t.Errorf("NodeNumToID(%d) = %q, want %q", tt.num, got, tt.want)
		}
	}
}

func TestHasLocation(t *testing.T) {
	lat, lon := 40.1, -75.5
	with := Node{Latitude: &lat, Longitude: &lon}
	if !with.HasLocation() {
		t.Error("HasLocation() = false with coordinates")
	}
	partial := Node{Latitude: &lat}
	if partial.HasLocation() {
		t.Error("HasLocation() = true with only latitude")
	}
}
