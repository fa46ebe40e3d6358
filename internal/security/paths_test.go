package security

import (
	"path/filepath"
	"testing"
)

func TestStripControl(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"normal text", "normal text"},
		{"null\x00byte", "nullbyte"},
		{"tab\tand\nnewline", "tabandnewline"},
		{"bell\x07del\x7f", "belldel"},
		{"unicode ♪ ok", "unicode ♪ ok"},
	}

	for _, tt := range tests {
		if got := StripControl(tt.input); got != tt.want {
			t.Errorf("StripControl(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestConfinePath(t *testing.T) {
	base := filepath.Join("/srv", "music")

	tests := []struct {
		name    string
		rel     string
		want    string
		wantErr bool
	}{
		{"nested file", filepath.Join("Pop", "Song.mp3"), filepath.Join(base, "Pop", "Song.mp3"), false},
		{"dots inside a name", "..Song..mp3", filepath.Join(base, "..Song..mp3"), false},
		{"traversal", filepath.Join("..", "etc", "passwd"), "", true},
		{"to parent", "..", "", true},
		{"absolute", "/etc/passwd", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConfinePath(base, tt.rel)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ConfinePath() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ConfinePath() = %q, want %q", got, tt.want)
			}
		})
	}
}
