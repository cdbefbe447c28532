package mcp

import "testing"

func TestFindVersion(t *testing.T) {
	tests := []struct {
		in   string
		want ProtocolVersion
	}{
		{"2024-11-05", Version20241105},
		{"2025-03-26", Version20250326},
		{"2025-06-18", Version20250618},
		{"", Version20250618},
		{"1999-01-01", Version20250618},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := FindVersion(tt.in); got != tt.want {
				t.Fatalf("FindVersion(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAtLeast(t *testing.T) {
	if !Version20250618.AtLeast(Version20250326) {
		t.Fatal("expected 2025-06-18 >= 2025-03-26")
	}
	if Version20241105.AtLeast(Version20250326) {
		t.Fatal("expected 2024-11-05 < 2025-03-26")
	}
	if !Version20250326.AtLeast(Version20250326) {
		t.Fatal("expected version to be at least itself")
	}
}

func TestLoggingLevelSeverity(t *testing.T) {
	if LoggingLevelDebug.Severity() >= LoggingLevelError.Severity() {
		t.Fatal("debug should sort below error")
	}
	if IsValidLoggingLevel("verbose") {
		t.Fatal("verbose is not a protocol level")
	}
	if LoggingLevel("verbose").Severity() != -1 {
		t.Fatal("unknown levels should report -1")
	}
}
