package util

import (
	"testing"
	"time"
)

func TestPick(t *testing.T) {
	if got := Pick[string](nil); got != "" {
		t.Errorf("expected zero value for empty slice, got %q", got)
	}
	items := []string{"a", "b", "c"}
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		v := Pick(items)
		if v != "a" && v != "b" && v != "c" {
			t.Fatalf("Pick returned %q, not in slice", v)
		}
		seen[v] = true
	}
	if len(seen) != len(items) {
		t.Errorf("expected every element to be picked at least once in 200 draws, saw %v", seen)
	}
}

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"yes", false, true},
		{"ON", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("REVIEWBOT_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("REVIEWBOT_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"", 8},
		{"16", 16},
		{"-2", 8},
		{"abc", 8},
	}
	for _, tt := range tests {
		t.Setenv("REVIEWBOT_TEST_INT", tt.value)
		if got := ParseIntEnv("REVIEWBOT_TEST_INT", 8); got != tt.want {
			t.Errorf("ParseIntEnv(%q) = %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("REVIEWBOT_TEST_DUR", "45s")
	if got := ParseDurationEnv("REVIEWBOT_TEST_DUR", time.Minute); got != 45*time.Second {
		t.Errorf("expected 45s, got %v", got)
	}
	t.Setenv("REVIEWBOT_TEST_DUR", "soon")
	if got := ParseDurationEnv("REVIEWBOT_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("expected default, got %v", got)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("REVIEWBOT_TEST_STR", "  value ")
	if got := GetEnv("REVIEWBOT_TEST_STR", "def"); got != "value" {
		t.Errorf("expected trimmed value, got %q", got)
	}
	t.Setenv("REVIEWBOT_TEST_STR", "")
	if got := GetEnv("REVIEWBOT_TEST_STR", "def"); got != "def" {
		t.Errorf("expected default, got %q", got)
	}
}
