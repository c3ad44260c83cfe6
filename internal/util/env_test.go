package util

import (
	"testing"
	"time"
)

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
		t.Setenv("POSTPIPE_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("POSTPIPE_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("POSTPIPE_TEST_INT", " 5 ")
	if got := ParseIntEnv("POSTPIPE_TEST_INT", 3); got != 5 {
		t.Errorf("expected 5, got %d", got)
	}
	t.Setenv("POSTPIPE_TEST_INT", "five")
	if got := ParseIntEnv("POSTPIPE_TEST_INT", 3); got != 3 {
		t.Errorf("expected the default, got %d", got)
	}
}

func TestParseFloatEnv(t *testing.T) {
	t.Setenv("POSTPIPE_TEST_FLOAT", "0.2")
	if got := ParseFloatEnv("POSTPIPE_TEST_FLOAT", 0.7); got != 0.2 {
		t.Errorf("expected 0.2, got %v", got)
	}
	t.Setenv("POSTPIPE_TEST_FLOAT", "warm")
	if got := ParseFloatEnv("POSTPIPE_TEST_FLOAT", 0.7); got != 0.7 {
		t.Errorf("expected the default, got %v", got)
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("POSTPIPE_TEST_DURATION", "45s")
	if got := ParseDurationEnv("POSTPIPE_TEST_DURATION", time.Minute); got != 45*time.Second {
		t.Errorf("expected 45s, got %v", got)
	}
	for _, bad := range []string{"soon", "-5s"} {
		t.Setenv("POSTPIPE_TEST_DURATION", bad)
		if got := ParseDurationEnv("POSTPIPE_TEST_DURATION", time.Minute); got != time.Minute {
			t.Errorf("%q: expected the default, got %v", bad, got)
		}
	}
}
