package shell

import (
	"testing"
	"time"
)

func TestParseDurationUnits(t *testing.T) {
	cases := map[string]time.Duration{
		"10s": 10 * time.Second,
		"5m":  5 * time.Minute,
		"2h":  2 * time.Hour,
		"30":  30 * time.Second,
		"0":   0,
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		if err != nil {
			t.Errorf("ParseDuration(%q) unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseDuration(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseDurationRejectsInvalid(t *testing.T) {
	for _, in := range []string{"-5s", "5.5s", "5d", "5w", "abc", "", "5ss"} {
		if _, err := ParseDuration(in); err == nil {
			t.Errorf("ParseDuration(%q) expected error, got none", in)
		}
	}
}
