package common

import (
	"testing"
	"time"
)

func TestGetEnvFallback(t *testing.T) {
	t.Setenv("RELAY_TEST_KEY", "")
	if got := GetEnv("RELAY_TEST_KEY", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("RELAY_TEST_KEY", "set")
	if got := GetEnv("RELAY_TEST_KEY", "fallback"); got != "set" {
		t.Fatalf("expected set, got %q", got)
	}
}

func TestParseDurationValid(t *testing.T) {
	if got := ParseDuration("2h", 5*time.Minute); got != 2*time.Hour {
		t.Fatalf("expected 2h, got %s", got)
	}
}

func TestParseDurationInvalidUsesFallback(t *testing.T) {
	fallback := 5 * time.Minute
	if got := ParseDuration("not-a-duration", fallback); got != fallback {
		t.Fatalf("expected fallback %s, got %s", fallback, got)
	}
}

func TestParseIntInvalidUsesFallback(t *testing.T) {
	if got := ParseInt("nope", 7); got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
}

func TestParseBool(t *testing.T) {
	cases := map[string]bool{"true": true, "1": true, "YES": true, "false": false, "0": false, "no": false}
	for in, want := range cases {
		if got := ParseBool(in, !want); got != want {
			t.Fatalf("ParseBool(%q) = %v, want %v", in, got, want)
		}
	}
	if got := ParseBool("maybe", true); !got {
		t.Fatal("expected fallback for unknown value")
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" a , ,b,  ")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected split: %#v", got)
	}
	if got := SplitList(""); len(got) != 0 {
		t.Fatalf("expected empty, got %#v", got)
	}
}
