package watcher

import (
	"regexp"
	"testing"
)

func TestMatchers(t *testing.T) {
	tests := []struct {
		name  string
		m     Matcher
		line  string
		want  string
		match bool
	}{
		{"substring hit", Substring("Listening on port"), "  N: Listening on port: 7681 ", "N: Listening on port: 7681", true},
		{"substring miss", Substring("Listening"), "starting", "", false},
		{"substring empty never matches", Substring(""), "anything", "", false},
		{"regexp group", Regexp(regexp.MustCompile(`port: (\d+)`)), "Listening on port: 7681", "7681", true},
		{"regexp whole", Regexp(regexp.MustCompile(`\d+`)), "port 42", "42", true},
		{"url any host", URL(nil), "go to https://x.example/path now", "https://x.example/path", true},
		{"url skips non matching host", URL(regexp.MustCompile(`trycloudflare\.com`)), "https://docs.example https://a-b.trycloudflare.com", "https://a-b.trycloudflare.com", true},
		{"url none", URL(nil), "http://plain.example", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.m.Match(tt.line)
			if ok != tt.match || got != tt.want {
				t.Fatalf("Match(%q) = %q,%v want %q,%v", tt.line, got, ok, tt.want, tt.match)
			}
		})
	}
}

func TestSequenceWaitsForConfirmation(t *testing.T) {
	m := Sequence(URL(nil), Substring("Registered tunnel connection"))
	if _, ok := m.Match("INF https://a.example"); ok {
		t.Fatal("must not release before confirmation")
	}
	if _, ok := m.Match("INF Registered tunnel connection connIndex=0"); !ok {
		t.Fatal("expected release on confirmation")
	}
	m = Sequence(URL(nil), Substring("Registered"))
	if _, ok := m.Match("Registered before any url"); ok {
		t.Fatal("confirmation without captured value must not match")
	}
	if v, ok := m.Match("https://b.example Registered"); !ok || v != "https://b.example" {
		t.Fatalf("same-line capture and confirm: got %q,%v", v, ok)
	}
}
