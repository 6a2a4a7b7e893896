package security

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRedactMessage(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	msg := home + "/.config/termshare/runtime.json permission denied"
	got := RedactMessage(msg)
	if got != "~/.config/termshare/runtime.json permission denied" {
		t.Fatalf("unexpected redaction: %q", got)
	}
}

func TestRedactMessageMasksToken(t *testing.T) {
	tok := "AbCdEfGhIjKlMnOpQrStUvWxYz012345"
	got := RedactMessage("serving https://a.trycloudflare.com/" + tok + "/ now")
	if strings.Contains(got, tok) {
		t.Fatalf("token leaked: %q", got)
	}
	if !strings.Contains(got, "/AbCd********/") {
		t.Fatalf("expected masked prefix, got %q", got)
	}
}

func TestRedactSecrets(t *testing.T) {
	got := RedactSecrets("-c quickfox42:123456 -b /tok3nvalue", "123456", "tok3nvalue", "")
	if strings.Contains(got, "123456") || strings.Contains(got, "tok3nvalue") {
		t.Fatalf("secrets leaked: %q", got)
	}
}

func TestClassifyKeepsCauseAndUserText(t *testing.T) {
	sentinel := errors.New("tunnel url not found")
	err := Classify(fmt.Errorf("%w: watcher timeout after 30s", sentinel), "tunnel did not report a public URL")
	if !errors.Is(err, sentinel) {
		t.Fatal("errors.Is must see through ClassifiedError")
	}
	if UserMessage(err, true) != "tunnel did not report a public URL" {
		t.Fatalf("unexpected user message: %q", UserMessage(err, true))
	}
	if !strings.Contains(DebugMessage(err), "watcher timeout") {
		t.Fatalf("unexpected debug message: %q", DebugMessage(err))
	}
	wrapped := fmt.Errorf("start: %w", err)
	if UserMessage(wrapped, false) != "tunnel did not report a public URL" {
		t.Fatal("user message should survive outer wrapping")
	}
}
