package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_CreatesDefaults(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Readiness.Strategy != ReadinessTCP {
		t.Fatalf("unexpected strategy: %s", cfg.Readiness.Strategy)
	}
	if cfg.Readiness.Attempts != 10 || cfg.Readiness.Backoff != 500*time.Millisecond {
		t.Fatalf("unexpected readiness defaults: %+v", cfg.Readiness)
	}
	if cfg.Tunnel.URLTimeout != 30*time.Second {
		t.Fatalf("unexpected url timeout: %s", cfg.Tunnel.URLTimeout)
	}
	if cfg.Terminal.StartupDelay != 2*time.Second {
		t.Fatalf("unexpected startup delay: %s", cfg.Terminal.StartupDelay)
	}
	if !cfg.Security.TokenPath || !cfg.Security.RedactLogs {
		t.Fatalf("expected hardened security defaults, got %+v", cfg.Security)
	}
	info, err := os.Stat(filepath.Join(xdg, "termshare", "config.yaml"))
	if err != nil {
		t.Fatalf("config.yaml not written: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected config mode: %v", info.Mode().Perm())
	}
}

func TestLoad_RoundTripsDurations(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg := Default()
	cfg.Tunnel.URLTimeout = 45 * time.Second
	cfg.Health.Interval = 250 * time.Millisecond
	if err := Save(cfg); err != nil {
		t.Fatal(err)
	}
	path, err := ConfigFilePath()
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "url_timeout: 45s") {
		t.Fatalf("durations should be written human readable:\n%s", b)
	}
	got, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.Tunnel.URLTimeout != 45*time.Second || got.Health.Interval != 250*time.Millisecond {
		t.Fatalf("round trip lost durations: %+v %+v", got.Tunnel, got.Health)
	}
}

func TestLoad_NormalizesInvalidValues(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	dir := filepath.Join(xdg, "termshare")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	content := []byte(strings.Join([]string{
		"readiness:",
		"  strategy: carrier-pigeon",
		"  attempts: -1",
		"  backoff: 0s",
		"tunnel:",
		"  url_pattern: \"\"",
		"health:",
		"  interval: -1s",
		"api:",
		"  rate_limit_per_minute: 0",
		"",
	}, "\n"))
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	d := Default()
	if cfg.Readiness.Strategy != ReadinessTCP || cfg.Readiness.Attempts != d.Readiness.Attempts || cfg.Readiness.Backoff != d.Readiness.Backoff {
		t.Fatalf("readiness not normalized: %+v", cfg.Readiness)
	}
	if cfg.Tunnel.URLPattern != d.Tunnel.URLPattern {
		t.Fatalf("url pattern not defaulted: %q", cfg.Tunnel.URLPattern)
	}
	if cfg.Health.Interval != d.Health.Interval {
		t.Fatalf("interval not normalized: %s", cfg.Health.Interval)
	}
	if cfg.API.RateLimitPerMinute != d.API.RateLimitPerMinute {
		t.Fatalf("rate limit not normalized: %d", cfg.API.RateLimitPerMinute)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Tunnel.URLTimeout != d.Tunnel.URLTimeout || !cfg.Security.TokenPath {
		t.Fatalf("absent keys lost defaults: %+v %+v", cfg.Tunnel, cfg.Security)
	}
}

func TestLoad_RejectsBadURLPattern(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	dir := filepath.Join(xdg, "termshare")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("tunnel:\n  url_pattern: \"https://[\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "tunnel.url_pattern") {
		t.Fatalf("expected url_pattern error, got %v", err)
	}
}

func TestURLRegexpMatchesQuickTunnel(t *testing.T) {
	re := Default().URLRegexp()
	if !re.MatchString("https://misty-river-42.trycloudflare.com") {
		t.Fatal("default pattern should match quick tunnel hosts")
	}
	if re.MatchString("https://developers.cloudflare.com") {
		t.Fatal("default pattern should not match documentation links")
	}
}
