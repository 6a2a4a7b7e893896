// Package appconfig manages application configuration and runtime file paths.
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/treykane/termshare/internal/util"
	"gopkg.in/yaml.v3"
)

// Readiness strategies for the terminal server.
const (
	ReadinessTCP = "tcp"
	ReadinessLog = "log"
)

// BinariesConfig controls where ttyd and cloudflared are found.
type BinariesConfig struct {
	ResourceDir string `yaml:"resource_dir"`
	TTYD        string `yaml:"ttyd"`
	Cloudflared string `yaml:"cloudflared"`
	SearchPath  bool   `yaml:"search_path"`
}

// TerminalConfig shapes the ttyd invocation.
type TerminalConfig struct {
	BindAddress  string        `yaml:"bind_address"`
	Shell        string        `yaml:"shell"`
	Theme        string        `yaml:"theme"`
	Writable     bool          `yaml:"writable"`
	StartupDelay time.Duration `yaml:"startup_delay"`
}

// ReadinessConfig controls how the terminal server is judged ready.
type ReadinessConfig struct {
	Strategy   string        `yaml:"strategy"`
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	LogPattern string        `yaml:"log_pattern"`
	LogTimeout time.Duration `yaml:"log_timeout"`
	UsePTY     bool          `yaml:"use_pty"`
}

// TunnelConfig controls the cloudflared invocation and URL detection.
type TunnelConfig struct {
	URLPattern          string        `yaml:"url_pattern"`
	URLTimeout          time.Duration `yaml:"url_timeout"`
	AwaitRegistration   bool          `yaml:"await_registration"`
	RegistrationPattern string        `yaml:"registration_pattern"`
	ExtraArgs           []string      `yaml:"extra_args"`
}

// HealthConfig controls the session health monitor.
type HealthConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ProcessConfig controls child process teardown.
type ProcessConfig struct {
	StopGrace time.Duration `yaml:"stop_grace"`
}

// SecurityConfig contains hardening toggles.
type SecurityConfig struct {
	TokenPath  bool `yaml:"token_path"`
	RedactLogs bool `yaml:"redact_logs"`
}

// APIConfig controls the local control API served by `termshare serve`.
type APIConfig struct {
	Listen             string `yaml:"listen"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
}

// UIConfig contains TUI display settings.
type UIConfig struct {
	RefreshSeconds int `yaml:"refresh_seconds"`
}

// Config holds application-level configuration.
type Config struct {
	Binaries  BinariesConfig  `yaml:"binaries"`
	Terminal  TerminalConfig  `yaml:"terminal"`
	Readiness ReadinessConfig `yaml:"readiness"`
	Tunnel    TunnelConfig    `yaml:"tunnel"`
	Health    HealthConfig    `yaml:"health"`
	Process   ProcessConfig   `yaml:"process"`
	Security  SecurityConfig  `yaml:"security"`
	API       APIConfig       `yaml:"api"`
	UI        UIConfig        `yaml:"ui"`
}

const (
	defaultURLPattern          = `https://[a-z0-9-]+\.trycloudflare\.com`
	defaultLogPattern          = "Listening on port"
	defaultRegistrationPattern = "Registered tunnel connection"
	defaultTheme               = `{"background": "#000"}`
	defaultAPIListen           = "127.0.0.1:7690"
	defaultRateLimit           = 60
	defaultLogTimeout          = 10 * time.Second
)

// Default returns the default configuration.
func Default() Config {
	return Config{
		Binaries: BinariesConfig{SearchPath: true},
		Terminal: TerminalConfig{
			BindAddress:  "0.0.0.0",
			Theme:        defaultTheme,
			Writable:     true,
			StartupDelay: util.TerminalStartupDelay,
		},
		Readiness: ReadinessConfig{
			Strategy:   ReadinessTCP,
			Attempts:   util.ReadinessAttempts,
			Backoff:    util.ReadinessBackoff,
			LogPattern: defaultLogPattern,
			LogTimeout: defaultLogTimeout,
		},
		Tunnel: TunnelConfig{
			URLPattern:          defaultURLPattern,
			URLTimeout:          util.TunnelURLTimeout,
			RegistrationPattern: defaultRegistrationPattern,
		},
		Health:   HealthConfig{Interval: util.HealthInterval},
		Process:  ProcessConfig{StopGrace: util.StopGrace},
		Security: SecurityConfig{TokenPath: true, RedactLogs: true},
		API:      APIConfig{Listen: defaultAPIListen, RateLimitPerMinute: defaultRateLimit},
		UI:       UIConfig{RefreshSeconds: util.DefaultRefreshSeconds},
	}
}

// ConfigDir returns the application config directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/termshare.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "termshare"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, ".config", "termshare"), nil
}

func pathIn(name string) (string, error) {
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, name), nil
}

// ConfigFilePath returns the full path to config.yaml.
func ConfigFilePath() (string, error) { return pathIn("config.yaml") }

// RuntimeFilePath returns the full path to runtime.json.
func RuntimeFilePath() (string, error) { return pathIn("runtime.json") }

// JournalPath returns the full path to the session event journal.
func JournalPath() (string, error) { return pathIn("events.jsonl") }

// Load reads config.yaml from the config directory.
// If the file doesn't exist, creates it with defaults.
func Load() (Config, error) {
	path, err := ConfigFilePath()
	if err != nil {
		return Config{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Config{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, fmt.Errorf("validate %s: %w", path, err)
	}
	return cfg, nil
}

// normalize replaces out-of-range values with defaults and rejects patterns
// that do not compile.
func (c *Config) normalize() error {
	d := Default()
	if c.Terminal.StartupDelay < 0 {
		c.Terminal.StartupDelay = d.Terminal.StartupDelay
	}
	c.Terminal.BindAddress = util.NormalizeAddr(c.Terminal.BindAddress, d.Terminal.BindAddress)

	c.Readiness.Strategy = strings.ToLower(strings.TrimSpace(c.Readiness.Strategy))
	switch c.Readiness.Strategy {
	case ReadinessTCP, ReadinessLog:
	default:
		c.Readiness.Strategy = ReadinessTCP
	}
	if c.Readiness.Attempts <= 0 {
		c.Readiness.Attempts = d.Readiness.Attempts
	}
	if c.Readiness.Backoff <= 0 {
		c.Readiness.Backoff = d.Readiness.Backoff
	}
	if c.Readiness.LogTimeout <= 0 {
		c.Readiness.LogTimeout = d.Readiness.LogTimeout
	}
	c.Readiness.LogPattern = util.DefaultString(c.Readiness.LogPattern, d.Readiness.LogPattern)

	c.Tunnel.URLPattern = util.DefaultString(c.Tunnel.URLPattern, d.Tunnel.URLPattern)
	if _, err := regexp.Compile(c.Tunnel.URLPattern); err != nil {
		return fmt.Errorf("tunnel.url_pattern: %w", err)
	}
	if c.Tunnel.URLTimeout <= 0 {
		c.Tunnel.URLTimeout = d.Tunnel.URLTimeout
	}
	c.Tunnel.RegistrationPattern = util.DefaultString(c.Tunnel.RegistrationPattern, d.Tunnel.RegistrationPattern)

	if c.Health.Interval <= 0 {
		c.Health.Interval = d.Health.Interval
	}
	if c.Process.StopGrace <= 0 {
		c.Process.StopGrace = d.Process.StopGrace
	}
	c.API.Listen = util.DefaultString(c.API.Listen, d.API.Listen)
	if c.API.RateLimitPerMinute <= 0 {
		c.API.RateLimitPerMinute = d.API.RateLimitPerMinute
	}
	if c.UI.RefreshSeconds <= 0 {
		c.UI.RefreshSeconds = d.UI.RefreshSeconds
	}
	return nil
}

// URLRegexp compiles the tunnel URL pattern. Load has already validated it.
func (c Config) URLRegexp() *regexp.Regexp {
	re, err := regexp.Compile(c.Tunnel.URLPattern)
	if err != nil {
		return regexp.MustCompile(defaultURLPattern)
	}
	return re
}

// Save writes config to config.yaml.
func Save(cfg Config) error {
	path, err := ConfigFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, b, 0o600)
}
