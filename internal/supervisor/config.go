package supervisor

import (
	"log/slog"
	"regexp"
	"time"

	"github.com/treykane/termshare/internal/appconfig"
	"github.com/treykane/termshare/internal/credential"
	"github.com/treykane/termshare/internal/events"
	"github.com/treykane/termshare/internal/launcher"
	"github.com/treykane/termshare/internal/util"
)

// Config is the supervisor's view of the application configuration.
type Config struct {
	BindAddress  string
	Shell        string
	Theme        string
	Writable     bool
	StartupDelay time.Duration

	ReadinessStrategy string
	ReadinessAttempts int
	ReadinessBackoff  time.Duration
	ReadinessPattern  string
	ReadinessTimeout  time.Duration
	UsePTY            bool

	URLPattern          *regexp.Regexp
	URLTimeout          time.Duration
	AwaitRegistration   bool
	RegistrationPattern string
	TunnelExtraArgs     []string

	HealthInterval time.Duration
	StopGrace      time.Duration

	TokenPath  bool
	RedactLogs bool

	// RuntimePath is where the running session is recorded for other
	// processes and orphan reaping. Empty disables persistence.
	RuntimePath string
}

// ConfigFrom derives a supervisor Config from the loaded application config.
func ConfigFrom(c appconfig.Config, runtimePath string) Config {
	return Config{
		BindAddress:         c.Terminal.BindAddress,
		Shell:               c.Terminal.Shell,
		Theme:               c.Terminal.Theme,
		Writable:            c.Terminal.Writable,
		StartupDelay:        c.Terminal.StartupDelay,
		ReadinessStrategy:   c.Readiness.Strategy,
		ReadinessAttempts:   c.Readiness.Attempts,
		ReadinessBackoff:    c.Readiness.Backoff,
		ReadinessPattern:    c.Readiness.LogPattern,
		ReadinessTimeout:    c.Readiness.LogTimeout,
		UsePTY:              c.Readiness.UsePTY,
		URLPattern:          c.URLRegexp(),
		URLTimeout:          c.Tunnel.URLTimeout,
		AwaitRegistration:   c.Tunnel.AwaitRegistration,
		RegistrationPattern: c.Tunnel.RegistrationPattern,
		TunnelExtraArgs:     c.Tunnel.ExtraArgs,
		HealthInterval:      c.Health.Interval,
		StopGrace:           c.Process.StopGrace,
		TokenPath:           c.Security.TokenPath,
		RedactLogs:          c.Security.RedactLogs,
		RuntimePath:         runtimePath,
	}
}

func (c *Config) applyDefaults() {
	if c.StartupDelay < 0 {
		c.StartupDelay = 0
	}
	if c.ReadinessStrategy == "" {
		c.ReadinessStrategy = appconfig.ReadinessTCP
	}
	if c.ReadinessAttempts <= 0 {
		c.ReadinessAttempts = util.ReadinessAttempts
	}
	if c.ReadinessBackoff <= 0 {
		c.ReadinessBackoff = util.ReadinessBackoff
	}
	if c.ReadinessTimeout <= 0 {
		c.ReadinessTimeout = 10 * time.Second
	}
	if c.URLTimeout <= 0 {
		c.URLTimeout = util.TunnelURLTimeout
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = util.HealthInterval
	}
	if c.StopGrace <= 0 {
		c.StopGrace = util.StopGrace
	}
}

// Locator resolves a tool name to an absolute executable path.
type Locator interface {
	Resolve(name string) (string, error)
}

// Spawner starts a child process.
type Spawner interface {
	Spawn(spec launcher.Spec) (*launcher.Handle, error)
}

// Journal records lifecycle events.
type Journal interface {
	Append(evt events.Event) error
}

// CredentialSource produces fresh session credentials.
type CredentialSource interface {
	Generate() (credential.Credentials, error)
}

// Deps are the supervisor's collaborators. A nil Publisher or Journal turns
// that output off; other nil fields get working defaults.
type Deps struct {
	Locator     Locator
	Spawner     Spawner
	Publisher   events.Publisher
	Journal     Journal
	Credentials CredentialSource
	Logger      *slog.Logger
}
