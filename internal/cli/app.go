package cli

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/treykane/termshare/internal/appconfig"
	"github.com/treykane/termshare/internal/binlocate"
	"github.com/treykane/termshare/internal/events"
	"github.com/treykane/termshare/internal/security"
	"github.com/treykane/termshare/internal/supervisor"
)

// app is one process's wiring: config, status bus, journal and supervisor.
type app struct {
	cfg     appconfig.Config
	bus     *events.Bus
	journal *events.Store
	sup     *supervisor.Supervisor
}

func newApp() (*app, error) {
	cfg, err := appconfig.Load()
	if err != nil {
		return nil, err
	}
	runtimePath, err := appconfig.RuntimeFilePath()
	if err != nil {
		return nil, err
	}
	bus := events.NewBus()
	journal := events.NewStore()
	sup := supervisor.New(supervisor.ConfigFrom(cfg, runtimePath), supervisor.Deps{
		Locator:   binlocate.FromConfig(cfg.Binaries),
		Publisher: bus,
		Journal:   journal,
		Logger:    slog.Default(),
	})
	return &app{cfg: cfg, bus: bus, journal: journal, sup: sup}, nil
}

// shutdownTimeout covers stopping both children, each with its own grace.
func (a *app) shutdownTimeout() time.Duration {
	return 2*a.cfg.Process.StopGrace + time.Second
}

// shutdown stops any session, bounded by shutdownTimeout.
func (a *app) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()
	if err := a.sup.Shutdown(ctx); err != nil {
		slog.Warn("session shutdown incomplete", "error", err)
	}
}

// userError logs the full detail and returns the message safe to print.
func (a *app) userError(err error) error {
	slog.Debug("command failed", "error", security.DebugMessage(err))
	return errors.New(security.UserMessage(err, a.cfg.Security.RedactLogs))
}
