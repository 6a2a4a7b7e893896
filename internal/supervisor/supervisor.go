// Package supervisor owns the lifecycle of a shared terminal session: the
// terminal server (ttyd) and the tunnel client (cloudflared) that exposes it.
//
// A session is started in a fixed order. The terminal server must accept
// connections before the tunnel client is spawned, and the session is only
// reported running once the tunnel has announced its public URL. Every
// failure on the way tears down whatever was already started, so callers
// never observe a half-built session.
//
// Two locks are involved. The operation lock serialises Start, Stop and
// crash handling end to end; Start refuses to wait for it. The state mutex
// guards the session fields and is only ever held briefly, so Status never
// blocks behind a running Start.
package supervisor

import (
	"context"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/treykane/termshare/internal/appconfig"
	"github.com/treykane/termshare/internal/binlocate"
	"github.com/treykane/termshare/internal/credential"
	"github.com/treykane/termshare/internal/events"
	"github.com/treykane/termshare/internal/launcher"
	"github.com/treykane/termshare/internal/metrics"
	"github.com/treykane/termshare/internal/model"
	"github.com/treykane/termshare/internal/portalloc"
	"github.com/treykane/termshare/internal/security"
	"github.com/treykane/termshare/internal/tools"
	"github.com/treykane/termshare/internal/util"
	"github.com/treykane/termshare/internal/watcher"
	"golang.org/x/sync/errgroup"
)

// Supervisor runs at most one session at a time.
type Supervisor struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	// opLock is a one-slot semaphore held for a whole Start, Stop or crash
	// teardown.
	opLock chan struct{}

	mu          sync.Mutex
	state       model.SessionState
	session     *session
	startCancel context.CancelFunc
}

// session is everything owned by a running share.
type session struct {
	info     model.SessionInfo
	terminal *launcher.Handle
	tunnel   *launcher.Handle

	tunnelURL string

	monitorCancel context.CancelFunc
	monitorDone   chan struct{}
}

// New returns an idle supervisor.
func New(cfg Config, deps Deps) *Supervisor {
	cfg.applyDefaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Spawner == nil {
		deps.Spawner = launcher.New()
	}
	if deps.Credentials == nil {
		deps.Credentials = credential.New()
	}
	if deps.Locator == nil {
		deps.Locator = binlocate.New("", true, nil)
	}
	return &Supervisor{
		cfg:    cfg,
		deps:   deps,
		log:    deps.Logger,
		opLock: make(chan struct{}, 1),
		state:  model.SessionIdle,
	}
}

// Status returns the current snapshot. It never blocks on I/O.
func (s *Supervisor) Status() model.StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != model.SessionRunning || s.session == nil {
		return model.StatusSnapshot{}
	}
	return model.SnapshotOf(s.session.info)
}

// State returns the current lifecycle phase.
func (s *Supervisor) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info returns the running session, if any.
func (s *Supervisor) Info() (model.SessionInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || s.state != model.SessionRunning {
		return model.SessionInfo{}, false
	}
	return s.session.info, true
}

// Start launches a new session and returns once it is reachable through the
// public URL. Concurrent calls fail fast with ErrAlreadyRunning.
func (s *Supervisor) Start(ctx context.Context) (model.SessionInfo, error) {
	select {
	case s.opLock <- struct{}{}:
	default:
		metrics.RecordStart(reason(ErrAlreadyRunning), 0)
		return model.SessionInfo{}, fail(ErrAlreadyRunning, nil, "a session is already running")
	}
	defer s.releaseOp()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.state != model.SessionIdle {
		s.mu.Unlock()
		metrics.RecordStart(reason(ErrAlreadyRunning), 0)
		return model.SessionInfo{}, fail(ErrAlreadyRunning, nil, "a session is already running")
	}
	s.state = model.SessionStarting
	s.startCancel = cancel
	s.mu.Unlock()

	began := time.Now()
	id := uuid.NewString()
	s.journal(events.Event{SessionID: id, EventType: events.TypeStartRequested, State: model.SessionStarting})
	s.log.Info("starting session", "session_id", id)

	sess, err := s.start(ctx, id)
	if err != nil {
		s.mu.Lock()
		s.state = model.SessionIdle
		s.startCancel = nil
		s.mu.Unlock()

		s.publish(model.StatusSnapshot{})
		s.journal(events.Event{
			SessionID: id,
			EventType: events.TypeStartFailed,
			State:     model.SessionIdle,
			Message:   security.DebugMessage(err),
		})
		metrics.RecordStart(reason(err), time.Since(began))
		s.log.Warn("session start failed", "session_id", id, "error", security.DebugMessage(err))
		return model.SessionInfo{}, err
	}

	monitorCtx, monitorCancel := context.WithCancel(context.Background())
	sess.monitorCancel = monitorCancel
	sess.monitorDone = make(chan struct{})

	s.mu.Lock()
	s.session = sess
	s.state = model.SessionRunning
	s.startCancel = nil
	s.mu.Unlock()

	rec := model.RuntimeRecord{
		SessionID:   id,
		TunnelURL:   sess.tunnelURL,
		Port:        sess.info.Port,
		TerminalPID: sess.terminal.PID(),
		TunnelPID:   sess.tunnel.PID(),
		OwnerPID:    os.Getpid(),
		StartedAt:   sess.info.StartedAt,
	}
	if err := s.persist(rec); err != nil {
		s.log.Warn("failed to persist runtime state", "error", err)
	}

	go s.monitor(monitorCtx, sess)

	s.publish(model.SnapshotOf(sess.info))
	s.journal(events.Event{
		SessionID:   id,
		EventType:   events.TypeStartSucceeded,
		State:       model.SessionRunning,
		Port:        sess.info.Port,
		TerminalPID: rec.TerminalPID,
		TunnelPID:   rec.TunnelPID,
		Message:     sess.tunnelURL,
	})
	metrics.RecordStart(metrics.ResultOK, time.Since(began))
	s.log.Info("session running", "session_id", id, "port", sess.info.Port, "tunnel", sess.tunnelURL)
	return sess.info, nil
}

// start runs the launch sequence. On error every process it spawned has
// been terminated and reaped.
func (s *Supervisor) start(ctx context.Context, id string) (_ *session, err error) {
	var spawned []*launcher.Handle
	defer func() {
		if err != nil {
			s.terminate(spawned...)
		}
	}()

	if owner := s.foreignOwner(); owner > 0 {
		return nil, failf(ErrAlreadyRunning, "a session is already running in another termshare process",
			"runtime file %s is owned by live pid %d", s.cfg.RuntimePath, owner)
	}

	ttydPath, err := s.deps.Locator.Resolve(tools.TerminalServerName)
	if err != nil {
		return nil, fail(ErrBinaryNotFound, err, "ttyd was not found; install it or set binaries.ttyd")
	}
	cloudflaredPath, err := s.deps.Locator.Resolve(tools.TunnelClientName)
	if err != nil {
		return nil, fail(ErrBinaryNotFound, err, "cloudflared was not found; install it or set binaries.cloudflared")
	}

	s.ReapOrphans()

	host := ProbeHost(s.cfg.BindAddress)
	port, err := portalloc.Allocate(host)
	if err != nil {
		return nil, fail(ErrPortAllocation, err, "could not find a free local port")
	}

	creds, err := s.deps.Credentials.Generate()
	if err != nil {
		return nil, fail(ErrCredentials, err, "could not generate session credentials")
	}
	token := ""
	if s.cfg.TokenPath {
		token = creds.Token
	}
	redact := s.redactor(creds)

	terminal, err := s.deps.Spawner.Spawn(launcher.Spec{
		Name: tools.TerminalServerName,
		Path: ttydPath,
		Args: tools.TerminalServer{
			Port:        port,
			BindAddress: s.cfg.BindAddress,
			Username:    creds.Username,
			Password:    creds.Password,
			Token:       token,
			Theme:       s.cfg.Theme,
			Writable:    s.cfg.Writable,
			Shell:       s.cfg.Shell,
		}.Args(),
		CaptureStdout: true,
		CaptureStderr: true,
		PTY:           s.cfg.UsePTY,
	})
	if err != nil {
		return nil, fail(ErrSpawn, err, "could not start the terminal server")
	}
	spawned = append(spawned, terminal)
	s.log.Debug("terminal server spawned", "pid", terminal.PID(), "port", port)

	if err := s.awaitTerminal(ctx, terminal, port, redact); err != nil {
		return nil, err
	}

	tunnel, err := s.deps.Spawner.Spawn(launcher.Spec{
		Name:          tools.TunnelClientName,
		Path:          cloudflaredPath,
		Args:          tools.TunnelClient{Port: port, ExtraArgs: s.cfg.TunnelExtraArgs}.Args(),
		CaptureStdout: true,
		CaptureStderr: true,
	})
	if err != nil {
		return nil, fail(ErrSpawn, err, "could not start the tunnel client")
	}
	spawned = append(spawned, tunnel)
	s.log.Debug("tunnel client spawned", "pid", tunnel.PID())

	tunnelURL, err := s.awaitTunnelURL(ctx, tunnel, redact)
	if err != nil {
		return nil, err
	}

	return &session{
		info: model.SessionInfo{
			ID:        id,
			URL:       tools.PublicURL(tunnelURL, token),
			Username:  creds.Username,
			Password:  creds.Password,
			Port:      port,
			StartedAt: time.Now(),
		},
		terminal:  terminal,
		tunnel:    tunnel,
		tunnelURL: tunnelURL,
	}, nil
}

// awaitTerminal gives the terminal server its startup delay and then checks
// readiness with the configured strategy.
func (s *Supervisor) awaitTerminal(ctx context.Context, h *launcher.Handle, port uint16, redact func(string) string) error {
	primary, secondary := h.Stderr(), h.Stdout()
	if primary == nil {
		primary, secondary = secondary, nil
	}
	if secondary != nil {
		watcher.Drain(secondary, s.lineLogger(h.Name(), redact))
	}

	var ready <-chan watcher.Result
	switch {
	case primary == nil:
	case s.cfg.ReadinessStrategy == appconfig.ReadinessLog:
		ready = watcher.Watch(ctx, primary, watcher.Substring(s.cfg.ReadinessPattern), s.cfg.ReadinessTimeout, s.lineLogger(h.Name(), redact))
	default:
		watcher.Drain(primary, s.lineLogger(h.Name(), redact))
	}

	if s.cfg.StartupDelay > 0 {
		select {
		case <-ctx.Done():
			return canceled(ctx.Err())
		case <-h.Done():
		case <-time.After(s.cfg.StartupDelay):
		}
	}
	if h.Exited() {
		return failf(ErrTerminalServerUnreachable, "the terminal server exited during startup",
			"ttyd exited before becoming ready: %v", h.Wait())
	}

	if ready != nil {
		res := <-ready
		switch res.Kind {
		case watcher.Matched:
			s.log.Debug("terminal server reported ready", "line", redact(res.Value))
			return nil
		case watcher.Canceled:
			return canceled(res.Err)
		default:
			return failf(ErrTerminalServerUnreachable, "the terminal server did not become ready",
				"no readiness line %q from ttyd: %s", s.cfg.ReadinessPattern, res.Kind)
		}
	}

	attempt, err := portalloc.WaitReachable(ctx, portalloc.Addr(ProbeHost(s.cfg.BindAddress), port), portalloc.ProbeConfig{
		Attempts: s.cfg.ReadinessAttempts,
		Backoff:  s.cfg.ReadinessBackoff,
	})
	if err != nil {
		if ctx.Err() != nil {
			return canceled(ctx.Err())
		}
		return fail(ErrTerminalServerUnreachable, err, "the terminal server is not accepting connections")
	}
	s.log.Debug("terminal server reachable", "port", port, "attempt", attempt)
	return nil
}

// awaitTunnelURL watches the tunnel client's log stream for its public URL.
func (s *Supervisor) awaitTunnelURL(ctx context.Context, h *launcher.Handle, redact func(string) string) (string, error) {
	if out := h.Stdout(); out != nil {
		watcher.Drain(out, s.lineLogger(h.Name(), redact))
	}
	stream := h.Stderr()
	if stream == nil {
		return "", failf(ErrTunnelURLNotFound, "the tunnel client output could not be read", "cloudflared stderr was not captured")
	}

	var m watcher.Matcher = watcher.URL(s.cfg.URLPattern)
	if s.cfg.AwaitRegistration {
		m = watcher.Sequence(m, watcher.Substring(s.cfg.RegistrationPattern))
	}

	res := <-watcher.Watch(ctx, stream, m, s.cfg.URLTimeout, s.lineLogger(h.Name(), redact))
	switch res.Kind {
	case watcher.Matched:
		return res.Value, nil
	case watcher.Canceled:
		return "", canceled(res.Err)
	case watcher.Timeout:
		return "", failf(ErrTunnelURLNotFound, "the tunnel did not report a public URL in time",
			"no tunnel URL within %s", s.cfg.URLTimeout)
	default:
		return "", failf(ErrTunnelURLNotFound, "the tunnel client exited without a public URL",
			"cloudflared output ended without a URL (read error: %v)", res.Err)
	}
}

// Stop tears the running session down and waits until both processes have
// been reaped. Stopping an idle supervisor is a no-op.
func (s *Supervisor) Stop() error {
	return s.stop(context.Background())
}

// Shutdown is the host teardown hook. It aborts an in-flight Start and then
// stops the session, giving up on the operation lock when ctx ends.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.startCancel != nil {
		s.startCancel()
	}
	s.mu.Unlock()
	return s.stop(ctx)
}

func (s *Supervisor) stop(ctx context.Context) error {
	select {
	case s.opLock <- struct{}{}:
	case <-ctx.Done():
		return fail(ErrLock, ctx.Err(), "timed out waiting for the session to settle")
	}
	defer s.releaseOp()

	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if sess == nil {
		return nil
	}

	sess.monitorCancel()
	<-sess.monitorDone
	s.teardown(sess)

	metrics.RecordStop(metrics.CauseStop)
	s.publish(model.StatusSnapshot{})
	s.journal(events.Event{
		SessionID: sess.info.ID,
		EventType: events.TypeStopped,
		State:     model.SessionIdle,
		Port:      sess.info.Port,
	})
	s.log.Info("session stopped", "session_id", sess.info.ID)
	return nil
}

// teardown terminates both processes and clears the session. The caller
// holds the operation lock and has already stopped the monitor or is it.
func (s *Supervisor) teardown(sess *session) {
	s.mu.Lock()
	s.state = model.SessionStopping
	s.mu.Unlock()

	s.terminate(sess.terminal, sess.tunnel)

	s.mu.Lock()
	if s.session == sess {
		s.session = nil
	}
	s.state = model.SessionIdle
	s.mu.Unlock()
	s.removeRuntime()
}

// terminate stops handles concurrently. Errors are logged, never returned:
// a process that is already gone is the desired outcome.
func (s *Supervisor) terminate(handles ...*launcher.Handle) {
	var g errgroup.Group
	for _, h := range handles {
		if h == nil {
			continue
		}
		g.Go(func() error {
			if err := h.Terminate(s.cfg.StopGrace); err != nil {
				s.log.Warn("failed to terminate process", "process", h.Name(), "pid", h.PID(), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Supervisor) releaseOp() { <-s.opLock }

func (s *Supervisor) publish(snap model.StatusSnapshot) {
	if s.deps.Publisher == nil {
		return
	}
	if err := s.deps.Publisher.Publish(util.StatusTopic, snap); err != nil {
		s.log.Warn("failed to publish session status", "error", err)
	}
}

func (s *Supervisor) journal(evt events.Event) {
	if s.deps.Journal == nil {
		return
	}
	if err := s.deps.Journal.Append(evt); err != nil {
		s.log.Warn("failed to append session event", "event_type", evt.EventType, "error", err)
	}
}

// redactor masks this session's secrets in child output before logging.
func (s *Supervisor) redactor(creds credential.Credentials) func(string) string {
	if !s.cfg.RedactLogs {
		return func(line string) string { return line }
	}
	return func(line string) string {
		return security.RedactSecrets(security.RedactMessage(line), creds.Token, creds.Password)
	}
}

func (s *Supervisor) lineLogger(name string, redact func(string) string) watcher.Option {
	return watcher.WithLineFunc(func(line string) {
		if !s.log.Enabled(context.Background(), slog.LevelDebug) {
			return
		}
		s.log.Debug("child output", "process", name, "line", redact(line))
	})
}

// ProbeHost is where the terminal server is reached from this machine: an
// unspecified bind address maps to loopback.
func ProbeHost(bind string) string {
	bind = util.NormalizeAddr(bind, "127.0.0.1")
	if ip := net.ParseIP(bind); ip != nil && ip.IsUnspecified() {
		return "127.0.0.1"
	}
	return bind
}
