// Package api serves the local control API used by scripts and other front
// ends: start, stop and status over HTTP, a websocket status stream and
// Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/treykane/termshare/internal/events"
	"github.com/treykane/termshare/internal/model"
	"github.com/treykane/termshare/internal/security"
	"github.com/treykane/termshare/internal/supervisor"
	"github.com/treykane/termshare/internal/util"
)

// Controller is the session surface the API drives.
type Controller interface {
	Start(ctx context.Context) (model.SessionInfo, error)
	Stop() error
	Status() model.StatusSnapshot
}

// Options configure a Server.
type Options struct {
	RateLimitPerMinute int
	Redact             bool
	Logger             *slog.Logger
}

// Server is the HTTP control surface.
type Server struct {
	ctrl Controller
	hub  *Hub
	opts Options
	log  *slog.Logger
}

// NewServer returns a server driving ctrl and streaming status from bus.
func NewServer(ctrl Controller, bus *events.Bus, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RateLimitPerMinute <= 0 {
		opts.RateLimitPerMinute = 60
	}
	return &Server{ctrl: ctrl, hub: NewHub(bus, opts.Logger), opts: opts, log: opts.Logger}
}

// Hub returns the websocket hub. It must be running for clients to receive
// updates after the initial snapshot.
func (s *Server) Hub() *Hub { return s.hub }

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(localOriginOnly)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(httprate.Limit(
			s.opts.RateLimitPerMinute,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Retry-After", "60")
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate_limit_exceeded", Detail: "too many requests"})
			}),
		))
		r.Get("/status", s.handleStatus)
		r.Post("/session", s.handleStart)
		r.Delete("/session", s.handleStop)
	})
	return r
}

// Serve runs the API on ln and the hub until ctx ends, then shuts the HTTP
// server down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.hub.Run(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		s.log.Info("control API listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve api: %w", err)
		}
		return nil
	})
	return g.Wait()
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	info, err := s.ctrl.Start(r.Context())
	if err != nil {
		status, code := classify(err)
		s.log.Warn("api start failed", "error", security.DebugMessage(err), "status", status)
		writeJSON(w, status, errorBody{Error: code, Detail: security.UserMessage(err, s.opts.Redact)})
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	if err := s.ctrl.Stop(); err != nil {
		status, code := classify(err)
		writeJSON(w, status, errorBody{Error: code, Detail: security.UserMessage(err, s.opts.Redact)})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return isLocalOrigin(r.Header.Get("Origin")) }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "error", err)
		return
	}
	c := s.hub.Add(conn, s.ctrl.Status())
	go func() {
		defer s.hub.Remove(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// classify maps supervisor errors to HTTP status and a stable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, supervisor.ErrAlreadyRunning):
		return http.StatusConflict, "already_running"
	case errors.Is(err, supervisor.ErrBinaryNotFound):
		return http.StatusServiceUnavailable, "binary_not_found"
	case errors.Is(err, supervisor.ErrTerminalServerUnreachable):
		return http.StatusBadGateway, "terminal_server_unreachable"
	case errors.Is(err, supervisor.ErrTunnelURLNotFound):
		return http.StatusGatewayTimeout, "tunnel_url_not_found"
	case errors.Is(err, context.Canceled):
		return 499, "canceled"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// localOriginOnly rejects browser requests from non-loopback origins so a
// web page cannot drive the API through the user's browser.
func localOriginOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isLocalOrigin(r.Header.Get("Origin")) {
			writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden_origin"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isLocalOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return !util.IsPublicBind(u.Hostname())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
