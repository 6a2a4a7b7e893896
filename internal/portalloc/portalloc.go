// Package portalloc finds free local TCP ports and probes them for listeners.
package portalloc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/treykane/termshare/internal/util"
)

// Allocate binds host:0, reads back the port the OS picked and releases it.
//
// Another process can grab the port between release and the terminal server
// binding it. The window is sub-millisecond and the attempt is not retried.
func Allocate(host string) (uint16, error) {
	host = util.NormalizeAddr(host, "127.0.0.1")
	ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, fmt.Errorf("bind ephemeral port: %w", err)
	}
	addr, ok := ln.Addr().(*net.TCPAddr)
	closeErr := ln.Close()
	if !ok {
		return 0, fmt.Errorf("unexpected listener address %s", ln.Addr())
	}
	if closeErr != nil {
		return 0, fmt.Errorf("release ephemeral port: %w", closeErr)
	}
	if err := util.ValidatePort(addr.Port); err != nil {
		return 0, err
	}
	return uint16(addr.Port), nil
}

// ProbeConfig bounds WaitReachable.
type ProbeConfig struct {
	Attempts    int
	Backoff     time.Duration
	DialTimeout time.Duration
}

// ErrUnreachable is returned when every probe attempt failed.
var ErrUnreachable = errors.New("port not accepting connections")

// WaitReachable dials addr until a connection succeeds, the attempts run out
// or ctx is cancelled. It returns the 1-based attempt that succeeded.
func WaitReachable(ctx context.Context, addr string, cfg ProbeConfig) (int, error) {
	if cfg.Attempts <= 0 {
		cfg.Attempts = util.ReadinessAttempts
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = util.ProbeDialTimeout
	}
	d := net.Dialer{Timeout: cfg.DialTimeout}
	var lastErr error
	for i := 1; i <= cfg.Attempts; i++ {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			_ = conn.Close()
			return i, nil
		}
		lastErr = err
		if i == cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return i, ctx.Err()
		case <-time.After(cfg.Backoff):
		}
	}
	return cfg.Attempts, fmt.Errorf("%w after %d attempts: %v", ErrUnreachable, cfg.Attempts, lastErr)
}

// Addr formats host and port for dialing.
func Addr(host string, port uint16) string {
	return net.JoinHostPort(util.NormalizeAddr(host, "127.0.0.1"), strconv.Itoa(int(port)))
}
