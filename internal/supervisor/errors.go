package supervisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/treykane/termshare/internal/security"
)

// Sentinel errors. Every error returned by Start wraps exactly one of them
// inside a security.ClassifiedError.
var (
	ErrAlreadyRunning            = errors.New("a session is already running")
	ErrBinaryNotFound            = errors.New("required binary not found")
	ErrSpawn                     = errors.New("failed to start process")
	ErrPortAllocation            = errors.New("could not allocate a local port")
	ErrCredentials               = errors.New("could not generate session credentials")
	ErrTerminalServerUnreachable = errors.New("terminal server unreachable")
	ErrTunnelURLNotFound         = errors.New("tunnel URL not found")
	ErrLock                      = errors.New("session lock unavailable")
)

// fail wraps cause under sentinel and attaches the user-facing text.
func fail(sentinel, cause error, userSafe string) error {
	if cause == nil {
		return security.Classify(sentinel, userSafe)
	}
	return security.Classify(fmt.Errorf("%w: %w", sentinel, cause), userSafe)
}

func failf(sentinel error, userSafe, format string, args ...any) error {
	return fail(sentinel, fmt.Errorf(format, args...), userSafe)
}

func canceled(err error) error {
	return security.Classify(err, "session start was canceled")
}

// reason maps an error to a bounded metrics label.
func reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAlreadyRunning):
		return "already_running"
	case errors.Is(err, ErrBinaryNotFound):
		return "binary_not_found"
	case errors.Is(err, ErrSpawn):
		return "spawn"
	case errors.Is(err, ErrPortAllocation):
		return "port_allocation"
	case errors.Is(err, ErrCredentials):
		return "credentials"
	case errors.Is(err, ErrTerminalServerUnreachable):
		return "terminal_unreachable"
	case errors.Is(err, ErrTunnelURLNotFound):
		return "tunnel_url_not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
