// Package launcher starts the external tools termshare orchestrates and hands
// back a Handle that owns the child process for its whole life.
//
// The launcher never interprets tool output. It only wires standard streams
// to pipes the caller reads, starts the child in its own process group and
// reaps it exactly once. Arguments go straight to execve, never through a
// shell.
package launcher

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/treykane/termshare/internal/procgroup"
)

// Spec describes one child process.
type Spec struct {
	// Name labels the process in logs and errors ("ttyd", "cloudflared").
	Name string
	Path string
	Args []string
	// Env is appended to the parent environment.
	Env []string
	Dir string

	CaptureStdout bool
	CaptureStderr bool

	// PTY attaches stdout and stderr to one pseudo-terminal so tools that
	// block-buffer piped output flush each line. Stdout() then carries both
	// streams and Stderr() is nil.
	PTY bool
}

// Launcher starts processes. The zero value is ready to use.
type Launcher struct{}

// New returns a Launcher.
func New() *Launcher { return &Launcher{} }

// Handle is a started child process. Exactly one goroutine reaps it; Wait,
// Done and Exited observe that single result.
type Handle struct {
	name      string
	cmd       *exec.Cmd
	startedAt time.Time

	stdout io.ReadCloser
	stderr io.ReadCloser
	ptmx   *os.File

	done    chan struct{}
	waitErr error

	closeOnce sync.Once
}

// Spawn starts spec and returns its handle. The child is not tied to any
// context; its lifetime ends only through Terminate, Kill or its own exit.
func (l *Launcher) Spawn(spec Spec) (*Handle, error) {
	if spec.Path == "" {
		return nil, fmt.Errorf("spawn %s: empty path", spec.Name)
	}
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.Stdin = nil

	h := &Handle{name: spec.Name, cmd: cmd, done: make(chan struct{})}

	if spec.PTY {
		// pty.Start makes the child a session (and so group) leader; adding
		// Setpgid on top would make setpgid fail with EPERM.
		f, err := pty.Start(cmd)
		if err != nil {
			return nil, fmt.Errorf("spawn %s: %w", spec.Name, err)
		}
		h.ptmx = f
		h.stdout = f
	} else {
		procgroup.Set(cmd)
		var parentEnds []*os.File
		if spec.CaptureStdout {
			r, w, err := os.Pipe()
			if err != nil {
				return nil, fmt.Errorf("spawn %s: stdout pipe: %w", spec.Name, err)
			}
			cmd.Stdout = w
			h.stdout = r
			parentEnds = append(parentEnds, w)
		} else {
			cmd.Stdout = io.Discard
		}
		if spec.CaptureStderr {
			r, w, err := os.Pipe()
			if err != nil {
				closeAll(parentEnds)
				h.closeStreams()
				return nil, fmt.Errorf("spawn %s: stderr pipe: %w", spec.Name, err)
			}
			cmd.Stderr = w
			h.stderr = r
			parentEnds = append(parentEnds, w)
		} else {
			cmd.Stderr = io.Discard
		}
		err := cmd.Start()
		// The child holds its own copies of the write ends now.
		closeAll(parentEnds)
		if err != nil {
			h.closeStreams()
			return nil, fmt.Errorf("spawn %s: %w", spec.Name, err)
		}
	}

	h.startedAt = time.Now()
	go h.reap()
	return h, nil
}

func (h *Handle) reap() {
	h.waitErr = h.cmd.Wait()
	close(h.done)
}

// Name returns the label given at spawn.
func (h *Handle) Name() string { return h.name }

// PID returns the OS process id.
func (h *Handle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// StartedAt returns when the process was started.
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// Stdout returns the captured stdout (or the combined pty stream), or nil.
func (h *Handle) Stdout() io.Reader {
	if h.stdout == nil {
		return nil
	}
	return h.stdout
}

// Stderr returns the captured stderr, or nil.
func (h *Handle) Stderr() io.Reader {
	if h.stderr == nil {
		return nil
	}
	return h.stderr
}

// Done is closed once the process has been reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Exited reports, without blocking, whether the process has been reaped.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the process is reaped and returns its exit error.
func (h *Handle) Wait() error {
	<-h.done
	return h.waitErr
}

// Kill sends SIGKILL to the process group. Killing an exited process is not
// an error.
func (h *Handle) Kill() error {
	if h.Exited() {
		return nil
	}
	if err := procgroup.Kill(h.cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill %s: %w", h.name, err)
	}
	return nil
}

// Terminate asks the group to exit with SIGTERM, escalates to SIGKILL after
// grace, and returns once the process is reaped. Captured streams are closed
// afterwards so no reader stays blocked on them.
func (h *Handle) Terminate(grace time.Duration) error {
	defer h.closeStreams()
	if h.Exited() {
		return nil
	}
	var sigErr error
	if err := procgroup.Terminate(h.cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
		sigErr = fmt.Errorf("terminate %s: %w", h.name, err)
	}
	select {
	case <-h.done:
		return sigErr
	case <-time.After(grace):
	}
	if err := h.Kill(); err != nil {
		<-h.done
		return err
	}
	<-h.done
	return nil
}

func (h *Handle) closeStreams() {
	h.closeOnce.Do(func() {
		if h.ptmx != nil {
			_ = h.ptmx.Close()
			return
		}
		if h.stdout != nil {
			_ = h.stdout.Close()
		}
		if h.stderr != nil {
			_ = h.stderr.Close()
		}
	})
}

func closeAll(files []*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
