//go:build !unix

package procgroup

import (
	"errors"
	"os"
	"os/exec"
)

func set(cmd *exec.Cmd) {}

// Terminate kills the process; there is no graceful group signal here.
func Terminate(cmd *exec.Cmd) error { return Kill(cmd) }

// Kill kills the process.
func Kill(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return ErrNoProcess
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Alive reports whether pid can be found.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}

// TerminatePID kills a bare pid.
func TerminatePID(pid int, force bool) error {
	if pid <= 0 {
		return ErrNoProcess
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Interrupt kills pid; there is no graceful signal here.
func Interrupt(pid int) error { return TerminatePID(pid, true) }
