// Package procgroup starts children in their own process group so a single
// signal reaches the tool and anything it forked (ttyd spawns the shell).
package procgroup

import (
	"errors"
	"os/exec"
)

// ErrNoProcess is returned when signalling a command that never started.
var ErrNoProcess = errors.New("process not started")

// Set configures cmd to start as the leader of a new process group.
// Must be called before cmd.Start for Signal to reach the whole group.
func Set(cmd *exec.Cmd) {
	set(cmd)
}
