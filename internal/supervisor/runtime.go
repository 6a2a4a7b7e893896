package supervisor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/treykane/termshare/internal/appconfig"
	"github.com/treykane/termshare/internal/events"
	"github.com/treykane/termshare/internal/metrics"
	"github.com/treykane/termshare/internal/model"
	"github.com/treykane/termshare/internal/procgroup"
)

// orphanGrace is how long a reaped orphan gets between SIGTERM and SIGKILL.
const orphanGrace = 500 * time.Millisecond

// LoadRuntime reads the runtime record at path. A missing file yields nil
// and no error. UptimeSec is filled from StartedAt.
func LoadRuntime(path string) (*model.RuntimeRecord, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var rec model.RuntimeRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if !rec.StartedAt.IsZero() {
		rec.UptimeSec = int64(time.Since(rec.StartedAt).Seconds())
	}
	return &rec, nil
}

// RecordAlive reports which recorded processes are still running.
func RecordAlive(rec model.RuntimeRecord) (terminal, tunnel bool) {
	return procgroup.Alive(rec.TerminalPID), procgroup.Alive(rec.TunnelPID)
}

func (s *Supervisor) persist(rec model.RuntimeRecord) error {
	if s.cfg.RuntimePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.RuntimePath), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return appconfig.WriteFileAtomic(s.cfg.RuntimePath, b, 0o600)
}

func (s *Supervisor) removeRuntime() {
	if s.cfg.RuntimePath == "" {
		return
	}
	if err := os.Remove(s.cfg.RuntimePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("failed to remove runtime file", "path", s.cfg.RuntimePath, "error", err)
	}
}

// foreignOwner returns the pid of another live termshare process that owns
// the runtime record, or 0. Such a record describes a session this process
// must neither reap nor overwrite.
func (s *Supervisor) foreignOwner() int {
	if s.cfg.RuntimePath == "" {
		return 0
	}
	rec, err := LoadRuntime(s.cfg.RuntimePath)
	if err != nil || rec == nil {
		return 0
	}
	if OwnedElsewhere(*rec) {
		return rec.OwnerPID
	}
	return 0
}

// OwnedElsewhere reports whether rec belongs to a live termshare process
// other than this one.
func OwnedElsewhere(rec model.RuntimeRecord) bool {
	return rec.OwnerPID > 0 && rec.OwnerPID != os.Getpid() && procgroup.Alive(rec.OwnerPID)
}

// ReapOrphans terminates processes recorded by a termshare run that died
// without tearing its session down. Records owned by a live termshare
// process are left alone.
func (s *Supervisor) ReapOrphans() {
	if s.cfg.RuntimePath == "" {
		return
	}
	rec, err := LoadRuntime(s.cfg.RuntimePath)
	if err != nil {
		s.log.Warn("ignoring unreadable runtime file", "path", s.cfg.RuntimePath, "error", err)
		s.removeRuntime()
		return
	}
	if rec == nil {
		return
	}
	if OwnedElsewhere(*rec) {
		s.log.Info("runtime file belongs to a live termshare process; not reaping", "owner_pid", rec.OwnerPID)
		return
	}
	for _, pid := range []int{rec.TerminalPID, rec.TunnelPID} {
		if !procgroup.Alive(pid) {
			continue
		}
		s.log.Warn("terminating orphaned process from previous run", "pid", pid, "session_id", rec.SessionID)
		if err := procgroup.TerminatePID(pid, false); err != nil {
			s.log.Warn("failed to signal orphan", "pid", pid, "error", err)
			continue
		}
		deadline := time.Now().Add(orphanGrace)
		for procgroup.Alive(pid) && time.Now().Before(deadline) {
			time.Sleep(50 * time.Millisecond)
		}
		if procgroup.Alive(pid) {
			_ = procgroup.TerminatePID(pid, true)
		}
		metrics.RecordOrphanReaped()
		s.journal(events.Event{
			SessionID: rec.SessionID,
			EventType: events.TypeOrphanReaped,
			Message:   fmt.Sprintf("terminated orphaned pid %d", pid),
		})
	}
	s.removeRuntime()
}
