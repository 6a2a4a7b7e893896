package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/treykane/termshare/internal/events"
	"github.com/treykane/termshare/internal/launcher"
	"github.com/treykane/termshare/internal/metrics"
	"github.com/treykane/termshare/internal/model"
	"github.com/treykane/termshare/internal/security"
)

// monitor watches one committed session until it is cancelled or one of the
// two processes exits. On exit it tears the session down under the
// operation lock and reports the crash through the status topic.
func (s *Supervisor) monitor(ctx context.Context, sess *session) {
	defer close(sess.monitorDone)

	ticker := time.NewTicker(s.cfg.HealthInterval)
	defer ticker.Stop()

	var exited *launcher.Handle
	for exited == nil {
		select {
		case <-ctx.Done():
			return
		case <-sess.terminal.Done():
			exited = sess.terminal
		case <-sess.tunnel.Done():
			exited = sess.tunnel
		case <-ticker.C:
			exited = firstExited(sess.terminal, sess.tunnel)
		}
	}

	// Stop cancels ctx only after taking the lock, so giving up here on
	// cancellation cannot strand a crashed session.
	select {
	case s.opLock <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer s.releaseOp()

	s.mu.Lock()
	current := s.session == sess
	s.mu.Unlock()
	if !current {
		return
	}

	cause := fmt.Sprintf("%s (pid %d) exited: %v", exited.Name(), exited.PID(), exitDescription(exited))
	s.log.Error("session process exited unexpectedly", "session_id", sess.info.ID, "process", exited.Name(), "pid", exited.PID(), "cause", cause)
	metrics.RecordCrash(exited.Name())

	s.teardown(sess)

	metrics.RecordStop(metrics.CauseCrash)
	s.publish(model.StatusSnapshot{Failure: security.RedactMessage(cause)})
	s.journal(events.Event{
		SessionID:   sess.info.ID,
		EventType:   events.TypeCrashed,
		State:       model.SessionIdle,
		Message:     cause,
		Port:        sess.info.Port,
		TerminalPID: sess.terminal.PID(),
		TunnelPID:   sess.tunnel.PID(),
	})
}

func firstExited(handles ...*launcher.Handle) *launcher.Handle {
	for _, h := range handles {
		if h.Exited() {
			return h
		}
	}
	return nil
}

func exitDescription(h *launcher.Handle) string {
	if err := h.Wait(); err != nil {
		return err.Error()
	}
	return "exit status 0"
}
