package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/treykane/termshare/internal/appconfig"
	"github.com/treykane/termshare/internal/model"
)

// Journal event types.
const (
	TypeStartRequested = "start_requested"
	TypeStartSucceeded = "start_succeeded"
	TypeStartFailed    = "start_failed"
	TypeStopped        = "stopped"
	TypeCrashed        = "crashed"
	TypeOrphanReaped   = "orphan_reaped"
)

// Event is one session lifecycle record persisted to events.jsonl. It never
// carries the password or the secret path token.
type Event struct {
	Timestamp   time.Time          `json:"timestamp"`
	SessionID   string             `json:"session_id,omitempty"`
	EventType   string             `json:"event_type"`
	State       model.SessionState `json:"state,omitempty"`
	Message     string             `json:"message,omitempty"`
	Port        uint16             `json:"port,omitempty"`
	TerminalPID int                `json:"terminal_pid,omitempty"`
	TunnelPID   int                `json:"tunnel_pid,omitempty"`
}

// Query controls event filtering and bounded reads.
type Query struct {
	SessionID string
	EventType string
	Since     time.Time
	Limit     int
}

// Store provides append/read access to the local event journal.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a store writing to the default journal path.
func NewStore() *Store {
	return &Store{}
}

// NewStoreAt returns a store writing to path.
func NewStoreAt(path string) *Store {
	return &Store{path: path}
}

func (s *Store) filePath() (string, error) {
	if s.path != "" {
		return s.path, nil
	}
	return appconfig.JournalPath()
}

// Append writes a single event as one JSON line.
func (s *Store) Append(evt Event) error {
	path, err := s.filePath()
	if err != nil {
		return err
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}

// Read returns events in append order, filtered by query, with optional limit.
func (s *Store) Read(q Query) ([]Event, error) {
	path, err := s.filePath()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var evt Event
		if err := json.Unmarshal([]byte(line), &evt); err != nil {
			continue
		}
		if !matches(evt, q) {
			continue
		}
		out = append(out, evt)
		if q.Limit > 0 && len(out) > q.Limit {
			out = out[len(out)-q.Limit:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return out, nil
}

func matches(evt Event, q Query) bool {
	if strings.TrimSpace(q.SessionID) != "" && evt.SessionID != q.SessionID {
		return false
	}
	if strings.TrimSpace(q.EventType) != "" && evt.EventType != q.EventType {
		return false
	}
	if !q.Since.IsZero() && evt.Timestamp.Before(q.Since) {
		return false
	}
	return true
}
