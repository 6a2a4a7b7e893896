package model

import "time"

// SessionState is the supervisor's lifecycle phase.
type SessionState string

const (
	SessionIdle     SessionState = "idle"
	SessionStarting SessionState = "starting"
	SessionRunning  SessionState = "running"
	SessionStopping SessionState = "stopping"
)

// SessionInfo describes one fully started share. It is built only after both
// processes are confirmed up and is never mutated afterwards.
type SessionInfo struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	Port      uint16    `json:"port"`
	StartedAt time.Time `json:"started_at"`
}

// StatusSnapshot is the read-only projection of the session handed to UIs.
// The zero value is the "not running" snapshot.
//
// Failure is set only on the status event published when a session dies on
// its own; it names the process that exited. A user stop publishes the zero
// value, and Status never reports a failure.
type StatusSnapshot struct {
	Running  bool   `json:"running"`
	URL      string `json:"url,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Port     uint16 `json:"port,omitempty"`
	Failure  string `json:"failure,omitempty"`
}

// SnapshotOf projects a running session into a status snapshot.
func SnapshotOf(info SessionInfo) StatusSnapshot {
	return StatusSnapshot{
		Running:  true,
		URL:      info.URL,
		Username: info.Username,
		Password: info.Password,
		Port:     info.Port,
	}
}

// RuntimeRecord is what survives on disk while a session runs. It carries
// neither the password nor the secret path token. OwnerPID is the termshare
// process supervising the session.
type RuntimeRecord struct {
	SessionID   string    `json:"session_id"`
	TunnelURL   string    `json:"tunnel_url"`
	Port        uint16    `json:"port"`
	TerminalPID int       `json:"terminal_pid"`
	TunnelPID   int       `json:"tunnel_pid"`
	OwnerPID    int       `json:"owner_pid"`
	StartedAt   time.Time `json:"started_at"`
	UptimeSec   int64     `json:"uptime_seconds,omitempty"`
}
