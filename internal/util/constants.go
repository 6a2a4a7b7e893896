// Package util provides common helpers and default timings shared across
// termshare. It imports no other internal package.
package util

import "time"

const (
	// TerminalStartupDelay is how long the terminal server gets to bind its
	// port before the first reachability probe.
	TerminalStartupDelay = 2 * time.Second

	// ReadinessAttempts bounds the TCP probe loop against the terminal server.
	ReadinessAttempts = 10

	// ReadinessBackoff is the fixed pause between readiness probes.
	ReadinessBackoff = 500 * time.Millisecond

	// ProbeDialTimeout is the per-attempt dial timeout for reachability probes.
	// Loopback connects complete well under this unless nothing is listening.
	ProbeDialTimeout = 500 * time.Millisecond

	// TunnelURLTimeout bounds the wait for the tunnel client to announce its
	// public URL.
	TunnelURLTimeout = 30 * time.Second

	// HealthInterval is the Health Monitor polling period.
	HealthInterval = time.Second

	// StopGrace is how long a child gets between SIGTERM and SIGKILL.
	StopGrace = 3 * time.Second

	// DefaultRefreshSeconds is the dashboard refresh fallback.
	DefaultRefreshSeconds = 1

	// StatusTopic is the event topic status snapshots are published on.
	StatusTopic = "session-status"
)
