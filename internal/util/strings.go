// Package util holds small helpers shared by the rest of termshare. It does
// not import any other internal package, so anything may depend on it.
package util

import "strings"

// DefaultString returns fallback when v is empty or whitespace-only, and v
// unchanged otherwise. A non-blank v keeps its surrounding spaces.
//
// Config normalization leans on it for string settings that must never end
// up blank, such as the readiness and URL patterns and the API listen address.
//
// Examples:
//
//	DefaultString("tcp",  "unix") → "tcp"
//	DefaultString("",     "unix") → "unix"
//	DefaultString(" \t",  "unix") → "unix"
//	DefaultString(" tcp", "unix") → " tcp"
func DefaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// EmptyDash returns "-" for blank values so table columns stay aligned.
//
// Call sites:
//   - internal/cli/root.go (status): the URL column before a tunnel is up.
//   - internal/cli/root.go (events): events recorded outside a session.
//   - internal/cli/root.go (doctor): binaries that were not found.
//
// Examples:
//
//	EmptyDash("https://a.trycloudflare.com") → "https://a.trycloudflare.com"
//	EmptyDash("")                            → "-"
func EmptyDash(s string) string {
	return DefaultString(s, "-")
}
