package util

import (
	"net"
	"strings"
)

// NormalizeAddr returns addr trimmed, or fallback when addr is blank.
//
//	NormalizeAddr("",        "127.0.0.1") → "127.0.0.1"
//	NormalizeAddr("0.0.0.0", "127.0.0.1") → "0.0.0.0"
func NormalizeAddr(addr, fallback string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return fallback
	}
	return addr
}

// IsPublicBind reports whether a bind address (host or host:port) exposes
// the port beyond loopback.
//
// A blank address counts as loopback, since every listener here falls back
// to 127.0.0.1. An empty host in host:port means all interfaces. Hostnames
// other than "localhost" cannot be checked without a lookup and count as
// public.
//
// The security audit and the serve command use it to warn before the
// control API or the terminal server listens on a reachable interface, and
// the API's origin check uses it to accept loopback browsers.
//
// Examples:
//
//	IsPublicBind("127.0.0.1:7690") → false
//	IsPublicBind("localhost")      → false
//	IsPublicBind("[::1]:7681")     → false
//	IsPublicBind(":7690")          → true
//	IsPublicBind("0.0.0.0")        → true
//	IsPublicBind("devbox.lan")     → true
func IsPublicBind(addr string) bool {
	addr = NormalizeAddr(addr, "127.0.0.1")
	if host, _, err := net.SplitHostPort(addr); err == nil {
		if host == "" {
			return true
		}
		addr = host
	}
	if addr == "localhost" {
		return false
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return true
	}
	return !ip.IsLoopback()
}
