// Package tools composes command lines for the terminal server (ttyd) and
// the tunnel client (cloudflared), separately from running them.
package tools

import (
	"fmt"
	"runtime"
	"strconv"

	"github.com/treykane/termshare/internal/util"
)

// Tool names as resolved by the binary locator.
const (
	TerminalServerName = "ttyd"
	TunnelClientName   = "cloudflared"
)

// TerminalServer describes one ttyd invocation.
type TerminalServer struct {
	Port        uint16
	BindAddress string
	Username    string
	Password    string
	// Token, when set, becomes the server's base path so only URLs carrying
	// it reach the terminal.
	Token    string
	Theme    string
	Writable bool
	Shell    string
}

// Args returns ttyd's argv, excluding the program name.
//
// Basic auth is always passed with -c, so a session never serves an
// unauthenticated terminal. A blank BindAddress binds every interface and a
// blank Shell falls back to DefaultShell for the running OS. Theme and Token
// are only emitted when set.
//
// Example, for port 7681 with a token and a writable login shell:
//
//	-p 7681 -i 0.0.0.0 -c calm-heron:s3cret -b /tok123 -W /bin/bash
//
// Call sites:
//   - internal/supervisor/supervisor.go (start): the command line spawned
//     for each session.
func (t TerminalServer) Args() []string {
	args := []string{
		"-p", strconv.Itoa(int(t.Port)),
		"-i", util.NormalizeAddr(t.BindAddress, "0.0.0.0"),
		"-c", t.Username + ":" + t.Password,
	}
	if t.Token != "" {
		args = append(args, "-b", "/"+t.Token)
	}
	if t.Theme != "" {
		args = append(args, "-t", "theme="+t.Theme)
	}
	if t.Writable {
		args = append(args, "-W")
	}
	return append(args, util.DefaultString(t.Shell, DefaultShell(runtime.GOOS)))
}

// TunnelClient describes one cloudflared quick-tunnel invocation.
type TunnelClient struct {
	Port      uint16
	ExtraArgs []string
}

// Args returns cloudflared's argv, excluding the program name.
func (c TunnelClient) Args() []string {
	args := []string{"tunnel", "--no-autoupdate"}
	args = append(args, c.ExtraArgs...)
	return append(args, "--url", LocalURL(c.Port))
}

// LocalURL is the origin the tunnel forwards to.
func LocalURL(port uint16) string {
	return fmt.Sprintf("http://localhost:%d", port)
}

// PublicURL joins the tunnel URL and the token path. Without a token the
// tunnel URL is returned unchanged.
func PublicURL(tunnelURL, token string) string {
	if token == "" {
		return tunnelURL
	}
	return tunnelURL + "/" + token + "/"
}

// DefaultShell is the login shell handed to ttyd when none is configured.
func DefaultShell(goos string) string {
	switch goos {
	case "windows":
		return "cmd.exe"
	case "darwin":
		return "/bin/zsh"
	default:
		return "/bin/bash"
	}
}
