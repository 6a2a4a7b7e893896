// Package binlocate resolves the external tools termshare drives to absolute,
// executable paths.
package binlocate

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/treykane/termshare/internal/appconfig"
	"github.com/treykane/termshare/internal/tools"
)

// ErrNotFound is wrapped by Resolve when no candidate exists.
var ErrNotFound = errors.New("binary not found")

// Locator searches an optional bundled resource tree, then PATH.
//
// The bundled layout is <ResourceDir>/resources/<linux|macos|windows>/<name>,
// with ".exe" appended on Windows.
type Locator struct {
	ResourceDir string
	SearchPATH  bool
	// Overrides maps a tool name to an explicit path that wins over any search.
	Overrides map[string]string

	goos     string
	lookPath func(string) (string, error)
}

// New returns a Locator for the running platform.
func New(resourceDir string, searchPATH bool, overrides map[string]string) *Locator {
	return &Locator{ResourceDir: resourceDir, SearchPATH: searchPATH, Overrides: overrides}
}

// Resolve returns the absolute path of name.
func (l *Locator) Resolve(name string) (string, error) {
	if p := l.Overrides[name]; p != "" {
		return l.verify(p)
	}
	var tried []string
	if l.ResourceDir != "" {
		p := filepath.Join(l.ResourceDir, "resources", PlatformDir(l.os()), l.fileName(name))
		tried = append(tried, p)
		if _, err := os.Stat(p); err == nil {
			return l.verify(p)
		}
	}
	if l.SearchPATH {
		look := l.lookPath
		if look == nil {
			look = exec.LookPath
		}
		if p, err := look(name); err == nil {
			return l.verify(p)
		}
		tried = append(tried, "$PATH")
	}
	return "", fmt.Errorf("%w: %s (searched %v)", ErrNotFound, name, tried)
}

// verify makes p absolute and ensures it is a regular, executable file. On
// unix a bundled binary that lost its execute bits is chmod 0755 first.
func (l *Locator) verify(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, abs)
		}
		return "", fmt.Errorf("stat %s: %w", abs, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", ErrNotFound, abs)
	}
	if l.os() == "windows" || info.Mode().Perm()&0o111 != 0 {
		return abs, nil
	}
	if err := os.Chmod(abs, 0o755); err != nil {
		return "", fmt.Errorf("make %s executable: %w", abs, err)
	}
	info, err = os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", abs, err)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return "", fmt.Errorf("%s is not executable", abs)
	}
	return abs, nil
}

func (l *Locator) os() string {
	if l.goos != "" {
		return l.goos
	}
	return runtime.GOOS
}

func (l *Locator) fileName(name string) string {
	if l.os() == "windows" {
		return name + ".exe"
	}
	return name
}

// PlatformDir maps a GOOS value to the bundled resource directory name.
func PlatformDir(goos string) string {
	switch goos {
	case "windows":
		return "windows"
	case "darwin":
		return "macos"
	default:
		return "linux"
	}
}

// FromConfig builds a Locator from the binaries section of the config file.
func FromConfig(c appconfig.BinariesConfig) *Locator {
	overrides := map[string]string{}
	if c.TTYD != "" {
		overrides[tools.TerminalServerName] = c.TTYD
	}
	if c.Cloudflared != "" {
		overrides[tools.TunnelClientName] = c.Cloudflared
	}
	return New(c.ResourceDir, c.SearchPath, overrides)
}
