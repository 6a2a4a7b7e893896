// Package main is the entry point for the termshare binary.
//
// termshare shares the current machine's shell through a browser: it runs
// ttyd on a free local port behind generated credentials and exposes it with
// a cloudflared quick tunnel.
//
// Usage:
//
//	termshare            # launch the TUI dashboard
//	termshare start      # share in the foreground until Ctrl+C
//	termshare serve      # run the local control API
//	termshare doctor     # check binaries and configuration
package main

import (
	"fmt"
	"os"

	"github.com/treykane/termshare/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
