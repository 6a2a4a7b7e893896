package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/treykane/termshare/internal/appconfig"
	"github.com/treykane/termshare/internal/model"
	"github.com/treykane/termshare/internal/procgroup"
	"github.com/treykane/termshare/internal/supervisor"
	"github.com/treykane/termshare/internal/util"
)

// errSessionEnded is returned by start when a helper process dies.
var errSessionEnded = errors.New("session ended unexpectedly; see `termshare events`")

func newStartCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Share this terminal in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp()
			if err != nil {
				return err
			}
			updates, cancel := a.bus.Subscribe(util.StatusTopic, 4)
			defer cancel()

			info, err := a.sup.Start(ctx)
			if err != nil {
				return a.userError(err)
			}
			if err := printSession(info, jsonOut); err != nil {
				a.shutdown()
				return err
			}

			ended := waitForEnd(ctx, updates)
			a.shutdown()
			if ended {
				return errSessionEnded
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the session as JSON")
	return cmd
}

// waitForEnd blocks until ctx is done or a not-running snapshot arrives. It
// reports whether the session ended on its own.
func waitForEnd(ctx context.Context, updates <-chan model.StatusSnapshot) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case snap, ok := <-updates:
			if !ok {
				return false
			}
			if !snap.Running {
				return true
			}
		}
	}
}

func printSession(info model.SessionInfo, jsonOut bool) error {
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Printf("URL:      %s\n", info.URL)
	fmt.Printf("Username: %s\n", info.Username)
	fmt.Printf("Password: %s\n", info.Password)
	fmt.Printf("Port:     %d\n", info.Port)
	fmt.Println("Press Ctrl+C to stop sharing.")
	return nil
}

func newStopCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the session run by another termshare process",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := appconfig.RuntimeFilePath()
			if err != nil {
				return err
			}
			rec, err := supervisor.LoadRuntime(path)
			if err != nil {
				return err
			}
			if rec == nil {
				fmt.Println("not running")
				return nil
			}
			if supervisor.OwnedElsewhere(*rec) {
				if err := procgroup.Interrupt(rec.OwnerPID); err != nil {
					return fmt.Errorf("signal termshare pid %d: %w", rec.OwnerPID, err)
				}
				if !waitExit(rec.OwnerPID, timeout) {
					return fmt.Errorf("termshare pid %d did not stop within %s", rec.OwnerPID, timeout)
				}
				fmt.Printf("stopped session %s\n", rec.SessionID)
				return nil
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			a.sup.ReapOrphans()
			fmt.Printf("cleaned up session %s\n", rec.SessionID)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the owning process to exit")
	return cmd
}

func waitExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for procgroup.Alive(pid) {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(100 * time.Millisecond)
	}
	return true
}
