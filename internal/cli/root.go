// Package cli provides the command-line interface for termshare.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/treykane/termshare/internal/appconfig"
	"github.com/treykane/termshare/internal/doctor"
	"github.com/treykane/termshare/internal/events"
	"github.com/treykane/termshare/internal/model"
	"github.com/treykane/termshare/internal/supervisor"
	"github.com/treykane/termshare/internal/ui"
	"github.com/treykane/termshare/internal/util"
)

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	var debug bool
	root := &cobra.Command{
		Use:           "termshare",
		Short:         "Share this terminal through a browser link",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(debug)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			updates, cancel := a.bus.Subscribe(util.StatusTopic, 4)
			defer cancel()
			return ui.Run(a.sup, updates, ui.Options{
				RefreshSeconds:  a.cfg.UI.RefreshSeconds,
				Redact:          a.cfg.Security.RedactLogs,
				ShutdownTimeout: a.shutdownTimeout(),
			})
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "verbose logging to stderr")

	root.AddCommand(newStartCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newEventsCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newConfigCmd())
	return root
}

// setupLogging installs the process-wide logger. Without --debug only
// warnings reach stderr so the TUI and command output stay clean.
func setupLogging(debug bool) {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func newStatusCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running session, if any",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := appconfig.RuntimeFilePath()
			if err != nil {
				return err
			}
			rec, err := supervisor.LoadRuntime(path)
			if err != nil {
				return err
			}
			st := sessionStatus{State: model.SessionIdle}
			if rec != nil {
				st.Record = rec
				st.TerminalAlive, st.TunnelAlive = supervisor.RecordAlive(*rec)
				if st.TerminalAlive && st.TunnelAlive {
					st.State = model.SessionRunning
				}
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			if rec == nil {
				fmt.Println("not running")
				return nil
			}
			fmt.Printf("%-10s %-40s %-6s %-10s %-10s %s\n", "STATE", "URL", "PORT", "TTYD", "TUNNEL", "UPTIME")
			fmt.Printf("%-10s %-40s %-6d %-10s %-10s %s\n",
				st.State, util.EmptyDash(rec.TunnelURL), rec.Port,
				pidState(rec.TerminalPID, st.TerminalAlive), pidState(rec.TunnelPID, st.TunnelAlive),
				(time.Duration(rec.UptimeSec) * time.Second).String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

type sessionStatus struct {
	State         model.SessionState   `json:"state"`
	Record        *model.RuntimeRecord `json:"record,omitempty"`
	TerminalAlive bool                 `json:"terminal_alive"`
	TunnelAlive   bool                 `json:"tunnel_alive"`
}

func pidState(pid int, alive bool) string {
	if alive {
		return fmt.Sprintf("%d", pid)
	}
	return fmt.Sprintf("%d(dead)", pid)
}

func newEventsCmd() *cobra.Command {
	var (
		sessionID string
		eventType string
		since     time.Duration
		limit     int
		jsonOut   bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the session event journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := events.Query{SessionID: sessionID, EventType: eventType, Limit: limit}
			if since > 0 {
				q.Since = time.Now().Add(-since)
			}
			list, err := events.NewStore().Read(q)
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if list == nil {
					list = []events.Event{}
				}
				return enc.Encode(list)
			}
			fmt.Printf("%-25s %-38s %-16s %s\n", "TIME", "SESSION", "EVENT", "MESSAGE")
			for _, evt := range list {
				fmt.Printf("%-25s %-38s %-16s %s\n", evt.Timestamp.Format(time.RFC3339), util.EmptyDash(evt.SessionID), evt.EventType, evt.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "filter by session id")
	cmd.Flags().StringVar(&eventType, "type", "", "filter by event type")
	cmd.Flags().DurationVar(&since, "since", 0, "only events newer than this (e.g. 1h)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newDoctorCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check binaries, ports and configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := doctor.Run()
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			for _, b := range report.Binaries {
				fmt.Printf("%-12s %s\n", b.Name, util.EmptyDash(b.Path))
			}
			if len(report.Issues) == 0 {
				fmt.Println("no issues found")
				return nil
			}
			for _, issue := range report.Issues {
				fmt.Printf("[%s] %s %s: %s\n  -> %s\n", issue.Severity, issue.Check, issue.Target, issue.Message, issue.Recommendation)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newConfigCmd() *cobra.Command {
	root := &cobra.Command{Use: "config", Short: "Inspect the configuration file"}
	root.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := appconfig.ConfigFilePath()
			if err != nil {
				return err
			}
			fmt.Println(p)
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	})
	return root
}
