package cli

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/treykane/termshare/internal/api"
	"github.com/treykane/termshare/internal/util"
)

func newServeCmd() *cobra.Command {
	var (
		listen    string
		autoStart bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.shutdown()

			if listen == "" {
				listen = a.cfg.API.Listen
			}
			if util.IsPublicBind(listen) {
				slog.Warn("control API is reachable beyond loopback", "listen", listen)
			}
			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("listen %s: %w", listen, err)
			}
			fmt.Printf("control API on http://%s\n", ln.Addr())

			srv := api.NewServer(a.sup, a.bus, api.Options{
				RateLimitPerMinute: a.cfg.API.RateLimitPerMinute,
				Redact:             a.cfg.Security.RedactLogs,
				Logger:             slog.Default(),
			})
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Serve(gctx, ln) })
			if autoStart {
				g.Go(func() error {
					info, err := a.sup.Start(gctx)
					if err != nil {
						slog.Warn("auto start failed", "error", a.userError(err))
						return nil
					}
					fmt.Printf("sharing at %s\n", info.URL)
					return nil
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config api.listen)")
	cmd.Flags().BoolVar(&autoStart, "start", false, "start a session immediately")
	return cmd
}
