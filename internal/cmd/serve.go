package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hangar-launcher/hangar/internal/daemon"
	"github.com/hangar-launcher/hangar/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP daemon",
	Long: `Serve exposes the library and the tool catalog over a localhost HTTP
API with server-sent progress events, for desktop frontends to drive.
It runs until interrupted and aborts in-flight operations on shutdown.

Examples:
  hangar serve
  hangar serve --addr 127.0.0.1:9000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (defaults to daemon.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.Daemon.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv, err := daemon.New(daemon.Config{
		Games:  a.games,
		Tools:  a.tools,
		Hub:    a.hub,
		Logger: a.log,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	// Pick up builds dropped into the tools directory by hand.
	if a.cfg.Tools.Watch {
		w, err := watch.New(a.cfg.ToolsDir(), a.tools.Rescan, a.log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "tools directory watch unavailable: %v\n", err)
		} else {
			w.Start()
			defer w.Stop()
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = srv.Run(ctx, addr)

	if n := a.registry.AbortAll(); n > 0 {
		a.log.Info("aborted in-flight operations on shutdown", "count", n)
	}
	return err
}
