package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/supaspectre/internal/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local bridge for the browser extension",
	Long: `Serve accepts detection messages from the browser extension on a
loopback address, keeps the detection store current, and builds reports
on request. Tab events are streamed back on /v1/events.

Example:
  supaspectre serve
  supaspectre serve --addr 127.0.0.1:9000`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"listen address (default from config listen_addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := serveAddr
	if addr == "" {
		addr = cfg.ListenAddr
	}

	rt, err := openRuntime(ctx, true)
	if err != nil {
		return err
	}
	if !rt.coord.Consented() {
		logger.Info("terms not accepted; detections are ignored until the extension sends consent")
	}

	srv := api.NewServer(rt.coord,
		api.WithLogger(logger.WithName("bridge")),
		api.WithVersion(version),
	)
	return srv.ListenAndServe(ctx, addr)
}
