package main

import (
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nabiya/diarymem/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	Long: `Serves the diary API under /v1 and one conversation per websocket
connection on /ws. With store.watch enabled, index writes made by other
processes are picked up without a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := server.New(a.engine, a.store, server.Config{
		GinMode:        cfg.Server.GinMode,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		WindowDays:     cfg.Store.WindowDays,
	})

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Store.Watch {
		g.Go(func() error {
			return a.store.Watch(gctx, cfg.Store.WatchDebounce.Duration)
		})
	}
	g.Go(func() error {
		return srv.Run(gctx, addr)
	})

	log.WithField("addr", addr).Info("[SERVER] diaryd started")
	return g.Wait()
}
