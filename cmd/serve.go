package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blacktop/sdpaint/internal/paint"
	"github.com/blacktop/sdpaint/internal/web"
)

var (
	addr       string
	sessionTTL time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the painting UI in the browser",
	Example: `  sdpaint serve --addr :3000
  # then open http://localhost:3000`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		// fail early on a broken env file instead of on the first page load
		if _, err := newController(paint.ModeWarn); err != nil {
			logger.Error("Failed to initialize", "err", err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := web.NewServer(web.Config{
			NewController: func() (*paint.Controller, error) {
				return newController(paint.ModeWarn)
			},
			SessionTTL: sessionTTL,
			Logger:     logger,
		})
		if err := srv.Run(ctx, addr); err != nil {
			logger.Error("Server failed", "err", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&addr, "addr", "a", ":3000", "Address to listen on")
	serveCmd.Flags().DurationVar(&sessionTTL, "session-ttl", 2*time.Hour, "Drop idle browser sessions after this long")
}
