package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mapsmith/mapsmith/internal/api"
	"github.com/mapsmith/mapsmith/internal/config"
	"github.com/mapsmith/mapsmith/internal/lock"
	"github.com/mapsmith/mapsmith/internal/ws"
	"github.com/mapsmith/mapsmith/web"
)

var servePort int
var serveDevMode bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and dashboard",
	Long: `Start the REST API, the WebSocket feed of chain progress and the web
dashboard on localhost.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, err := openEngine(ctx, true)
		if err != nil {
			return err
		}
		defer eng.Close()
		logger := eng.Logger
		srvCfg := eng.Config.Server

		if eng.Config.Store.Type == config.StoreFile {
			lockPath := lock.PathFor(config.ExpandHome(eng.Config.Store.Directory))
			if err := lock.Acquire(lockPath); err != nil {
				return err
			}
			defer lock.Release(lockPath)
		}

		port := srvCfg.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		hub := ws.NewHub(logger)
		hub.SetSnapshot(func() ([]byte, error) {
			snapCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			chains, err := eng.ListChains(snapCtx)
			if err != nil {
				return nil, err
			}
			return json.Marshal(chains)
		})
		go hub.Run(ctx)

		distFS, err := web.Dist()
		if err != nil {
			return fmt.Errorf("loading embedded dashboard: %w", err)
		}

		srv := api.New(eng, logger, port,
			api.WithStaticFS(distFS),
			api.WithHub(hub),
			api.WithDevMode(serveDevMode),
			api.WithRateLimit(api.RateLimitConfig{RequestsPerSecond: srvCfg.RateLimit, Burst: srvCfg.Burst}),
		)

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		fmt.Fprintf(os.Stderr, "Mapsmith dashboard: http://localhost:%d\n", port)

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8230, "port for the server (default: server.port from config)")
	serveCmd.Flags().BoolVar(&serveDevMode, "dev", false, "enable CORS for development mode")
	rootCmd.AddCommand(serveCmd)
}
