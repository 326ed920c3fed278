package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fusion-swap/config"
	"fusion-swap/pkg/relay"
)

var relayListen string

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the Fusion+ API relay for browser clients",
	Long: `Run an HTTP relay that forwards /api/* requests to the 1inch Fusion+ API
with the configured API key attached, so browser clients never hold it.

Also serves /health and Prometheus metrics on /metrics.

Examples:
  fusion-swap relay
  fusion-swap relay --listen 127.0.0.1:9000`,
	Run: runRelay,
}

func init() {
	rootCmd.AddCommand(relayCmd)

	relayCmd.Flags().StringVar(&relayListen, "listen", "", "Listen address (default: relay.listen from config)")
}

func runRelay(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	listen := cfg.RelayListen
	if relayListen != "" {
		listen = relayListen
	}

	// Access logs are info level, so the relay always logs them
	log := newLogger(cmd)
	if verbose, _ := cmd.Flags().GetBool("verbose"); !verbose {
		log = relayLogger()
	}

	srv := relay.NewServer(relay.Config{
		Listen:   listen,
		Upstream: cfg.BaseURL,
		APIKey:   cfg.APIKey,
		Timeout:  cfg.HTTPTimeout,
		Logger:   log,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			printError(err)
			os.Exit(1)
		}
	case <-quit:
		log.Info("shutting down relay")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			printError(err)
			os.Exit(1)
		}
	}
}
