package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/commjoen/domainposture/internal/config"
	"github.com/commjoen/domainposture/internal/scanner"
	"github.com/commjoen/domainposture/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the scan API over HTTP",
	Long: `serve exposes the scanner as a JSON API:

  GET  /health        liveness check
  POST /api/v1/scan   {"domain": "example.com"} returns the scan report

Requests are rate limited per client IP and every response carries an
X-Request-ID header.`,
	Example: `  domainposture serve --addr :5001 --rate-limit 5 --rate-burst 10`,
	Args:    cobra.NoArgs,
	RunE:    runServe,
}

func init() {
	serveCmd.Flags().String("addr", ":5001", "Listen address")
	serveCmd.Flags().Float64("rate-limit", 5, "Requests per second allowed per client (0 disables)")
	serveCmd.Flags().Int("rate-burst", 10, "Burst size of the per-client rate limiter")

	mustBind(map[string]*pflag.Flag{
		"server.addr":       serveCmd.Flags().Lookup("addr"),
		"server.rate_limit": serveCmd.Flags().Lookup("rate-limit"),
		"server.rate_burst": serveCmd.Flags().Lookup("rate-burst"),
	})

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signalContext(logger)
	defer cancel()

	srv := server.New(server.Config{
		Addr:         cfg.Server.Addr,
		RateLimit:    cfg.Server.RateLimit,
		RateBurst:    cfg.Server.RateBurst,
		WriteTimeout: cfg.Deadline + 10*time.Second,
		Logger:       logger,
	}, scanner.New(scannerOptions(cfg, logger)))

	return srv.Run(ctx)
}
