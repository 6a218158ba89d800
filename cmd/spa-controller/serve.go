package main

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thatsimonsguy/spa-controller/internal/api"
	"github.com/thatsimonsguy/spa-controller/internal/config"
	"github.com/thatsimonsguy/spa-controller/internal/datadog"
	"github.com/thatsimonsguy/spa-controller/internal/hottub"
	"github.com/thatsimonsguy/spa-controller/internal/logging"
	"github.com/thatsimonsguy/spa-controller/internal/notifications"
	"github.com/thatsimonsguy/spa-controller/internal/relay"
	"github.com/thatsimonsguy/spa-controller/system/shutdown"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll the spa and serve the REST API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Int("port", 2001, "REST API port")
	serveCmd.Flags().Int("poll-interval", 2, "Seconds between status polls")

	_ = v.BindPFlag("api.port", serveCmd.Flags().Lookup("port"))
	_ = v.BindPFlag("poll_interval_seconds", serveCmd.Flags().Lookup("poll-interval"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return err
	}
	if err := logging.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		return err
	}

	if cfg.Datadog.Enabled {
		datadog.InitMetrics(cfg.Datadog.AgentAddr, cfg.Datadog.Namespace, cfg.Datadog.Tags)
		defer datadog.Close()
	}

	notifier := notifications.New(cfg.Ntfy.URL, cfg.Ntfy.Topic)
	client := relay.NewClient(cfg.Relay.ClientOptions())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info().
		Str("device_id", cfg.DeviceID).
		Str("relay", cfg.Relay.SCIURL).
		Msg("Starting spa controller")

	spa, err := hottub.New(ctx, client, notifier, hottub.OptionsFrom(cfg))
	if err != nil {
		return err
	}
	spa.Start(ctx)

	srv := api.NewServer(spa)
	go func() {
		if err := srv.Start(cfg.API.Addr()); err != nil {
			shutdown.WithError(err, "REST API server failed")
		}
	}()

	sig := shutdown.WaitForSignal(ctx)
	log.Info().Stringer("signal", sig).Msg("Received shutdown signal")
	return shutdown.Graceful(cancel, shutdown.DefaultGracePeriod, srv)
}
