// Command watch follows a running monitor's snapshot stream and prints one
// status line per snapshot.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/afroash/ledger-monitor/internal/client"
	"github.com/afroash/ledger-monitor/internal/config"
	"github.com/afroash/ledger-monitor/internal/models"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "monitor config file; supplies the address and token")
	url := pflag.String("url", "", "stream URL (overrides the config)")
	token := pflag.String("token", "", "bearer token (overrides the config)")
	showClock := pflag.Bool("clock", false, "also print elapsed-time ticks")
	pflag.Parse()

	var cfg *config.AppConfig
	var err error
	if *configPath == "" {
		cfg, err = config.Default()
	} else {
		cfg, err = config.LoadAppConfig(*configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(config.LoggingConfig{Level: cfg.Logging.Level, Format: "console"}, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	streamURL := *url
	if streamURL == "" {
		streamURL = fmt.Sprintf("ws://%s:%d/stream", cfg.Server.Host, cfg.Server.Port)
	}
	authToken := *token
	if authToken == "" {
		authToken = cfg.Server.AuthToken
	}

	handler := func(f client.Frame) {
		switch f.Type {
		case models.MessageTypeSnapshot:
			view, err := f.Snapshot()
			if err != nil {
				logger.Warn().Err(err).Msg("Undecodable snapshot")
				return
			}
			fmt.Printf("%s  %s\n", f.ReceivedAt.Format(time.TimeOnly), view.Line())
		case models.MessageTypeClock:
			if *showClock {
				fmt.Printf("%s  tick %s\n", f.ReceivedAt.Format(time.TimeOnly), f.Payload)
			}
		}
	}

	c := client.NewStreamClient(client.StreamConfig{
		URL:                  streamURL,
		AuthToken:            authToken,
		ReconnectInterval:    time.Second,
		MaxReconnectInterval: cfg.Poll.MaxBackoff,
	}, handler, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("Stream failed")
	}
	logger.Info().Str("history", c.History().String()).Msg("Stopped")
}
