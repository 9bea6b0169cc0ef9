package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/afroash/ledger-monitor/internal/config"
	"github.com/afroash/ledger-monitor/internal/ledger"
	"github.com/afroash/ledger-monitor/internal/models"
	"github.com/afroash/ledger-monitor/internal/monitor"
	"github.com/afroash/ledger-monitor/internal/observability"
	"github.com/afroash/ledger-monitor/internal/poll"
	"github.com/afroash/ledger-monitor/internal/server"
	"github.com/afroash/ledger-monitor/internal/storage"
)

const version = "v0.3.0"

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file (defaults and environment only when empty)")
	showVersion := pflag.Bool("version", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Logging, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	logger.Info().
		Str("version", version).
		Int("port", cfg.Server.Port).
		Str("config", cfg.String()).
		Msg("Starting ledger monitor")

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Monitor failed")
	}
	logger.Info().Msg("Server stopped")
}

func loadConfig(path string) (*config.AppConfig, error) {
	if path == "" {
		return config.Default()
	}
	return config.LoadAppConfig(path)
}

func run(cfg *config.AppConfig, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(prometheus.NewRegistry())

	// A nil interface, not a nil *EthProvider, so the connection reports
	// ProviderUnavailable.
	var provider ledger.Provider
	eth, err := ledger.NewEthProvider(ledger.EthConfig{
		Endpoint:        cfg.Ledger.RPCURL,
		ContractAddress: cfg.Ledger.ContractAddress,
		Account:         cfg.Ledger.Account,
		CallTimeout:     cfg.Ledger.CallTimeout,
	}, logger.With().Str("component", "provider").Logger())
	switch {
	case err == nil:
		provider = eth
	case errors.Is(err, ledger.ErrProviderUnavailable):
		logger.Warn().Msg("No ledger RPC endpoint configured")
	default:
		return err
	}

	var journal *storage.Recorder
	if cfg.Journal.Enabled {
		journal, err = storage.OpenRecorder(storage.RecorderConfig{
			DSN: cfg.Journal.DSN,
			Writer: storage.DBWriterConfig{
				BatchSize:   cfg.Journal.BatchSize,
				FlushPeriod: cfg.Journal.FlushPeriod,
				ChannelSize: cfg.Journal.ChannelSize,
			},
			Retention: storage.RetentionCleanerConfig{
				Retention:     cfg.Journal.Retention,
				CleanupPeriod: cfg.Journal.CleanupPeriod,
			},
		}, logger.With().Str("component", "journal").Logger())
		if err != nil {
			return fmt.Errorf("open refresh journal: %w", err)
		}
		defer journal.Close()
	}

	opts := monitor.Options{
		Provider: provider,
		Info:     models.NewMonitorInfo(version, cfg.Ledger.RPCURL, cfg.Ledger.ContractAddress),
		Metrics:  metrics,
		Config: monitor.Config{
			Poll: poll.Config{
				Interval:   cfg.Poll.Interval,
				MaxBackoff: cfg.Poll.MaxBackoff,
				Immediate:  true,
			},
			ClockInterval:    cfg.Poll.ClockInterval,
			FetchConcurrency: cfg.Ledger.FetchConcurrency,
			Setpoints:        cfg.InitialSetpoints(),
			WatchEvents:      cfg.Ledger.WatchEvents,
		},
	}
	if journal != nil {
		opts.Journal = journal
	}

	mon := monitor.New(opts, logger)
	if err := mon.Start(ctx); err != nil {
		return err
	}
	defer mon.Close()

	api := server.NewAPIHandler(mon, logger.With().Str("component", "api").Logger())
	stream := server.NewStream(cfg.Server.AuthToken, mon, metrics, logger.With().Str("component", "stream").Logger(), cfg.Server.AllowedOrigins...)
	router := server.NewRouter(api, stream, metrics, logger.With().Str("component", "http").Logger(), cfg.Server.AllowedOrigins)

	srv := server.NewServer(server.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}, router, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down server...")

	// Close the monitor first so stream subscribers get their close frame.
	mon.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
	}
	return nil
}
