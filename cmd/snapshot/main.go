// Command snapshot connects to the ledger once, fetches every reading and
// prints the derived metrics as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/afroash/ledger-monitor/internal/config"
	"github.com/afroash/ledger-monitor/internal/ledger"
	"github.com/afroash/ledger-monitor/internal/metrics"
	"github.com/afroash/ledger-monitor/internal/models"
)

const version = "v0.3.0"

// output is what gets printed
type output struct {
	Identity  string           `json:"identity"`
	Contract  string           `json:"contract_address"`
	Series    models.Series    `json:"series"`
	Setpoints models.Setpoints `json:"setpoints"`
	Metrics   metrics.Summary  `json:"metrics"`
	FetchedAt time.Time        `json:"fetched_at"`
}

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file")
	timeout := pflag.Duration("timeout", 30*time.Second, "overall deadline")
	since := pflag.String("since", "", "RFC3339 start time for the elapsed counter (default: now)")
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

	logger, err := config.NewLogger(cfg.Logging, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	start := time.Now()
	if *since != "" {
		start, err = time.Parse(time.RFC3339, *since)
		if err != nil {
			logger.Fatal().Err(err).Msg("Invalid --since")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, cfg, start, os.Stdout, logger); err != nil {
		logger.Fatal().Err(err).Str("version", version).Msg("Snapshot failed")
	}
}

func run(ctx context.Context, cfg *config.AppConfig, start time.Time, w io.Writer, logger zerolog.Logger) error {
	eth, err := ledger.NewEthProvider(ledger.EthConfig{
		Endpoint:        cfg.Ledger.RPCURL,
		ContractAddress: cfg.Ledger.ContractAddress,
		Account:         cfg.Ledger.Account,
		CallTimeout:     cfg.Ledger.CallTimeout,
	}, logger)
	if err != nil {
		return err
	}

	conn := ledger.NewConnection(eth, logger)
	defer conn.Close()

	identity, err := conn.Connect(ctx)
	if err != nil {
		return err
	}
	logger.Info().Str("identity", ledger.ShortIdentity(identity)).Msg("Connected")

	reader := ledger.NewReader(cfg.Ledger.FetchConcurrency, logger)
	res, err := reader.Refresh(ctx, conn.Session().Store)
	if err != nil {
		return err
	}

	sp := cfg.InitialSetpoints()
	out := output{
		Identity:  identity,
		Contract:  cfg.Ledger.ContractAddress,
		Series:    res.Series,
		Setpoints: sp,
		Metrics:   metrics.Compute(res.Series, sp, start, time.Now()),
		FetchedAt: res.FetchedAt,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
