package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/afroash/ledger-monitor/internal/models"
	"github.com/afroash/ledger-monitor/internal/storage"
)

// DefaultContractAddress is the first contract deployed on a local
// development chain.
const DefaultContractAddress = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

// AppConfig holds all configuration for the monitor process
type AppConfig struct {
	Ledger    LedgerSettings   `yaml:"ledger"`
	Poll      PollSettings     `yaml:"poll"`
	Setpoints SetpointSettings `yaml:"setpoints"`
	Server    ServerSettings   `yaml:"server"`
	Journal   JournalSettings  `yaml:"journal"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// LedgerSettings locate the telemetry contract
type LedgerSettings struct {
	// RPCURL may be empty: connecting then fails with ProviderUnavailable.
	RPCURL           string        `yaml:"rpc_url"`
	ContractAddress  string        `yaml:"contract_address"`
	Account          string        `yaml:"account"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
	FetchConcurrency int           `yaml:"fetch_concurrency"`
	WatchEvents      bool          `yaml:"watch_events"`
}

// PollSettings control the refresh timer and the elapsed-time clock
type PollSettings struct {
	Interval      time.Duration `yaml:"interval"`
	MaxBackoff    time.Duration `yaml:"max_backoff"`
	ClockInterval time.Duration `yaml:"clock_interval"`
}

// RangeSettings is one initial setpoint range. Nil bounds take the default.
type RangeSettings struct {
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`
}

// SetpointSettings are the thresholds active at startup
type SetpointSettings struct {
	Temperature RangeSettings `yaml:"temperature"`
	Humidity    RangeSettings `yaml:"humidity"`
}

// ServerSettings contains HTTP server configuration
type ServerSettings struct {
	Port           int           `yaml:"port"`
	Host           string        `yaml:"host"`
	AuthToken      string        `yaml:"auth_token"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// JournalSettings configure the refresh journal
type JournalSettings struct {
	Enabled       bool          `yaml:"enabled"`
	DSN           string        `yaml:"dsn"`
	BatchSize     int           `yaml:"batch_size"`
	FlushPeriod   time.Duration `yaml:"flush_period"`
	ChannelSize   int           `yaml:"channel_size"`
	Retention     time.Duration `yaml:"retention"`
	CleanupPeriod time.Duration `yaml:"cleanup_period"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// LoadAppConfig loads configuration from a YAML file
func LoadAppConfig(path string) (*AppConfig, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var config AppConfig
	if err := yaml.Unmarshal(yamlData, &config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return finish(&config)
}

// Default returns a configuration built only from defaults and the environment.
func Default() (*AppConfig, error) {
	return finish(&AppConfig{})
}

func finish(config *AppConfig) (*AppConfig, error) {
	config.ApplyDefaults()
	if err := config.OverrideFromEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// ApplyDefaults sets default values for any unset fields
func (ac *AppConfig) ApplyDefaults() {
	if ac.Ledger.ContractAddress == "" {
		ac.Ledger.ContractAddress = DefaultContractAddress
	}
	if ac.Ledger.CallTimeout == 0 {
		ac.Ledger.CallTimeout = 15 * time.Second
	}
	if ac.Ledger.FetchConcurrency == 0 {
		ac.Ledger.FetchConcurrency = 8
	}
	if ac.Poll.Interval == 0 {
		ac.Poll.Interval = 10 * time.Second
	}
	if ac.Poll.MaxBackoff == 0 {
		ac.Poll.MaxBackoff = 2 * time.Minute
	}
	if ac.Poll.ClockInterval == 0 {
		ac.Poll.ClockInterval = time.Second
	}

	defaults := models.DefaultSetpoints()
	fillRange(&ac.Setpoints.Temperature, defaults.Temperature)
	fillRange(&ac.Setpoints.Humidity, defaults.Humidity)

	if ac.Server.Port == 0 {
		ac.Server.Port = 8081
	}
	if ac.Server.Host == "" {
		ac.Server.Host = "localhost"
	}
	if ac.Server.ReadTimeout == 0 {
		ac.Server.ReadTimeout = 60 * time.Second
	}
	if ac.Server.WriteTimeout == 0 {
		ac.Server.WriteTimeout = 30 * time.Second
	}
	if ac.Server.IdleTimeout == 0 {
		ac.Server.IdleTimeout = 120 * time.Second
	}
	if ac.Journal.DSN == "" {
		ac.Journal.DSN = storage.MemoryDSN
	}
	if ac.Journal.BatchSize == 0 {
		ac.Journal.BatchSize = 20
	}
	if ac.Journal.FlushPeriod == 0 {
		ac.Journal.FlushPeriod = 5 * time.Second
	}
	if ac.Journal.ChannelSize == 0 {
		ac.Journal.ChannelSize = 256
	}
	if ac.Journal.Retention == 0 {
		ac.Journal.Retention = 24 * time.Hour
	}
	if ac.Journal.CleanupPeriod == 0 {
		ac.Journal.CleanupPeriod = 10 * time.Minute
	}
	if ac.Logging.Level == "" {
		ac.Logging.Level = "info"
	}
	if ac.Logging.Format == "" {
		ac.Logging.Format = "json"
	}
}

func fillRange(rs *RangeSettings, def models.Range) {
	if rs.Min == nil {
		v := def.Min.InexactFloat64()
		rs.Min = &v
	}
	if rs.Max == nil {
		v := def.Max.InexactFloat64()
		rs.Max = &v
	}
}

// OverrideFromEnv overrides config values from environment variables
func (ac *AppConfig) OverrideFromEnv() error {
	// Only override if environment variable is set (non-empty)
	if v := os.Getenv("LEDGER_RPC_URL"); v != "" {
		ac.Ledger.RPCURL = v
	}
	if v := os.Getenv("LEDGER_CONTRACT_ADDRESS"); v != "" {
		ac.Ledger.ContractAddress = v
	}
	if v := os.Getenv("LEDGER_ACCOUNT"); v != "" {
		ac.Ledger.Account = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SERVER_PORT: %w", err)
		}
		ac.Server.Port = port
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		ac.Server.Host = v
	}
	if v := os.Getenv("SERVER_AUTH_TOKEN"); v != "" {
		ac.Server.AuthToken = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		ac.Logging.Level = v
	}
	return nil
}

// Validate checks if the configuration is valid
func (ac *AppConfig) Validate() error {
	if !common.IsHexAddress(ac.Ledger.ContractAddress) {
		return fmt.Errorf("contract address %q is not a hex address", ac.Ledger.ContractAddress)
	}
	if ac.Ledger.Account != "" && !common.IsHexAddress(ac.Ledger.Account) {
		return fmt.Errorf("account %q is not a hex address", ac.Ledger.Account)
	}
	if ac.Ledger.FetchConcurrency < 1 || ac.Ledger.FetchConcurrency > 64 {
		return fmt.Errorf("fetch concurrency must be between 1 and 64")
	}
	if ac.Poll.Interval < 100*time.Millisecond {
		return fmt.Errorf("poll interval must be at least 100ms")
	}
	if ac.Poll.ClockInterval < 10*time.Millisecond {
		return fmt.Errorf("clock interval must be at least 10ms")
	}
	if ac.Server.Port < 1 || ac.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if ac.Journal.BatchSize < 1 {
		return fmt.Errorf("journal batch size must be at least 1")
	}
	if ac.Journal.Retention < time.Minute {
		return fmt.Errorf("journal retention must be at least 1 minute")
	}
	if _, err := zerolog.ParseLevel(ac.Logging.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if ac.Logging.Format != "json" && ac.Logging.Format != "console" {
		return fmt.Errorf("log format must be json or console")
	}
	return nil
}

// InitialSetpoints converts the configured ranges. ApplyDefaults must have run.
func (ac *AppConfig) InitialSetpoints() models.Setpoints {
	return models.Setpoints{
		Temperature: models.NewRange(*ac.Setpoints.Temperature.Min, *ac.Setpoints.Temperature.Max),
		Humidity:    models.NewRange(*ac.Setpoints.Humidity.Min, *ac.Setpoints.Humidity.Max),
	}
}

// String returns a safe string representation (hides auth token)
func (ac *AppConfig) String() string {
	server := ac.Server
	server.AuthToken = maskToken(server.AuthToken)
	return fmt.Sprintf("AppConfig{Ledger: %+v, Poll: %+v, Setpoints: %s, Server: %+v, Journal: %+v, Logging: %+v}",
		ac.Ledger,
		ac.Poll,
		ac.setpointsString(),
		server,
		ac.Journal,
		ac.Logging,
	)
}

func (ac *AppConfig) setpointsString() string {
	var b strings.Builder
	for _, r := range []struct {
		name string
		rs   RangeSettings
	}{{"temperature", ac.Setpoints.Temperature}, {"humidity", ac.Setpoints.Humidity}} {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%s=%s..%s", r.name, fmtBound(r.rs.Min), fmtBound(r.rs.Max))
	}
	return b.String()
}

func fmtBound(v *float64) string {
	if v == nil {
		return "?"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// maskToken masks all but first 4 characters of a token
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}
