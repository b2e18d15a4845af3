// Package config loads the kernel's run configuration with viper,
// grounded on the teacher's cmd/binance-spot/main.go and
// internal/exchange/factory.go (SetConfigName/SetConfigType/
// AddConfigPath, dotted key lookups like "exchanges.binance.spot.*").
// The kernel's own entry point only needs a Config value (§6.5); this
// package is the thin wiring layer cmd/backtest and cmd/live use to
// build one from a YAML file plus environment overrides.
package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/midassystems/midastrader-sub000/internal/kernelerr"
)

// MissingValuePolicy selects how gaps in retrieved historical bars are
// handled (§6.4).
type MissingValuePolicy string

const (
	PolicyDrop        MissingValuePolicy = "drop"
	PolicyFillForward  MissingValuePolicy = "fill_forward"
)

// BacktestConfig holds the settings only the backtest driver consumes.
type BacktestConfig struct {
	StartDate time.Time
	EndDate   time.Time
	Policy    MissingValuePolicy
}

// LiveConfig holds the settings only the live driver consumes.
type LiveConfig struct {
	Venue string
}

// NATSConfig mirrors the teacher's pkg/nats.Config fields relevant to
// the kernel (internal/livebus.Config is built from this).
type NATSConfig struct {
	URL      string
	ClientID string
}

// VaultConfig mirrors internal/secrets.Config.
type VaultConfig struct {
	Address   string
	Token     string
	RoleID    string
	SecretID  string
	MountPath string
}

// RedisConfig is the read-cache front-end for the persistence adapter's
// GET paths (§6.1, §2b).
type RedisConfig struct {
	Addr string
	DB   int
	TTL  time.Duration
}

// PersistenceConfig holds the §6.1 HTTP adapter's base URL and auth
// token (resolved from secrets at startup, not stored in the file).
type PersistenceConfig struct {
	BaseURL string
	APIKey  string
}

// Config is the full run configuration the kernel's entry point
// consumes (§6.5): symbol map source, starting capital, slippage
// factor, plus every external-interface connection setting.
type Config struct {
	Mode            string // "backtest" or "live"
	StartingCapital decimal.Decimal
	SlippageFactor  int64
	Tickers         []string

	Backtest    BacktestConfig
	Live        LiveConfig
	NATS        NATSConfig
	Vault       VaultConfig
	Redis       RedisConfig
	Persistence PersistenceConfig

	LogLevel string
}

// Load reads configPath (YAML) via viper and overlays environment
// variables (viper's AutomaticEnv, matching the teacher's reliance on
// os.Getenv for secrets that never belong in a committed config file).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, &kernelerr.ExternalFailure{Operation: "config read " + configPath, Cause: err}
	}

	capital, err := decimal.NewFromString(v.GetString("starting_capital"))
	if err != nil {
		return nil, fmt.Errorf("%w: starting_capital: %v", kernelerr.DomainValidation, err)
	}

	cfg := &Config{
		Mode:            v.GetString("mode"),
		StartingCapital: capital,
		SlippageFactor:  v.GetInt64("slippage_factor"),
		Tickers:         v.GetStringSlice("tickers"),
		Backtest: BacktestConfig{
			StartDate: v.GetTime("backtest.start_date"),
			EndDate:   v.GetTime("backtest.end_date"),
			Policy:    MissingValuePolicy(v.GetString("backtest.missing_value_policy")),
		},
		Live: LiveConfig{
			Venue: v.GetString("live.venue"),
		},
		NATS: NATSConfig{
			URL:      v.GetString("nats.url"),
			ClientID: v.GetString("nats.client_id"),
		},
		Vault: VaultConfig{
			Address:   v.GetString("vault.address"),
			Token:     v.GetString("vault.token"),
			RoleID:    v.GetString("vault.role_id"),
			SecretID:  v.GetString("vault.secret_id"),
			MountPath: v.GetString("vault.mount_path"),
		},
		Redis: RedisConfig{
			Addr: v.GetString("redis.addr"),
			DB:   v.GetInt("redis.db"),
			TTL:  v.GetDuration("redis.ttl"),
		},
		Persistence: PersistenceConfig{
			BaseURL: v.GetString("persistence.base_url"),
		},
		LogLevel: v.GetString("log_level"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the handful of invariants the kernel relies on
// before wiring any component (§7: DomainValidation is fatal at run
// start).
func (c *Config) Validate() error {
	if c.Mode != "backtest" && c.Mode != "live" {
		return fmt.Errorf("%w: mode must be \"backtest\" or \"live\", got %q", kernelerr.DomainValidation, c.Mode)
	}
	if !c.StartingCapital.IsPositive() {
		return fmt.Errorf("%w: starting_capital must be > 0", kernelerr.DomainValidation)
	}
	if c.SlippageFactor < 0 {
		return fmt.Errorf("%w: slippage_factor must be >= 0", kernelerr.DomainValidation)
	}
	if len(c.Tickers) == 0 {
		return fmt.Errorf("%w: tickers must not be empty", kernelerr.DomainValidation)
	}
	if c.Mode == "backtest" {
		if c.Backtest.Policy != PolicyDrop && c.Backtest.Policy != PolicyFillForward {
			return fmt.Errorf("%w: backtest.missing_value_policy must be %q or %q", kernelerr.DomainValidation, PolicyDrop, PolicyFillForward)
		}
		if !c.Backtest.EndDate.After(c.Backtest.StartDate) {
			return fmt.Errorf("%w: backtest.end_date must be after start_date", kernelerr.DomainValidation)
		}
	}
	return nil
}
