package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
mode: backtest
starting_capital: "100000"
slippage_factor: 1
tickers:
  - AAPL
  - ESZ4
backtest:
  start_date: 2024-01-01T00:00:00Z
  end_date: 2024-06-01T00:00:00Z
  missing_value_policy: fill_forward
nats:
  url: nats://localhost:4222
  client_id: kernel-backtest
vault:
  address: http://localhost:8200
  mount_path: secret
redis:
  addr: localhost:6379
persistence:
  base_url: http://localhost:8000
log_level: info
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadValidBacktestConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "backtest", cfg.Mode)
	assert.True(t, cfg.StartingCapital.Equal(decimal.NewFromInt(100000)))
	assert.Equal(t, []string{"AAPL", "ESZ4"}, cfg.Tickers)
	assert.Equal(t, PolicyFillForward, cfg.Backtest.Policy)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := &Config{
		Mode:            "paper",
		StartingCapital: decimal.NewFromInt(1000),
		Tickers:         []string{"AAPL"},
	}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidateRejectsNonPositiveCapital(t *testing.T) {
	cfg := &Config{
		Mode:            "backtest",
		StartingCapital: decimal.Zero,
		Tickers:         []string{"AAPL"},
		Backtest:        BacktestConfig{Policy: PolicyDrop},
	}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidateRejectsEmptyTickers(t *testing.T) {
	cfg := &Config{
		Mode:            "backtest",
		StartingCapital: decimal.NewFromInt(1000),
		Backtest:        BacktestConfig{Policy: PolicyDrop},
	}
	err := cfg.Validate()
	require.Error(t, err)
}

func TestValidateRejectsUnknownMissingValuePolicy(t *testing.T) {
	cfg := &Config{
		Mode:            "backtest",
		StartingCapital: decimal.NewFromInt(1000),
		Tickers:         []string{"AAPL"},
		Backtest:        BacktestConfig{Policy: "nearest"},
	}
	err := cfg.Validate()
	require.Error(t, err)
}
