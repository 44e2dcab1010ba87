package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLedgerAddress = "0x9999999999999999999999999999999999999999"

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("LEDGER_CONTRACT_ADDRESS", testLedgerAddress)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sepolia", cfg.Chain.Name)
	assert.Equal(t, uint64(21000), cfg.Chain.NativeTransferGas)
	assert.Equal(t, 180*time.Second, cfg.Chain.ConfirmationTimeout)
	assert.Equal(t, 2*time.Second, cfg.Chain.ConfirmationInterval)
	assert.Equal(t, 6, cfg.Pagination.PageSize)
	assert.False(t, cfg.Database.Enabled(), "cache is off without a DB host")
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("LEDGER_CONTRACT_ADDRESS", testLedgerAddress)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("CHAIN_NAME", "mainnet")
	t.Setenv("HISTORY_PAGE_SIZE", "10")
	t.Setenv("DB_HOST", "localhost")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "mainnet", cfg.Chain.Name)
	assert.Equal(t, 10, cfg.Pagination.PageSize)
	assert.True(t, cfg.Database.Enabled())
	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestLoadConfig_MissingLedgerAddress(t *testing.T) {
	t.Setenv("LEDGER_CONTRACT_ADDRESS", "")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 8080},
			Chain: ChainConfig{
				LedgerAddress:        testLedgerAddress,
				NativeTransferGas:    21000,
				ConfirmationTimeout:  time.Minute,
				ConfirmationInterval: time.Second,
			},
			Pagination: PaginationConfig{PageSize: 6},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "zero port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
		{name: "malformed ledger address", mutate: func(c *Config) { c.Chain.LedgerAddress = "zz99" }, wantErr: true},
		{name: "gas below protocol minimum", mutate: func(c *Config) { c.Chain.NativeTransferGas = 20000 }, wantErr: true},
		{name: "zero page size", mutate: func(c *Config) { c.Pagination.PageSize = 0 }, wantErr: true},
		{name: "zero confirmation timeout", mutate: func(c *Config) { c.Chain.ConfirmationTimeout = 0 }, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
