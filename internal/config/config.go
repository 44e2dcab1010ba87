package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config holds all configuration for the service
type Config struct {
	Server     ServerConfig
	Chain      ChainConfig
	Signer     SignerConfig
	Pagination PaginationConfig
	Database   DatabaseConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int
}

// ChainConfig holds configuration for the EVM chain and ledger contract
type ChainConfig struct {
	Name                 string
	RPCEndpoint          string
	LedgerAddress        string        // Deployed ledger contract address
	NativeTransferGas    uint64        // Fixed gas hint for plain value transfers
	ConfirmationTimeout  time.Duration // Max time to wait for a tx to be mined
	ConfirmationInterval time.Duration // Receipt poll interval
}

// SignerConfig holds the wallet signing key configuration.
// An empty private key models the "no wallet installed" condition:
// the service still serves reads and responds to write intents with
// an instructional message.
type SignerConfig struct {
	PrivateKey string
}

// PaginationConfig holds history paging configuration
type PaginationConfig struct {
	PageSize int
}

// DatabaseConfig holds PostgreSQL configuration for the advisory
// counter cache. The cache is disabled when Host is empty.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Enabled reports whether the counter cache should be used
func (d DatabaseConfig) Enabled() bool {
	return d.Host != ""
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Chain: ChainConfig{
			Name:                 getEnv("CHAIN_NAME", "sepolia"),
			RPCEndpoint:          getEnv("CHAIN_RPC_ENDPOINT", ""),
			LedgerAddress:        getEnv("LEDGER_CONTRACT_ADDRESS", ""),
			NativeTransferGas:    uint64(getEnvInt("NATIVE_TRANSFER_GAS", 21000)),
			ConfirmationTimeout:  time.Duration(getEnvInt("CONFIRMATION_TIMEOUT_SECONDS", 180)) * time.Second,
			ConfirmationInterval: time.Duration(getEnvInt("CONFIRMATION_POLL_SECONDS", 2)) * time.Second,
		},
		Signer: SignerConfig{
			PrivateKey: getEnv("SIGNER_PRIVATE_KEY", ""),
		},
		Pagination: PaginationConfig{
			PageSize: getEnvInt("HISTORY_PAGE_SIZE", 6),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", ""),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "krypt_gateway"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Chain.LedgerAddress == "" {
		return fmt.Errorf("ledger contract address is required")
	}
	if !common.IsHexAddress(c.Chain.LedgerAddress) {
		return fmt.Errorf("invalid ledger contract address: %s", c.Chain.LedgerAddress)
	}

	if c.Chain.NativeTransferGas < 21000 {
		return fmt.Errorf("native transfer gas %d is below the protocol minimum", c.Chain.NativeTransferGas)
	}

	if c.Pagination.PageSize <= 0 {
		return fmt.Errorf("invalid history page size: %d", c.Pagination.PageSize)
	}

	if c.Chain.ConfirmationInterval <= 0 || c.Chain.ConfirmationTimeout <= 0 {
		return fmt.Errorf("confirmation timings must be positive")
	}

	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
