// Package store persists advisory ledger counters. The cache mirrors
// the last observed transfer and request counters per contract; it is
// never authoritative and is re-validated against the contract on
// every load.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/krypt-labs/krypt-gateway/internal/config"
	"github.com/krypt-labs/krypt-gateway/internal/models"
)

// Store wraps sqlx.DB with counter cache queries
type Store struct {
	*sqlx.DB
}

// Connect creates a new database connection
func Connect(cfg config.DatabaseConfig) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{DB: db}, nil
}

// RunMigrations executes the schema migrations
func RunMigrations(db *Store, migrationPath string) error {
	content, err := os.ReadFile(migrationPath)
	if err != nil {
		return fmt.Errorf("failed to load migration file: %w", err)
	}

	if _, err := db.Exec(string(content)); err != nil {
		return fmt.Errorf("failed to execute migration: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.DB.Close()
}

// GetCounters retrieves the cached counters for a contract. Returns
// nil without error when no row exists.
func (s *Store) GetCounters(ctx context.Context, contractAddress string) (*models.CounterSnapshot, error) {
	var snapshot models.CounterSnapshot
	query := `
		SELECT contract_address, transfer_count, request_count, updated_at
		FROM ledger_counters
		WHERE contract_address = $1
	`
	err := s.GetContext(ctx, &snapshot, query, contractAddress)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// UpsertCounters records the latest observed counters for a contract
func (s *Store) UpsertCounters(ctx context.Context, contractAddress string, transferCount, requestCount int64) error {
	query := `
		INSERT INTO ledger_counters (contract_address, transfer_count, request_count, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (contract_address) DO UPDATE
		SET transfer_count = EXCLUDED.transfer_count,
		    request_count  = EXCLUDED.request_count,
		    updated_at     = NOW()
	`
	_, err := s.ExecContext(ctx, query, contractAddress, transferCount, requestCount)
	return err
}
