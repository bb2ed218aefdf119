package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	errs "github.com/sweetpotato0/toolbridge/errors"
)

// PostgresStore reads credentials from a PostgreSQL table
type PostgresStore struct {
	db    *sql.DB
	table string // quoted identifier
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Table    string
}

// DefaultPostgresConfig returns default PostgreSQL configuration
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		DBName:   "toolbridge",
		SSLMode:  "disable",
		Table:    "provider_credentials",
	}
}

// DSN renders the lib/pq connection string
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// NewPostgresStore connects to PostgreSQL and ensures the credentials table exists
func NewPostgresStore(ctx context.Context, config *PostgresConfig) (*PostgresStore, error) {
	if config == nil {
		config = DefaultPostgresConfig()
	}
	table := config.Table
	if table == "" {
		table = "provider_credentials"
	}

	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	store := &PostgresStore{db: db, table: pq.QuoteIdentifier(table)}
	if err := store.createTable(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) createTable(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		ref VARCHAR(255) PRIMARY KEY,
		secret TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT NOW()
	)`, s.table)
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Lookup returns the secret stored under ref
func (s *PostgresStore) Lookup(ctx context.Context, ref string) (string, error) {
	var secret string
	query := fmt.Sprintf(`SELECT secret FROM %s WHERE ref = $1`, s.table)
	err := s.db.QueryRowContext(ctx, query, ref).Scan(&secret)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("credential %q: %w", ref, errs.ErrNotFound)
		}
		return "", fmt.Errorf("failed to query credential: %w", err)
	}
	return secret, nil
}

// Put inserts or replaces a secret
func (s *PostgresStore) Put(ctx context.Context, ref, secret string) error {
	query := fmt.Sprintf(`
	INSERT INTO %s (ref, secret, updated_at) VALUES ($1, $2, NOW())
	ON CONFLICT (ref) DO UPDATE SET secret = EXCLUDED.secret, updated_at = NOW()`, s.table)
	if _, err := s.db.ExecContext(ctx, query, ref, secret); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// Delete removes a secret
func (s *PostgresStore) Delete(ctx context.Context, ref string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE ref = $1`, s.table), ref)
	return err
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
