package balance

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/hireloop/tokenpay/internal/config"
)

// PostgresStore implements Store using PostgreSQL. Credits go through a
// ledger table with the authorization ID as primary key, so a replayed
// credit is a no-op at the database level regardless of process state.
type PostgresStore struct {
	db               *sql.DB
	ownsDB           bool
	balanceTableName string
	creditsTableName string
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(connectionString string, poolConfig config.PostgresPoolConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		// Close() error during initialization cleanup is not actionable
		// and would only obscure the original connection failure.
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if poolConfig.MaxOpenConns > 0 {
		db.SetMaxOpenConns(poolConfig.MaxOpenConns)
	}
	if poolConfig.MaxIdleConns > 0 {
		db.SetMaxIdleConns(poolConfig.MaxIdleConns)
	}
	if poolConfig.ConnMaxLifetime.Duration > 0 {
		db.SetConnMaxLifetime(poolConfig.ConnMaxLifetime.Duration)
	}

	store := &PostgresStore{
		db:               db,
		ownsDB:           true,
		balanceTableName: "workspace_balances",
		creditsTableName: "balance_credits",
	}

	if err := store.createTables(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// NewPostgresStoreWithDB creates a store on an existing connection pool.
func NewPostgresStoreWithDB(db *sql.DB) (*PostgresStore, error) {
	store := &PostgresStore{
		db:               db,
		ownsDB:           false,
		balanceTableName: "workspace_balances",
		creditsTableName: "balance_credits",
	}
	if err := store.createTables(); err != nil {
		return nil, err
	}
	return store, nil
}

// WithTableName sets a custom balance table name and recreates tables.
func (s *PostgresStore) WithTableName(balances string) *PostgresStore {
	if balances != "" {
		s.balanceTableName = balances
		s.creditsTableName = balances + "_credits"
	}
	_ = s.createTables()
	return s
}

func (s *PostgresStore) createTables() error {
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			customer_id TEXT PRIMARY KEY,
			token_balance BIGINT NOT NULL DEFAULT 0,
			auto_topup BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS %s (
			authorization_id TEXT PRIMARY KEY,
			customer_id TEXT NOT NULL,
			tokens BIGINT NOT NULL,
			mode TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_%s_customer ON %s (customer_id);
	`, s.balanceTableName, s.creditsTableName, s.creditsTableName, s.creditsTableName)

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create balance tables: %w", err)
	}
	return nil
}

// ApplyCredit implements Store.
func (s *PostgresStore) ApplyCredit(ctx context.Context, credit Credit) (bool, error) {
	appliedAt := credit.AppliedAt
	if appliedAt.IsZero() {
		appliedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin credit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (authorization_id, customer_id, tokens, mode, applied_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (authorization_id) DO NOTHING
	`, s.creditsTableName), credit.AuthorizationID, credit.CustomerID, credit.Tokens, credit.Mode, appliedAt)
	if err != nil {
		return false, fmt.Errorf("record credit: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record credit rows: %w", err)
	}
	if rows == 0 {
		// Already credited; nothing to apply.
		return false, nil
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (customer_id, token_balance, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (customer_id) DO UPDATE SET
			token_balance = %s.token_balance + EXCLUDED.token_balance,
			updated_at = EXCLUDED.updated_at
	`, s.balanceTableName, s.balanceTableName), credit.CustomerID, credit.Tokens, appliedAt)
	if err != nil {
		return false, fmt.Errorf("increment balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit credit tx: %w", err)
	}
	return true, nil
}

// Balance implements Store.
func (s *PostgresStore) Balance(ctx context.Context, customerID string) (Snapshot, error) {
	var snap Snapshot
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT customer_id, token_balance, auto_topup, updated_at
		FROM %s WHERE customer_id = $1
	`, s.balanceTableName), customerID).Scan(&snap.CustomerID, &snap.Tokens, &snap.AutoTopUp, &snap.UpdatedAt)
	if err == sql.ErrNoRows {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("query balance: %w", err)
	}
	return snap, nil
}

// SetAutoTopUp implements Store.
func (s *PostgresStore) SetAutoTopUp(ctx context.Context, customerID string, enabled bool) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (customer_id, auto_topup, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (customer_id) DO UPDATE SET
			auto_topup = EXCLUDED.auto_topup,
			updated_at = NOW()
	`, s.balanceTableName), customerID, enabled)
	if err != nil {
		return fmt.Errorf("set auto topup: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
