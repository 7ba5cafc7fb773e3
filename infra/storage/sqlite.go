package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mstgnz/paygate/infra/logger"
	"github.com/mstgnz/paygate/provider"
	"github.com/shopspring/decimal"
)

const sqliteMaxRetries = 3

// SQLiteStore keeps a durable record of every charge outcome in a local
// SQLite database. It is safe to share between processes.
type SQLiteStore struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// NewSQLiteStore opens (and creates if needed) the database at dbPath
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_timeout=20000&_txlock=immediate", dbPath)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	store.applyPragmas()

	logger.Info("SQLite transaction store initialized", logger.LogContext{
		Fields: map[string]any{"path": dbPath},
	})
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		idempotency_key TEXT NOT NULL UNIQUE,
		order_id TEXT NOT NULL,
		gateway_name TEXT NOT NULL,
		provider_transaction_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		raw_provider_code TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		occurred_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_order ON transactions(order_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_gateway ON transactions(gateway_name, occurred_at);
	`

	_, err := s.db.Exec(query)
	return err
}

func (s *SQLiteStore) applyPragmas() {
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 30000;",
		"PRAGMA temp_store = memory;",
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			logger.Warn("Failed to apply SQLite pragma", logger.LogContext{
				Fields: map[string]any{"pragma": pragma, "error": err.Error()},
			})
		}
	}
}

// retryOperation retries op on SQLITE_BUSY with exponential backoff: 10ms, 20ms, 40ms
func (s *SQLiteStore) retryOperation(ctx context.Context, op func() error) error {
	var lastErr error

	for attempt := 0; attempt <= sqliteMaxRetries; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}

		lastErr = err
		if attempt == sqliteMaxRetries {
			break
		}

		backoff := time.Duration(10*(1<<attempt)) * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("operation failed after %d retries, last error: %w", sqliteMaxRetries+1, lastErr)
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// SaveTransaction inserts the result, replacing any earlier record with the
// same idempotency key.
func (s *SQLiteStore) SaveTransaction(ctx context.Context, result provider.TransactionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.retryOperation(ctx, func() error {
		query := `
		INSERT INTO transactions (idempotency_key, order_id, gateway_name, provider_transaction_id,
			status, amount, currency, raw_provider_code, message, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(idempotency_key)
		DO UPDATE SET
			gateway_name = excluded.gateway_name,
			provider_transaction_id = excluded.provider_transaction_id,
			status = excluded.status,
			raw_provider_code = excluded.raw_provider_code,
			message = excluded.message,
			occurred_at = excluded.occurred_at
		`

		_, err := s.db.ExecContext(ctx, query,
			result.IdempotencyKey,
			result.OrderID,
			result.GatewayName,
			result.ProviderTransactionID,
			string(result.Status),
			result.Amount.String(),
			result.Currency,
			result.RawProviderCode,
			result.Message,
			result.OccurredAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to save transaction: %w", err)
		}
		return nil
	})
}

// FindByIdempotencyKey returns nil without error when nothing is stored for key
func (s *SQLiteStore) FindByIdempotencyKey(ctx context.Context, key string) (*provider.TransactionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result *provider.TransactionResult
	err := s.retryOperation(ctx, func() error {
		row := s.db.QueryRowContext(ctx, selectTransactions+` WHERE idempotency_key = ?`, key)
		r, err := scanTransaction(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load transaction: %w", err)
		}
		result = &r
		return nil
	})
	return result, err
}

// ListTransactions returns the most recent results first. A gateway name
// narrows the list to that gateway.
func (s *SQLiteStore) ListTransactions(ctx context.Context, gatewayName string, limit int) ([]provider.TransactionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}

	var results []provider.TransactionResult
	err := s.retryOperation(ctx, func() error {
		query := selectTransactions
		args := []any{}
		if gatewayName != "" {
			query += ` WHERE gateway_name = ?`
			args = append(args, gatewayName)
		}
		query += ` ORDER BY occurred_at DESC, id DESC LIMIT ?`
		args = append(args, limit)

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to query transactions: %w", err)
		}
		defer rows.Close()

		results = results[:0]
		for rows.Next() {
			r, err := scanTransaction(rows)
			if err != nil {
				return fmt.Errorf("failed to scan row: %w", err)
			}
			results = append(results, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetStats returns the number of stored transactions per status
func (s *SQLiteStore) GetStats(ctx context.Context) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM transactions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}
	defer rows.Close()

	byStatus := make(map[string]int)
	total := 0
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		byStatus[status] = count
		total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats := map[string]any{
		"total_transactions": total,
		"by_status":          byStatus,
		"db_path":            s.path,
	}
	if fileInfo, err := os.Stat(s.path); err == nil {
		stats["db_size_bytes"] = fileInfo.Size()
	}
	return stats, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

const selectTransactions = `
	SELECT idempotency_key, order_id, gateway_name, provider_transaction_id,
		status, amount, currency, raw_provider_code, message, occurred_at
	FROM transactions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (provider.TransactionResult, error) {
	var (
		r      provider.TransactionResult
		status string
		amount string
	)
	err := row.Scan(&r.IdempotencyKey, &r.OrderID, &r.GatewayName, &r.ProviderTransactionID,
		&status, &amount, &r.Currency, &r.RawProviderCode, &r.Message, &r.OccurredAt)
	if err != nil {
		return r, err
	}

	r.Status = provider.TransactionStatus(status)
	r.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return r, fmt.Errorf("invalid stored amount %q: %w", amount, err)
	}
	return r, nil
}
