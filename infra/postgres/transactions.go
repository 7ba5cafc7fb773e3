package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mstgnz/paygate/provider"
	"github.com/shopspring/decimal"
)

// DB is the subset of *pgxpool.Pool used by the store
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TransactionStore persists charge outcomes in PostgreSQL
type TransactionStore struct {
	db DB
}

// NewTransactionStore creates a store on an open pool
func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id BIGSERIAL PRIMARY KEY,
	idempotency_key TEXT NOT NULL UNIQUE,
	order_id TEXT NOT NULL,
	gateway_name TEXT NOT NULL,
	provider_transaction_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	amount NUMERIC(18,4) NOT NULL,
	currency CHAR(3) NOT NULL,
	raw_provider_code TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_transactions_order ON transactions(order_id);
CREATE INDEX IF NOT EXISTS idx_transactions_gateway ON transactions(gateway_name, occurred_at DESC);
`

// EnsureSchema creates the transactions table when it does not exist
func (s *TransactionStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create transactions schema: %w", err)
	}
	return nil
}

const upsertTransaction = `
INSERT INTO transactions (idempotency_key, order_id, gateway_name, provider_transaction_id,
	status, amount, currency, raw_provider_code, message, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10)
ON CONFLICT (idempotency_key)
DO UPDATE SET
	gateway_name = EXCLUDED.gateway_name,
	provider_transaction_id = EXCLUDED.provider_transaction_id,
	status = EXCLUDED.status,
	raw_provider_code = EXCLUDED.raw_provider_code,
	message = EXCLUDED.message,
	occurred_at = EXCLUDED.occurred_at
`

// SaveTransaction upserts the result by idempotency key
func (s *TransactionStore) SaveTransaction(ctx context.Context, result provider.TransactionResult) error {
	_, err := s.db.Exec(ctx, upsertTransaction,
		result.IdempotencyKey,
		result.OrderID,
		result.GatewayName,
		result.ProviderTransactionID,
		string(result.Status),
		result.Amount.String(),
		result.Currency,
		result.RawProviderCode,
		result.Message,
		result.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

const selectTransactions = `
SELECT idempotency_key, order_id, gateway_name, provider_transaction_id,
	status, amount::text, currency, raw_provider_code, message, occurred_at
FROM transactions`

// FindByIdempotencyKey returns nil without error when nothing is stored for key
func (s *TransactionStore) FindByIdempotencyKey(ctx context.Context, key string) (*provider.TransactionResult, error) {
	row := s.db.QueryRow(ctx, selectTransactions+` WHERE idempotency_key = $1`, key)
	result, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	return &result, nil
}

// ListTransactions returns the newest results first, optionally for one gateway
func (s *TransactionStore) ListTransactions(ctx context.Context, gatewayName string, limit int) ([]provider.TransactionResult, error) {
	if limit <= 0 {
		limit = 50
	}

	query := selectTransactions
	args := []any{}
	if gatewayName != "" {
		query += ` WHERE gateway_name = $1 ORDER BY occurred_at DESC, id DESC LIMIT $2`
		args = append(args, gatewayName, limit)
	} else {
		query += ` ORDER BY occurred_at DESC, id DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var results []provider.TransactionResult
	for rows.Next() {
		r, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func scanTransaction(row pgx.Row) (provider.TransactionResult, error) {
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
