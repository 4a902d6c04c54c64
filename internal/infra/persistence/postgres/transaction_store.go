// Package postgres implements the transaction store against PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cryptoport/bridge/internal/domain/txstore"
)

// TransactionStore persists completed bridge transactions.
type TransactionStore struct {
	pool *pgxpool.Pool
}

// NewTransactionStore constructs a TransactionStore backed by the provided pool.
func NewTransactionStore(pool *pgxpool.Pool) *TransactionStore {
	return &TransactionStore{pool: pool}
}

const (
	transactionInsertSQL = `
INSERT INTO transactions (
    id,
    order_id,
    order_token,
    from_currency,
    to_currency,
    deposit_amount,
    receive_amount,
    order_type,
    deposit_address,
    destination_address,
    tag,
    status,
    raw_response,
    metadata,
    created_at
)
VALUES (
    @id,
    @order_id,
    @order_token,
    @from_currency,
    @to_currency,
    @deposit_amount,
    @receive_amount,
    @order_type,
    @deposit_address,
    @destination_address,
    @tag,
    @status,
    @raw_response::jsonb,
    @metadata::jsonb,
    to_timestamp(@created_at)
);
`

	transactionSelectSQL = `
SELECT
    t.id::text,
    t.order_id,
    t.order_token,
    t.from_currency,
    t.to_currency,
    t.deposit_amount::text,
    t.receive_amount::text,
    t.order_type,
    t.deposit_address,
    t.destination_address,
    COALESCE(t.tag, ''),
    t.status,
    t.raw_response,
    t.metadata,
    t.created_at
FROM transactions t
WHERE t.order_id = $1;
`

	uniqueViolationCode = "23505"
)

func (s *TransactionStore) ensurePool() (*pgxpool.Pool, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("transaction store: nil pool")
	}
	return s.pool, nil
}

// Insert stores a new transaction record. A unique-violation on order_id is
// normalized to txstore.ErrConflict so callers can treat it as already saved.
func (s *TransactionStore) Insert(ctx context.Context, record txstore.Record) error {
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	orderID := strings.TrimSpace(record.OrderID)
	if orderID == "" {
		return fmt.Errorf("transaction store: order id required")
	}
	id := strings.TrimSpace(record.ID)
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := record.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().Unix()
	}
	metadata, err := encodeMetadata(record.Metadata)
	if err != nil {
		return err
	}
	args := pgx.NamedArgs{
		"id":                  id,
		"order_id":            orderID,
		"order_token":         strings.TrimSpace(record.OrderToken),
		"from_currency":       strings.TrimSpace(record.FromCurrency),
		"to_currency":         strings.TrimSpace(record.ToCurrency),
		"deposit_amount":      amountOrZero(record.DepositAmount),
		"receive_amount":      amountOrZero(record.ReceiveAmount),
		"order_type":          strings.TrimSpace(record.OrderType),
		"deposit_address":     record.DepositAddress,
		"destination_address": record.DestinationAddress,
		"tag":                 nullableString(record.Tag),
		"status":              strings.TrimSpace(record.Status),
		"raw_response":        rawOrEmpty(record.RawResponse),
		"metadata":            metadata,
		"created_at":          createdAt,
	}
	if _, err := pool.Exec(ctx, transactionInsertSQL, args); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return txstore.ErrConflict
		}
		return fmt.Errorf("transaction store: insert: %w", err)
	}
	return nil
}

// FindByOrderID retrieves the stored record for orderID, or txstore.ErrNotFound.
func (s *TransactionStore) FindByOrderID(ctx context.Context, orderID string) (txstore.Record, error) {
	var record txstore.Record
	pool, err := s.ensurePool()
	if err != nil {
		return record, err
	}
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return record, fmt.Errorf("transaction store: order id required")
	}

	var (
		rawBytes      []byte
		metadataBytes []byte
		createdAt     time.Time
	)
	row := pool.QueryRow(ctx, transactionSelectSQL, trimmed)
	if err := row.Scan(
		&record.ID,
		&record.OrderID,
		&record.OrderToken,
		&record.FromCurrency,
		&record.ToCurrency,
		&record.DepositAmount,
		&record.ReceiveAmount,
		&record.OrderType,
		&record.DepositAddress,
		&record.DestinationAddress,
		&record.Tag,
		&record.Status,
		&rawBytes,
		&metadataBytes,
		&createdAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return txstore.Record{}, txstore.ErrNotFound
		}
		return txstore.Record{}, fmt.Errorf("transaction store: find: %w", err)
	}
	record.RawResponse = rawBytes
	record.CreatedAt = createdAt.Unix()
	metadata, err := decodeMetadata(metadataBytes)
	if err != nil {
		return txstore.Record{}, err
	}
	record.Metadata = metadata
	return record, nil
}

func encodeMetadata(meta map[string]any) ([]byte, error) {
	if len(meta) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("transaction store: encode metadata: %w", err)
	}
	return data, nil
}

func decodeMetadata(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("transaction store: decode metadata: %w", err)
	}
	if len(meta) == 0 {
		return nil, nil
	}
	return meta, nil
}

func amountOrZero(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

func nullableString(value string) any {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return trimmed
}

func rawOrEmpty(raw []byte) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}
