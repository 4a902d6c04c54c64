// Package txstore defines persistence contracts for completed bridge transactions.
package txstore

import (
	"context"
	"errors"
)

// ErrNotFound reports that no record exists for the requested order.
var ErrNotFound = errors.New("txstore: record not found")

// ErrConflict reports that a record with the same order id already exists.
// Callers treat it as "already saved", not as a failure; the storage-layer
// uniqueness constraint is the source of truth under concurrent writers.
var ErrConflict = errors.New("txstore: duplicate order id")

// Record is the durable snapshot of a completed bridge transaction.
type Record struct {
	ID                 string         `json:"id"`
	OrderID            string         `json:"orderId"`
	OrderToken         string         `json:"orderToken"`
	FromCurrency       string         `json:"fromCurrency"`
	ToCurrency         string         `json:"toCurrency"`
	DepositAmount      string         `json:"depositAmount"`
	ReceiveAmount      string         `json:"receiveAmount"`
	OrderType          string         `json:"orderType"`
	DepositAddress     string         `json:"depositAddress"`
	DestinationAddress string         `json:"destinationAddress"`
	Tag                string         `json:"tag,omitempty"`
	Status             string         `json:"status"`
	RawResponse        []byte         `json:"rawResponse,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	CreatedAt          int64          `json:"createdAt"`
}

// Store defines the contract for transaction persistence operations.
type Store interface {
	// FindByOrderID returns the stored record or ErrNotFound.
	FindByOrderID(ctx context.Context, orderID string) (Record, error)
	// Insert stores a new record, returning ErrConflict when the order id
	// is already present.
	Insert(ctx context.Context, record Record) error
}
