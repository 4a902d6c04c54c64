package schema

import (
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// OrderType distinguishes fixed-rate from floating-rate orders.
type OrderType string

const (
	// OrderTypeFixed locks the quoted rate for the deposit window.
	OrderTypeFixed OrderType = "fixed"
	// OrderTypeFloat settles at the market rate when the deposit confirms.
	OrderTypeFloat OrderType = "float"
)

// QuoteValidity is how long a fetched quote may back an order creation.
const QuoteValidity = 120 * time.Second

// Currency describes one entry of the exchange's currency catalogue.
type Currency struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Network     string `json:"network"`
	CanSend     bool   `json:"canSend"`
	CanReceive  bool   `json:"canReceive"`
	MinPriority int    `json:"minPriority"`
}

// Quote is a time-bounded price estimate for a currency pair and amount.
// Quotes are superseded, never mutated; a fresh fetch yields a fresh Quote.
type Quote struct {
	FromCurrency  string
	ToCurrency    string
	Amount        decimal.Decimal
	ReceiveAmount decimal.Decimal
	Rate          decimal.Decimal
	MinAmount     decimal.Decimal
	MaxAmount     decimal.Decimal
	OrderType     OrderType
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// Valid reports whether the quote may still back an order creation at now.
func (q *Quote) Valid(now time.Time) bool {
	if q == nil {
		return false
	}
	return now.Before(q.ExpiresAt)
}

// Remaining returns the validity left at now, floored at zero.
func (q *Quote) Remaining(now time.Time) time.Duration {
	if q == nil {
		return 0
	}
	left := q.ExpiresAt.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// RemoteSnapshot is one full status observation from the exchange API,
// preserved verbatim alongside the mapped fields for audit and persistence.
type RemoteSnapshot struct {
	Status           RemoteStatus    `json:"status"`
	FromAddress      string          `json:"fromAddress"`
	FromAmount       string          `json:"fromAmount"`
	FromTag          string          `json:"fromTag,omitempty"`
	ToAddress        string          `json:"toAddress"`
	ToAmount         string          `json:"toAmount"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	EmergencyReasons []string        `json:"emergencyReasons,omitempty"`
	Raw              json.RawMessage `json:"raw,omitempty"`
}

// Order tracks a single bridging transaction through its lifecycle.
type Order struct {
	OrderID            string
	OrderToken         string
	FromCurrency       string
	ToCurrency         string
	DepositAmount      string
	ReceiveAmount      string
	OrderType          OrderType
	DepositAddress     string
	DestinationAddress string
	Tag                string
	TagName            string
	AddressAlt         string
	CurrentStatus      OrderStatus
	ExpiresAt          time.Time
	Saved              bool
	LastSnapshot       *RemoteSnapshot
}

// ApplySnapshot maps the remote status onto the order and retains the raw
// observation. Returns the internal status the snapshot mapped to.
func (o *Order) ApplySnapshot(snapshot *RemoteSnapshot) OrderStatus {
	if o == nil || snapshot == nil {
		return ""
	}
	status := MapRemoteStatus(snapshot.Status)
	o.CurrentStatus = status
	o.LastSnapshot = snapshot
	if snapshot.FromAddress != "" {
		o.DepositAddress = snapshot.FromAddress
	}
	if snapshot.FromAmount != "" {
		o.DepositAmount = snapshot.FromAmount
	}
	if snapshot.ToAmount != "" {
		o.ReceiveAmount = snapshot.ToAmount
	}
	return status
}

// Clone returns a shallow copy of the order. The snapshot pointer is shared;
// snapshots are immutable once applied.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	return &clone
}
