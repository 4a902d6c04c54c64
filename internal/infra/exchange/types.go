package exchange

import (
	"time"

	json "github.com/goccy/go-json"

	"github.com/cryptoport/bridge/internal/schema"
)

// QuoteRequest asks the exchange to price a currency pair and amount.
type QuoteRequest struct {
	FromCurrency string           `json:"fromCcy"`
	ToCurrency   string           `json:"toCcy"`
	Amount       string           `json:"amount"`
	OrderType    schema.OrderType `json:"type"`
}

// QuoteResponse carries the priced pair with its source-side bounds.
type QuoteResponse struct {
	Rate      string `json:"rate"`
	ToAmount  string `json:"toAmount"`
	MinAmount string `json:"minAmount"`
	MaxAmount string `json:"maxAmount"`
}

// CreateOrderRequest submits a new bridging order.
type CreateOrderRequest struct {
	FromCurrency       string           `json:"fromCcy"`
	ToCurrency         string           `json:"toCcy"`
	Amount             string           `json:"amount"`
	DestinationAddress string           `json:"toAddress"`
	OrderType          schema.OrderType `json:"type"`
	Rate               string           `json:"rate,omitempty"`
	RequestID          string           `json:"requestId,omitempty"`
}

// CreateOrderResponse returns the identifiers and deposit details of a new order.
type CreateOrderResponse struct {
	OrderID        string    `json:"id"`
	OrderToken     string    `json:"token"`
	DepositAddress string    `json:"fromAddress"`
	DepositTag     string    `json:"fromTag,omitempty"`
	TagName        string    `json:"fromTagName,omitempty"`
	AddressAlt     string    `json:"fromAddressAlt,omitempty"`
	DepositAmount  string    `json:"fromAmount"`
	ReceiveAmount  string    `json:"toAmount"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// StatusRequest authenticates one status check.
type StatusRequest struct {
	OrderID    string `json:"id"`
	OrderToken string `json:"token"`
}

type statusLeg struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
	Tag     string `json:"tag,omitempty"`
}

type emergencyDetail struct {
	Status []string `json:"status,omitempty"`
}

// statusResponse is the raw wire shape of one status observation.
type statusResponse struct {
	Status    string          `json:"status"`
	From      statusLeg       `json:"from"`
	To        statusLeg       `json:"to"`
	CreatedAt int64           `json:"time.reg"`
	UpdatedAt int64           `json:"time.update"`
	Emergency emergencyDetail `json:"emergency"`
}

// apiEnvelope wraps every exchange response body.
type apiEnvelope struct {
	Code    string          `json:"code"`
	Message string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

type currencyDTO struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Network  string `json:"network"`
	Send     bool   `json:"send"`
	Recv     bool   `json:"recv"`
	Priority int    `json:"priority"`
}
