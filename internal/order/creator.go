// Package order implements order creation, status polling, reconciliation
// against the persisted store, and the debug status override projection.
package order

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cryptoport/bridge/errs"
	"github.com/cryptoport/bridge/internal/infra/exchange"
	"github.com/cryptoport/bridge/internal/observability"
	"github.com/cryptoport/bridge/internal/quote"
	"github.com/cryptoport/bridge/internal/schema"
)

// OrderPlacer submits order creations to the remote exchange.
type OrderPlacer interface {
	CreateOrder(ctx context.Context, req exchange.CreateOrderRequest) (exchange.CreateOrderResponse, error)
}

// QuoteProvider exposes the cached quote and the ability to refresh it.
type QuoteProvider interface {
	Current() *schema.Quote
	GetQuote(ctx context.Context, inputs quote.Inputs) (*schema.Quote, error)
}

// CreateRequest carries the user inputs for one order creation.
type CreateRequest struct {
	DestinationAddress string
}

// Creator validates inputs against the live quote and submits orders.
type Creator struct {
	placer OrderPlacer
	quotes QuoteProvider
	clock  func() time.Time
	logger observability.Logger
}

// NewCreator constructs an order creator.
func NewCreator(placer OrderPlacer, quotes QuoteProvider, clock func() time.Time, logger observability.Logger) *Creator {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = observability.Log()
	}
	return &Creator{placer: placer, quotes: quotes, clock: clock, logger: logger}
}

// Create validates the request, confirms the cached quote is still valid,
// and submits the order. An expired or missing quote fails with a
// quote-expired error before any create call is made, and triggers exactly
// one fresh quote fetch so the caller can retry immediately.
func (c *Creator) Create(ctx context.Context, req CreateRequest) (*schema.Order, error) {
	destination := strings.TrimSpace(req.DestinationAddress)
	if destination == "" {
		return nil, errs.New("order.create", errs.CodeInvalid,
			errs.WithMessage("destination address required"))
	}

	cached := c.quotes.Current()
	if cached == nil || !cached.Valid(c.clock()) {
		c.refreshStaleQuote(ctx, cached)
		return nil, errs.New("order.create", errs.CodeQuoteExpired,
			errs.WithMessage("quote expired, a fresh quote was requested"))
	}
	if err := quote.ValidateAmount(cached.Amount, cached); err != nil {
		return nil, err
	}

	resp, err := c.placer.CreateOrder(ctx, exchange.CreateOrderRequest{
		FromCurrency:       cached.FromCurrency,
		ToCurrency:         cached.ToCurrency,
		Amount:             cached.Amount.String(),
		DestinationAddress: destination,
		OrderType:          cached.OrderType,
		Rate:               cached.Rate.String(),
		RequestID:          uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.OrderID) == "" || strings.TrimSpace(resp.OrderToken) == "" {
		return nil, errs.New("order.create", errs.CodeExchange,
			errs.WithMessage("exchange returned no order identifiers"))
	}

	depositAmount := resp.DepositAmount
	if depositAmount == "" {
		depositAmount = cached.Amount.String()
	}
	receiveAmount := resp.ReceiveAmount
	if receiveAmount == "" {
		receiveAmount = cached.ReceiveAmount.String()
	}

	order := &schema.Order{
		OrderID:            resp.OrderID,
		OrderToken:         resp.OrderToken,
		FromCurrency:       cached.FromCurrency,
		ToCurrency:         cached.ToCurrency,
		DepositAmount:      depositAmount,
		ReceiveAmount:      receiveAmount,
		OrderType:          cached.OrderType,
		DepositAddress:     resp.DepositAddress,
		DestinationAddress: destination,
		Tag:                resp.DepositTag,
		TagName:            resp.TagName,
		AddressAlt:         resp.AddressAlt,
		CurrentStatus:      schema.StatusAwaitingDeposit,
		ExpiresAt:          resp.ExpiresAt,
	}
	c.logger.Info("order created",
		observability.F("order_id", order.OrderID),
		observability.F("pair", order.FromCurrency+"/"+order.ToCurrency))
	return order, nil
}

// refreshStaleQuote issues a single follow-up fetch for the stale pair so the
// caller's retry finds a live quote. Its own failure is not surfaced.
func (c *Creator) refreshStaleQuote(ctx context.Context, stale *schema.Quote) {
	if stale == nil {
		return
	}
	_, err := c.quotes.GetQuote(ctx, quote.Inputs{
		FromCurrency: stale.FromCurrency,
		ToCurrency:   stale.ToCurrency,
		Amount:       stale.Amount.String(),
		OrderType:    stale.OrderType,
	})
	if err != nil {
		c.logger.Warn("post-expiry quote refresh failed", observability.F("error", err))
	}
}
