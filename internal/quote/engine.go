// Package quote implements price quoting with expiry tracking and amount validation.
package quote

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/cryptoport/bridge/errs"
	"github.com/cryptoport/bridge/internal/infra/exchange"
	"github.com/cryptoport/bridge/internal/observability"
	"github.com/cryptoport/bridge/internal/schema"
	"github.com/cryptoport/bridge/internal/telemetry"
)

// RecalcThrottle is the minimum age a cached quote must reach before
// unchanged inputs trigger another remote fetch.
const RecalcThrottle = schema.QuoteValidity

// ErrRefreshCooldown reports that a manual refresh is not yet available.
// It is informational; the cached quote remains in place.
var ErrRefreshCooldown = errs.New("quote.refresh", errs.CodeUnavailable,
	errs.WithMessage("refresh not yet available"))

// PriceSource prices a currency pair and amount against the remote exchange.
type PriceSource interface {
	FetchQuote(ctx context.Context, req exchange.QuoteRequest) (exchange.QuoteResponse, error)
}

// Inputs identifies one quote calculation trigger.
type Inputs struct {
	FromCurrency string
	ToCurrency   string
	Amount       string
	OrderType    schema.OrderType
}

func (i Inputs) normalized() Inputs {
	i.FromCurrency = strings.TrimSpace(i.FromCurrency)
	i.ToCurrency = strings.TrimSpace(i.ToCurrency)
	i.Amount = strings.TrimSpace(i.Amount)
	if i.OrderType == "" {
		i.OrderType = schema.OrderTypeFixed
	}
	return i
}

// Options configures the quote engine.
type Options struct {
	Source  PriceSource
	Clock   func() time.Time
	Logger  observability.Logger
	Metrics *telemetry.BridgeMetrics
	// RefreshCooldown bounds manual refreshes; defaults to the quote validity window.
	RefreshCooldown time.Duration
}

// Engine fetches and caches quotes, enforcing the recalculation throttle and
// last-requested-wins semantics for overlapping fetches.
type Engine struct {
	source  PriceSource
	clock   func() time.Time
	logger  observability.Logger
	metrics *telemetry.BridgeMetrics
	refresh *rate.Limiter

	mu          sync.Mutex
	seq         uint64
	current     *schema.Quote
	lastInputs  Inputs
	lastFetched time.Time
}

// NewEngine constructs a quote engine around the provided price source.
func NewEngine(opts Options) *Engine {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.Log()
	}
	cooldown := opts.RefreshCooldown
	if cooldown <= 0 {
		cooldown = schema.QuoteValidity
	}
	return &Engine{
		source:  opts.Source,
		clock:   clock,
		logger:  logger,
		metrics: opts.Metrics,
		refresh: rate.NewLimiter(rate.Every(cooldown), 1),
	}
}

// Current returns the cached quote, or nil when none is valid to display.
func (e *Engine) Current() *schema.Quote {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// GetQuote fetches a fresh quote for the given inputs and caches it.
// When a newer request was initiated while this one was in flight, the stale
// result is discarded and not applied to the cache.
func (e *Engine) GetQuote(ctx context.Context, inputs Inputs) (*schema.Quote, error) {
	inputs = inputs.normalized()
	if err := validateInputs(inputs); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.seq++
	seq := e.seq
	e.mu.Unlock()

	started := e.clock()
	resp, err := e.source.FetchQuote(ctx, exchange.QuoteRequest{
		FromCurrency: inputs.FromCurrency,
		ToCurrency:   inputs.ToCurrency,
		Amount:       inputs.Amount,
		OrderType:    inputs.OrderType,
	})
	elapsed := e.clock().Sub(started)
	if err != nil {
		e.metrics.RecordQuoteFetch(ctx, inputs.FromCurrency, inputs.ToCurrency, telemetry.ResultError, elapsed)
		// A failed fetch must not leave a stale estimate on display.
		e.mu.Lock()
		if seq == e.seq {
			e.current = nil
		}
		e.mu.Unlock()
		e.logger.Warn("quote fetch failed",
			observability.F("from", inputs.FromCurrency),
			observability.F("to", inputs.ToCurrency),
			observability.F("error", err))
		return nil, errs.New("quote.fetch", errs.CodeExchange,
			errs.WithMessage("no quote available"), errs.WithCause(err))
	}
	e.metrics.RecordQuoteFetch(ctx, inputs.FromCurrency, inputs.ToCurrency, telemetry.ResultSuccess, elapsed)

	quote, err := buildQuote(inputs, resp, e.clock())
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if seq != e.seq {
		// A newer request was initiated; last-requested-wins.
		e.logger.Debug("discarding superseded quote result",
			observability.F("seq", seq),
			observability.F("latest", e.seq))
		return quote, nil
	}
	e.current = quote
	e.lastInputs = inputs
	e.lastFetched = quote.IssuedAt
	return quote, nil
}

// Recalculate applies the automatic recalculation policy: a fetch is issued
// on the first calculation, when any input changed, or when the throttle
// window elapsed since the last calculation. Otherwise the cached quote is
// returned untouched.
func (e *Engine) Recalculate(ctx context.Context, inputs Inputs) (*schema.Quote, error) {
	inputs = inputs.normalized()
	if err := validateInputs(inputs); err != nil {
		// Invalid inputs discard the cached quote; there is nothing to display.
		e.mu.Lock()
		e.current = nil
		e.mu.Unlock()
		return nil, err
	}

	e.mu.Lock()
	cached := e.current
	fresh := cached != nil &&
		inputs == e.lastInputs &&
		e.clock().Sub(e.lastFetched) < RecalcThrottle
	e.mu.Unlock()

	if fresh {
		return cached, nil
	}
	return e.GetQuote(ctx, inputs)
}

// ManualRefresh re-fetches the current inputs on user request, throttled to
// once per cooldown window. During cooldown it returns ErrRefreshCooldown
// and leaves the cache untouched.
func (e *Engine) ManualRefresh(ctx context.Context) (*schema.Quote, error) {
	e.mu.Lock()
	inputs := e.lastInputs
	e.mu.Unlock()
	if inputs.FromCurrency == "" || inputs.ToCurrency == "" || inputs.Amount == "" {
		return nil, errs.New("quote.refresh", errs.CodeInvalid,
			errs.WithMessage("nothing to refresh"))
	}
	if !e.refresh.Allow() {
		return nil, ErrRefreshCooldown
	}
	return e.GetQuote(ctx, inputs)
}

// Invalidate drops the cached quote, typically after it backed an order.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	e.current = nil
	e.mu.Unlock()
}

func validateInputs(inputs Inputs) error {
	if inputs.FromCurrency == "" || inputs.ToCurrency == "" {
		return errs.New("quote.fetch", errs.CodeInvalid,
			errs.WithMessage("currency pair required"))
	}
	amount, err := decimal.NewFromString(inputs.Amount)
	if err != nil {
		return errs.New("quote.fetch", errs.CodeInvalid,
			errs.WithMessage("amount must be a decimal number"), errs.WithCause(err))
	}
	if amount.Sign() <= 0 {
		return errs.New("quote.fetch", errs.CodeInvalid,
			errs.WithMessage("amount must be positive"))
	}
	return nil
}

func buildQuote(inputs Inputs, resp exchange.QuoteResponse, now time.Time) (*schema.Quote, error) {
	amount, err := decimal.NewFromString(inputs.Amount)
	if err != nil {
		return nil, errs.New("quote.fetch", errs.CodeInvalid,
			errs.WithMessage("amount must be a decimal number"), errs.WithCause(err))
	}
	rateValue, err := decimal.NewFromString(resp.Rate)
	if err != nil {
		return nil, errs.New("quote.fetch", errs.CodeExchange,
			errs.WithMessage("malformed rate"), errs.WithCause(err))
	}
	receive, err := decimal.NewFromString(resp.ToAmount)
	if err != nil {
		return nil, errs.New("quote.fetch", errs.CodeExchange,
			errs.WithMessage("malformed receive amount"), errs.WithCause(err))
	}
	minAmount, err := decimal.NewFromString(resp.MinAmount)
	if err != nil {
		return nil, errs.New("quote.fetch", errs.CodeExchange,
			errs.WithMessage("malformed minimum bound"), errs.WithCause(err))
	}
	maxAmount, err := decimal.NewFromString(resp.MaxAmount)
	if err != nil {
		return nil, errs.New("quote.fetch", errs.CodeExchange,
			errs.WithMessage("malformed maximum bound"), errs.WithCause(err))
	}
	return &schema.Quote{
		FromCurrency:  inputs.FromCurrency,
		ToCurrency:    inputs.ToCurrency,
		Amount:        amount,
		ReceiveAmount: receive,
		Rate:          rateValue,
		MinAmount:     minAmount,
		MaxAmount:     maxAmount,
		OrderType:     inputs.OrderType,
		IssuedAt:      now,
		ExpiresAt:     now.Add(schema.QuoteValidity),
	}, nil
}
