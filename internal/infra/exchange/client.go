// Package exchange implements the REST client for the remote bridging exchange.
package exchange

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"

	"github.com/cryptoport/bridge/errs"
	"github.com/cryptoport/bridge/internal/observability"
	"github.com/cryptoport/bridge/internal/schema"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultMaxAttempts = 4
	maxRetryInterval   = 5 * time.Second
)

// Options configures the exchange client.
type Options struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MaxAttempts int
	Logger      observability.Logger
}

func withDefaults(opts Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Logger == nil {
		opts.Logger = observability.Log()
	}
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	return opts
}

// Client talks to the remote exchange API over HTTP.
type Client struct {
	opts   Options
	client *http.Client
}

// NewClient constructs an exchange client with the provided options.
func NewClient(opts Options) *Client {
	opts = withDefaults(opts)
	httpClient := new(http.Client)
	httpClient.Timeout = opts.Timeout
	return &Client{opts: opts, client: httpClient}
}

// FetchCurrencies retrieves the currency catalogue.
func (c *Client) FetchCurrencies(ctx context.Context) ([]schema.Currency, error) {
	raw, err := c.call(ctx, "currencies.fetch", http.MethodGet, "/v1/currencies", nil)
	if err != nil {
		return nil, err
	}
	var dtos []currencyDTO
	if err := json.Unmarshal(raw, &dtos); err != nil {
		return nil, errs.New("currencies.fetch", errs.CodeExchange,
			errs.WithMessage("malformed currency catalogue"), errs.WithCause(err))
	}
	currencies := make([]schema.Currency, 0, len(dtos))
	for _, dto := range dtos {
		currencies = append(currencies, schema.Currency{
			Code:        dto.Code,
			Name:        dto.Name,
			Network:     dto.Network,
			CanSend:     dto.Send,
			CanReceive:  dto.Recv,
			MinPriority: dto.Priority,
		})
	}
	return currencies, nil
}

// FetchQuote prices a currency pair and amount.
func (c *Client) FetchQuote(ctx context.Context, req QuoteRequest) (QuoteResponse, error) {
	var out QuoteResponse
	raw, err := c.call(ctx, "quote.fetch", http.MethodPost, "/v1/quote", req)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, errs.New("quote.fetch", errs.CodeExchange,
			errs.WithMessage("malformed quote response"), errs.WithCause(err))
	}
	return out, nil
}

// CreateOrder submits a new bridging order.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (CreateOrderResponse, error) {
	var out CreateOrderResponse
	raw, err := c.call(ctx, "order.create", http.MethodPost, "/v1/order", req)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, errs.New("order.create", errs.CodeExchange,
			errs.WithMessage("malformed order response"), errs.WithCause(err))
	}
	return out, nil
}

// FetchOrderStatus retrieves one status observation for an order.
func (c *Client) FetchOrderStatus(ctx context.Context, req StatusRequest) (*schema.RemoteSnapshot, error) {
	raw, err := c.call(ctx, "status.check", http.MethodPost, "/v1/order/status", req)
	if err != nil {
		return nil, err
	}
	var wire statusResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, errs.New("status.check", errs.CodeExchange,
			errs.WithMessage("malformed status response"), errs.WithCause(err))
	}
	snapshot := &schema.RemoteSnapshot{
		Status:           schema.RemoteStatus(wire.Status),
		FromAddress:      wire.From.Address,
		FromAmount:       wire.From.Amount,
		FromTag:          wire.From.Tag,
		ToAddress:        wire.To.Address,
		ToAmount:         wire.To.Amount,
		CreatedAt:        time.Unix(wire.CreatedAt, 0).UTC(),
		UpdatedAt:        time.Unix(wire.UpdatedAt, 0).UTC(),
		EmergencyReasons: wire.Emergency.Status,
		Raw:              raw,
	}
	return snapshot, nil
}

// call performs one logical API request, retrying transient transport
// failures with exponential backoff and jitter up to MaxAttempts.
func (c *Client) call(ctx context.Context, op, method, endpoint string, payload any) (json.RawMessage, error) {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.MaxInterval = maxRetryInterval

	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		raw, err := c.doOnce(ctx, op, method, endpoint, payload)
		if err == nil {
			return raw, nil
		}
		if !errs.IsTransient(err) {
			return nil, err
		}
		lastErr = err
		if attempt == c.opts.MaxAttempts {
			break
		}
		sleep := backoffCfg.NextBackOff()
		if sleep == backoff.Stop {
			sleep = maxRetryInterval
		}
		c.opts.Logger.Debug("retrying exchange call",
			observability.F("op", op),
			observability.F("attempt", attempt),
			observability.F("sleep", sleep.String()))
		select {
		case <-ctx.Done():
			return nil, errs.New(op, errs.CodeNetwork,
				errs.WithMessage("request cancelled"), errs.WithCause(ctx.Err()))
		case <-time.After(sleep):
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, op, method, endpoint string, payload any) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, errs.New(op, errs.CodeInvalid,
				errs.WithMessage("encode request"), errs.WithCause(err))
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+endpoint, body)
	if err != nil {
		return nil, errs.New(op, errs.CodeInvalid,
			errs.WithMessage("create request"), errs.WithCause(err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("X-API-KEY", c.opts.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		code := errs.CodeNetwork
		if errors.Is(err, context.Canceled) {
			return nil, errs.New(op, errs.CodeNetwork,
				errs.WithMessage("request cancelled"), errs.WithCause(err))
		}
		return nil, errs.New(op, code,
			errs.WithMessage("request failed"), errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New(op, errs.CodeNetwork,
			errs.WithMessage("read response"), errs.WithCause(err))
	}

	if resp.StatusCode >= 500 {
		return nil, errs.New(op, errs.CodeUnavailable,
			errs.WithHTTP(resp.StatusCode),
			errs.WithMessage(fmt.Sprintf("exchange unavailable (%d)", resp.StatusCode)))
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errs.New(op, errs.CodeUnavailable,
			errs.WithHTTP(resp.StatusCode),
			errs.WithCanonicalCode(errs.CanonicalRateLimited),
			errs.WithMessage("exchange rate limited"))
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, errs.New(op, errs.CodeExchange,
			errs.WithHTTP(resp.StatusCode),
			errs.WithMessage("malformed response envelope"), errs.WithCause(err))
	}

	if resp.StatusCode >= 400 || isErrorCode(envelope.Code) {
		return nil, apiError(op, resp.StatusCode, envelope)
	}
	return envelope.Data, nil
}

func isErrorCode(code string) bool {
	trimmed := strings.TrimSpace(code)
	return trimmed != "" && trimmed != "0" && !strings.EqualFold(trimmed, "ok")
}

// apiError maps known remote error codes onto targeted canonical categories;
// anything unrecognized falls back to a generic exchange error carrying the
// remote message text.
func apiError(op string, status int, envelope apiEnvelope) error {
	opts := []errs.Option{
		errs.WithHTTP(status),
		errs.WithRawCode(envelope.Code),
		errs.WithRawMessage(envelope.Message),
	}
	switch strings.ToUpper(strings.TrimSpace(envelope.Code)) {
	case "INVALID_ADDRESS", "ADDRESS_INVALID":
		opts = append(opts,
			errs.WithCanonicalCode(errs.CanonicalInvalidAddress),
			errs.WithMessage("destination address is not valid for the selected network"))
	case "ORDER_NOT_FOUND", "NOT_FOUND":
		opts = append(opts,
			errs.WithCanonicalCode(errs.CanonicalOrderNotFound),
			errs.WithMessage("order not found"))
		return errs.New(op, errs.CodeNotFound, opts...)
	case "MIN_AMOUNT":
		opts = append(opts,
			errs.WithCanonicalCode(errs.CanonicalBelowMinimum),
			errs.WithMessage("amount is below the allowed minimum"))
	case "MAX_AMOUNT":
		opts = append(opts,
			errs.WithCanonicalCode(errs.CanonicalAboveMaximum),
			errs.WithMessage("amount is above the allowed maximum"))
	default:
		opts = append(opts, errs.WithMessage("transaction failed"))
	}
	return errs.New(op, errs.CodeExchange, opts...)
}
