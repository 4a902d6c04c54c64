package quote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cryptoport/bridge/errs"
	"github.com/cryptoport/bridge/internal/infra/exchange"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakePriceSource struct {
	mu    sync.Mutex
	calls int
	resp  exchange.QuoteResponse
	err   error
}

func (s *fakePriceSource) FetchQuote(ctx context.Context, req exchange.QuoteRequest) (exchange.QuoteResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.resp, s.err
}

func (s *fakePriceSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func goodResponse() exchange.QuoteResponse {
	return exchange.QuoteResponse{
		Rate:      "15.5",
		ToAmount:  "15.5",
		MinAmount: "0.01",
		MaxAmount: "10",
	}
}

func btcEth(amount string) Inputs {
	return Inputs{FromCurrency: "BTC", ToCurrency: "ETH", Amount: amount}
}

func TestGetQuoteSetsExpiryWindow(t *testing.T) {
	clock := newFakeClock()
	source := &fakePriceSource{resp: goodResponse()}
	engine := NewEngine(Options{Source: source, Clock: clock.Now})

	quoted, err := engine.GetQuote(context.Background(), btcEth("1"))
	if err != nil {
		t.Fatalf("get quote: %v", err)
	}
	if !quoted.Valid(clock.Now().Add(119 * time.Second)) {
		t.Fatalf("quote should be valid just inside the window")
	}
	if quoted.Valid(clock.Now().Add(120 * time.Second)) {
		t.Fatalf("quote should be invalid at the window boundary")
	}
	if !quoted.Rate.Equal(decimal.RequireFromString("15.5")) {
		t.Fatalf("rate = %s", quoted.Rate)
	}
}

func TestRecalculateThrottlesUnchangedInputs(t *testing.T) {
	clock := newFakeClock()
	source := &fakePriceSource{resp: goodResponse()}
	engine := NewEngine(Options{Source: source, Clock: clock.Now})
	ctx := context.Background()

	// First calculation always fetches.
	if _, err := engine.Recalculate(ctx, btcEth("1")); err != nil {
		t.Fatalf("first recalculate: %v", err)
	}
	if source.callCount() != 1 {
		t.Fatalf("calls after first = %d", source.callCount())
	}

	// Unchanged inputs inside the throttle window are served from cache.
	clock.Advance(30 * time.Second)
	if _, err := engine.Recalculate(ctx, btcEth("1")); err != nil {
		t.Fatalf("cached recalculate: %v", err)
	}
	if source.callCount() != 1 {
		t.Fatalf("calls after cached = %d", source.callCount())
	}

	// A changed amount fetches immediately.
	if _, err := engine.Recalculate(ctx, btcEth("2")); err != nil {
		t.Fatalf("changed recalculate: %v", err)
	}
	if source.callCount() != 2 {
		t.Fatalf("calls after change = %d", source.callCount())
	}

	// Elapsing the throttle window fetches again for unchanged inputs.
	clock.Advance(RecalcThrottle)
	if _, err := engine.Recalculate(ctx, btcEth("2")); err != nil {
		t.Fatalf("elapsed recalculate: %v", err)
	}
	if source.callCount() != 3 {
		t.Fatalf("calls after elapse = %d", source.callCount())
	}
}

func TestFailedFetchClearsCache(t *testing.T) {
	clock := newFakeClock()
	source := &fakePriceSource{resp: goodResponse()}
	engine := NewEngine(Options{Source: source, Clock: clock.Now})
	ctx := context.Background()

	if _, err := engine.GetQuote(ctx, btcEth("1")); err != nil {
		t.Fatalf("get quote: %v", err)
	}
	if engine.Current() == nil {
		t.Fatalf("expected cached quote")
	}

	source.mu.Lock()
	source.err = errors.New("boom")
	source.mu.Unlock()

	_, err := engine.GetQuote(ctx, btcEth("1"))
	if err == nil {
		t.Fatalf("expected fetch error")
	}
	if errs.CodeOf(err) != errs.CodeExchange {
		t.Fatalf("code = %q", errs.CodeOf(err))
	}
	if engine.Current() != nil {
		t.Fatalf("failed fetch must clear the cached quote")
	}
}

// gatedSource holds each fetch until its amount-keyed gate is released, so
// tests can interleave overlapping requests deterministically.
type gatedSource struct {
	resp    exchange.QuoteResponse
	gates   map[string]chan struct{}
	entered chan string
}

func (s *gatedSource) FetchQuote(ctx context.Context, req exchange.QuoteRequest) (exchange.QuoteResponse, error) {
	s.entered <- req.Amount
	if gate, ok := s.gates[req.Amount]; ok {
		<-gate
	}
	return s.resp, nil
}

func TestLastRequestedWins(t *testing.T) {
	clock := newFakeClock()
	source := &gatedSource{
		resp: goodResponse(),
		gates: map[string]chan struct{}{
			"1": make(chan struct{}),
			"2": make(chan struct{}),
		},
		entered: make(chan string, 2),
	}
	engine := NewEngine(Options{Source: source, Clock: clock.Now})
	ctx := context.Background()

	firstDone := make(chan error, 1)
	go func() {
		_, err := engine.GetQuote(ctx, btcEth("1"))
		firstDone <- err
	}()
	<-source.entered

	// A second request starts while the first is still in flight.
	secondDone := make(chan error, 1)
	go func() {
		_, err := engine.GetQuote(ctx, btcEth("2"))
		secondDone <- err
	}()
	<-source.entered

	// Let the second finish first, then release the stale first response.
	close(source.gates["2"])
	if err := <-secondDone; err != nil {
		t.Fatalf("second quote: %v", err)
	}
	close(source.gates["1"])
	if err := <-firstDone; err != nil {
		t.Fatalf("first quote: %v", err)
	}

	current := engine.Current()
	if current == nil {
		t.Fatalf("expected cached quote")
	}
	if !current.Amount.Equal(decimal.RequireFromString("2")) {
		t.Fatalf("cache holds amount %s, want the later request", current.Amount)
	}
}

func TestManualRefreshCooldown(t *testing.T) {
	clock := newFakeClock()
	source := &fakePriceSource{resp: goodResponse()}
	engine := NewEngine(Options{Source: source, Clock: clock.Now, RefreshCooldown: time.Hour})
	ctx := context.Background()

	if _, err := engine.GetQuote(ctx, btcEth("1")); err != nil {
		t.Fatalf("get quote: %v", err)
	}

	// The first manual refresh consumes the cooldown token.
	if _, err := engine.ManualRefresh(ctx); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	_, err := engine.ManualRefresh(ctx)
	if !errors.Is(err, ErrRefreshCooldown) {
		t.Fatalf("second refresh err = %v, want cooldown", err)
	}
	// The cached quote survives the rejected refresh.
	if engine.Current() == nil {
		t.Fatalf("cooldown rejection must not clear the cache")
	}
}

func TestManualRefreshWithoutInputs(t *testing.T) {
	engine := NewEngine(Options{Source: &fakePriceSource{resp: goodResponse()}})
	if _, err := engine.ManualRefresh(context.Background()); err == nil {
		t.Fatalf("expected error with nothing to refresh")
	}
}

func TestRecalculateInvalidInputsClearsCache(t *testing.T) {
	clock := newFakeClock()
	source := &fakePriceSource{resp: goodResponse()}
	engine := NewEngine(Options{Source: source, Clock: clock.Now})
	ctx := context.Background()

	if _, err := engine.Recalculate(ctx, btcEth("1")); err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if _, err := engine.Recalculate(ctx, btcEth("not-a-number")); err == nil {
		t.Fatalf("expected validation error")
	}
	if engine.Current() != nil {
		t.Fatalf("invalid inputs must clear the cached quote")
	}
	if _, err := engine.Recalculate(ctx, btcEth("-1")); err == nil {
		t.Fatalf("expected validation error for negative amount")
	}
}
