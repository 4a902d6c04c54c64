package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cryptoport/bridge/internal/schema"
)

type fakeCurrencySource struct {
	mu    sync.Mutex
	calls int
	list  []schema.Currency
	err   error
}

func (s *fakeCurrencySource) FetchCurrencies(ctx context.Context) ([]schema.Currency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.list, nil
}

func testCurrencies() []schema.Currency {
	return []schema.Currency{
		{Code: "ETH", Name: "Ethereum", CanSend: true, CanReceive: true, MinPriority: 2},
		{Code: "BTC", Name: "Bitcoin", CanSend: true, CanReceive: true, MinPriority: 1},
		{Code: "XMR", Name: "Monero", CanSend: true, CanReceive: false, MinPriority: 3},
	}
}

func TestCatalogueCachesWithinTTL(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	clock := now
	source := &fakeCurrencySource{list: testCurrencies()}
	catalogue := NewCatalogue(source, func() time.Time { return clock }, nil)
	ctx := context.Background()

	first, err := catalogue.Currencies(ctx)
	if err != nil {
		t.Fatalf("currencies: %v", err)
	}
	if first[0].Code != "BTC" {
		t.Fatalf("catalogue not priority sorted: %q first", first[0].Code)
	}

	clock = now.Add(CatalogueTTL / 2)
	if _, err := catalogue.Currencies(ctx); err != nil {
		t.Fatalf("cached currencies: %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("calls = %d, want cache hit", source.calls)
	}

	clock = now.Add(CatalogueTTL + time.Second)
	if _, err := catalogue.Currencies(ctx); err != nil {
		t.Fatalf("refreshed currencies: %v", err)
	}
	if source.calls != 2 {
		t.Fatalf("calls = %d, want refresh", source.calls)
	}
}

func TestCatalogueServesStaleOnFailure(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	clock := now
	source := &fakeCurrencySource{list: testCurrencies()}
	catalogue := NewCatalogue(source, func() time.Time { return clock }, nil)
	ctx := context.Background()

	if _, err := catalogue.Currencies(ctx); err != nil {
		t.Fatalf("currencies: %v", err)
	}

	source.mu.Lock()
	source.err = errors.New("remote unavailable")
	source.mu.Unlock()
	clock = now.Add(CatalogueTTL + time.Second)

	stale, err := catalogue.Currencies(ctx)
	if err != nil {
		t.Fatalf("stale fallback failed: %v", err)
	}
	if len(stale) != 3 {
		t.Fatalf("stale list length = %d", len(stale))
	}
}

func TestCatalogueFirstFetchFailure(t *testing.T) {
	source := &fakeCurrencySource{err: errors.New("remote unavailable")}
	catalogue := NewCatalogue(source, nil, nil)
	if _, err := catalogue.Currencies(context.Background()); err == nil {
		t.Fatalf("expected error without a cached copy")
	}
}

func TestCatalogueFilters(t *testing.T) {
	catalogue := NewCatalogue(&fakeCurrencySource{list: testCurrencies()}, nil, nil)
	ctx := context.Background()

	receivable, err := catalogue.Receivable(ctx)
	if err != nil {
		t.Fatalf("receivable: %v", err)
	}
	for _, cur := range receivable {
		if cur.Code == "XMR" {
			t.Fatalf("XMR must not be receivable")
		}
	}

	if _, ok := catalogue.Lookup(ctx, "btc"); !ok {
		t.Fatalf("case-insensitive lookup failed")
	}
	if _, ok := catalogue.Lookup(ctx, "DOGE"); ok {
		t.Fatalf("unknown code resolved")
	}
}
