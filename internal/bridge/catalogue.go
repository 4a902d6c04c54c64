package bridge

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cryptoport/bridge/internal/observability"
	"github.com/cryptoport/bridge/internal/schema"
)

// CatalogueTTL is how long a fetched currency list is served from cache.
const CatalogueTTL = 10 * time.Minute

// CurrencySource fetches the exchange's currency catalogue.
type CurrencySource interface {
	FetchCurrencies(ctx context.Context) ([]schema.Currency, error)
}

// Catalogue caches the currency list and answers send/receive filtered views.
// The list changes rarely, so a stale copy is served while a refresh fails.
type Catalogue struct {
	source CurrencySource
	clock  func() time.Time
	logger observability.Logger

	mu        sync.Mutex
	entries   []schema.Currency
	fetchedAt time.Time
}

// NewCatalogue constructs a catalogue over the given source.
func NewCatalogue(source CurrencySource, clock func() time.Time, logger observability.Logger) *Catalogue {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = observability.Log()
	}
	return &Catalogue{source: source, clock: clock, logger: logger}
}

// Currencies returns the cached catalogue, refreshing it when the TTL lapsed.
// A failed refresh falls back to the previous copy when one exists.
func (c *Catalogue) Currencies(ctx context.Context) ([]schema.Currency, error) {
	c.mu.Lock()
	cached := c.entries
	age := c.clock().Sub(c.fetchedAt)
	c.mu.Unlock()

	if cached != nil && age < CatalogueTTL {
		return cached, nil
	}

	fresh, err := c.source.FetchCurrencies(ctx)
	if err != nil {
		if cached != nil {
			c.logger.Warn("currency refresh failed, serving cached catalogue",
				observability.F("error", err))
			return cached, nil
		}
		return nil, err
	}
	sort.Slice(fresh, func(i, j int) bool {
		if fresh[i].MinPriority != fresh[j].MinPriority {
			return fresh[i].MinPriority < fresh[j].MinPriority
		}
		return fresh[i].Code < fresh[j].Code
	})

	c.mu.Lock()
	c.entries = fresh
	c.fetchedAt = c.clock()
	c.mu.Unlock()
	return fresh, nil
}

// Sendable returns currencies usable on the deposit side.
func (c *Catalogue) Sendable(ctx context.Context) ([]schema.Currency, error) {
	return c.filtered(ctx, func(cur schema.Currency) bool { return cur.CanSend })
}

// Receivable returns currencies usable on the destination side.
func (c *Catalogue) Receivable(ctx context.Context) ([]schema.Currency, error) {
	return c.filtered(ctx, func(cur schema.Currency) bool { return cur.CanReceive })
}

// Lookup finds a currency by code, case-insensitively.
func (c *Catalogue) Lookup(ctx context.Context, code string) (schema.Currency, bool) {
	all, err := c.Currencies(ctx)
	if err != nil {
		return schema.Currency{}, false
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, cur := range all {
		if strings.ToUpper(cur.Code) == code {
			return cur, true
		}
	}
	return schema.Currency{}, false
}

func (c *Catalogue) filtered(ctx context.Context, keep func(schema.Currency) bool) ([]schema.Currency, error) {
	all, err := c.Currencies(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]schema.Currency, 0, len(all))
	for _, cur := range all {
		if keep(cur) {
			out = append(out, cur)
		}
	}
	return out, nil
}
