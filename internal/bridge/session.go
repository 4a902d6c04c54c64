// Package bridge wires the quote engine, order creator, status poller, and
// reconciler into a single user session with an event stream.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/cryptoport/bridge/errs"
	"github.com/cryptoport/bridge/internal/observability"
	"github.com/cryptoport/bridge/internal/order"
	"github.com/cryptoport/bridge/internal/quote"
	"github.com/cryptoport/bridge/internal/schema"
	"github.com/cryptoport/bridge/internal/telemetry"
)

// EventKind labels entries on the session event stream.
type EventKind string

const (
	// EventQuoteTick carries the remaining quote validity, once per second.
	EventQuoteTick EventKind = "quote.tick"
	// EventQuoteExpired fires once when the displayed quote crosses expiry.
	EventQuoteExpired EventKind = "quote.expired"
	// EventStatusChanged fires after a status observation is applied.
	EventStatusChanged EventKind = "order.status"
)

// Event is one entry on the session event stream. Order and Snapshot are
// detached copies safe to retain.
type Event struct {
	Kind             EventKind
	RemainingSeconds int
	Order            *schema.Order
	Snapshot         *schema.RemoteSnapshot
}

// ExchangeClient is the full remote surface the session needs.
type ExchangeClient interface {
	CurrencySource
	quote.PriceSource
	order.OrderPlacer
	order.StatusSource
}

// SessionOptions configures a bridging session.
type SessionOptions struct {
	Client     ExchangeClient
	Reconciler *order.Reconciler
	Clock      func() time.Time
	Logger     observability.Logger
	Metrics    *telemetry.BridgeMetrics
	Runtime    *observability.RuntimeMetrics
	// Debounce overrides the terminal settle window; zero keeps the default.
	Debounce time.Duration
	// RefreshCooldown overrides the manual quote refresh cooldown.
	RefreshCooldown time.Duration
	// EventBuffer sizes the event channel; zero means 16.
	EventBuffer int
}

// Session owns one user's bridging flow end to end. All methods are safe for
// concurrent use.
type Session struct {
	engine     *quote.Engine
	creator    *order.Creator
	catalogue  *Catalogue
	reconciler *order.Reconciler
	client     ExchangeClient
	clock      func() time.Time
	logger     observability.Logger
	metrics    *telemetry.BridgeMetrics
	runtime    *observability.RuntimeMetrics
	debounce   time.Duration

	events chan Event
	cancel context.CancelFunc
	wg     conc.WaitGroup

	mu       sync.Mutex
	poller   *order.Poller
	reserved bool
	closed   bool
}

// NewSession wires a session and starts its quote countdown loop.
func NewSession(ctx context.Context, opts SessionOptions) *Session {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.Log()
	}
	buffer := opts.EventBuffer
	if buffer <= 0 {
		buffer = 16
	}

	engine := quote.NewEngine(quote.Options{
		Source:          opts.Client,
		Clock:           clock,
		Logger:          logger,
		Metrics:         opts.Metrics,
		RefreshCooldown: opts.RefreshCooldown,
	})
	s := &Session{
		engine:     engine,
		creator:    order.NewCreator(opts.Client, engine, clock, logger),
		catalogue:  NewCatalogue(opts.Client, clock, logger),
		reconciler: opts.Reconciler,
		client:     opts.Client,
		clock:      clock,
		logger:     logger,
		metrics:    opts.Metrics,
		runtime:    opts.Runtime,
		debounce:   opts.Debounce,
		events:     make(chan Event, buffer),
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Go(func() { s.countdownLoop(loopCtx) })
	return s
}

// Events exposes the session event stream. Events are dropped, never blocked
// on, when the consumer falls behind.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Catalogue exposes the cached currency catalogue.
func (s *Session) Catalogue() *Catalogue {
	return s.catalogue
}

// Recalculate applies the automatic quote recalculation policy for the
// given inputs.
func (s *Session) Recalculate(ctx context.Context, inputs quote.Inputs) (*schema.Quote, error) {
	return s.engine.Recalculate(ctx, inputs)
}

// RefreshQuote re-fetches the current quote on explicit user request.
func (s *Session) RefreshQuote(ctx context.Context) (*schema.Quote, error) {
	return s.engine.ManualRefresh(ctx)
}

// CurrentQuote returns the quote on display, or nil.
func (s *Session) CurrentQuote() *schema.Quote {
	return s.engine.Current()
}

// PlaceOrder creates an order against the live quote and starts tracking its
// status. The backing quote is consumed; a new flow needs a fresh one. The
// tracking slot is claimed before the network call so concurrent placements
// cannot both proceed past the single-order gate.
func (s *Session) PlaceOrder(ctx context.Context, destination string) (*schema.Order, error) {
	if err := s.reserveSlot(); err != nil {
		return nil, err
	}

	placed, err := s.creator.Create(ctx, order.CreateRequest{DestinationAddress: destination})
	if err != nil {
		s.releaseSlot()
		return nil, err
	}
	s.engine.Invalidate()

	if err := s.track(ctx, placed); err != nil {
		return nil, err
	}
	return placed, nil
}

// Track starts status polling for an existing order, for example one restored
// from a saved transaction. The order must carry its id and token.
func (s *Session) Track(ctx context.Context, o *schema.Order) error {
	if err := s.reserveSlot(); err != nil {
		return err
	}
	return s.track(ctx, o)
}

// reserveSlot claims the single tracked-order slot. Exactly one flow holds it
// at a time, whether the poller is installed yet or not.
func (s *Session) reserveSlot() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.New("session.order", errs.CodeInvalid,
			errs.WithMessage("session closed"))
	}
	if s.poller != nil || s.reserved {
		return errs.New("session.order", errs.CodeInvalid,
			errs.WithMessage("an order is already being tracked"))
	}
	s.reserved = true
	return nil
}

func (s *Session) releaseSlot() {
	s.mu.Lock()
	s.reserved = false
	s.mu.Unlock()
}

// track installs and starts a poller for o. The caller must hold the slot
// reservation; track converts it into the installed poller or releases it.
func (s *Session) track(ctx context.Context, o *schema.Order) error {
	poller := order.NewPoller(order.PollerOptions{
		Source:   s.client,
		Order:    o,
		Clock:    s.clock,
		Logger:   s.logger,
		Metrics:  s.metrics,
		Runtime:  s.runtime,
		Debounce: s.debounce,
	})
	poller.Subscribe(func(ctx context.Context, observed *schema.Order, snapshot *schema.RemoteSnapshot) {
		if s.reconciler != nil {
			s.reconciler.OnStatusObserved(ctx, observed)
		}
		s.emit(Event{Kind: EventStatusChanged, Order: observed, Snapshot: snapshot})
	})

	s.mu.Lock()
	if s.closed {
		s.reserved = false
		s.mu.Unlock()
		return errs.New("session.order", errs.CodeInvalid,
			errs.WithMessage("session closed"))
	}
	s.poller = poller
	s.reserved = false
	s.mu.Unlock()

	if err := poller.Start(ctx); err != nil {
		s.mu.Lock()
		s.poller = nil
		s.mu.Unlock()
		return err
	}
	return nil
}

// ActiveOrder returns a copy of the tracked order, or nil when none is active.
func (s *Session) ActiveOrder() *schema.Order {
	s.mu.Lock()
	poller := s.poller
	s.mu.Unlock()
	if poller == nil {
		return nil
	}
	return poller.Order()
}

// ForceStatusCheck requests an immediate status check on the tracked order.
func (s *Session) ForceStatusCheck() {
	s.mu.Lock()
	poller := s.poller
	s.mu.Unlock()
	if poller != nil {
		poller.ForceCheck()
	}
}

// PreviewStatus projects the tracked order under a forced status. Display
// only; nothing is polled, persisted, or mutated.
func (s *Session) PreviewStatus(forced schema.OrderStatus) *schema.Order {
	return order.ApplyOverride(s.ActiveOrder(), forced)
}

// Release detaches from the tracked order so a new flow can start, stopping
// its poller first.
func (s *Session) Release() {
	s.mu.Lock()
	poller := s.poller
	s.poller = nil
	s.mu.Unlock()
	if poller != nil {
		poller.Stop()
	}
}

// Close tears the session down: countdown loop, active poller, event stream.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.Release()
	s.wg.Wait()
	close(s.events)
}

// countdownLoop publishes the remaining quote validity once per second and a
// single expiry event when a displayed quote crosses its deadline.
func (s *Session) countdownLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var announced time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		current := s.engine.Current()
		if current == nil {
			continue
		}
		remaining := current.Remaining(s.clock())
		s.emit(Event{
			Kind:             EventQuoteTick,
			RemainingSeconds: int(remaining / time.Second),
		})
		if remaining == 0 && !current.ExpiresAt.Equal(announced) {
			announced = current.ExpiresAt
			s.emit(Event{Kind: EventQuoteExpired})
			s.logger.Debug("displayed quote expired",
				observability.F("pair", current.FromCurrency+"/"+current.ToCurrency))
		}
	}
}

func (s *Session) emit(event Event) {
	select {
	case s.events <- event:
	default:
		// Slow consumers lose advisory events rather than stalling the flow.
	}
}
