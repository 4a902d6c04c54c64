package order

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/cryptoport/bridge/errs"
	"github.com/cryptoport/bridge/internal/infra/exchange"
	"github.com/cryptoport/bridge/internal/observability"
	"github.com/cryptoport/bridge/internal/schema"
	"github.com/cryptoport/bridge/internal/telemetry"
)

// TerminalDebounce is the grace window between observing a terminal status
// and tearing the poller down, so one last observer action can run.
const TerminalDebounce = 400 * time.Millisecond

// StatusSource fetches status observations from the remote exchange.
type StatusSource interface {
	FetchOrderStatus(ctx context.Context, req exchange.StatusRequest) (*schema.RemoteSnapshot, error)
}

// Observer is notified after each snapshot is applied to the order. The
// order argument is a copy; mutations to it do not reach the poller.
type Observer func(ctx context.Context, order *schema.Order, snapshot *schema.RemoteSnapshot)

// PollerOptions configures a status poller.
type PollerOptions struct {
	Source   StatusSource
	Order    *schema.Order
	Clock    func() time.Time
	Logger   observability.Logger
	Metrics  *telemetry.BridgeMetrics
	Runtime  *observability.RuntimeMetrics
	Debounce time.Duration
}

// Poller drives the order status state machine: it checks the remote status
// at a status-dependent interval, applies observations to the order, and
// stops once a terminal status (plus its debounce window) is reached.
type Poller struct {
	source   StatusSource
	clock    func() time.Time
	logger   observability.Logger
	metrics  *telemetry.BridgeMetrics
	runtime  *observability.RuntimeMetrics
	debounce time.Duration

	mu        sync.Mutex
	order     *schema.Order
	observers []Observer
	inFlight  bool
	lastCheck time.Time
	started   bool

	cancel context.CancelFunc
	force  chan struct{}
	done   chan struct{}
	wg     conc.WaitGroup
}

// NewPoller constructs a poller for the given order.
func NewPoller(opts PollerOptions) *Poller {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = observability.Log()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = TerminalDebounce
	}
	return &Poller{
		source:   opts.Source,
		clock:    clock,
		logger:   logger,
		metrics:  opts.Metrics,
		runtime:  opts.Runtime,
		debounce: debounce,
		order:    opts.Order,
		force:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Subscribe registers an observer for applied snapshots. Must be called
// before Start.
func (p *Poller) Subscribe(observer Observer) {
	if observer == nil {
		return
	}
	p.mu.Lock()
	p.observers = append(p.observers, observer)
	p.mu.Unlock()
}

// Order returns a copy of the order as last observed.
func (p *Poller) Order() *schema.Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.order.Clone()
}

// Start launches the polling loop. It returns immediately; the loop runs
// until a terminal status settles or the context is cancelled.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return errs.New("status.poll", errs.CodeInvalid,
			errs.WithMessage("poller already started"))
	}
	if p.order == nil || strings.TrimSpace(p.order.OrderID) == "" || strings.TrimSpace(p.order.OrderToken) == "" {
		p.mu.Unlock()
		return errs.New("status.poll", errs.CodeInvalid,
			errs.WithMessage("order id and token required"))
	}
	p.started = true
	p.mu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Go(func() {
		defer close(p.done)
		p.loop(loopCtx)
	})
	return nil
}

// ForceCheck requests an immediate status check, bypassing the interval gate
// (but not the in-flight gate). Safe to call from any goroutine.
func (p *Poller) ForceCheck() {
	select {
	case p.force <- struct{}{}:
	default:
	}
}

// Stop tears the poller down and waits for the loop to exit.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Done is closed once the loop has fully exited.
func (p *Poller) Done() <-chan struct{} {
	return p.done
}

func (p *Poller) loop(ctx context.Context) {
	// First check runs immediately so the UI is never blank for a full interval.
	p.checkOnce(ctx, true)

	for {
		p.mu.Lock()
		status := p.order.CurrentStatus
		p.mu.Unlock()

		if status.Terminal() {
			p.settleTerminal(ctx, status)
			return
		}

		interval := status.PollInterval()
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.force:
			timer.Stop()
			p.checkOnce(ctx, true)
		case <-timer.C:
			p.checkOnce(ctx, false)
		}
	}
}

// settleTerminal holds the debounce window, honouring one final forced check
// so a last observer action can still see the terminal state before teardown.
func (p *Poller) settleTerminal(ctx context.Context, status schema.OrderStatus) {
	if p.runtime != nil {
		p.runtime.RecordTerminal(string(status))
		p.runtime.Publish(observability.Telemetry())
	}
	p.metrics.RecordTransition(ctx, string(status))
	p.logger.Info("order reached terminal status",
		observability.F("order_id", p.orderID()),
		observability.F("status", status))

	timer := time.NewTimer(p.debounce)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-p.force:
		p.checkOnce(ctx, true)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	case <-timer.C:
	}
}

// checkOnce performs one gated status check. Polls arriving while a previous
// one is in flight, or before the status interval elapsed, are skipped
// outright unless forced.
func (p *Poller) checkOnce(ctx context.Context, forced bool) {
	p.mu.Lock()
	status := p.order.CurrentStatus
	interval := status.PollInterval()
	now := p.clock()
	if p.inFlight || (!forced && !p.lastCheck.IsZero() && now.Sub(p.lastCheck) < interval) {
		p.mu.Unlock()
		if p.runtime != nil {
			p.runtime.RecordPollSkipped(string(status))
		}
		p.metrics.RecordPoll(ctx, string(status), telemetry.ResultSkipped, 0)
		return
	}
	p.inFlight = true
	p.lastCheck = now
	req := exchange.StatusRequest{OrderID: p.order.OrderID, OrderToken: p.order.OrderToken}
	p.mu.Unlock()

	if p.runtime != nil {
		p.runtime.RecordPollIssued(string(status))
	}

	started := p.clock()
	snapshot, err := p.source.FetchOrderStatus(ctx, req)
	elapsed := p.clock().Sub(started)

	p.mu.Lock()
	p.inFlight = false
	p.mu.Unlock()

	if err != nil {
		// A failed check never downgrades the order; keep last-known-good.
		p.metrics.RecordPoll(ctx, string(status), telemetry.ResultError, elapsed)
		observability.Telemetry().IncCounter("bridge_poll_errors", 1, map[string]string{"status": string(status)})
		p.logger.Warn("status check failed",
			observability.F("order_id", req.OrderID),
			observability.F("error", err))
		return
	}
	p.metrics.RecordPoll(ctx, string(status), telemetry.ResultSuccess, elapsed)
	observability.Telemetry().ObserveHistogram("bridge_poll_duration_ms",
		float64(elapsed.Milliseconds()), map[string]string{"status": string(status)})

	p.mu.Lock()
	previous := p.order.CurrentStatus
	applied := p.order.ApplySnapshot(snapshot)
	orderCopy := p.order.Clone()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.Unlock()

	if applied != previous {
		p.metrics.RecordTransition(ctx, string(applied),
			telemetry.AttrRemoteStatus.String(string(snapshot.Status)))
		p.logger.Debug("order status changed",
			observability.F("order_id", req.OrderID),
			observability.F("from", previous),
			observability.F("to", applied))
	}

	for _, observer := range observers {
		observer(ctx, orderCopy, snapshot)
	}

	// Reconciliation may have rewritten the terminal label (expired orders
	// that actually completed); fold that back into the canonical order.
	p.mu.Lock()
	if orderCopy.CurrentStatus != p.order.CurrentStatus || orderCopy.Saved != p.order.Saved {
		p.order.CurrentStatus = orderCopy.CurrentStatus
		p.order.Saved = orderCopy.Saved
		p.order.DepositAddress = orderCopy.DepositAddress
		p.order.DepositAmount = orderCopy.DepositAmount
		p.order.ReceiveAmount = orderCopy.ReceiveAmount
		p.order.DestinationAddress = orderCopy.DestinationAddress
	}
	p.mu.Unlock()
}

func (p *Poller) orderID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.order.OrderID
}
