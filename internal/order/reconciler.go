package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/cryptoport/bridge/internal/domain/txstore"
	"github.com/cryptoport/bridge/internal/observability"
	"github.com/cryptoport/bridge/internal/schema"
	"github.com/cryptoport/bridge/internal/telemetry"
)

// Reconciler resolves disagreement between the live remote status and the
// durable transaction store, and persists completed orders exactly once.
type Reconciler struct {
	store   txstore.Store
	clock   func() time.Time
	logger  observability.Logger
	metrics *telemetry.BridgeMetrics
	runtime *observability.RuntimeMetrics
}

// NewReconciler constructs a reconciler over the given store.
func NewReconciler(store txstore.Store, clock func() time.Time, logger observability.Logger,
	metrics *telemetry.BridgeMetrics, runtime *observability.RuntimeMetrics) *Reconciler {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = observability.Log()
	}
	return &Reconciler{store: store, clock: clock, logger: logger, metrics: metrics, runtime: runtime}
}

// OnStatusObserved reacts to a freshly applied snapshot. For completed
// orders it persists a record at most once; for expired orders it checks the
// store for evidence that the backend actually fulfilled the order and, if
// so, trusts the durable record over the stale expired label.
func (r *Reconciler) OnStatusObserved(ctx context.Context, order *schema.Order) {
	if order == nil {
		return
	}
	switch order.CurrentStatus {
	case schema.StatusCompleted:
		r.persistCompleted(ctx, order)
	case schema.StatusExpired:
		r.reconcileExpired(ctx, order)
	default:
	}
}

func (r *Reconciler) persistCompleted(ctx context.Context, order *schema.Order) {
	if order.Saved {
		return
	}

	_, err := r.store.FindByOrderID(ctx, order.OrderID)
	switch {
	case err == nil:
		// Already persisted, possibly by a concurrent writer.
		order.Saved = true
		return
	case !errors.Is(err, txstore.ErrNotFound):
		r.logger.Warn("transaction lookup failed, save incomplete",
			observability.F("order_id", order.OrderID),
			observability.F("error", err))
		return
	}

	record := r.buildRecord(order)
	insertErr := r.store.Insert(ctx, record)
	if r.runtime != nil {
		r.runtime.RecordSaveAttempt(errors.Is(insertErr, txstore.ErrConflict))
	}
	switch {
	case insertErr == nil:
		order.Saved = true
		r.metrics.RecordPersistence(ctx, telemetry.ResultSuccess)
		r.logger.Info("completed transaction persisted",
			observability.F("order_id", order.OrderID))
	case errors.Is(insertErr, txstore.ErrConflict):
		// Another writer won the race; the record exists, which is all we need.
		order.Saved = true
		r.metrics.RecordPersistence(ctx, telemetry.ResultConflict)
	default:
		// Non-fatal: the order stays usable, the save is retried on the next
		// completed observation.
		r.metrics.RecordPersistence(ctx, telemetry.ResultError)
		r.logger.Warn("transaction persist failed, save incomplete",
			observability.F("order_id", order.OrderID),
			observability.F("error", insertErr))
	}
}

func (r *Reconciler) reconcileExpired(ctx context.Context, order *schema.Order) {
	record, err := r.store.FindByOrderID(ctx, order.OrderID)
	if err != nil {
		if !errors.Is(err, txstore.ErrNotFound) {
			r.logger.Warn("expired-order reconciliation lookup failed",
				observability.F("order_id", order.OrderID),
				observability.F("error", err))
		}
		// No durable evidence of completion; the expired label stands.
		return
	}
	if record.Status != string(schema.StatusCompleted) {
		return
	}

	// The backend fulfilled the order before the deposit window formally
	// expired; the durable record wins over the stale expired label.
	order.CurrentStatus = schema.StatusCompleted
	order.Saved = true
	if record.DepositAddress != "" {
		order.DepositAddress = record.DepositAddress
	}
	if record.DestinationAddress != "" {
		order.DestinationAddress = record.DestinationAddress
	}
	if record.DepositAmount != "" {
		order.DepositAmount = record.DepositAmount
	}
	if record.ReceiveAmount != "" {
		order.ReceiveAmount = record.ReceiveAmount
	}
	r.metrics.RecordTransition(ctx, string(schema.StatusCompleted),
		telemetry.AttrResult.String("reconciled_from_expired"))
	r.logger.Info("expired order reconciled to completed from durable record",
		observability.F("order_id", order.OrderID))
}

func (r *Reconciler) buildRecord(order *schema.Order) txstore.Record {
	var raw []byte
	if order.LastSnapshot != nil {
		raw = order.LastSnapshot.Raw
	}
	return txstore.Record{
		ID:                 uuid.NewString(),
		OrderID:            order.OrderID,
		OrderToken:         order.OrderToken,
		FromCurrency:       order.FromCurrency,
		ToCurrency:         order.ToCurrency,
		DepositAmount:      order.DepositAmount,
		ReceiveAmount:      order.ReceiveAmount,
		OrderType:          string(order.OrderType),
		DepositAddress:     order.DepositAddress,
		DestinationAddress: order.DestinationAddress,
		Tag:                order.Tag,
		Status:             string(schema.StatusCompleted),
		RawResponse:        raw,
		Metadata: map[string]any{
			"client":   "bridge-core",
			"saved_at": r.clock().UTC().Format(time.RFC3339),
		},
		CreatedAt: r.clock().Unix(),
	}
}
