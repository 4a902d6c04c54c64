package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// BridgeMetrics bundles the instruments recorded by the bridge core.
type BridgeMetrics struct {
	quoteFetches      metric.Int64Counter
	quoteDuration     metric.Float64Histogram
	pollsTotal        metric.Int64Counter
	pollDuration      metric.Float64Histogram
	transitionsTotal  metric.Int64Counter
	persistenceWrites metric.Int64Counter
}

// NewBridgeMetrics registers the bridge instruments on the provided meter.
func NewBridgeMetrics(meter metric.Meter) (*BridgeMetrics, error) {
	quoteFetches, err := meter.Int64Counter("quote.fetch.total",
		metric.WithDescription("Quote fetches issued against the exchange"),
		metric.WithUnit("{fetch}"))
	if err != nil {
		return nil, fmt.Errorf("register quote counter: %w", err)
	}
	quoteDuration, err := meter.Float64Histogram("quote.fetch.duration",
		metric.WithDescription("Quote fetch duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("register quote histogram: %w", err)
	}
	pollsTotal, err := meter.Int64Counter("order.poll.total",
		metric.WithDescription("Order status polls issued or skipped"),
		metric.WithUnit("{poll}"))
	if err != nil {
		return nil, fmt.Errorf("register poll counter: %w", err)
	}
	pollDuration, err := meter.Float64Histogram("order.poll.duration",
		metric.WithDescription("Order status poll duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("register poll histogram: %w", err)
	}
	transitionsTotal, err := meter.Int64Counter("order.transition.total",
		metric.WithDescription("Internal order status transitions observed"),
		metric.WithUnit("{transition}"))
	if err != nil {
		return nil, fmt.Errorf("register transition counter: %w", err)
	}
	persistenceWrites, err := meter.Int64Counter("transaction.persist.total",
		metric.WithDescription("Completed-transaction persistence attempts"),
		metric.WithUnit("{write}"))
	if err != nil {
		return nil, fmt.Errorf("register persistence counter: %w", err)
	}
	return &BridgeMetrics{
		quoteFetches:      quoteFetches,
		quoteDuration:     quoteDuration,
		pollsTotal:        pollsTotal,
		pollDuration:      pollDuration,
		transitionsTotal:  transitionsTotal,
		persistenceWrites: persistenceWrites,
	}, nil
}

// RecordQuoteFetch records one quote round-trip with its outcome.
func (m *BridgeMetrics) RecordQuoteFetch(ctx context.Context, from, to, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		AttrFromCurrency.String(from),
		AttrToCurrency.String(to),
		AttrResult.String(result),
		AttrEnvironment.String(Environment()),
	)
	m.quoteFetches.Add(ctx, 1, attrs)
	m.quoteDuration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}

// RecordPoll records one status poll with its outcome.
func (m *BridgeMetrics) RecordPoll(ctx context.Context, status, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		AttrOrderStatus.String(status),
		AttrResult.String(result),
		AttrEnvironment.String(Environment()),
	)
	m.pollsTotal.Add(ctx, 1, attrs)
	if result != ResultSkipped {
		m.pollDuration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	}
}

// RecordTransition records a status transition keyed by the new status.
func (m *BridgeMetrics) RecordTransition(ctx context.Context, status string, extra ...attribute.KeyValue) {
	if m == nil {
		return
	}
	attrs := append([]attribute.KeyValue{
		AttrOrderStatus.String(status),
		AttrEnvironment.String(Environment()),
	}, extra...)
	m.transitionsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPersistence records a persistence attempt outcome.
func (m *BridgeMetrics) RecordPersistence(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.persistenceWrites.Add(ctx, 1, metric.WithAttributes(
		AttrResult.String(result),
		AttrEnvironment.String(Environment()),
	))
}
