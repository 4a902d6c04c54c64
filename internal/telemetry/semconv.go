package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic convention attribute keys for bridge-specific telemetry.
// Following OpenTelemetry naming conventions: namespace.attribute_name

const (
	// AttrFromCurrency labels metrics with the source-side currency code.
	AttrFromCurrency = attribute.Key("currency.from")
	// AttrToCurrency labels metrics with the destination-side currency code.
	AttrToCurrency = attribute.Key("currency.to")
	// AttrOrderType distinguishes fixed vs float orders.
	AttrOrderType = attribute.Key("order.type")
	// AttrOrderStatus captures the internal lifecycle status observed.
	AttrOrderStatus = attribute.Key("order.status")
	// AttrRemoteStatus captures the raw status string from the exchange.
	AttrRemoteStatus = attribute.Key("order.remote_status")
	// AttrOperation differentiates specific remote operations (quote.fetch, order.create, status.check).
	AttrOperation = attribute.Key("operation")
	// AttrResult records the outcome of an operation (success, error class, conflict, skipped).
	AttrResult = attribute.Key("result")
	// AttrEnvironment specifies the deployment environment for every metric.
	AttrEnvironment = attribute.Key("environment")
	// AttrErrorType categorizes failures by bridge error code.
	AttrErrorType = attribute.Key("error.type")
)

// Result values
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultConflict = "conflict"
	ResultSkipped  = "skipped"
)
