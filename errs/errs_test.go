package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormattingIncludesCanonicalAndRawFields(t *testing.T) {
	err := New(
		"order.create",
		CodeExchange,
		WithHTTP(400),
		WithMessage("transaction failed"),
		WithRawCode("INVALID_ADDRESS"),
		WithRawMessage("address is not valid for network ETH"),
		WithCanonicalCode(CanonicalInvalidAddress),
		WithCause(errors.New("exchange http 400")),
	)

	out := err.Error()
	if !strings.Contains(out, "op=order.create") {
		t.Fatalf("expected op marker in error string: %s", out)
	}
	if !strings.Contains(out, "code=exchange_error") {
		t.Fatalf("expected code in error string: %s", out)
	}
	if !strings.Contains(out, "canonical=invalid_address") {
		t.Fatalf("expected canonical classification in error string: %s", out)
	}
	if !strings.Contains(out, "raw_code=\"INVALID_ADDRESS\"") {
		t.Fatalf("expected raw code in error string: %s", out)
	}
	if !strings.Contains(out, "cause=\"exchange http 400\"") {
		t.Fatalf("expected wrapped cause in error string: %s", out)
	}
}

func TestWithCanonicalCodeEmptyDefaultsToUnknown(t *testing.T) {
	err := New("quote.fetch", CodeInvalid, WithCanonicalCode("   "))
	if err.Canonical != CanonicalUnknown {
		t.Fatalf("expected canonical code to default to unknown, got %q", err.Canonical)
	}
	if strings.Contains(err.Error(), "canonical=") {
		t.Fatalf("canonical marker should be omitted when code is unknown: %s", err.Error())
	}
}

func TestCodeOfUnwrapsNestedEnvelope(t *testing.T) {
	inner := New("status.check", CodeNetwork, WithMessage("timeout"))
	wrapped := fmt.Errorf("poll attempt 3: %w", inner)

	if got := CodeOf(wrapped); got != CodeNetwork {
		t.Fatalf("expected network code, got %q", got)
	}
	if !IsTransient(wrapped) {
		t.Fatal("network failure should be transient")
	}
	if IsTransient(errors.New("plain")) {
		t.Fatal("plain errors must not be treated as transient")
	}
}

func TestPredicates(t *testing.T) {
	if !IsConflict(New("tx.insert", CodeConflict)) {
		t.Fatal("expected conflict predicate to match")
	}
	if !IsQuoteExpired(New("order.create", CodeQuoteExpired)) {
		t.Fatal("expected quote-expired predicate to match")
	}
	if IsConflict(New("tx.insert", CodeExchange)) {
		t.Fatal("exchange errors are not conflicts")
	}
}
