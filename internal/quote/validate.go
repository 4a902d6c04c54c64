package quote

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cryptoport/bridge/errs"
	"github.com/cryptoport/bridge/internal/schema"
)

// ValidateAmount checks amount against the quote's source-side bounds.
// A nil quote passes trivially: there is nothing to check against yet.
// Bound violations carry the numeric bound and currency code so callers can
// render the message directly. Validation never triggers a quote fetch.
func ValidateAmount(amount decimal.Decimal, quote *schema.Quote) error {
	if quote == nil {
		return nil
	}
	if amount.LessThan(quote.MinAmount) {
		return errs.New("amount.validate", errs.CodeInvalid,
			errs.WithCanonicalCode(errs.CanonicalBelowMinimum),
			errs.WithMessage(fmt.Sprintf("amount %s is below the minimum of %s %s",
				amount, quote.MinAmount, quote.FromCurrency)))
	}
	if amount.GreaterThan(quote.MaxAmount) {
		return errs.New("amount.validate", errs.CodeInvalid,
			errs.WithCanonicalCode(errs.CanonicalAboveMaximum),
			errs.WithMessage(fmt.Sprintf("amount %s is above the maximum of %s %s",
				amount, quote.MaxAmount, quote.FromCurrency)))
	}
	return nil
}

// ValidateAmountString parses amount then delegates to ValidateAmount.
func ValidateAmountString(amount string, quote *schema.Quote) error {
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return errs.New("amount.validate", errs.CodeInvalid,
			errs.WithMessage("amount must be a decimal number"), errs.WithCause(err))
	}
	return ValidateAmount(parsed, quote)
}
