package types

import (
	"github.com/shopspring/decimal"

	ierr "github.com/quotaflow/quotaflow/internal/errors"
)

// QuotaScale is the number of fractional digits quota arithmetic carries.
// Rounding is banker's (half-even); quotas and prices never use floats.
const QuotaScale = 9

// RoundQuota normalizes a decimal to the quota scale with half-even rounding
func RoundQuota(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(QuotaScale)
}

// ParseDecimal parses a decimal from a string, accepting the same inputs
// shopspring accepts in JSON (plain numbers or quoted numbers).
func ParseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ierr.WithError(err).
			WithHintf("Invalid decimal value %q", s).
			Mark(ierr.ErrValidation)
	}
	return RoundQuota(d), nil
}
