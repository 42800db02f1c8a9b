package payment

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrAmountRange is returned for amounts whose minor units do not fit in an int64.
var ErrAmountRange = errors.New("amount out of range")

var maxMinorUnits = decimal.NewFromInt(math.MaxInt64)

// ToMinorUnits converts a decimal price string ("149.50") to minor units (14950),
// rounding half away from zero at the second decimal place.
func ToMinorUnits(price string) (int64, error) {
	price = strings.TrimSpace(price)
	if price == "" {
		return 0, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", price, err)
	}
	minor := d.Round(2).Shift(2)
	if minor.Abs().GreaterThan(maxMinorUnits) {
		return 0, fmt.Errorf("%w: %q", ErrAmountRange, price)
	}
	return minor.IntPart(), nil
}

// SumMinorUnits adds price strings, skipping empty ones.
func SumMinorUnits(prices ...string) (int64, error) {
	var total int64
	for _, p := range prices {
		if strings.TrimSpace(p) == "" {
			continue
		}
		v, err := ToMinorUnits(p)
		if err != nil {
			return 0, err
		}
		if (v > 0 && total > math.MaxInt64-v) || (v < 0 && total < math.MinInt64-v) {
			return 0, fmt.Errorf("%w: sum exceeds int64", ErrAmountRange)
		}
		total += v
	}
	return total, nil
}
