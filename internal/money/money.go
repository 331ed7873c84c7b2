// Package money keeps every amount in integer minor units (cents).
// Decimal currency only exists at the edges, via Parse and String.
package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Cents is an amount of currency in minor units.
type Cents int64

var (
	ErrNegativeAmount  = errors.New("money: amount must not be negative")
	ErrInvalidAmount   = errors.New("money: invalid decimal amount")
	ErrInvalidQuantity = errors.New("money: quantity must be at least 1")
	ErrOverflow        = errors.New("money: amount overflows")
)

// Senior/PWD discount: 12% VAT is removed from the price, then 20% is taken
// off the VAT-exempt base. Combined that is subtotal * 20 / 112.
const (
	vatRateNumerator        = 112
	seniorDiscountNumerator = 20
)

// Mul returns unit * qty, failing instead of wrapping on overflow.
func Mul(unit Cents, qty int) (Cents, error) {
	if qty < 0 || unit < 0 {
		return 0, ErrNegativeAmount
	}
	if qty != 0 && int64(unit) > math.MaxInt64/int64(qty) {
		return 0, ErrOverflow
	}
	return unit * Cents(qty), nil
}

// Sum adds amounts, failing on overflow.
func Sum(amounts ...Cents) (Cents, error) {
	var total Cents
	for _, a := range amounts {
		if a > 0 && total > math.MaxInt64-a {
			return 0, ErrOverflow
		}
		total += a
	}
	return total, nil
}

// SeniorDiscount returns (subtotal / 1.12) * 0.20 rounded half-up to the cent.
func SeniorDiscount(subtotal Cents) Cents {
	if subtotal <= 0 {
		return 0
	}
	num := int64(subtotal) * seniorDiscountNumerator * 2
	den := int64(vatRateNumerator) * 2
	return Cents((num + den/2) / den)
}

// CheckQuantity validates a cart line quantity.
func CheckQuantity(qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	return nil
}

// FromMajor converts a decimal amount received at a boundary (e.g. a JSON
// float) into cents, rounding to the nearest cent.
func FromMajor(v float64) (Cents, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidAmount
	}
	if v < 0 {
		return 0, ErrNegativeAmount
	}
	if v > float64(math.MaxInt64)/100 {
		return 0, ErrOverflow
	}
	return Cents(math.Round(v * 100)), nil
}

// Parse reads a decimal string such as "12.5" or "1,250.00" into cents.
// More than two fractional digits is rejected rather than rounded.
func Parse(s string) (Cents, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeAmount
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 2 {
		return 0, fmt.Errorf("%w: %q has more than two decimals", ErrInvalidAmount, s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	if whole == "" {
		whole = "0"
	}
	major, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	minor, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if major > (math.MaxInt64-minor)/100 {
		return 0, ErrOverflow
	}
	return Cents(major*100 + minor), nil
}

// String renders the amount as a plain decimal, e.g. 1250 -> "12.50".
func (c Cents) String() string {
	sign := ""
	v := int64(c)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
