package valueobject

import (
	"strings"

	"github.com/shopspring/decimal"
)

// AmountPlaces is the number of decimal places settlement amounts carry
const AmountPlaces int32 = 2

// MaxAmountDigits bounds the digits an entered amount may carry
const MaxAmountDigits = 24

// ParseAmount converts user-entered text to an amount.
// Thousands separators and whitespace are stripped; anything that is
// not a plain decimal yields zero.
func ParseAmount(raw string) decimal.Decimal {
	cleaned := StripAmountText(raw)
	if !IsPlainAmount(cleaned) {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// StripAmountText removes thousands separators and whitespace
func StripAmountText(raw string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ',', ' ', '\t', '\u00a0':
			return -1
		}
		return r
	}, raw)
}

// IsPlainAmount reports whether s is an optional sign, digits and at most one
// decimal point, with no more than MaxAmountDigits digits. Exponent notation
// is rejected.
func IsPlainAmount(s string) bool {
	if s != "" && (s[0] == '-' || s[0] == '+') {
		s = s[1:]
	}
	digits, points := 0, 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			points++
		default:
			return false
		}
	}
	return digits > 0 && digits <= MaxAmountDigits && points <= 1
}

// Round2 rounds half away from zero to two decimal places
func Round2(x decimal.Decimal) decimal.Decimal {
	return x.Round(AmountPlaces)
}

// Clamp bounds x to [lo, hi]. When lo > hi, lo wins.
func Clamp(x, lo, hi decimal.Decimal) decimal.Decimal {
	if x.GreaterThan(hi) {
		x = hi
	}
	if x.LessThan(lo) {
		x = lo
	}
	return x
}

// NonNegative returns max(0, x)
func NonNegative(x decimal.Decimal) decimal.Decimal {
	if x.IsNegative() {
		return decimal.Zero
	}
	return x
}

// FormatAmount renders an amount with exactly two decimals
func FormatAmount(x decimal.Decimal) string {
	return Round2(x).StringFixed(AmountPlaces)
}
