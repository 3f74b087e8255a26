package exchange

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// decimalAmount is plain decimal notation with an optional point or comma
// separator. Exponents, hex floats, signs and digit separators are rejected.
var decimalAmount = regexp.MustCompile(`^(\d+([.,]\d*)?|[.,]\d+)$`)

// thousandsComma matches a comma followed by exactly three digits, which
// reads as a thousands separator as easily as a decimal one.
var thousandsComma = regexp.MustCompile(`,\d{3}$`)

// ParseAmount parses free-text user input into a finite non-negative amount.
// A single decimal comma is accepted in place of a point unless it is
// followed by exactly three digits.
func ParseAmount(text string) (float64, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0, NewError(ErrorTypeParse, nil, "amount is empty")
	}
	if strings.HasPrefix(trimmed, "-") {
		return 0, NewError(ErrorTypeParse, nil, "amount %q is negative", text)
	}
	if !decimalAmount.MatchString(trimmed) {
		return 0, NewError(ErrorTypeParse, nil, "amount %q is not a decimal number", text)
	}
	if thousandsComma.MatchString(trimmed) {
		return 0, NewError(ErrorTypeParse, nil, "amount %q is ambiguous, use a point as the decimal separator", text)
	}
	trimmed = strings.Replace(trimmed, ",", ".", 1)

	amount, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, NewError(ErrorTypeParse, err, "amount %q is not a number", text)
	}
	if math.IsInf(amount, 0) {
		return 0, NewError(ErrorTypeParse, nil, "amount %q is not finite", text)
	}
	return amount, nil
}

// FormatAmount renders value with exactly two decimal digits, rounding half
// away from zero.
func FormatAmount(value float64) string {
	return decimal.NewFromFloat(value).StringFixed(2)
}
