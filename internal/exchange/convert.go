package exchange

import (
	"math"
	"strings"
)

// Rates maps a lowercase currency code to units of that currency per one
// unit of the base currency.
type Rates map[string]float64

// NormalizeCode trims and lowercases a currency code
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Convert converts amount from sourceCode to targetCode by pivoting through
// the base currency: amount / rates[source] * rates[target].
//
// Codes are case-insensitive. Equal codes return amount unchanged, without
// the pivot, so identity conversions are exact. The result is not rounded.
func Convert(amount float64, sourceCode, targetCode string, rates Rates) (float64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return 0, NewError(ErrorTypeParse, nil, "amount %v is not a finite non-negative number", amount)
	}

	source := NormalizeCode(sourceCode)
	target := NormalizeCode(targetCode)

	sourceRate, err := lookupRate(rates, source)
	if err != nil {
		return 0, err
	}
	targetRate, err := lookupRate(rates, target)
	if err != nil {
		return 0, err
	}

	if source == target {
		return amount, nil
	}

	result := amount / sourceRate * targetRate
	if math.IsInf(result, 0) || math.IsNaN(result) {
		return 0, NewError(ErrorTypeInvalidRate, nil, "converting %v %s to %s overflows", amount, source, target)
	}
	return result, nil
}

func lookupRate(rates Rates, code string) (float64, error) {
	rate, ok := rates[code]
	if !ok {
		return 0, NewError(ErrorTypeUnknownCurrency, nil, "no rate for %q", code)
	}
	if !ValidRate(rate) {
		return 0, NewError(ErrorTypeInvalidRate, nil, "rate %v for %q is not positive", rate, code)
	}
	return rate, nil
}

// ValidRate reports whether rate is a finite positive number
func ValidRate(rate float64) bool {
	return rate > 0 && !math.IsInf(rate, 1)
}
