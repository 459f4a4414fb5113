package processor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/SanteonNL/fhirsearch/cmd/fhirsearch/resource"
	"github.com/SanteonNL/fhirsearch/models/fhir"
	"github.com/shopspring/decimal"
)

var approximately = decimal.NewFromFloat(0.1)

// numberValue is a search number with the range its written precision implies:
// "100" stands for [99.5, 100.5), "100.0" for [99.95, 100.05) and "1e2" for [95, 105).
type numberValue struct {
	value  decimal.Decimal
	lo, hi decimal.Decimal
}

func parseNumber(raw string) (numberValue, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return numberValue{}, err
	}

	halfExp := d.Exponent() - 1
	if mantissa, exp, ok := strings.Cut(strings.ToLower(raw), "e"); ok {
		e, err := strconv.Atoi(exp)
		if err != nil {
			return numberValue{}, fmt.Errorf("invalid exponent in %q", raw)
		}
		// The exponent form carries one significant figure more than its mantissa shows.
		halfExp = int32(e - significantDigits(mantissa) - 1)
	}

	half := decimal.New(5, halfExp)
	return numberValue{value: d, lo: d.Sub(half), hi: d.Add(half)}, nil
}

// significantDigits counts the digits of a plain decimal after leading zeros.
func significantDigits(mantissa string) int {
	digits := strings.TrimLeft(strings.ReplaceAll(strings.TrimLeft(mantissa, "+-"), ".", ""), "0")
	if digits == "" {
		return 1
	}
	return len(digits)
}

func (n numberValue) compare(c comparator, target decimal.Decimal) bool {
	switch c {
	case cmpEq:
		return target.GreaterThanOrEqual(n.lo) && target.LessThan(n.hi)
	case cmpNe:
		return target.LessThan(n.lo) || target.GreaterThanOrEqual(n.hi)
	case cmpGt, cmpSa:
		return target.GreaterThan(n.value)
	case cmpLt, cmpEb:
		return target.LessThan(n.value)
	case cmpGe:
		return target.GreaterThanOrEqual(n.value)
	case cmpLe:
		return target.LessThanOrEqual(n.value)
	case cmpAp:
		return target.Sub(n.value).Abs().LessThanOrEqual(n.value.Abs().Mul(approximately))
	}
	return false
}

func decimalOf(node *resource.Node) (decimal.Decimal, bool) {
	if node == nil || node.Kind != resource.Number {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(node.Num.String())
	return d, err == nil
}

func numberMatchers(modifier string, values []string) ([]nodeMatcher, error) {
	if modifier != "" {
		return nil, unsupportedModifier(fhir.SearchParamTypeNumber, modifier)
	}

	matchers := make([]nodeMatcher, 0, len(values))
	for _, value := range values {
		c, raw := splitPrefix(value)
		n, err := parseNumber(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid number value %q: %w", value, err)
		}
		matchers = append(matchers, func(node *resource.Node) bool {
			target, ok := decimalOf(node)
			return ok && n.compare(c, target)
		})
	}
	return matchers, nil
}

// quantityMatchers builds quantity search: [prefix]number[|system|code]. The code is
// compared with both Quantity.code and Quantity.unit.
func quantityMatchers(modifier string, values []string) ([]nodeMatcher, error) {
	if modifier != "" {
		return nil, unsupportedModifier(fhir.SearchParamTypeQuantity, modifier)
	}

	matchers := make([]nodeMatcher, 0, len(values))
	for _, value := range values {
		parts := strings.SplitN(value, "|", 3)
		c, raw := splitPrefix(parts[0])
		n, err := parseNumber(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid quantity value %q: %w", value, err)
		}

		var system, code string
		switch len(parts) {
		case 2:
			code = parts[1]
		case 3:
			system, code = parts[1], parts[2]
		}

		matchers = append(matchers, func(node *resource.Node) bool {
			if node.Kind != resource.Object {
				return false
			}
			target, ok := decimalOf(node.Get("value"))
			if !ok || !n.compare(c, target) {
				return false
			}
			if system != "" && node.StringField("system") != system {
				return false
			}
			if code != "" && node.StringField("code") != code && node.StringField("unit") != code {
				return false
			}
			return true
		})
	}
	return matchers, nil
}
