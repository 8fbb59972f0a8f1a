// Package core holds the domain types shared by every layer.
//
// Money is kept in integer cents. Conversion from decimal representations
// (JSON numbers, form values) happens only at the edges through
// shopspring/decimal so sums never drift.
package core

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

type Money struct {
	Cents int64
}

func Cents(c int64) Money {
	return Money{Cents: c}
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

func (m Money) Neg() Money {
	return Money{Cents: -m.Cents}
}

func (m Money) IsZero() bool {
	return m.Cents == 0
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String renders the amount with two decimal places, e.g. "12.30".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

var (
	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

// MoneyFromDecimal rounds d half away from zero to whole cents. Amounts
// outside the int64 cent range become zero.
func MoneyFromDecimal(d decimal.Decimal) Money {
	cents, ok := centsFromDecimal(d)
	if !ok {
		return Money{}
	}
	return Money{Cents: cents}
}

func centsFromDecimal(d decimal.Decimal) (int64, bool) {
	shifted := d.Round(2).Shift(2)
	if shifted.GreaterThan(maxCents) || shifted.LessThan(minCents) {
		return 0, false
	}
	return shifted.IntPart(), true
}

// CoerceMoney converts a loosely typed amount to Money. Absent, empty or
// unparseable values become zero, mirroring how stored documents with a
// missing amount are summed.
func CoerceMoney(v any) Money {
	switch x := v.(type) {
	case nil:
		return Money{}
	case Money:
		return x
	case int:
		return MoneyFromDecimal(decimal.NewFromInt(int64(x)))
	case int64:
		return MoneyFromDecimal(decimal.NewFromInt(x))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Money{}
		}
		return MoneyFromDecimal(decimal.NewFromFloat(x))
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		if err != nil {
			return Money{}
		}
		return MoneyFromDecimal(d)
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), ",", ".")
		if s == "" {
			return Money{}
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return Money{}
		}
		return MoneyFromDecimal(d)
	default:
		return Money{}
	}
}

// ParseDecimalToCents parses user input such as "12.34" or "12,34".
// Unlike CoerceMoney it reports malformed and negative input.
//
// Examples:
//
//	ParseDecimalToCents("12.34")  -> 1234, nil
//	ParseDecimalToCents("12,345") -> 1235, nil (half away from zero)
//	ParseDecimalToCents("0")      -> 0, nil
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	// Reject exponent forms ("1e3"), only plain decimals are accepted.
	if strings.ContainsAny(s, "eE") {
		return 0, ErrInvalidAmount
	}
	cents, ok := centsFromDecimal(d)
	if !ok {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = Money{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*m = Money{}
			return nil
		}
		*m = CoerceMoney(s)
		return nil
	}
	*m = CoerceMoney(json.Number(data))
	return nil
}
