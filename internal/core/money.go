// Package core holds the domain records and the pure aggregation engine.
//
// This file contains the Money value type and price normalization. Stored
// prices drift between numbers and decimal strings, so every price goes
// through ParsePrice exactly once, at ingestion.
package core

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// NewMoney builds a Money from a decimal amount.
func NewMoney(amount decimal.Decimal) Money {
	return Money{Amount: amount}
}

// MoneyFromCents is convenient for tests and fixed constants.
func MoneyFromCents(cents int64) Money {
	return Money{Amount: decimal.New(cents, -2)}
}

func (m Money) Add(other Money) Money {
	return Money{Amount: m.Amount.Add(other.Amount)}
}

// Mul multiplies the amount by a unit quantity.
func (m Money) Mul(qty int) Money {
	return Money{Amount: m.Amount.Mul(decimal.NewFromInt(int64(qty)))}
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

func (m Money) IsNegative() bool {
	return m.Amount.IsNegative()
}

func (m Money) Equal(other Money) bool {
	return m.Amount.Equal(other.Amount)
}

// String formats the amount with two decimals, e.g. "19.99".
func (m Money) String() string {
	return m.Amount.StringFixed(2)
}

// Float64 is for chart payloads only. Use the decimal for arithmetic.
func (m Money) Float64() float64 {
	f, _ := m.Amount.Float64()
	return f
}

// MarshalJSON writes the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Amount.StringFixed(2)), nil
}

// UnmarshalJSON accepts a JSON number or a decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*m = Money{}
		return nil
	}
	var v any = json.Number(raw)
	if strings.HasPrefix(raw, `"`) {
		s, err := strconv.Unquote(raw)
		if err != nil {
			return ErrInvalidPrice
		}
		v = s
	}
	parsed, err := ParsePrice(v)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParsePrice converts a stored price into Money.
//
// Numbers of any Go numeric type, json.Number, decimal.Decimal and strings
// are accepted. Strings may use either "." or "," as decimal separator
// ("19,99" and "19.99" both give 19.99); grouping separators are rejected.
// The result is rounded half-up to cents. Negative, NaN, infinite, empty or
// non-numeric values return ErrInvalidPrice.
func ParsePrice(raw any) (Money, error) {
	var d decimal.Decimal
	switch v := raw.(type) {
	case Money:
		d = v.Amount
	case decimal.Decimal:
		d = v
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Money{}, ErrInvalidPrice
		}
		d = decimal.NewFromFloat(v)
	case float32:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Money{}, ErrInvalidPrice
		}
		d = decimal.NewFromFloat32(v)
	case int:
		d = decimal.NewFromInt(int64(v))
	case int32:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	case uint32:
		d = decimal.NewFromInt(int64(v))
	case uint64:
		parsed, err := decimal.NewFromString(strconv.FormatUint(v, 10))
		if err != nil {
			return Money{}, ErrInvalidPrice
		}
		d = parsed
	case json.Number:
		parsed, err := parseDecimalString(string(v))
		if err != nil {
			return Money{}, err
		}
		d = parsed
	case string:
		parsed, err := parseDecimalString(v)
		if err != nil {
			return Money{}, err
		}
		d = parsed
	default:
		return Money{}, ErrInvalidPrice
	}
	if d.IsNegative() {
		return Money{}, ErrInvalidPrice
	}
	return Money{Amount: d.Round(2)}, nil
}

// NormalizePrice is ParsePrice with the failure coerced to zero.
// The boolean is false when the raw value was not a valid price.
func NormalizePrice(raw any) (Money, bool) {
	m, err := ParsePrice(raw)
	if err != nil {
		return Money{}, false
	}
	return m, true
}

func parseDecimalString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidPrice
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidPrice
	}
	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
		case (r == '+' || r == '-') && i == 0:
		default:
			return decimal.Zero, ErrInvalidPrice
		}
	}
	if digits == 0 {
		return decimal.Zero, ErrInvalidPrice
	}
	sign := ""
	if s[0] == '+' || s[0] == '-' {
		sign, s = s[:1], s[1:]
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	s = strings.TrimSuffix(s, ".")
	if sign == "-" {
		s = sign + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidPrice
	}
	return d, nil
}
