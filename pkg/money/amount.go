// Package money implements the exact-decimal Amount type used everywhere a
// stablecoin quantity crosses a component boundary. Floats never appear on
// the public surface: every Amount is backed by shopspring/decimal, which
// stores an arbitrary-precision coefficient and exponent rather than an
// IEEE-754 approximation.
package money

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// MinPrecision is the minimum number of fractional digits Amount guarantees
// to preserve through a parse/format round-trip.
const MinPrecision = 18

// Amount is an exact decimal quantity of a stablecoin asset. The zero value
// is zero, not "unset" — use Amount{} freely as a starting accumulator.
type Amount struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Amount{d: decimal.Zero}

// NewFromInt builds an Amount from a whole-unit integer (e.g. NewFromInt(25)
// is exactly 25).
func NewFromInt(v int64) Amount {
	return Amount{d: decimal.NewFromInt(v)}
}

// ParseAmount parses a textual decimal amount. It rejects empty strings and
// anything decimal.NewFromString itself rejects. The parsed value round-trips
// through String with no loss of precision, regardless of how many
// fractional digits the input carried.
func ParseAmount(s string) (Amount, error) {
	if s == "" {
		return Amount{}, fmt.Errorf("money: empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("money: invalid amount %q: %w", s, err)
	}
	return Amount{d: d}, nil
}

// MustParseAmount is ParseAmount, panicking on error. Intended for tests and
// compile-time constants, never for request input.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String renders the exact decimal value with trailing fractional zeros
// dropped ("25.00" renders as "25"); ParseAmount of the result yields an
// equal Amount.
func (a Amount) String() string {
	return a.d.String()
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }

// Neg returns -a.
func (a Amount) Neg() Amount { return Amount{d: a.d.Neg()} }

// Cmp returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }

// LessThan reports whether a < b.
func (a Amount) LessThan(b Amount) bool { return a.d.LessThan(b.d) }

// GreaterThan reports whether a > b.
func (a Amount) GreaterThan(b Amount) bool { return a.d.GreaterThan(b.d) }

// GreaterThanOrEqual reports whether a >= b.
func (a Amount) GreaterThanOrEqual(b Amount) bool { return a.d.GreaterThanOrEqual(b.d) }

// LessThanOrEqual reports whether a <= b.
func (a Amount) LessThanOrEqual(b Amount) bool { return a.d.LessThanOrEqual(b.d) }

// IsZero reports whether a is exactly zero.
func (a Amount) IsZero() bool { return a.d.IsZero() }

// IsNegative reports whether a < 0.
func (a Amount) IsNegative() bool { return a.d.IsNegative() }

// IsPositive reports whether a > 0.
func (a Amount) IsPositive() bool { return a.d.IsPositive() }

// Decimal exposes the underlying decimal.Decimal for callers that need to
// interoperate with other decimal-aware libraries (e.g. gorm scanning).
func (a Amount) Decimal() decimal.Decimal { return a.d }

// MarshalJSON renders the amount as a JSON string, never a bare number, so
// that no intermediate JSON decoder can silently round it to a float64.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.d.String() + `"`), nil
}

// UnmarshalJSON parses a JSON string amount.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer so gorm/database-sql store Amount as an
// exact decimal string column (varchar), never a float column.
func (a Amount) Value() (driver.Value, error) {
	return a.d.String(), nil
}

// Scan implements sql.Scanner.
func (a *Amount) Scan(v any) error {
	switch t := v.(type) {
	case string:
		parsed, err := ParseAmount(t)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	case []byte:
		parsed, err := ParseAmount(string(t))
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	case nil:
		*a = Zero
		return nil
	default:
		return fmt.Errorf("money: cannot scan %T into Amount", v)
	}
}

// GormDataType tells gorm's automigration which column type to use.
func (Amount) GormDataType() string {
	return "varchar(78)"
}
