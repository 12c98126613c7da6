package fixed

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Value is a signed fixed-point number with 18 decimal places, bounded to
// the magnitude of an unsigned 128-bit integer. All balances, prices and
// quantities in the engine are Values; raw integers never cross package
// boundaries.
type Value struct {
	n *big.Int
}

const decimals = 18

var (
	ErrNumericOverflow = errors.New("numeric overflow")
	ErrDivisionByZero  = errors.New("division by zero")

	scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(decimals), nil)

	// maxMagnitude is 2^128 - 1, the raw bound of the original unsigned
	// 128-bit representation. Signed values are bounded symmetrically.
	maxMagnitude = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

// Zero returns the zero value.
func Zero() Value {
	return Value{n: new(big.Int)}
}

// FromInt converts a whole-unit integer to a Value.
func FromInt(v int64) Value {
	return Value{n: new(big.Int).Mul(big.NewInt(v), scale)}
}

// FromRaw wraps an already-scaled raw integer. The input is copied.
func FromRaw(raw *big.Int) Value {
	return Value{n: new(big.Int).Set(raw)}
}

// MustRaw parses a raw 1e18-scaled decimal integer string. Panics on bad
// input; intended for constants and tests.
func MustRaw(s string) Value {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(fmt.Sprintf("fixed: bad raw value %q", s))
	}
	return Value{n: n}
}

// FromRational returns n/d rounded to the nearest representable value,
// matching how oracle prices are constructed.
func FromRational(n, d int64) (Value, error) {
	if d == 0 {
		return Zero(), ErrDivisionByZero
	}
	num := new(big.Int).Mul(big.NewInt(n), scale)
	return roundedDiv(num, big.NewInt(d))
}

func (v Value) big() *big.Int {
	if v.n == nil {
		return new(big.Int)
	}
	return v.n
}

// Raw returns a copy of the underlying scaled integer.
func (v Value) Raw() *big.Int {
	return new(big.Int).Set(v.big())
}

// RawString returns the underlying scaled integer as a decimal string.
func (v Value) RawString() string {
	return v.big().String()
}

func (v Value) IsZero() bool { return v.big().Sign() == 0 }
func (v Value) Sign() int { return v.big().Sign() }
func (v Value) Cmp(o Value) int {
	return v.big().Cmp(o.big())
}

// Neg returns -v.
func (v Value) Neg() Value {
	return Value{n: new(big.Int).Neg(v.big())}
}

func checked(n *big.Int) (Value, error) {
	if new(big.Int).Abs(n).Cmp(maxMagnitude) > 0 {
		return Zero(), ErrNumericOverflow
	}
	return Value{n: n}, nil
}

// Add returns v + o, failing on overflow.
func (v Value) Add(o Value) (Value, error) {
	return checked(new(big.Int).Add(v.big(), o.big()))
}

// Sub returns v - o, failing on overflow.
func (v Value) Sub(o Value) (Value, error) {
	return checked(new(big.Int).Sub(v.big(), o.big()))
}

// Mul returns v * o truncated toward zero. Truncation is deliberate: amounts
// derived for a counterparty must never be rounded in its favor.
func (v Value) Mul(o Value) (Value, error) {
	p := new(big.Int).Mul(v.big(), o.big())
	return checked(p.Quo(p, scale))
}

// Div returns v / o truncated toward zero.
func (v Value) Div(o Value) (Value, error) {
	if o.IsZero() {
		return Zero(), ErrDivisionByZero
	}
	p := new(big.Int).Mul(v.big(), scale)
	return checked(p.Quo(p, o.big()))
}

// String renders the value as a decimal number with trailing zeros trimmed.
func (v Value) String() string {
	n := v.big()
	neg := n.Sign() < 0
	abs := new(big.Int).Abs(n)
	q, r := new(big.Int).QuoRem(abs, scale, new(big.Int))
	frac := strings.TrimRight(fmt.Sprintf("%018d", r), "0")
	s := q.String()
	if frac != "" {
		s += "." + frac
	}
	if neg && (q.Sign() != 0 || frac != "") {
		s = "-" + s
	}
	return s
}

// MarshalJSON renders the value as a decimal string; raw integers never
// appear on the wire.
func (v Value) MarshalJSON() ([]byte, error) {
	return []byte(`"` + v.String() + `"`), nil
}

// UnmarshalJSON accepts a decimal number, quoted or bare.
func (v *Value) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	v.n = parsed.big()
	return nil
}

// Parse converts a decimal string such as "3.03" to a Value.
func Parse(s string) (Value, error) {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	// big.Int.SetString accepts its own sign, so a second one left after the
	// prefix strip would silently flip the value.
	if s == "" || s == "." || strings.ContainsAny(s, "+-") {
		return Zero(), fmt.Errorf("malformed decimal %q", s)
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return Zero(), fmt.Errorf("too many decimal places in %q", s)
	}
	frac += strings.Repeat("0", decimals-len(frac))
	n, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return Zero(), fmt.Errorf("malformed decimal %q", s)
	}
	if neg {
		n.Neg(n)
	}
	return checked(n)
}

// Infinity is the sentinel returned for undefined ratios such as the margin
// level of a trader holding no margin. It compares greater than every
// representable value.
func Infinity() Value {
	return Value{n: new(big.Int).Set(maxMagnitude)}
}

// IsInfinity reports whether v is the Infinity sentinel.
func (v Value) IsInfinity() bool {
	return v.big().Cmp(maxMagnitude) == 0
}

// roundedDiv divides num by den rounding half away from zero.
func roundedDiv(num, den *big.Int) (Value, error) {
	if den.Sign() == 0 {
		return Zero(), ErrDivisionByZero
	}
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	r.Abs(r)
	r.Lsh(r, 1) // 2*|remainder|
	if r.Cmp(new(big.Int).Abs(den)) >= 0 {
		if (num.Sign() < 0) != (den.Sign() < 0) {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}
	return checked(q)
}
