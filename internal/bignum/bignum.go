// Package bignum provides the arbitrary-precision, non-negative counter used for
// resources and production rates. Values are immutable: every operation returns
// a new Int and never touches its operands.
package bignum

import (
	"fmt"
	"math/big"
)

// Int is a non-negative integer of unbounded magnitude. The zero value is 0.
type Int struct {
	v *big.Int
}

// ParseError reports a malformed decimal string.
type ParseError struct {
	Input  string
	Offset int
}

func (e *ParseError) Error() string {
	if e.Input == "" {
		return "bignum: empty decimal string"
	}
	return fmt.Sprintf("bignum: invalid digit %q at offset %d in %q", e.Input[e.Offset:e.Offset+1], e.Offset, e.Input)
}

// Zero returns 0.
func Zero() Int { return Int{} }

// One returns 1.
func One() Int { return FromUint64(1) }

// FromUint64 converts a native unsigned integer.
func FromUint64(v uint64) Int {
	if v == 0 {
		return Int{}
	}
	return Int{v: new(big.Int).SetUint64(v)}
}

// Parse reads a base-10 string made only of ASCII digits.
func Parse(s string) (Int, error) {
	if s == "" {
		return Int{}, &ParseError{Input: s}
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return Int{}, &ParseError{Input: s, Offset: i}
		}
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Int{}, &ParseError{Input: s}
	}
	if v.Sign() == 0 {
		return Int{}, nil
	}
	return Int{v: v}, nil
}

// MustParse is Parse for literals known to be valid; it panics otherwise.
func MustParse(s string) Int {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (a Int) big() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

// Add returns a+b.
func Add(a, b Int) Int {
	if b.IsZero() {
		return a
	}
	if a.IsZero() {
		return b
	}
	return Int{v: new(big.Int).Add(a.v, b.v)}
}

// Scale returns a*k.
func Scale(a Int, k uint64) Int {
	if a.IsZero() || k == 0 {
		return Int{}
	}
	if k == 1 {
		return a
	}
	return Int{v: new(big.Int).Mul(a.v, new(big.Int).SetUint64(k))}
}

// Add is the method form of Add.
func (a Int) Add(b Int) Int { return Add(a, b) }

// Scale is the method form of Scale.
func (a Int) Scale(k uint64) Int { return Scale(a, k) }

// IsZero reports whether a == 0.
func (a Int) IsZero() bool { return a.v == nil || a.v.Sign() == 0 }

// Cmp compares a and b and returns -1, 0 or +1.
func (a Int) Cmp(b Int) int { return a.big().Cmp(b.big()) }

// Equal reports whether a == b.
func (a Int) Equal(b Int) bool { return a.Cmp(b) == 0 }

// String renders the exact decimal representation.
func (a Int) String() string { return a.big().String() }

// DigitCount returns the number of decimal digits, 1 for zero.
func (a Int) DigitCount() int { return len(a.String()) }

// Big returns a copy of the value as a *big.Int.
func (a Int) Big() *big.Int { return new(big.Int).Set(a.big()) }

// MarshalText encodes the value as its decimal string.
func (a Int) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText decodes a decimal string produced by MarshalText.
func (a *Int) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
