// Package bignum provides the number type used for every unbounded quantity in
// a blueprint and in a running game: resource amounts, levels, costs and
// formula intermediates.
//
// A Number wraps a shopspring decimal and adds the three non-finite states a
// game needs to survive (positive and negative infinity, NaN). Division by zero
// yields an infinity instead of panicking. Every result is rounded to
// SignificantDigits significant digits so that long production chains stay
// cheap, while short literals such as 1.15 stay exact.
package bignum

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// SignificantDigits is the number of significant decimal digits retained
	// after each arithmetic operation.
	SignificantDigits = 50

	// MaxMagnitude bounds the decimal order of magnitude of finite values.
	// Larger results saturate to an infinity, smaller ones to zero.
	MaxMagnitude = 1_000_000_000

	// plainStringLimit is the largest exponent rendered by String without
	// scientific notation.
	plainStringLimit = 64
)

type kind uint8

const (
	finite kind = iota
	posInf
	negInf
	notANumber
)

// Number is an immutable arbitrary-magnitude decimal. The zero value is 0.
type Number struct {
	d decimal.Decimal
	k kind
}

var (
	Zero     = Number{}
	One      = FromInt(1)
	Inf      = Number{k: posInf}
	NegInf   = Number{k: negInf}
	NaN      = Number{k: notANumber}
	thousand = FromInt(1000)
	// fixedFloor bounds fixed-notation rendering for negative values. At or
	// below it Format switches to exponential, as toFixed does in the browser.
	fixedFloor = Number{d: decimal.New(-1, 21)}
)

// FromInt returns the Number for i.
func FromInt(i int64) Number {
	return Number{d: decimal.NewFromInt(i)}
}

// FromFloat returns the Number for f. Infinities and NaN map to their
// non-finite counterparts.
func FromFloat(f float64) Number {
	switch {
	case math.IsNaN(f):
		return NaN
	case math.IsInf(f, 1):
		return Inf
	case math.IsInf(f, -1):
		return NegInf
	}
	return normalize(decimal.NewFromFloat(f))
}

// FromDecimal wraps an existing decimal.
func FromDecimal(d decimal.Decimal) Number {
	return normalize(d)
}

// Parse reads a decimal string ("12", "-0.5", "1.5e300", "1e+250") or one of
// the non-finite spellings "Infinity", "-Infinity" and "NaN".
func Parse(s string) (Number, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "":
		return Zero, fmt.Errorf("bignum: parse: empty string")
	case "infinity", "+infinity", "inf", "+inf":
		return Inf, nil
	case "-infinity", "-inf":
		return NegInf, nil
	case "nan":
		return NaN, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("bignum: parse %q: %w", s, err)
	}
	return normalize(d), nil
}

// MustParse is like Parse but panics on malformed input. Intended for
// literals in code and tests.
func MustParse(s string) Number {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

func normalize(d decimal.Decimal) Number {
	if d.IsZero() {
		return Number{}
	}
	// A rounding carry (99.9 -> 100) can add a digit, hence the loop.
	for digits := d.NumDigits(); digits > SignificantDigits; digits = d.NumDigits() {
		d = d.Round(int32(SignificantDigits) - (int32(digits) + d.Exponent()))
	}
	mag := magnitude(d)
	if mag > MaxMagnitude {
		if d.Sign() < 0 {
			return NegInf
		}
		return Inf
	}
	if mag < -MaxMagnitude {
		return Number{}
	}
	return Number{d: trimZeros(d)}
}

var ten = big.NewInt(10)

// trimZeros drops trailing zeros from the coefficient, raising the exponent
// to match. The value is unchanged.
func trimZeros(d decimal.Decimal) decimal.Decimal {
	c := d.Coefficient()
	exp := d.Exponent()
	q, r := new(big.Int), new(big.Int)
	trimmed := false
	for c.Sign() != 0 {
		q.QuoRem(c, ten, r)
		if r.Sign() != 0 {
			break
		}
		c, q = q, c
		exp++
		trimmed = true
	}
	if !trimmed {
		return d
	}
	return decimal.NewFromBigInt(c, exp)
}

// magnitude returns m such that 10^(m-1) <= |d| < 10^m.
func magnitude(d decimal.Decimal) int64 {
	return int64(d.NumDigits()) + int64(d.Exponent())
}

// log10 of a positive finite decimal, accurate to float64 precision even for
// values far outside the float64 range.
func log10(d decimal.Decimal) float64 {
	digits := d.NumDigits()
	lead, _ := decimal.NewFromBigInt(d.Coefficient(), -int32(digits-1)).Abs().Float64()
	return float64(magnitude(d)-1) + math.Log10(lead)
}

// fromLog10 returns 10^l.
func fromLog10(l float64) Number {
	switch {
	case math.IsNaN(l):
		return NaN
	case l > MaxMagnitude:
		return Inf
	case l < -MaxMagnitude:
		return Zero
	}
	ip := math.Floor(l)
	return normalize(decimal.NewFromFloat(math.Pow(10, l-ip)).Shift(int32(ip)))
}

// IsZero reports whether n is exactly zero.
func (n Number) IsZero() bool { return n.k == finite && n.d.IsZero() }

// IsFinite reports whether n is neither infinite nor NaN.
func (n Number) IsFinite() bool { return n.k == finite }

// IsInf reports whether n is positive or negative infinity.
func (n Number) IsInf() bool { return n.k == posInf || n.k == negInf }

// IsNaN reports whether n is not a number.
func (n Number) IsNaN() bool { return n.k == notANumber }

// Sign returns -1, 0 or +1. NaN reports 0.
func (n Number) Sign() int {
	switch n.k {
	case posInf:
		return 1
	case negInf:
		return -1
	case notANumber:
		return 0
	}
	return n.d.Sign()
}

// Decimal returns the underlying decimal. Non-finite values return zero.
func (n Number) Decimal() decimal.Decimal {
	if n.k != finite {
		return decimal.Zero
	}
	return n.d
}

// Float64 returns the nearest float64, saturating to ±Inf.
func (n Number) Float64() float64 {
	switch n.k {
	case posInf:
		return math.Inf(1)
	case negInf:
		return math.Inf(-1)
	case notANumber:
		return math.NaN()
	}
	f, _ := n.d.Float64()
	return f
}

// Neg returns -n.
func (n Number) Neg() Number {
	switch n.k {
	case posInf:
		return NegInf
	case negInf:
		return Inf
	case notANumber:
		return NaN
	}
	return Number{d: n.d.Neg()}
}

// Abs returns |n|.
func (n Number) Abs() Number {
	if n.Sign() < 0 {
		return n.Neg()
	}
	return n
}

// Add returns n + o.
func (n Number) Add(o Number) Number {
	if n.k == notANumber || o.k == notANumber {
		return NaN
	}
	if n.IsInf() || o.IsInf() {
		if n.IsInf() && o.IsInf() && n.k != o.k {
			return NaN
		}
		if n.IsInf() {
			return n
		}
		return o
	}
	if n.d.IsZero() {
		return o
	}
	if o.d.IsZero() {
		return n
	}
	// An addend more than SignificantDigits orders below the other cannot
	// change the rounded sum; skip it instead of rescaling.
	mn, mo := magnitude(n.d), magnitude(o.d)
	if mn-mo > SignificantDigits+1 {
		return n
	}
	if mo-mn > SignificantDigits+1 {
		return o
	}
	return normalize(n.d.Add(o.d))
}

// Sub returns n - o.
func (n Number) Sub(o Number) Number {
	return n.Add(o.Neg())
}

// Mul returns n * o.
func (n Number) Mul(o Number) Number {
	if n.k == notANumber || o.k == notANumber {
		return NaN
	}
	if n.IsInf() || o.IsInf() {
		if n.IsZero() || o.IsZero() {
			return NaN
		}
		return signedInf(n.Sign() * o.Sign())
	}
	if n.d.IsZero() || o.d.IsZero() {
		return Zero
	}
	mag := magnitude(n.d) + magnitude(o.d)
	if mag > MaxMagnitude+1 {
		return signedInf(n.Sign() * o.Sign())
	}
	if mag < -MaxMagnitude-1 {
		return Zero
	}
	return normalize(n.d.Mul(o.d))
}

// Div returns n / o. Division of a non-zero value by zero yields an infinity
// carrying the sign of n; 0/0 yields NaN.
func (n Number) Div(o Number) Number {
	if n.k == notANumber || o.k == notANumber {
		return NaN
	}
	switch {
	case n.IsInf() && o.IsInf():
		return NaN
	case n.IsInf():
		s := o.Sign()
		if s == 0 {
			s = 1
		}
		return signedInf(n.Sign() * s)
	case o.IsInf():
		return Zero
	}
	if o.d.IsZero() {
		if n.d.IsZero() {
			return NaN
		}
		return signedInf(n.Sign())
	}
	if n.d.IsZero() {
		return Zero
	}
	mag := magnitude(n.d) - magnitude(o.d)
	if mag > MaxMagnitude+1 {
		return signedInf(n.Sign() * o.Sign())
	}
	if mag < -MaxMagnitude-1 {
		return Zero
	}
	// Divide the coefficients and restore the exponent afterwards so the
	// intermediate scale never depends on the operands' magnitudes.
	a := decimal.NewFromBigInt(n.d.Coefficient(), 0)
	b := decimal.NewFromBigInt(o.d.Coefficient(), 0)
	places := int32(SignificantDigits+2) - int32(n.d.NumDigits()-o.d.NumDigits())
	q := a.DivRound(b, places)
	return normalize(q.Shift(n.d.Exponent() - o.d.Exponent()))
}

// Pow returns n raised to e. x^0 is 1 for every x, 0^negative is +Inf and a
// negative base with a fractional exponent is NaN.
func (n Number) Pow(e Number) Number {
	if n.k == notANumber || e.k == notANumber {
		return NaN
	}
	if e.IsZero() {
		return One
	}
	if n.IsInf() || e.IsInf() {
		return powNonFinite(n, e)
	}
	if n.d.IsZero() {
		if e.Sign() > 0 {
			return Zero
		}
		return Inf
	}

	integral := e.d.IsInteger()
	negBase := n.d.Sign() < 0
	if negBase && !integral {
		return NaN
	}
	odd := integral && isOdd(e.d)
	abs := n.d.Abs()
	if abs.Equal(decimal.NewFromInt(1)) {
		if negBase && odd {
			return FromInt(-1)
		}
		return One
	}

	ef, _ := e.d.Float64()
	est := ef * log10(abs)
	if est > MaxMagnitude {
		if negBase && odd {
			return NegInf
		}
		return Inf
	}
	if est < -MaxMagnitude {
		return Zero
	}

	const exactLimit = 1 << 53
	if integral && math.Abs(ef) <= exactLimit {
		return powInt(n, e.d.IntPart())
	}
	if integral {
		r := fromLog10(est)
		if negBase && odd {
			return r.Neg()
		}
		return r
	}

	// Positive base, fractional exponent.
	if bf, _ := abs.Float64(); bf > 0 && !math.IsInf(bf, 0) && math.Abs(est) < 300 {
		return FromFloat(math.Pow(bf, ef))
	}
	if math.Abs(ef) <= exactLimit {
		whole := e.d.Truncate(0)
		frac, _ := e.d.Sub(whole).Float64()
		return powInt(n, whole.IntPart()).Mul(fromLog10(frac * log10(abs)))
	}
	return fromLog10(est)
}

func powInt(base Number, k int64) Number {
	if k < 0 {
		return One.Div(powInt(base, -k))
	}
	result := One
	for k > 0 {
		if k&1 == 1 {
			result = result.Mul(base)
		}
		k >>= 1
		if k > 0 {
			base = base.Mul(base)
		}
	}
	return result
}

func powNonFinite(n, e Number) Number {
	if e.IsInf() {
		// |n| compared against 1 decides between growth and decay.
		c := n.Abs().cmp(One)
		switch {
		case c == 0:
			return One
		case (c > 0) == (e.k == posInf):
			return Inf
		default:
			return Zero
		}
	}
	// n is infinite, e finite and non-zero.
	if e.Sign() < 0 {
		return Zero
	}
	if n.k == negInf && e.d.IsInteger() && isOdd(e.d) {
		return NegInf
	}
	return Inf
}

func isOdd(d decimal.Decimal) bool {
	if d.Exponent() > 0 {
		return false
	}
	c := d.Truncate(0).Coefficient()
	return new(big.Int).Abs(c).Bit(0) == 1
}

func signedInf(sign int) Number {
	if sign < 0 {
		return NegInf
	}
	return Inf
}

// cmp orders two non-NaN numbers. Callers handle NaN.
func (n Number) cmp(o Number) int {
	rn, ro := rank(n), rank(o)
	if rn != ro {
		if rn < ro {
			return -1
		}
		return 1
	}
	if n.k != finite {
		return 0
	}
	sn, so := n.d.Sign(), o.d.Sign()
	if sn != so {
		if sn < so {
			return -1
		}
		return 1
	}
	if sn == 0 {
		return 0
	}
	mn, mo := magnitude(n.d), magnitude(o.d)
	if mn != mo {
		r := 1
		if mn < mo {
			r = -1
		}
		return r * sn
	}
	return n.d.Cmp(o.d)
}

func rank(n Number) int {
	switch n.k {
	case negInf:
		return -1
	case posInf:
		return 1
	}
	return 0
}

func (n Number) comparable(o Number) bool {
	return n.k != notANumber && o.k != notANumber
}

// Equal reports n == o. NaN is never equal to anything.
func (n Number) Equal(o Number) bool { return n.comparable(o) && n.cmp(o) == 0 }

// LessThan reports n < o.
func (n Number) LessThan(o Number) bool { return n.comparable(o) && n.cmp(o) < 0 }

// LessThanOrEqual reports n <= o.
func (n Number) LessThanOrEqual(o Number) bool { return n.comparable(o) && n.cmp(o) <= 0 }

// GreaterThan reports n > o.
func (n Number) GreaterThan(o Number) bool { return n.comparable(o) && n.cmp(o) > 0 }

// GreaterThanOrEqual reports n >= o.
func (n Number) GreaterThanOrEqual(o Number) bool { return n.comparable(o) && n.cmp(o) >= 0 }

// Max returns the larger of n and o.
func Max(n, o Number) Number {
	if o.GreaterThan(n) {
		return o
	}
	return n
}

// String renders n as a decimal string that Parse reads back exactly. Large
// and tiny values use the compact "<coefficient>e<exponent>" form.
func (n Number) String() string {
	switch n.k {
	case posInf:
		return "Infinity"
	case negInf:
		return "-Infinity"
	case notANumber:
		return "NaN"
	}
	exp := n.d.Exponent()
	if exp > plainStringLimit || magnitude(n.d) < -plainStringLimit {
		return fmt.Sprintf("%se%d", n.d.Coefficient().String(), exp)
	}
	return n.d.String()
}

// Format renders n for display: two fixed decimals for values in (-1e21, 1000),
// otherwise normalized exponential notation with a two-decimal mantissa
// ("1.23e+4").
func (n Number) Format() string {
	if n.k != finite {
		return n.String()
	}
	if n.LessThan(thousand) && n.GreaterThan(fixedFloor) {
		return n.d.StringFixed(2)
	}
	sign := ""
	abs := n.d
	if abs.Sign() < 0 {
		sign = "-"
		abs = abs.Neg()
	}
	e := magnitude(abs) - 1
	m := abs.Shift(-int32(e)).Round(2)
	if m.GreaterThanOrEqual(decimal.NewFromInt(10)) {
		e++
		m = abs.Shift(-int32(e)).Round(2)
	}
	esign := "+"
	if e < 0 {
		esign = "-"
		e = -e
	}
	return fmt.Sprintf("%s%se%s%d", sign, m.StringFixed(2), esign, e)
}
