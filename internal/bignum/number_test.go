package bignum

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name string
		got  Number
		want string
	}{
		{"add", MustParse("1.5").Add(MustParse("2.25")), "3.75"},
		{"sub", FromInt(10).Sub(MustParse("0.01")), "9.99"},
		{"mul", MustParse("10").Mul(MustParse("1.15")), "11.5"},
		{"div", FromInt(1).Div(FromInt(4)), "0.25"},
		{"pow int", FromInt(10).Pow(FromInt(2)), "100"},
		{"pow negative", FromInt(2).Pow(FromInt(-2)), "0.25"},
		{"pow zero", FromInt(123).Pow(Zero), "1"},
		{"zero pow zero", Zero.Pow(Zero), "1"},
		{"pow fractional", FromInt(4).Pow(MustParse("0.5")), "2"},
		{"negative base odd", FromInt(-2).Pow(FromInt(3)), "-8"},
		{"huge mul", MustParse("1e200").Mul(MustParse("1e200")), "1e400"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := MustParse(tt.want)
			if !tt.got.Equal(want) {
				t.Errorf("got %s, want %s", tt.got, tt.want)
			}
		})
	}
}

func TestDivideByZero(t *testing.T) {
	if got := FromInt(5).Div(Zero); !got.IsInf() || got.Sign() != 1 {
		t.Errorf("5/0 = %s, want Infinity", got)
	}
	if got := FromInt(-5).Div(Zero); !got.IsInf() || got.Sign() != -1 {
		t.Errorf("-5/0 = %s, want -Infinity", got)
	}
	if got := Zero.Div(Zero); !got.IsNaN() {
		t.Errorf("0/0 = %s, want NaN", got)
	}
}

func TestNonFinitePropagation(t *testing.T) {
	if got := Inf.Add(FromInt(1)); !got.IsInf() {
		t.Errorf("Inf+1 = %s", got)
	}
	if got := Inf.Sub(Inf); !got.IsNaN() {
		t.Errorf("Inf-Inf = %s", got)
	}
	if got := Inf.Mul(Zero); !got.IsNaN() {
		t.Errorf("Inf*0 = %s", got)
	}
	if got := FromInt(1).Div(Inf); !got.IsZero() {
		t.Errorf("1/Inf = %s", got)
	}
	if got := FromInt(2).Pow(Inf); !got.IsInf() {
		t.Errorf("2^Inf = %s", got)
	}
	if got := MustParse("0.5").Pow(Inf); !got.IsZero() {
		t.Errorf("0.5^Inf = %s", got)
	}
	if got := FromInt(-2).Pow(MustParse("0.5")); !got.IsNaN() {
		t.Errorf("(-2)^0.5 = %s", got)
	}
}

func TestPowSaturates(t *testing.T) {
	got := FromInt(10).Pow(MustParse("1e12"))
	if !got.IsInf() {
		t.Fatalf("10^1e12 = %s, want Infinity", got)
	}
	got = FromInt(10).Pow(MustParse("-1e12"))
	if !got.IsZero() {
		t.Fatalf("10^-1e12 = %s, want 0", got)
	}
}

func TestPowLargeExponent(t *testing.T) {
	got := MustParse("1.15").Pow(FromInt(5000))
	// 5000 * log10(1.15) ~= 303.47
	if !got.GreaterThan(MustParse("1e303")) || !got.LessThan(MustParse("1e304")) {
		t.Fatalf("1.15^5000 = %s, want ~3e303", got.Format())
	}
}

func TestComparisons(t *testing.T) {
	a := MustParse("1e250")
	b := MustParse("9.99e249")

	if !a.GreaterThan(b) || !b.LessThan(a) {
		t.Error("1e250 should be greater than 9.99e249")
	}
	if !a.GreaterThanOrEqual(a) || !a.LessThanOrEqual(a) || !a.Equal(a) {
		t.Error("a value should equal itself")
	}
	if !FromInt(-3).LessThan(FromInt(2)) {
		t.Error("-3 < 2")
	}
	if !MustParse("-1e300").LessThan(MustParse("-1e299")) {
		t.Error("-1e300 < -1e299")
	}
	if NaN.Equal(NaN) || NaN.LessThan(One) || NaN.GreaterThanOrEqual(One) {
		t.Error("NaN must not compare")
	}
	if !NegInf.LessThan(MustParse("-1e900")) || !Inf.GreaterThan(MustParse("1e900")) {
		t.Error("infinities must bound finite values")
	}
	if !MustParse("2.50").Equal(MustParse("2.5")) {
		t.Error("trailing zeros must not matter")
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0.00"},
		{"1.5", "1.50"},
		{"999.999", "1000.00"},
		{"999.99", "999.99"},
		{"1000", "1.00e+3"},
		{"12345", "1.23e+4"},
		{"99999", "1.00e+5"},
		{"1e250", "1.00e+250"},
		{"-5", "-5.00"},
		{"-12345", "-12345.00"},
		{"-999999999999999999999", "-999999999999999999999.00"},
		{"-1e21", "-1.00e+21"},
		{"Infinity", "Infinity"},
	}

	for _, tt := range tests {
		if got := MustParse(tt.in).Format(); got != tt.want {
			t.Errorf("Format(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSignificantDigitsBounded(t *testing.T) {
	n := One
	step := MustParse("1.15")
	for i := 0; i < 500; i++ {
		n = n.Mul(step)
	}
	if digits := n.Decimal().NumDigits(); digits > SignificantDigits {
		t.Fatalf("coefficient has %d digits, want <= %d", digits, SignificantDigits)
	}
}

func TestTrailingZerosTrimmed(t *testing.T) {
	tests := []struct {
		n    Number
		want string
	}{
		{MustParse("1e-999999999").Div(FromInt(10)), "1e-1000000000"},
		{MustParse("1.500"), "1.5"},
		{MustParse("1000"), "1000"},
		{FromInt(300).Mul(FromInt(1000)), "300000"},
	}

	for _, tt := range tests {
		if got := tt.n.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
		if c := tt.n.Decimal().Coefficient(); c.Sign() != 0 && c.Int64()%10 == 0 {
			t.Errorf("%s keeps trailing zeros in coefficient %s", tt.n, c)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "11.5", "-0.001", "1e250", "123456789e-80", "Infinity", "-Infinity"} {
		n := MustParse(s)
		back, err := Parse(n.String())
		if err != nil {
			t.Fatalf("Parse(%q): %v", n.String(), err)
		}
		if !back.Equal(n) {
			t.Errorf("%s -> %s -> %s", s, n.String(), back.String())
		}
	}
	if s := MustParse("1e250").String(); len(s) > 16 {
		t.Errorf("large values should use the compact form, got %d chars", len(s))
	}
}

func TestJSONTagged(t *testing.T) {
	raw, err := json.Marshal(MustParse("11.5"))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(raw) != `{"__type":"Decimal","value":"11.5"}` {
		t.Fatalf("unexpected encoding %s", raw)
	}

	inputs := map[string]string{
		`{"__type":"Decimal","value":"1e250"}`: "1e250",
		`{"__type":"Decimal","value":42}`:      "42",
		`{"value":"7"}`:                        "7",
		`1.25`:                                 "1.25",
		`"3e5"`:                                "300000",
		`null`:                                 "0",
	}
	for in, want := range inputs {
		var n Number
		if err := json.Unmarshal([]byte(in), &n); err != nil {
			t.Fatalf("Unmarshal(%s): %v", in, err)
		}
		if !n.Equal(MustParse(want)) {
			t.Errorf("Unmarshal(%s) = %s, want %s", in, n, want)
		}
	}
}

func TestJSONRejectsForeignTags(t *testing.T) {
	var n Number
	err := json.Unmarshal([]byte(`{"__type":"BigInt","value":"1"}`), &n)
	if err == nil || !strings.Contains(err.Error(), "__type") {
		t.Fatalf("expected __type error, got %v", err)
	}
	if err := json.Unmarshal([]byte(`"abc"`), &n); err == nil {
		t.Fatal("expected parse error for non-numeric string")
	}
}
