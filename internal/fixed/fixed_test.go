package fixed_test

import (
	"errors"
	"math/big"
	"testing"

	"SynthLedger/internal/fixed"
)

func TestFromInt_RawScale(t *testing.T) {
	v := fixed.FromInt(5000)
	if got := v.RawString(); got != "5000000000000000000000" {
		t.Errorf("got %s, want 5000e18", got)
	}
}

func TestFromRational_RoundsNearest(t *testing.T) {
	// 300/90 = 3.333...; the repeating tail cuts off at 18 places.
	v, err := fixed.FromRational(300, 90)
	if err != nil {
		t.Fatalf("FromRational: %v", err)
	}
	if got := v.RawString(); got != "3333333333333333333" {
		t.Errorf("got %s, want 3333333333333333333", got)
	}

	// 1/3 at 18 places ends in ...333; 2/3 rounds the final digit up.
	v, _ = fixed.FromRational(2, 3)
	if got := v.RawString(); got != "666666666666666667" {
		t.Errorf("2/3: got %s, want 666666666666666667", got)
	}
}

func TestFromRational_ZeroDenominator(t *testing.T) {
	_, err := fixed.FromRational(1, 0)
	if !errors.Is(err, fixed.ErrDivisionByZero) {
		t.Errorf("want ErrDivisionByZero, got %v", err)
	}
}

func TestDiv_TruncatesTowardZero(t *testing.T) {
	// 5000 / 3.03 = 1650.16501650...; the trailing .5016 must truncate,
	// never round up in the buyer's favor.
	c := fixed.FromInt(5000)
	ask := fixed.MustRaw("3030000000000000000")
	q, err := c.Div(ask)
	if err != nil {
		t.Fatalf("Div: %v", err)
	}
	if got := q.RawString(); got != "1650165016501650165016" {
		t.Errorf("got %s, want 1650165016501650165016", got)
	}
}

func TestApplyRatio_RoundsNearest(t *testing.T) {
	// 4950495049504950495048 * 10% = 495049504950495049504.8, rounds up.
	v := fixed.MustRaw("4950495049504950495048")
	got, err := v.ApplyRatio(fixed.RatioFromPercent(10))
	if err != nil {
		t.Fatalf("ApplyRatio: %v", err)
	}
	if got.RawString() != "495049504950495049505" {
		t.Errorf("got %s, want 495049504950495049505", got.RawString())
	}

	// 6580858085808580858082 * 10% = 658085808580858085808.2, rounds down.
	v = fixed.MustRaw("6580858085808580858082")
	got, _ = v.ApplyRatio(fixed.RatioFromPercent(10))
	if got.RawString() != "658085808580858085808" {
		t.Errorf("got %s, want 658085808580858085808", got.RawString())
	}
}

func TestMul_Overflow(t *testing.T) {
	huge := fixed.FromRaw(new(big.Int).Lsh(big.NewInt(1), 127))
	_, err := huge.Mul(huge)
	if !errors.Is(err, fixed.ErrNumericOverflow) {
		t.Errorf("want ErrNumericOverflow, got %v", err)
	}
}

func TestInfinity_ComparesAboveEverything(t *testing.T) {
	inf := fixed.Infinity()
	if !inf.IsInfinity() {
		t.Error("Infinity should report IsInfinity")
	}
	if inf.Cmp(fixed.FromInt(1_000_000_000)) <= 0 {
		t.Error("Infinity should compare above ordinary values")
	}
}

func TestString_TrimsTrailingZeros(t *testing.T) {
	v := fixed.MustRaw("3030000000000000000")
	if got := v.String(); got != "3.03" {
		t.Errorf("got %q, want 3.03", got)
	}
	if got := fixed.FromInt(-7).String(); got != "-7" {
		t.Errorf("got %q, want -7", got)
	}
}

func TestParse_RoundTrips(t *testing.T) {
	cases := []struct {
		in  string
		raw string
	}{
		{"3.03", "3030000000000000000"},
		{"0.000001", "1000000000000"},
		{"-1.5", "-1500000000000000000"},
		{"5000", "5000000000000000000000"},
		{".5", "500000000000000000"},
	}
	for _, tc := range cases {
		v, err := fixed.Parse(tc.in)
		if err != nil {
			t.Errorf("Parse(%q): %v", tc.in, err)
			continue
		}
		if got := v.RawString(); got != tc.raw {
			t.Errorf("Parse(%q): got %s, want %s", tc.in, got, tc.raw)
		}
	}
}

func TestParse_Rejections(t *testing.T) {
	for _, in := range []string{"abc", "1.2.3", "0.0000000000000000001", "", "--5", "-+5", "+5"} {
		if _, err := fixed.Parse(in); err == nil {
			t.Errorf("Parse(%q) should fail", in)
		}
	}
}

func TestJSON_DecimalStrings(t *testing.T) {
	v := fixed.MustRaw("3030000000000000000")
	data, err := v.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"3.03"` {
		t.Errorf("marshal: got %s", data)
	}

	var back fixed.Value
	if err := back.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Cmp(v) != 0 {
		t.Errorf("round trip: got %s", back.RawString())
	}

	// Bare numbers are accepted too.
	if err := back.UnmarshalJSON([]byte("42")); err != nil {
		t.Fatalf("unmarshal bare: %v", err)
	}
	if back.Cmp(fixed.FromInt(42)) != 0 {
		t.Errorf("bare number: got %s", back.RawString())
	}
}
