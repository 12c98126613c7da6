package fixed

import "math/big"

// Ratio is a parts-per-million fraction, the configuration unit for spreads,
// collateral buffers and safety thresholds. One million parts equal 100%;
// ratios above one million (buffers over 100%) are valid.
type Ratio uint32

const RatioScale = 1_000_000

// RatioFromPercent converts whole percents to a Ratio.
func RatioFromPercent(p uint32) Ratio {
	return Ratio(p * 10_000)
}

// IsFraction reports whether r lies in [0, 1].
func (r Ratio) IsFraction() bool {
	return r <= RatioScale
}

// ApplyRatio returns v * r rounded to the nearest unit, half away from zero.
// Ratio application rounds to nearest while plain Mul/Div truncate; the split
// reproduces the original fixed-point engine exactly.
func (v Value) ApplyRatio(r Ratio) (Value, error) {
	num := new(big.Int).Mul(v.big(), big.NewInt(int64(r)))
	return roundedDiv(num, big.NewInt(RatioScale))
}
