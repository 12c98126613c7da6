package state

import (
	"SynthLedger/internal/fixed"
)

// RequiredCollateral is the collateral a pool must keep locked against an
// outstanding synthetic position: the position's value at the given price
// plus the additional-collateral buffer. The value is truncated, the buffer
// rounds to nearest; both roundings favor the position's backing.
func RequiredCollateral(synthetic, price fixed.Value, ratio fixed.Ratio) (fixed.Value, error) {
	value, err := synthetic.Mul(price)
	if err != nil {
		return fixed.Zero(), err
	}
	return buffered(value, ratio)
}

// AdditionalForOpen computes the pool's contribution when a position opens.
// The lock target is the position value plus the buffer; the pool tops up
// whatever the trader's collateral does not cover.
func AdditionalForOpen(collateral, value fixed.Value, ratio fixed.Ratio) (lockTarget, additional fixed.Value, err error) {
	lockTarget, err = buffered(value, ratio)
	if err != nil {
		return fixed.Zero(), fixed.Zero(), err
	}
	additional, err = lockTarget.Sub(collateral)
	if err != nil {
		return fixed.Zero(), fixed.Zero(), err
	}
	if additional.Sign() < 0 {
		additional = fixed.Zero()
	}
	return lockTarget, additional, nil
}

// buffered returns value plus value*ratio rounded to nearest.
func buffered(value fixed.Value, ratio fixed.Ratio) (fixed.Value, error) {
	buf, err := value.ApplyRatio(ratio)
	if err != nil {
		return fixed.Zero(), err
	}
	return value.Add(buf)
}
