package trading_test

import (
	"errors"
	"testing"

	"SynthLedger/internal/fixed"
	"SynthLedger/internal/trading"
)

func TestLiquidate_FullPosition(t *testing.T) {
	f := newFixture(t, 20_000, 10_000)
	if _, err := f.engine.Buy(f.alice, f.poolID, f.feur, fixed.FromInt(5000)); err != nil {
		t.Fatalf("buy: %v", err)
	}

	// Price moves against the pool: 3 -> 300/90.
	f.setPrice(t, 300, 90)
	safe, err := f.engine.IsSafe(f.poolID, f.feur)
	if err != nil {
		t.Fatalf("is safe: %v", err)
	}
	if safe {
		t.Fatal("pair should be unsafe after the price move")
	}

	all := f.book.Trader(f.alice, f.poolID, f.feur).Synthetic
	if _, err := f.engine.Liquidate(f.alice, f.poolID, f.feur, all); err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	f.checkRaw(t, "pool liquidity", f.pools.Liquidity(f.poolID), "19554455445544554455447")
	f.checkRaw(t, "alice aUSD", f.ledger.FreeBalance(f.alice, f.ausd), "10445544554455445544552")
	f.checkRaw(t, "alice fEUR", f.ledger.FreeBalance(f.alice, f.feur), "0")
	f.checkRaw(t, "locked", f.lockedBalance(), "0")
}

func TestLiquidate_Partially(t *testing.T) {
	f := newFixture(t, 20_000, 10_000)
	if _, err := f.engine.Buy(f.alice, f.poolID, f.feur, fixed.FromInt(5000)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	f.setPrice(t, 300, 90)

	res, err := f.engine.Liquidate(f.alice, f.poolID, f.feur, fixed.FromInt(800))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	f.checkRaw(t, "alice aUSD", f.ledger.FreeBalance(f.alice, f.ausd), "7640000000000000000000")
	f.checkRaw(t, "alice fEUR", f.ledger.FreeBalance(f.alice, f.feur), "850165016501650165016")
	f.checkRaw(t, "locked", f.lockedBalance(), "2805544554455445544553")
	f.checkRaw(t, "pool liquidity", f.pools.Liquidity(f.poolID), "19554455445544554455447")
	if !res.Penalty.IsZero() {
		t.Errorf("default penalty should be zero, got %s", res.Penalty)
	}

	// Close out the remainder; the stranded wei sweeps to insurance instead
	// of refunding the pool.
	rest := f.book.Trader(f.alice, f.poolID, f.feur).Synthetic
	res, err = f.engine.Liquidate(f.alice, f.poolID, f.feur, rest)
	if err != nil {
		t.Fatalf("liquidate rest: %v", err)
	}
	f.checkRaw(t, "alice aUSD", f.ledger.FreeBalance(f.alice, f.ausd), "10445544554455445544552")
	f.checkRaw(t, "locked", f.lockedBalance(), "0")
	f.checkRaw(t, "pool liquidity", f.pools.Liquidity(f.poolID), "19554455445544554455447")
	f.checkRaw(t, "insurance sweep", res.Swept, "1")
	f.checkRaw(t, "insurance account", f.ledger.FreeBalance(f.engine.Insurance(), f.ausd), "1")

	if err := f.pools.WithdrawLiquidity(f.owner, f.poolID, fixed.FromInt(1000)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	f.checkRaw(t, "pool liquidity", f.pools.Liquidity(f.poolID), "18554455445544554455447")
}

func TestLiquidate_SafePosition(t *testing.T) {
	f := newFixture(t, 20_000, 10_000)
	if _, err := f.engine.Buy(f.alice, f.poolID, f.feur, fixed.FromInt(5000)); err != nil {
		t.Fatalf("buy: %v", err)
	}

	_, err := f.engine.Liquidate(f.alice, f.poolID, f.feur, fixed.MustRaw("1"))
	if !errors.Is(err, trading.ErrStillInSafePosition) {
		t.Errorf("safe pair: want ErrStillInSafePosition, got %v", err)
	}
}

func TestAddCollateral_CuresPosition(t *testing.T) {
	f := newFixture(t, 20_000, 10_000)
	if err := f.pools.SetAdditionalCollateralRatio(f.owner, f.poolID, f.feur, fixed.RatioFromPercent(1)); err != nil {
		t.Fatalf("ratio: %v", err)
	}
	if err := f.ledger.Mint(f.owner, f.ausd, fixed.FromInt(20_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := f.engine.Buy(f.alice, f.poolID, f.feur, fixed.FromInt(5000)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	f.setPrice(t, 300, 90)

	if _, err := f.engine.Liquidate(f.alice, f.poolID, f.feur, fixed.MustRaw("1")); err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if err := f.engine.AddCollateral(f.owner, f.poolID, f.feur, fixed.FromInt(20_000)); err != nil {
		t.Fatalf("add collateral: %v", err)
	}
	_, err := f.engine.Liquidate(f.alice, f.poolID, f.feur, fixed.MustRaw("1"))
	if !errors.Is(err, trading.ErrStillInSafePosition) {
		t.Errorf("cured pair: want ErrStillInSafePosition, got %v", err)
	}
}

func TestLiquidate_Penalty(t *testing.T) {
	f := newFixture(t, 20_000, 10_000)
	f.engine.SetLiquidationPenalty(fixed.RatioFromPercent(10))
	if _, err := f.engine.Buy(f.alice, f.poolID, f.feur, fixed.FromInt(5000)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	f.setPrice(t, 300, 90)

	res, err := f.engine.Liquidate(f.alice, f.poolID, f.feur, fixed.FromInt(800))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	// Gross proceeds 800 * 3.3 = 2640; 10% withheld for the pool.
	f.checkRaw(t, "penalty", res.Penalty, "264000000000000000000")
	f.checkRaw(t, "trader proceeds", res.Proceeds, "2376000000000000000000")
	f.checkRaw(t, "alice aUSD", f.ledger.FreeBalance(f.alice, f.ausd), "7376000000000000000000")
	f.checkRaw(t, "pool liquidity", f.pools.Liquidity(f.poolID), "19818455445544554455447")
}
