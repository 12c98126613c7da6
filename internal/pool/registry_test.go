package pool_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/pool"
)

func newTestRegistry(t *testing.T) (*pool.Registry, *ledger.Ledger, ledger.AssetID) {
	t.Helper()
	l := ledger.New()
	ausd := l.RegisterAsset("aUSD", fixed.Zero())
	return pool.NewRegistry("synthetic", l, ausd), l, ausd
}

func fund(t *testing.T, l *ledger.Ledger, who uuid.UUID, asset ledger.AssetID, units int64) {
	t.Helper()
	if err := l.Mint(who, asset, fixed.FromInt(units)); err != nil {
		t.Fatalf("fund %s: %v", who, err)
	}
}

func TestIsOwner(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	alice := uuid.New()

	id := r.CreatePool(alice)
	if !r.IsOwner(id, alice) {
		t.Error("creator should own the pool")
	}
	if r.IsOwner(id+1, alice) {
		t.Error("unknown pool should not report ownership")
	}
	if r.IsOwner(id, uuid.New()) {
		t.Error("stranger should not own the pool")
	}
}

func TestCreatePool_SequentialIDs(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	alice := uuid.New()

	if id := r.CreatePool(alice); id != 0 {
		t.Errorf("first pool: got %d, want 0", id)
	}
	if got := r.NextPoolID(); got != 1 {
		t.Errorf("next id: got %d, want 1", got)
	}
	if id := r.CreatePool(alice); id != 1 {
		t.Errorf("second pool: got %d, want 1", id)
	}
}

func TestDisableEnablePool(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	alice, bob := uuid.New(), uuid.New()
	id := r.CreatePool(alice)

	if err := r.DisablePool(alice, id); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if r.IsEnabled(id) {
		t.Error("pool should be disabled")
	}
	if err := r.DisablePool(bob, id); !errors.Is(err, pool.ErrNoPermission) {
		t.Errorf("stranger disable: want ErrNoPermission, got %v", err)
	}
	if err := r.EnablePool(alice, 99); !errors.Is(err, pool.ErrPoolNotFound) {
		t.Errorf("unknown pool: want ErrPoolNotFound, got %v", err)
	}
	if err := r.EnablePool(alice, id); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if !r.IsEnabled(id) {
		t.Error("pool should be enabled again")
	}
}

func TestDepositLiquidity(t *testing.T) {
	r, l, ausd := newTestRegistry(t)
	alice := uuid.New()
	fund(t, l, alice, ausd, 1000)
	id := r.CreatePool(alice)

	if err := r.DepositLiquidity(alice, id, fixed.FromInt(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := r.Liquidity(id); got.Cmp(fixed.FromInt(1000)) != 0 {
		t.Errorf("liquidity: got %s, want 1000", got)
	}
	if got := l.FreeBalance(r.Account(), ausd); got.Cmp(fixed.FromInt(1000)) != 0 {
		t.Errorf("registry account: got %s, want 1000", got)
	}

	err := r.DepositLiquidity(alice, id+1, fixed.FromInt(1))
	if !errors.Is(err, pool.ErrPoolNotFound) {
		t.Errorf("unknown pool deposit: want ErrPoolNotFound, got %v", err)
	}
}

func TestWithdrawLiquidity(t *testing.T) {
	r, l, ausd := newTestRegistry(t)
	alice := uuid.New()
	fund(t, l, alice, ausd, 1000)
	id := r.CreatePool(alice)
	if err := r.DepositLiquidity(alice, id, fixed.FromInt(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := r.WithdrawLiquidity(alice, id, fixed.FromInt(500)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := r.Liquidity(id); got.Cmp(fixed.FromInt(500)) != 0 {
		t.Errorf("liquidity: got %s, want 500", got)
	}
	if got := l.FreeBalance(alice, ausd); got.Cmp(fixed.FromInt(500)) != 0 {
		t.Errorf("alice: got %s, want 500", got)
	}

	if err := r.WithdrawLiquidity(uuid.New(), id, fixed.FromInt(1)); !errors.Is(err, pool.ErrNoPermission) {
		t.Errorf("stranger withdraw: want ErrNoPermission, got %v", err)
	}
}

func TestWithdrawLiquidity_Limits(t *testing.T) {
	l := ledger.New()
	ausd := l.RegisterAsset("aUSD", fixed.FromInt(10))
	r := pool.NewRegistry("synthetic", l, ausd)
	alice := uuid.New()
	fund(t, l, alice, ausd, 1000)
	id := r.CreatePool(alice)
	if err := r.DepositLiquidity(alice, id, fixed.FromInt(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := r.WithdrawLiquidity(alice, id, fixed.FromInt(5000)); !errors.Is(err, pool.ErrCannotWithdrawAmount) {
		t.Errorf("overdraw: want ErrCannotWithdrawAmount, got %v", err)
	}

	// Leaving 5 aUSD behind is under the existential deposit of 10.
	err := r.WithdrawLiquidity(alice, id, fixed.FromInt(995))
	if !errors.Is(err, pool.ErrCannotWithdrawExistentialDeposit) {
		t.Errorf("dust residue: want ErrCannotWithdrawExistentialDeposit, got %v", err)
	}
	if got := r.Liquidity(id); got.Cmp(fixed.FromInt(1000)) != 0 {
		t.Errorf("failed withdraw must not move funds: got %s", got)
	}

	// A full withdrawal to zero is fine.
	if err := r.WithdrawLiquidity(alice, id, fixed.FromInt(1000)); err != nil {
		t.Fatalf("full withdraw: %v", err)
	}
	if got := r.Liquidity(id); !got.IsZero() {
		t.Errorf("liquidity after full withdraw: got %s, want 0", got)
	}
}

type exposureStub bool

func (e exposureStub) HasOpenExposure(pool.ID) bool { return bool(e) }

func TestRemovePool(t *testing.T) {
	r, l, ausd := newTestRegistry(t)
	alice := uuid.New()
	fund(t, l, alice, ausd, 1000)
	id := r.CreatePool(alice)
	if err := r.DepositLiquidity(alice, id, fixed.FromInt(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := r.RemovePool(alice, id); !errors.Is(err, pool.ErrCannotRemovePool) {
		t.Errorf("non-zero balance: want ErrCannotRemovePool, got %v", err)
	}
	if err := r.WithdrawLiquidity(alice, id, fixed.FromInt(1000)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	r.SetExposureChecker(exposureStub(true))
	if err := r.RemovePool(alice, id); !errors.Is(err, pool.ErrCannotRemovePool) {
		t.Errorf("open exposure: want ErrCannotRemovePool, got %v", err)
	}

	r.SetExposureChecker(exposureStub(false))
	if err := r.RemovePool(uuid.New(), id); !errors.Is(err, pool.ErrNoPermission) {
		t.Errorf("stranger remove: want ErrNoPermission, got %v", err)
	}
	if err := r.RemovePool(alice, id); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if r.Exists(id) {
		t.Error("pool should be erased")
	}
	if _, ok := r.PoolOwner(id); ok {
		t.Error("ownership entry should be erased")
	}
	if got := r.Liquidity(id); !got.IsZero() {
		t.Errorf("removed pool liquidity: got %s, want 0", got)
	}
	// The ID is never reassigned.
	if next := r.CreatePool(alice); next != id+1 {
		t.Errorf("next pool after removal: got %d, want %d", next, id+1)
	}
}

func TestMultiInstance_IndependentStorage(t *testing.T) {
	l := ledger.New()
	ausd := l.RegisterAsset("aUSD", fixed.Zero())
	r1 := pool.NewRegistry("synthetic", l, ausd)
	r2 := pool.NewRegistry("margin", l, ausd)
	alice := uuid.New()
	fund(t, l, alice, ausd, 1000)

	id := r1.CreatePool(alice)
	if got := len(r1.PoolIDs()); got != 1 {
		t.Errorf("r1 pools: got %d, want 1", got)
	}
	if got := len(r2.PoolIDs()); got != 0 {
		t.Errorf("r2 pools: got %d, want 0", got)
	}
	if r1.NextPoolID() != 1 || r2.NextPoolID() != 0 {
		t.Errorf("id counters should be independent: %d, %d", r1.NextPoolID(), r2.NextPoolID())
	}

	r2.CreatePool(alice)
	if err := r1.DepositLiquidity(alice, id, fixed.FromInt(1000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := r1.Liquidity(0); got.Cmp(fixed.FromInt(1000)) != 0 {
		t.Errorf("r1 pool 0: got %s, want 1000", got)
	}
	if got := r2.Liquidity(0); !got.IsZero() {
		t.Errorf("r2 pool 0: got %s, want 0", got)
	}
	if got := l.FreeBalance(r2.Account(), ausd); !got.IsZero() {
		t.Errorf("r2 account should hold nothing, got %s", got)
	}
}

func TestPairConfig(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	l := ledger.New()
	feur := l.RegisterAsset("fEUR", fixed.Zero())
	alice, bob := uuid.New(), uuid.New()
	id := r.CreatePool(alice)

	if err := r.SetSpread(bob, id, feur, fixed.RatioFromPercent(1)); !errors.Is(err, pool.ErrNoPermission) {
		t.Errorf("stranger spread: want ErrNoPermission, got %v", err)
	}
	if err := r.SetSpread(alice, id, feur, fixed.Ratio(2_000_000)); err == nil {
		t.Error("spread above 100% should be rejected")
	}
	if err := r.SetSpread(alice, id, feur, fixed.RatioFromPercent(1)); err != nil {
		t.Fatalf("set spread: %v", err)
	}
	if err := r.SetAdditionalCollateralRatio(alice, id, feur, fixed.RatioFromPercent(1)); err != nil {
		t.Fatalf("set ratio: %v", err)
	}

	r.SetMinAdditionalCollateralRatio(fixed.RatioFromPercent(10))
	if got := r.EffectiveAdditionalRatio(id, feur); got != fixed.RatioFromPercent(10) {
		t.Errorf("effective ratio should respect floor: got %d", got)
	}
	if err := r.SetAdditionalCollateralRatio(alice, id, feur, fixed.RatioFromPercent(25)); err != nil {
		t.Fatalf("set ratio: %v", err)
	}
	if got := r.EffectiveAdditionalRatio(id, feur); got != fixed.RatioFromPercent(25) {
		t.Errorf("effective ratio above floor: got %d", got)
	}

	cfg, ok := r.PairConfig(id, feur)
	if !ok || !cfg.SpreadSet || cfg.Spread != fixed.RatioFromPercent(1) {
		t.Errorf("pair config not persisted: %+v ok=%v", cfg, ok)
	}
	if got := r.LiquidationRatio(id, feur); got != fixed.RatioFromPercent(5) {
		t.Errorf("default liquidation ratio: got %d, want 5%%", got)
	}
}
