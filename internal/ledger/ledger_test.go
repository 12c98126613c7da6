package ledger_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
	"SynthLedger/internal/ledger"
)

func TestRegisterAsset_Idempotent(t *testing.T) {
	l := ledger.New()
	a := l.RegisterAsset("aUSD", fixed.Zero())
	b := l.RegisterAsset("aUSD", fixed.Zero())
	if a != b {
		t.Errorf("re-registering a symbol should return the same ID: %d vs %d", a, b)
	}
	if _, ok := l.AssetBySymbol("fEUR"); ok {
		t.Error("fEUR should not be registered yet")
	}
}

func TestTransfer_MovesBalance(t *testing.T) {
	l := ledger.New()
	ausd := l.RegisterAsset("aUSD", fixed.Zero())
	alice, bob := uuid.New(), uuid.New()

	if err := l.Mint(alice, ausd, fixed.FromInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Transfer(alice, bob, ausd, fixed.FromInt(400)); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if got := l.FreeBalance(alice, ausd); got.Cmp(fixed.FromInt(600)) != 0 {
		t.Errorf("alice: got %s, want 600", got)
	}
	if got := l.FreeBalance(bob, ausd); got.Cmp(fixed.FromInt(400)) != 0 {
		t.Errorf("bob: got %s, want 400", got)
	}
}

func TestTransfer_InsufficientBalance(t *testing.T) {
	l := ledger.New()
	ausd := l.RegisterAsset("aUSD", fixed.Zero())
	alice, bob := uuid.New(), uuid.New()

	err := l.Transfer(alice, bob, ausd, fixed.FromInt(1))
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("want ErrInsufficientBalance, got %v", err)
	}
}

func TestBurn_MoreThanHeld(t *testing.T) {
	l := ledger.New()
	feur := l.RegisterAsset("fEUR", fixed.Zero())
	alice := uuid.New()

	if err := l.Mint(alice, feur, fixed.FromInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.Burn(alice, feur, fixed.FromInt(11)); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("want ErrInsufficientBalance, got %v", err)
	}
}

func TestBelowExistentialDeposit(t *testing.T) {
	l := ledger.New()
	feur := l.RegisterAsset("fEUR", fixed.FromInt(1))

	if !l.BelowExistentialDeposit(feur, fixed.MustRaw("999999999999999999")) {
		t.Error("0.999... should be below an ED of 1")
	}
	if l.BelowExistentialDeposit(feur, fixed.FromInt(1)) {
		t.Error("exactly the ED is not below it")
	}
	if l.BelowExistentialDeposit(feur, fixed.Zero()) {
		t.Error("zero is closed, not dust")
	}
}

func TestTotalIssuance(t *testing.T) {
	l := ledger.New()
	feur := l.RegisterAsset("fEUR", fixed.Zero())
	ausd := l.RegisterAsset("aUSD", fixed.Zero())
	alice, bob := uuid.New(), uuid.New()

	l.Mint(alice, feur, fixed.FromInt(3))
	l.Mint(bob, feur, fixed.FromInt(4))
	l.Mint(bob, ausd, fixed.FromInt(100))

	if got := l.TotalIssuance(feur); got.Cmp(fixed.FromInt(7)) != 0 {
		t.Errorf("got %s, want 7", got)
	}
}
