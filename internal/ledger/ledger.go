package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownAsset        = errors.New("unknown asset")
)

// AssetID maps asset symbols to numeric IDs for compact keys.
type AssetID uint16

// Asset describes a registered currency: its symbol and the existential
// deposit below which a non-zero balance may not remain.
type Asset struct {
	ID                 AssetID
	Symbol             string
	ExistentialDeposit fixed.Value
}

type balanceKey struct {
	Account uuid.UUID
	Asset   AssetID
}

// Ledger is the multi-asset currency collaborator: free balances per
// (account, asset), atomic transfers, and mint/burn for synthetic issuance.
// In-memory; callers serialize access.
type Ledger struct {
	assets   map[AssetID]Asset
	symbols  map[string]AssetID
	nextID   AssetID
	balances map[balanceKey]fixed.Value
}

func New() *Ledger {
	return &Ledger{
		assets:   make(map[AssetID]Asset),
		symbols:  make(map[string]AssetID),
		nextID:   1,
		balances: make(map[balanceKey]fixed.Value),
	}
}

// RegisterAsset adds a currency and returns its ID. Registering an existing
// symbol returns the existing ID unchanged.
func (l *Ledger) RegisterAsset(symbol string, existentialDeposit fixed.Value) AssetID {
	if id, ok := l.symbols[symbol]; ok {
		return id
	}
	id := l.nextID
	l.nextID++
	l.assets[id] = Asset{ID: id, Symbol: symbol, ExistentialDeposit: existentialDeposit}
	l.symbols[symbol] = id
	return id
}

// AssetBySymbol resolves a symbol to its ID.
func (l *Ledger) AssetBySymbol(symbol string) (AssetID, bool) {
	id, ok := l.symbols[symbol]
	return id, ok
}

// Symbol returns the symbol for an asset ID, or "" if unknown.
func (l *Ledger) Symbol(id AssetID) string {
	return l.assets[id].Symbol
}

// ExistentialDeposit returns the minimum non-zero balance for an asset.
func (l *Ledger) ExistentialDeposit(id AssetID) fixed.Value {
	return l.assets[id].ExistentialDeposit
}

// FreeBalance returns the spendable balance; zero for unknown accounts.
func (l *Ledger) FreeBalance(account uuid.UUID, asset AssetID) fixed.Value {
	if v, ok := l.balances[balanceKey{account, asset}]; ok {
		return v
	}
	return fixed.Zero()
}

func (l *Ledger) set(account uuid.UUID, asset AssetID, v fixed.Value) {
	key := balanceKey{account, asset}
	if v.IsZero() {
		delete(l.balances, key)
		return
	}
	l.balances[key] = v
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(from, to uuid.UUID, asset AssetID, amount fixed.Value) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("transfer of negative amount %s", amount)
	}
	if amount.IsZero() || from == to {
		return nil
	}
	if _, ok := l.assets[asset]; !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownAsset, asset)
	}
	have := l.FreeBalance(from, asset)
	if have.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, have, amount)
	}
	rem, err := have.Sub(amount)
	if err != nil {
		return err
	}
	sum, err := l.FreeBalance(to, asset).Add(amount)
	if err != nil {
		return err
	}
	l.set(from, asset, rem)
	l.set(to, asset, sum)
	return nil
}

// Mint credits newly issued units to an account. Used by the trading engine
// for synthetic issuance and by tests to fund accounts.
func (l *Ledger) Mint(account uuid.UUID, asset AssetID, amount fixed.Value) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("mint of negative amount %s", amount)
	}
	if _, ok := l.assets[asset]; !ok {
		return fmt.Errorf("%w: id %d", ErrUnknownAsset, asset)
	}
	sum, err := l.FreeBalance(account, asset).Add(amount)
	if err != nil {
		return err
	}
	l.set(account, asset, sum)
	return nil
}

// Burn destroys units held by an account.
func (l *Ledger) Burn(account uuid.UUID, asset AssetID, amount fixed.Value) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("burn of negative amount %s", amount)
	}
	have := l.FreeBalance(account, asset)
	if have.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, burn %s", ErrInsufficientBalance, have, amount)
	}
	rem, err := have.Sub(amount)
	if err != nil {
		return err
	}
	l.set(account, asset, rem)
	return nil
}

// BelowExistentialDeposit reports whether a non-zero balance is under the
// asset's minimum and should be swept.
func (l *Ledger) BelowExistentialDeposit(asset AssetID, v fixed.Value) bool {
	if v.Sign() <= 0 {
		return false
	}
	return v.Cmp(l.assets[asset].ExistentialDeposit) < 0
}

// TotalIssuance sums all balances of an asset.
func (l *Ledger) TotalIssuance(asset AssetID) fixed.Value {
	total := fixed.Zero()
	for k, v := range l.balances {
		if k.Asset != asset {
			continue
		}
		sum, err := total.Add(v)
		if err != nil {
			// Individual balances are bounded; the sum of a real book
			// cannot exceed the 128-bit magnitude.
			continue
		}
		total = sum
	}
	return total
}
