package pool

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
	"SynthLedger/internal/ledger"
)

var (
	ErrPoolNotFound                     = errors.New("pool not found")
	ErrNoPermission                     = errors.New("no permission")
	ErrCannotRemovePool                 = errors.New("cannot remove pool")
	ErrCannotWithdrawAmount             = errors.New("cannot withdraw amount")
	ErrCannotWithdrawExistentialDeposit = errors.New("cannot withdraw below existential deposit")
)

// ID identifies a pool within one registry instance. IDs are assigned
// sequentially and never reused; the same numeric ID in another registry
// instance is unrelated.
type ID uint64

// Owner records who created a pool and the per-owner sub-index, allowing one
// account to hold several pools.
type Owner struct {
	Account uuid.UUID
	Index   ID
}

// PairConfig is the per-(pool, asset) trading configuration.
type PairConfig struct {
	Spread                    fixed.Ratio
	SpreadSet                 bool
	AdditionalCollateralRatio fixed.Ratio
	LiquidationRatio          fixed.Ratio
	SyntheticEnabled          bool
}

type pairKey struct {
	Pool  ID
	Asset ledger.AssetID
}

// ExposureChecker reports whether any open synthetic exposure still
// references a pool. The liquidation engine owns the semantics; the registry
// only consults it to gate removal.
type ExposureChecker interface {
	HasOpenExposure(poolID ID) bool
}

// Registry owns pool identity, ownership, enabled state and collateral
// balances for one namespace. Distinct instances have fully isolated id
// spaces and storage; deposited collateral is held by a deterministic
// per-namespace ledger account.
type Registry struct {
	namespace string
	account   uuid.UUID
	ledger    *ledger.Ledger
	asset     ledger.AssetID

	nextID   ID
	owners   map[ID]Owner
	balances map[ID]fixed.Value
	enabled  map[ID]bool
	pairs    map[pairKey]PairConfig

	minAdditionalRatio      fixed.Ratio
	defaultLiquidationRatio fixed.Ratio

	exposure ExposureChecker
}

// NewRegistry creates an isolated registry for the given namespace. The
// settlement asset denominates all pool balances.
func NewRegistry(namespace string, l *ledger.Ledger, settlement ledger.AssetID) *Registry {
	return &Registry{
		namespace:               namespace,
		account:                 uuid.NewSHA1(uuid.NameSpaceOID, []byte("synthledger/pools/"+namespace)),
		ledger:                  l,
		asset:                   settlement,
		owners:                  make(map[ID]Owner),
		balances:                make(map[ID]fixed.Value),
		enabled:                 make(map[ID]bool),
		pairs:                   make(map[pairKey]PairConfig),
		defaultLiquidationRatio: fixed.RatioFromPercent(5),
	}
}

// SetExposureChecker wires the removal gate. Must be called before
// RemovePool is used; a nil checker treats every pool as exposure-free.
func (r *Registry) SetExposureChecker(c ExposureChecker) {
	r.exposure = c
}

// Namespace returns the registry's namespace identifier.
func (r *Registry) Namespace() string { return r.namespace }

// Account returns the ledger account holding all deposited collateral for
// this registry instance.
func (r *Registry) Account() uuid.UUID { return r.account }

// SettlementAsset returns the asset pool balances are denominated in.
func (r *Registry) SettlementAsset() ledger.AssetID { return r.asset }

// CreatePool allocates the next sequential pool ID for the owner. The pool
// starts enabled with zero balance and no configured pairs.
func (r *Registry) CreatePool(owner uuid.UUID) ID {
	id := r.nextID
	r.nextID++
	r.owners[id] = Owner{Account: owner, Index: id}
	r.balances[id] = fixed.Zero()
	r.enabled[id] = true
	return id
}

// NextPoolID returns the ID the next created pool will receive.
func (r *Registry) NextPoolID() ID { return r.nextID }

// Exists reports whether the pool ID is live.
func (r *Registry) Exists(id ID) bool {
	_, ok := r.owners[id]
	return ok
}

// IsOwner reports whether account owns the pool. Unknown IDs return false.
func (r *Registry) IsOwner(id ID, account uuid.UUID) bool {
	o, ok := r.owners[id]
	return ok && o.Account == account
}

// PoolOwner returns the ownership record for a pool.
func (r *Registry) PoolOwner(id ID) (Owner, bool) {
	o, ok := r.owners[id]
	return o, ok
}

// IsEnabled reports whether new trades are accepted against the pool.
func (r *Registry) IsEnabled(id ID) bool {
	return r.enabled[id]
}

func (r *Registry) requireOwner(id ID, caller uuid.UUID) error {
	o, ok := r.owners[id]
	if !ok {
		return fmt.Errorf("%w: pool %d", ErrPoolNotFound, id)
	}
	if o.Account != caller {
		return fmt.Errorf("%w: pool %d is not owned by %s", ErrNoPermission, id, caller)
	}
	return nil
}

// EnablePool re-opens a pool for trading. Owner only.
func (r *Registry) EnablePool(caller uuid.UUID, id ID) error {
	if err := r.requireOwner(id, caller); err != nil {
		return err
	}
	r.enabled[id] = true
	return nil
}

// DisablePool soft-stops a pool: existing positions stand, new trades are
// rejected. Owner only.
func (r *Registry) DisablePool(caller uuid.UUID, id ID) error {
	if err := r.requireOwner(id, caller); err != nil {
		return err
	}
	r.enabled[id] = false
	return nil
}

// RemovePool erases a pool permanently. It requires ownership, a zero
// collateral balance and no open synthetic exposure; the ID is never
// reassigned.
func (r *Registry) RemovePool(caller uuid.UUID, id ID) error {
	if err := r.requireOwner(id, caller); err != nil {
		return err
	}
	if !r.balances[id].IsZero() {
		return fmt.Errorf("%w: pool %d still holds collateral", ErrCannotRemovePool, id)
	}
	if r.exposure != nil && r.exposure.HasOpenExposure(id) {
		return fmt.Errorf("%w: pool %d still backs open exposure", ErrCannotRemovePool, id)
	}
	delete(r.owners, id)
	delete(r.balances, id)
	delete(r.enabled, id)
	for k := range r.pairs {
		if k.Pool == id {
			delete(r.pairs, k)
		}
	}
	return nil
}

// DepositLiquidity moves amount from the depositor into the pool's
// collateral balance. Any account may fund any pool.
func (r *Registry) DepositLiquidity(from uuid.UUID, id ID, amount fixed.Value) error {
	if !r.Exists(id) {
		return fmt.Errorf("%w: pool %d", ErrPoolNotFound, id)
	}
	if err := r.ledger.Transfer(from, r.account, r.asset, amount); err != nil {
		return err
	}
	sum, err := r.balances[id].Add(amount)
	if err != nil {
		return err
	}
	r.balances[id] = sum
	return nil
}

// WithdrawLiquidity returns collateral to the pool owner. Withdrawing more
// than the balance fails; so does leaving a residue between zero and the
// settlement asset's existential deposit (withdraw fully or leave at least
// the minimum).
func (r *Registry) WithdrawLiquidity(caller uuid.UUID, id ID, amount fixed.Value) error {
	if err := r.requireOwner(id, caller); err != nil {
		return err
	}
	balance := r.balances[id]
	if amount.Cmp(balance) > 0 {
		return fmt.Errorf("%w: balance %s, requested %s", ErrCannotWithdrawAmount, balance, amount)
	}
	remaining, err := balance.Sub(amount)
	if err != nil {
		return err
	}
	if r.ledger.BelowExistentialDeposit(r.asset, remaining) {
		return fmt.Errorf("%w: residue %s", ErrCannotWithdrawExistentialDeposit, remaining)
	}
	if err := r.ledger.Transfer(r.account, caller, r.asset, amount); err != nil {
		return err
	}
	r.balances[id] = remaining
	return nil
}

// Liquidity returns the pool's free collateral balance; zero for unknown
// pools rather than an error.
func (r *Registry) Liquidity(id ID) fixed.Value {
	if v, ok := r.balances[id]; ok {
		return v
	}
	return fixed.Zero()
}

// PoolIDs returns all live pool IDs in ascending order.
func (r *Registry) PoolIDs() []ID {
	ids := make([]ID, 0, len(r.owners))
	for id := range r.owners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// DebitPool pays amount out of the pool's free balance to a ledger account.
// Settlement-engine use only; the public withdrawal path is
// WithdrawLiquidity.
func (r *Registry) DebitPool(id ID, to uuid.UUID, amount fixed.Value) error {
	if !r.Exists(id) {
		return fmt.Errorf("%w: pool %d", ErrPoolNotFound, id)
	}
	balance := r.balances[id]
	if amount.Cmp(balance) > 0 {
		return fmt.Errorf("%w: pool %d free balance %s, need %s",
			ledger.ErrInsufficientBalance, id, balance, amount)
	}
	if err := r.ledger.Transfer(r.account, to, r.asset, amount); err != nil {
		return err
	}
	remaining, err := balance.Sub(amount)
	if err != nil {
		return err
	}
	r.balances[id] = remaining
	return nil
}

// CreditPool moves amount from a ledger account into the pool's free
// balance. Settlement-engine use only.
func (r *Registry) CreditPool(id ID, from uuid.UUID, amount fixed.Value) error {
	if !r.Exists(id) {
		return fmt.Errorf("%w: pool %d", ErrPoolNotFound, id)
	}
	if err := r.ledger.Transfer(from, r.account, r.asset, amount); err != nil {
		return err
	}
	sum, err := r.balances[id].Add(amount)
	if err != nil {
		return err
	}
	r.balances[id] = sum
	return nil
}
