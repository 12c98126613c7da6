package trading

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/pool"
	"SynthLedger/internal/pricing"
	"SynthLedger/internal/state"
)

var ErrInsufficientSyntheticBalance = errors.New("insufficient synthetic balance")

// Engine settles synthetic buys and sells against one pool registry. Locked
// collateral lives in a deterministic per-namespace vault account; the
// registry account holds only free pool liquidity. All operations validate
// and compute first, then commit, so a failed operation leaves no partial
// state behind.
type Engine struct {
	ledger    *ledger.Ledger
	pools     *pool.Registry
	pricing   *pricing.Engine
	book      *state.Book
	vault     uuid.UUID
	insurance uuid.UUID

	liquidationPenalty fixed.Ratio
}

func NewEngine(l *ledger.Ledger, pools *pool.Registry, pe *pricing.Engine, book *state.Book) *Engine {
	ns := pools.Namespace()
	return &Engine{
		ledger:    l,
		pools:     pools,
		pricing:   pe,
		book:      book,
		vault:     uuid.NewSHA1(uuid.NameSpaceOID, []byte("synthledger/vault/"+ns)),
		insurance: uuid.NewSHA1(uuid.NameSpaceOID, []byte("synthledger/insurance/"+ns)),
	}
}

// Vault returns the account holding locked collateral.
func (e *Engine) Vault() uuid.UUID { return e.vault }

// Insurance returns the account liquidation surpluses are swept to.
func (e *Engine) Insurance() uuid.UUID { return e.insurance }

// SetLiquidationPenalty configures the ratio of liquidation proceeds
// withheld from the trader and credited to the pool. Operator setting;
// defaults to zero.
func (e *Engine) SetLiquidationPenalty(r fixed.Ratio) {
	e.liquidationPenalty = r
}

// BuyResult reports what a buy settled to.
type BuyResult struct {
	Synthetic  fixed.Value // synthetic minted to the trader
	Price      fixed.Value // execution (ask) price
	Locked     fixed.Value // collateral newly locked for the pair
	Additional fixed.Value // the pool's contribution within Locked
}

// Buy spends the trader's collateral on synthetic exposure. The trader pays
// the full collateral amount at the ask price; the pool tops the locked
// collateral up to the buffered position value out of its free liquidity.
func (e *Engine) Buy(trader uuid.UUID, id pool.ID, asset ledger.AssetID, collateral fixed.Value) (BuyResult, error) {
	if collateral.Sign() <= 0 {
		return BuyResult{}, fmt.Errorf("collateral must be positive, got %s", collateral)
	}
	q, err := e.pricing.Quote(id, asset)
	if err != nil {
		return BuyResult{}, err
	}
	settlement := e.pools.SettlementAsset()
	if e.ledger.FreeBalance(trader, settlement).Cmp(collateral) < 0 {
		return BuyResult{}, fmt.Errorf("%w: trader %s", ledger.ErrInsufficientBalance, trader)
	}

	synthetic, err := collateral.Div(q.Ask)
	if err != nil {
		return BuyResult{}, err
	}
	if synthetic.Sign() <= 0 {
		return BuyResult{}, fmt.Errorf("collateral %s buys no synthetic at ask %s", collateral, q.Ask)
	}
	value, err := synthetic.Mul(q.Mid)
	if err != nil {
		return BuyResult{}, err
	}
	ratio := e.pools.EffectiveAdditionalRatio(id, asset)
	_, additional, err := state.AdditionalForOpen(collateral, value, ratio)
	if err != nil {
		return BuyResult{}, err
	}
	if e.pools.Liquidity(id).Cmp(additional) < 0 {
		return BuyResult{}, fmt.Errorf("%w: pool %d cannot cover additional collateral %s",
			ledger.ErrInsufficientBalance, id, additional)
	}
	locked, err := collateral.Add(additional)
	if err != nil {
		return BuyResult{}, err
	}

	// The ledger legs cannot be unwound, so every sum the commit will
	// produce is checked for overflow before the first one settles.
	if _, err := e.ledger.FreeBalance(e.vault, settlement).Add(locked); err != nil {
		return BuyResult{}, err
	}
	if _, err := e.ledger.FreeBalance(trader, asset).Add(synthetic); err != nil {
		return BuyResult{}, err
	}
	plan, err := e.book.PlanOpen(trader, id, asset, synthetic, q.Ask, locked)
	if err != nil {
		return BuyResult{}, err
	}

	// Commit.
	if err := e.ledger.Transfer(trader, e.vault, settlement, collateral); err != nil {
		return BuyResult{}, err
	}
	if additional.Sign() > 0 {
		if err := e.pools.DebitPool(id, e.vault, additional); err != nil {
			return BuyResult{}, err
		}
	}
	if err := e.ledger.Mint(trader, asset, synthetic); err != nil {
		return BuyResult{}, err
	}
	e.book.ApplyOpen(plan)
	return BuyResult{Synthetic: synthetic, Price: q.Ask, Locked: locked, Additional: additional}, nil
}

// SellResult reports what a sell settled to.
type SellResult struct {
	Proceeds fixed.Value // collateral paid to the trader
	Price    fixed.Value // execution (bid) price
	Refund   fixed.Value // collateral released back to the pool's free balance
}

// Sell redeems synthetic back into collateral at the bid price. Locked
// collateral pays the proceeds; whatever then exceeds the remaining
// position's requirement is refunded to the pool's free balance. Selling
// works against disabled pools so positions can always be unwound.
func (e *Engine) Sell(trader uuid.UUID, id pool.ID, asset ledger.AssetID, synthetic fixed.Value) (SellResult, error) {
	if synthetic.Sign() <= 0 {
		return SellResult{}, fmt.Errorf("synthetic amount must be positive, got %s", synthetic)
	}
	tp := e.book.Trader(trader, id, asset)
	if tp == nil || tp.Synthetic.Cmp(synthetic) < 0 {
		return SellResult{}, fmt.Errorf("%w: trader %s, pair (%d, %d)",
			ErrInsufficientSyntheticBalance, trader, id, asset)
	}
	q, err := e.pricing.CloseQuote(id, asset)
	if err != nil {
		return SellResult{}, err
	}

	proceeds, err := synthetic.Mul(q.Bid)
	if err != nil {
		return SellResult{}, err
	}
	plan, err := e.planClose(id, asset, synthetic, proceeds, q.Mid)
	if err != nil {
		return SellResult{}, err
	}

	// Commit.
	if err := e.commitClose(trader, id, asset, synthetic, plan); err != nil {
		return SellResult{}, err
	}
	if plan.release.Sign() > 0 {
		if err := e.pools.CreditPool(id, e.vault, plan.release); err != nil {
			return SellResult{}, err
		}
	}
	if err := e.ledger.Transfer(e.vault, trader, e.pools.SettlementAsset(), proceeds); err != nil {
		return SellResult{}, err
	}
	if err := e.sweepDust(trader, id, asset); err != nil {
		return SellResult{}, err
	}
	return SellResult{Proceeds: proceeds, Price: q.Bid, Refund: plan.release}, nil
}

// closePlan is the settlement arithmetic shared by sells and liquidations,
// computed before anything mutates.
type closePlan struct {
	gap       fixed.Value // pool free balance needed to cover proceeds
	release   fixed.Value // locked collateral freed beyond the new requirement
	newLocked fixed.Value // pair locked collateral after the close
}

// planClose works out how a close of the given synthetic amount settles.
// Locked collateral covers the payout; the pool's free balance tops up any
// shortfall; collateral beyond the remaining position's buffered requirement
// is released.
func (e *Engine) planClose(id pool.ID, asset ledger.AssetID, synthetic, payout, mid fixed.Value) (closePlan, error) {
	pp := e.book.Pair(id, asset)
	if pp == nil || pp.Synthetic.Cmp(synthetic) < 0 {
		return closePlan{}, fmt.Errorf("%w: pair (%d, %d)", ErrInsufficientSyntheticBalance, id, asset)
	}
	remaining, err := pp.Synthetic.Sub(synthetic)
	if err != nil {
		return closePlan{}, err
	}
	required, err := state.RequiredCollateral(remaining, mid, e.pools.EffectiveAdditionalRatio(id, asset))
	if err != nil {
		return closePlan{}, err
	}

	available, err := pp.Locked.Sub(payout)
	if err != nil {
		return closePlan{}, err
	}
	gap := fixed.Zero()
	if available.Sign() < 0 {
		gap = available.Neg()
		available = fixed.Zero()
	}
	if e.pools.Liquidity(id).Cmp(gap) < 0 {
		return closePlan{}, fmt.Errorf("%w: pool %d cannot cover payout gap %s",
			ledger.ErrInsufficientBalance, id, gap)
	}

	release, err := available.Sub(required)
	if err != nil {
		return closePlan{}, err
	}
	newLocked := required
	if release.Sign() < 0 {
		release = fixed.Zero()
		newLocked = available
	}
	return closePlan{gap: gap, release: release, newLocked: newLocked}, nil
}

// commitClose applies the ledger and book mutations common to sells and
// liquidations: top up the vault from pool free balance if needed, burn the
// synthetic, shrink the pair position.
func (e *Engine) commitClose(trader uuid.UUID, id pool.ID, asset ledger.AssetID, synthetic fixed.Value, plan closePlan) error {
	if plan.gap.Sign() > 0 {
		if err := e.pools.DebitPool(id, e.vault, plan.gap); err != nil {
			return err
		}
	}
	if err := e.ledger.Burn(trader, asset, synthetic); err != nil {
		return err
	}
	return e.book.RecordClose(trader, id, asset, synthetic, plan.newLocked)
}

// sweepDust burns a trader's residual synthetic balance when it falls under
// the asset's existential deposit, closing the position outright.
func (e *Engine) sweepDust(trader uuid.UUID, id pool.ID, asset ledger.AssetID) error {
	tp := e.book.Trader(trader, id, asset)
	if tp == nil {
		return nil
	}
	residue := tp.Synthetic
	if residue.Sign() <= 0 || !e.ledger.BelowExistentialDeposit(asset, residue) {
		return nil
	}
	if err := e.ledger.Burn(trader, asset, residue); err != nil {
		return err
	}
	pp := e.book.Pair(id, asset)
	newLocked := fixed.Zero()
	if pp != nil {
		newLocked = pp.Locked
	}
	return e.book.RecordClose(trader, id, asset, residue, newLocked)
}
