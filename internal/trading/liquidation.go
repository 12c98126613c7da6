package trading

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/pool"
)

var ErrStillInSafePosition = errors.New("still in safe position")

// LiquidationResult reports what a liquidation settled to.
type LiquidationResult struct {
	Synthetic fixed.Value // synthetic closed out
	Proceeds  fixed.Value // paid to the position holder, net of penalty
	Penalty   fixed.Value // withheld and credited to the pool
	Swept     fixed.Value // surplus collateral moved to the insurance account
}

// IsSafe reports whether the pair's locked collateral still covers the
// outstanding synthetic value plus the liquidation buffer. Pairs with no
// exposure are safe.
func (e *Engine) IsSafe(id pool.ID, asset ledger.AssetID) (bool, error) {
	pp := e.book.Pair(id, asset)
	if pp == nil || pp.Synthetic.IsZero() {
		return true, nil
	}
	q, err := e.pricing.CloseQuote(id, asset)
	if err != nil {
		return false, err
	}
	value, err := pp.Synthetic.Mul(q.Mid)
	if err != nil {
		return false, err
	}
	buffer, err := value.ApplyRatio(e.pools.LiquidationRatio(id, asset))
	if err != nil {
		return false, err
	}
	threshold, err := value.Add(buffer)
	if err != nil {
		return false, err
	}
	return pp.Locked.Cmp(threshold) >= 0, nil
}

// Liquidate force-closes part or all of a trader's position on an
// undercollateralized pair. Anyone may call it. The amount sells at the
// current bid; the configured penalty is withheld from the trader and
// credited to the pool's free balance. Unlike a voluntary sell the pool gets
// no refund: surplus collateral beyond the remaining requirement is swept to
// the insurance account.
func (e *Engine) Liquidate(trader uuid.UUID, id pool.ID, asset ledger.AssetID, synthetic fixed.Value) (LiquidationResult, error) {
	if synthetic.Sign() <= 0 {
		return LiquidationResult{}, fmt.Errorf("synthetic amount must be positive, got %s", synthetic)
	}
	safe, err := e.IsSafe(id, asset)
	if err != nil {
		return LiquidationResult{}, err
	}
	if safe {
		return LiquidationResult{}, fmt.Errorf("%w: pair (%d, %d)", ErrStillInSafePosition, id, asset)
	}
	tp := e.book.Trader(trader, id, asset)
	if tp == nil || tp.Synthetic.Cmp(synthetic) < 0 {
		return LiquidationResult{}, fmt.Errorf("%w: trader %s, pair (%d, %d)",
			ErrInsufficientSyntheticBalance, trader, id, asset)
	}

	q, err := e.pricing.CloseQuote(id, asset)
	if err != nil {
		return LiquidationResult{}, err
	}
	proceeds, err := synthetic.Mul(q.Bid)
	if err != nil {
		return LiquidationResult{}, err
	}
	penalty, err := proceeds.ApplyRatio(e.liquidationPenalty)
	if err != nil {
		return LiquidationResult{}, err
	}
	traderPay, err := proceeds.Sub(penalty)
	if err != nil {
		return LiquidationResult{}, err
	}
	plan, err := e.planClose(id, asset, synthetic, proceeds, q.Mid)
	if err != nil {
		return LiquidationResult{}, err
	}

	// Commit.
	if err := e.commitClose(trader, id, asset, synthetic, plan); err != nil {
		return LiquidationResult{}, err
	}
	settlement := e.pools.SettlementAsset()
	if err := e.ledger.Transfer(e.vault, trader, settlement, traderPay); err != nil {
		return LiquidationResult{}, err
	}
	if penalty.Sign() > 0 {
		if err := e.pools.CreditPool(id, e.vault, penalty); err != nil {
			return LiquidationResult{}, err
		}
	}
	if plan.release.Sign() > 0 {
		if err := e.ledger.Transfer(e.vault, e.insurance, settlement, plan.release); err != nil {
			return LiquidationResult{}, err
		}
	}
	if err := e.sweepDust(trader, id, asset); err != nil {
		return LiquidationResult{}, err
	}
	return LiquidationResult{
		Synthetic: synthetic,
		Proceeds:  traderPay,
		Penalty:   penalty,
		Swept:     plan.release,
	}, nil
}

// AddCollateral locks extra collateral against a pair, curing or preventing
// an unsafe position. Any account may contribute; the amount moves straight
// into the vault.
func (e *Engine) AddCollateral(from uuid.UUID, id pool.ID, asset ledger.AssetID, amount fixed.Value) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("collateral must be positive, got %s", amount)
	}
	if !e.pools.Exists(id) {
		return fmt.Errorf("%w: pool %d", pool.ErrPoolNotFound, id)
	}
	if err := e.ledger.Transfer(from, e.vault, e.pools.SettlementAsset(), amount); err != nil {
		return err
	}
	return e.book.AddLocked(id, asset, amount)
}
