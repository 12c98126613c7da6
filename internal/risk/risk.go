package risk

import (
	"fmt"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/pool"
	"SynthLedger/internal/state"
)

// Thresholds are the pool safety levels, as ratios of the respective
// denominator. A pool whose ENP or ELL falls below its threshold reports a
// positive RequiredDeposit.
type Thresholds struct {
	ENP fixed.Ratio
	ELL fixed.Ratio
}

// TraderInfo is a read-only snapshot of one trader's standing in a pool.
// MarginLevel is the Infinity sentinel when no margin is held.
type TraderInfo struct {
	Equity       fixed.Value `json:"equity"`
	MarginHeld   fixed.Value `json:"margin_held"`
	MarginLevel  fixed.Value `json:"margin_level"`
	FreeMargin   fixed.Value `json:"free_margin"`
	UnrealizedPL fixed.Value `json:"unrealized_pl"`
}

// PoolInfo is a read-only snapshot of a pool's solvency. ENP compares equity
// to open notional, ELL to locked collateral; both use the Infinity sentinel
// on an empty denominator. RequiredDeposit is the collateral needed to climb
// back over every breached threshold, zero when none is breached.
type PoolInfo struct {
	Equity          fixed.Value `json:"equity"`
	ENP             fixed.Value `json:"enp"`
	ELL             fixed.Value `json:"ell"`
	RequiredDeposit fixed.Value `json:"required_deposit"`
}

// Engine derives risk metrics from position state, pool balances and oracle
// prices. It never mutates anything.
type Engine struct {
	pools      *pool.Registry
	board      *oracle.Board
	book       *state.Book
	thresholds Thresholds
}

func NewEngine(pools *pool.Registry, board *oracle.Board, book *state.Book, t Thresholds) *Engine {
	return &Engine{pools: pools, board: board, book: book, thresholds: t}
}

// Trader computes the trader's metrics across its open positions in a pool.
// A trader with no positions reports all-zero metrics and an infinite margin
// level.
func (e *Engine) Trader(trader uuid.UUID, id pool.ID) (TraderInfo, error) {
	if !e.pools.Exists(id) {
		return TraderInfo{}, fmt.Errorf("%w: pool %d", pool.ErrPoolNotFound, id)
	}
	marginHeld := fixed.Zero()
	unrealized := fixed.Zero()
	for _, tp := range e.book.TraderPositions(trader, id) {
		mid, ok := e.board.Price(tp.Asset)
		if !ok {
			return TraderInfo{}, fmt.Errorf("%w: asset %d", oracle.ErrNoPriceConfigured, tp.Asset)
		}
		held, err := tp.Synthetic.Mul(tp.AvgEntryPrice)
		if err != nil {
			return TraderInfo{}, err
		}
		move, err := mid.Sub(tp.AvgEntryPrice)
		if err != nil {
			return TraderInfo{}, err
		}
		pl, err := tp.Synthetic.Mul(move)
		if err != nil {
			return TraderInfo{}, err
		}
		if marginHeld, err = marginHeld.Add(held); err != nil {
			return TraderInfo{}, err
		}
		if unrealized, err = unrealized.Add(pl); err != nil {
			return TraderInfo{}, err
		}
	}
	equity, err := marginHeld.Add(unrealized)
	if err != nil {
		return TraderInfo{}, err
	}
	level := fixed.Infinity()
	if !marginHeld.IsZero() {
		if level, err = equity.Div(marginHeld); err != nil {
			return TraderInfo{}, err
		}
	}
	return TraderInfo{
		Equity:       equity,
		MarginHeld:   marginHeld,
		MarginLevel:  level,
		FreeMargin:   unrealized,
		UnrealizedPL: unrealized,
	}, nil
}

// Pool computes the pool's solvency metrics across its pairs.
func (e *Engine) Pool(id pool.ID) (PoolInfo, error) {
	if !e.pools.Exists(id) {
		return PoolInfo{}, fmt.Errorf("%w: pool %d", pool.ErrPoolNotFound, id)
	}
	notional := fixed.Zero()
	locked := fixed.Zero()
	equity := e.pools.Liquidity(id)
	for _, pp := range e.book.PairPositions(id) {
		mid, ok := e.board.Price(pp.Asset)
		if !ok {
			return PoolInfo{}, fmt.Errorf("%w: asset %d", oracle.ErrNoPriceConfigured, pp.Asset)
		}
		value, err := pp.Synthetic.Mul(mid)
		if err != nil {
			return PoolInfo{}, err
		}
		if notional, err = notional.Add(value); err != nil {
			return PoolInfo{}, err
		}
		if locked, err = locked.Add(pp.Locked); err != nil {
			return PoolInfo{}, err
		}
		if equity, err = equity.Add(pp.Locked); err != nil {
			return PoolInfo{}, err
		}
		if equity, err = equity.Sub(value); err != nil {
			return PoolInfo{}, err
		}
	}

	enp, err := coverage(equity, notional)
	if err != nil {
		return PoolInfo{}, err
	}
	ell, err := coverage(equity, locked)
	if err != nil {
		return PoolInfo{}, err
	}
	required := fixed.Zero()
	for _, gap := range []struct {
		threshold fixed.Ratio
		den       fixed.Value
	}{
		{e.thresholds.ENP, notional},
		{e.thresholds.ELL, locked},
	} {
		need, err := shortfall(equity, gap.den, gap.threshold)
		if err != nil {
			return PoolInfo{}, err
		}
		if need.Cmp(required) > 0 {
			required = need
		}
	}
	return PoolInfo{Equity: equity, ENP: enp, ELL: ell, RequiredDeposit: required}, nil
}

// coverage is equity/denominator with the Infinity sentinel on an empty
// denominator.
func coverage(equity, den fixed.Value) (fixed.Value, error) {
	if den.IsZero() {
		return fixed.Infinity(), nil
	}
	return equity.Div(den)
}

// shortfall is threshold*den - equity when positive, zero otherwise.
func shortfall(equity, den fixed.Value, threshold fixed.Ratio) (fixed.Value, error) {
	if den.IsZero() {
		return fixed.Zero(), nil
	}
	target, err := den.ApplyRatio(threshold)
	if err != nil {
		return fixed.Zero(), err
	}
	need, err := target.Sub(equity)
	if err != nil {
		return fixed.Zero(), err
	}
	if need.Sign() < 0 {
		return fixed.Zero(), nil
	}
	return need, nil
}
