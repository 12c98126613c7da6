package engine

import (
	"errors"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"SynthLedger/internal/fixed"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/observability"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/pool"
	"SynthLedger/internal/pricing"
	"SynthLedger/internal/risk"
	"SynthLedger/internal/state"
	"SynthLedger/internal/trading"
)

// Record is the journal entry emitted for every applied operation. Records
// leave on a blocking channel so backpressure from the journal writer stalls
// the engine instead of losing entries.
type Record struct {
	Sequence  int64          `json:"sequence"`
	Namespace string         `json:"namespace"`
	Op        string         `json:"op"`
	Details   map[string]any `json:"details,omitempty"`
	AppliedAt time.Time      `json:"applied_at"`
}

// Engine is the single-writer shell around the domain: every mutating
// operation runs strictly serialized, gets a monotonic sequence number and
// is journaled. Reads go through the same lock so they always observe a
// settled state.
type Engine struct {
	mu       sync.Mutex
	sequence int64

	ledger  *ledger.Ledger
	board   *oracle.Board
	pools   *pool.Registry
	book    *state.Book
	trading *trading.Engine
	risk    *risk.Engine

	log         zerolog.Logger
	metrics     *observability.Metrics
	persistChan chan<- Record
}

// New wires a complete engine for one namespace. persistChan and metrics may
// be nil (tests).
func New(
	namespace string,
	l *ledger.Ledger,
	board *oracle.Board,
	settlement ledger.AssetID,
	thresholds risk.Thresholds,
	persistChan chan<- Record,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Engine {
	pools := pool.NewRegistry(namespace, l, settlement)
	book := state.NewBook()
	pools.SetExposureChecker(book)
	pe := pricing.NewEngine(pools, board)
	return &Engine{
		ledger:      l,
		board:       board,
		pools:       pools,
		book:        book,
		trading:     trading.NewEngine(l, pools, pe, book),
		risk:        risk.NewEngine(pools, board, book, thresholds),
		log:         log,
		metrics:     metrics,
		persistChan: persistChan,
	}
}

// Namespace returns the engine's namespace.
func (e *Engine) Namespace() string { return e.pools.Namespace() }

// Sequence returns the last applied operation's sequence number.
func (e *Engine) Sequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}

// apply runs one mutating operation under the engine lock. Successful
// operations are sequenced and journaled; rejected ones are counted and
// leave no trace in the journal.
func (e *Engine) apply(op string, details map[string]any, fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	start := time.Now()

	if err := fn(); err != nil {
		if e.metrics != nil {
			e.metrics.OpsRejected.WithLabelValues(op, rejectReason(err)).Inc()
		}
		e.log.Debug().Str("op", op).Err(err).Msg("operation rejected")
		return err
	}

	e.sequence++
	if e.persistChan != nil {
		e.persistChan <- Record{
			Sequence:  e.sequence,
			Namespace: e.pools.Namespace(),
			Op:        op,
			Details:   details,
			AppliedAt: time.Now().UTC(),
		}
	}
	if e.metrics != nil {
		e.metrics.OpsApplied.WithLabelValues(op).Inc()
		e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		e.metrics.Sequence.Set(float64(e.sequence))
	}
	e.log.Debug().Str("op", op).Int64("sequence", e.sequence).Msg("operation applied")
	return nil
}

// rejectReason maps an error to a low-cardinality metrics label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, pool.ErrPoolNotFound):
		return "pool_not_found"
	case errors.Is(err, pool.ErrNoPermission):
		return "no_permission"
	case errors.Is(err, pool.ErrCannotRemovePool):
		return "cannot_remove_pool"
	case errors.Is(err, pool.ErrCannotWithdrawAmount):
		return "cannot_withdraw_amount"
	case errors.Is(err, pool.ErrCannotWithdrawExistentialDeposit):
		return "existential_deposit"
	case errors.Is(err, pricing.ErrTradeDisabled):
		return "trade_disabled"
	case errors.Is(err, oracle.ErrNoPriceConfigured):
		return "no_price"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, trading.ErrInsufficientSyntheticBalance):
		return "insufficient_synthetic_balance"
	case errors.Is(err, trading.ErrStillInSafePosition):
		return "safe_position"
	case errors.Is(err, fixed.ErrNumericOverflow):
		return "overflow"
	default:
		return "invalid"
	}
}

// --- Pool lifecycle ---

func (e *Engine) CreatePool(owner uuid.UUID) (pool.ID, error) {
	var id pool.ID
	details := map[string]any{"owner": owner}
	err := e.apply("create_pool", details, func() error {
		id = e.pools.CreatePool(owner)
		details["pool"] = id
		return nil
	})
	return id, err
}

func (e *Engine) EnablePool(caller uuid.UUID, id pool.ID) error {
	return e.apply("enable_pool", map[string]any{"caller": caller, "pool": id}, func() error {
		return e.pools.EnablePool(caller, id)
	})
}

func (e *Engine) DisablePool(caller uuid.UUID, id pool.ID) error {
	return e.apply("disable_pool", map[string]any{"caller": caller, "pool": id}, func() error {
		return e.pools.DisablePool(caller, id)
	})
}

func (e *Engine) RemovePool(caller uuid.UUID, id pool.ID) error {
	return e.apply("remove_pool", map[string]any{"caller": caller, "pool": id}, func() error {
		return e.pools.RemovePool(caller, id)
	})
}

func (e *Engine) DepositLiquidity(from uuid.UUID, id pool.ID, amount fixed.Value) error {
	err := e.apply("deposit_liquidity", map[string]any{"from": from, "pool": id, "amount": amount}, func() error {
		return e.pools.DepositLiquidity(from, id, amount)
	})
	e.updateLiquidityGauge(id)
	return err
}

func (e *Engine) WithdrawLiquidity(caller uuid.UUID, id pool.ID, amount fixed.Value) error {
	err := e.apply("withdraw_liquidity", map[string]any{"caller": caller, "pool": id, "amount": amount}, func() error {
		return e.pools.WithdrawLiquidity(caller, id, amount)
	})
	e.updateLiquidityGauge(id)
	return err
}

// --- Pair configuration ---

func (e *Engine) SetSpread(caller uuid.UUID, id pool.ID, asset ledger.AssetID, spread fixed.Ratio) error {
	return e.apply("set_spread", map[string]any{"caller": caller, "pool": id, "asset": asset, "spread": spread}, func() error {
		return e.pools.SetSpread(caller, id, asset, spread)
	})
}

func (e *Engine) SetAdditionalCollateralRatio(caller uuid.UUID, id pool.ID, asset ledger.AssetID, ratio fixed.Ratio) error {
	return e.apply("set_additional_collateral_ratio", map[string]any{"caller": caller, "pool": id, "asset": asset, "ratio": ratio}, func() error {
		return e.pools.SetAdditionalCollateralRatio(caller, id, asset, ratio)
	})
}

func (e *Engine) SetMinAdditionalCollateralRatio(ratio fixed.Ratio) error {
	return e.apply("set_min_additional_collateral_ratio", map[string]any{"ratio": ratio}, func() error {
		e.pools.SetMinAdditionalCollateralRatio(ratio)
		return nil
	})
}

func (e *Engine) SetLiquidationRatio(id pool.ID, asset ledger.AssetID, ratio fixed.Ratio) error {
	return e.apply("set_liquidation_ratio", map[string]any{"pool": id, "asset": asset, "ratio": ratio}, func() error {
		return e.pools.SetLiquidationRatio(id, asset, ratio)
	})
}

func (e *Engine) SetLiquidationPenalty(ratio fixed.Ratio) error {
	return e.apply("set_liquidation_penalty", map[string]any{"ratio": ratio}, func() error {
		e.trading.SetLiquidationPenalty(ratio)
		return nil
	})
}

func (e *Engine) EnableSyntheticPair(caller uuid.UUID, id pool.ID, asset ledger.AssetID, enabled bool) error {
	return e.apply("enable_synthetic_pair", map[string]any{"caller": caller, "pool": id, "asset": asset, "enabled": enabled}, func() error {
		return e.pools.EnableSyntheticPair(caller, id, asset, enabled)
	})
}

// --- Oracle ---

func (e *Engine) SetOraclePrice(asset ledger.AssetID, price fixed.Value) error {
	err := e.apply("set_oracle_price", map[string]any{"asset": asset, "price": price}, func() error {
		return e.board.SetPrice(asset, price)
	})
	if err == nil && e.metrics != nil {
		e.metrics.OraclePriceUpdates.WithLabelValues(e.ledger.Symbol(asset)).Inc()
	}
	return err
}

// --- Trading ---

func (e *Engine) Buy(trader uuid.UUID, id pool.ID, asset ledger.AssetID, collateral fixed.Value) (trading.BuyResult, error) {
	var res trading.BuyResult
	details := map[string]any{"trader": trader, "pool": id, "asset": asset, "collateral": collateral}
	err := e.apply("buy", details, func() error {
		var err error
		res, err = e.trading.Buy(trader, id, asset, collateral)
		if err != nil {
			return err
		}
		details["synthetic"] = res.Synthetic
		details["price"] = res.Price
		return nil
	})
	if err == nil && e.metrics != nil {
		e.metrics.TradesSettled.WithLabelValues(e.pools.Namespace(), "buy").Inc()
	}
	e.updateLiquidityGauge(id)
	return res, err
}

func (e *Engine) Sell(trader uuid.UUID, id pool.ID, asset ledger.AssetID, synthetic fixed.Value) (trading.SellResult, error) {
	var res trading.SellResult
	details := map[string]any{"trader": trader, "pool": id, "asset": asset, "synthetic": synthetic}
	err := e.apply("sell", details, func() error {
		var err error
		res, err = e.trading.Sell(trader, id, asset, synthetic)
		if err != nil {
			return err
		}
		details["proceeds"] = res.Proceeds
		details["price"] = res.Price
		return nil
	})
	if err == nil && e.metrics != nil {
		e.metrics.TradesSettled.WithLabelValues(e.pools.Namespace(), "sell").Inc()
	}
	e.updateLiquidityGauge(id)
	return res, err
}

func (e *Engine) Liquidate(trader uuid.UUID, id pool.ID, asset ledger.AssetID, synthetic fixed.Value) (trading.LiquidationResult, error) {
	var res trading.LiquidationResult
	details := map[string]any{"trader": trader, "pool": id, "asset": asset, "synthetic": synthetic}
	err := e.apply("liquidate", details, func() error {
		var err error
		res, err = e.trading.Liquidate(trader, id, asset, synthetic)
		if err != nil {
			return err
		}
		details["proceeds"] = res.Proceeds
		details["penalty"] = res.Penalty
		details["swept"] = res.Swept
		return nil
	})
	if err == nil && e.metrics != nil {
		e.metrics.LiquidationsExecuted.WithLabelValues(e.pools.Namespace()).Inc()
		if !res.Swept.IsZero() {
			e.metrics.InsuranceSweeps.Inc()
		}
	}
	e.updateLiquidityGauge(id)
	return res, err
}

func (e *Engine) AddCollateral(from uuid.UUID, id pool.ID, asset ledger.AssetID, amount fixed.Value) error {
	return e.apply("add_collateral", map[string]any{"from": from, "pool": id, "asset": asset, "amount": amount}, func() error {
		return e.trading.AddCollateral(from, id, asset, amount)
	})
}

// --- Queries ---

func (e *Engine) Liquidity(id pool.ID) fixed.Value {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pools.Liquidity(id)
}

func (e *Engine) PoolExists(id pool.ID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pools.Exists(id)
}

func (e *Engine) PoolIDs() []pool.ID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pools.PoolIDs()
}

func (e *Engine) PoolOwner(id pool.ID) (pool.Owner, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pools.PoolOwner(id)
}

func (e *Engine) PoolEnabled(id pool.ID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pools.IsEnabled(id)
}

func (e *Engine) TraderInfo(trader uuid.UUID, id pool.ID) (risk.TraderInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.risk.Trader(trader, id)
}

func (e *Engine) PoolInfo(id pool.ID) (risk.PoolInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.risk.Pool(id)
}

func (e *Engine) updateLiquidityGauge(id pool.ID) {
	if e.metrics == nil {
		return
	}
	e.mu.Lock()
	v := e.pools.Liquidity(id)
	e.mu.Unlock()
	f, _ := new(big.Float).SetInt(v.Raw()).Float64()
	e.metrics.PoolLiquidity.WithLabelValues(e.pools.Namespace(), strconv.FormatUint(uint64(id), 10)).Set(f / 1e18)
}
