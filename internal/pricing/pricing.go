package pricing

import (
	"errors"
	"fmt"

	"SynthLedger/internal/fixed"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/oracle"
	"SynthLedger/internal/pool"
)

var ErrTradeDisabled = errors.New("trade disabled")

// Quote is a two-sided price for a (pool, asset) pair. Ask is the mid-price
// marked up by the pool's spread, Bid is marked down; both roundings go
// against the trader.
type Quote struct {
	Mid    fixed.Value
	Ask    fixed.Value
	Bid    fixed.Value
	Spread fixed.Ratio
}

// Engine derives tradeable quotes from the oracle mid-price and the pool's
// pair configuration. It holds no state of its own.
type Engine struct {
	pools  *pool.Registry
	oracle *oracle.Board
}

func NewEngine(pools *pool.Registry, board *oracle.Board) *Engine {
	return &Engine{pools: pools, oracle: board}
}

// Quote returns the current two-sided price for the pair. The pool must
// exist and be enabled, the pair must be open for synthetic trading, and
// both an oracle price and a spread must be configured.
func (e *Engine) Quote(id pool.ID, asset ledger.AssetID) (Quote, error) {
	if !e.pools.Exists(id) {
		return Quote{}, fmt.Errorf("%w: pool %d", pool.ErrPoolNotFound, id)
	}
	if !e.pools.IsEnabled(id) {
		return Quote{}, fmt.Errorf("%w: pool %d is disabled", ErrTradeDisabled, id)
	}
	cfg, ok := e.pools.PairConfig(id, asset)
	if !ok || !cfg.SyntheticEnabled {
		return Quote{}, fmt.Errorf("%w: pair (%d, %d) is not open", ErrTradeDisabled, id, asset)
	}
	if !cfg.SpreadSet {
		return Quote{}, fmt.Errorf("%w: no spread for pair (%d, %d)", oracle.ErrNoPriceConfigured, id, asset)
	}
	mid, ok := e.oracle.Price(asset)
	if !ok {
		return Quote{}, fmt.Errorf("%w: asset %d", oracle.ErrNoPriceConfigured, asset)
	}
	return e.quote(mid, cfg.Spread)
}

// CloseQuote prices the pair for closing existing exposure. Disabled pools
// and closed pairs still quote here so positions can always be unwound; only
// a missing spread or oracle price blocks it.
func (e *Engine) CloseQuote(id pool.ID, asset ledger.AssetID) (Quote, error) {
	if !e.pools.Exists(id) {
		return Quote{}, fmt.Errorf("%w: pool %d", pool.ErrPoolNotFound, id)
	}
	cfg, ok := e.pools.PairConfig(id, asset)
	if !ok || !cfg.SpreadSet {
		return Quote{}, fmt.Errorf("%w: no spread for pair (%d, %d)", oracle.ErrNoPriceConfigured, id, asset)
	}
	mid, ok := e.oracle.Price(asset)
	if !ok {
		return Quote{}, fmt.Errorf("%w: asset %d", oracle.ErrNoPriceConfigured, asset)
	}
	return e.quote(mid, cfg.Spread)
}

func (e *Engine) quote(mid fixed.Value, spread fixed.Ratio) (Quote, error) {
	markup, err := mid.ApplyRatio(spread)
	if err != nil {
		return Quote{}, err
	}
	ask, err := mid.Add(markup)
	if err != nil {
		return Quote{}, err
	}
	bid, err := mid.Sub(markup)
	if err != nil {
		return Quote{}, err
	}
	if bid.Sign() <= 0 {
		return Quote{}, fmt.Errorf("%w: spread %d swallows the whole price %s",
			oracle.ErrNoPriceConfigured, spread, mid)
	}
	return Quote{Mid: mid, Ask: ask, Bid: bid, Spread: spread}, nil
}
