package state

import (
	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/pool"
)

// TraderPosition is one trader's holding of a synthetic asset against one
// pool. AvgEntryPrice is the volume-weighted execution price of the opens
// that built the position.
type TraderPosition struct {
	Trader        uuid.UUID
	Pool          pool.ID
	Asset         ledger.AssetID
	Synthetic     fixed.Value
	AvgEntryPrice fixed.Value
}

// PairPosition aggregates a pool's exposure on one synthetic asset: total
// synthetic outstanding and the collateral locked against it.
type PairPosition struct {
	Pool      pool.ID
	Asset     ledger.AssetID
	Synthetic fixed.Value
	Locked    fixed.Value
}

type traderKey struct {
	Trader uuid.UUID
	Pool   pool.ID
	Asset  ledger.AssetID
}

type pairKey struct {
	Pool  pool.ID
	Asset ledger.AssetID
}

// Book manages trader and pool position state. Like the rest of the engine
// state it is single-writer; the engine shell serializes access.
type Book struct {
	traders map[traderKey]*TraderPosition
	pairs   map[pairKey]*PairPosition
}

func NewBook() *Book {
	return &Book{
		traders: make(map[traderKey]*TraderPosition),
		pairs:   make(map[pairKey]*PairPosition),
	}
}

// Trader returns the trader's position, or nil when flat.
func (b *Book) Trader(trader uuid.UUID, id pool.ID, asset ledger.AssetID) *TraderPosition {
	return b.traders[traderKey{trader, id, asset}]
}

// Pair returns the pool's aggregate position on an asset, or nil when the
// pair has no exposure.
func (b *Book) Pair(id pool.ID, asset ledger.AssetID) *PairPosition {
	return b.pairs[pairKey{id, asset}]
}

func (b *Book) orCreateTrader(trader uuid.UUID, id pool.ID, asset ledger.AssetID) *TraderPosition {
	key := traderKey{trader, id, asset}
	p := b.traders[key]
	if p == nil {
		p = &TraderPosition{
			Trader:        trader,
			Pool:          id,
			Asset:         asset,
			Synthetic:     fixed.Zero(),
			AvgEntryPrice: fixed.Zero(),
		}
		b.traders[key] = p
	}
	return p
}

func (b *Book) orCreatePair(id pool.ID, asset ledger.AssetID) *PairPosition {
	key := pairKey{id, asset}
	p := b.pairs[key]
	if p == nil {
		p = &PairPosition{Pool: id, Asset: asset, Synthetic: fixed.Zero(), Locked: fixed.Zero()}
		b.pairs[key] = p
	}
	return p
}

// OpenPlan holds the position state a buy leaves behind, computed before any
// mutation so settlement can still fail without partial state.
type OpenPlan struct {
	trader uuid.UUID
	pool   pool.ID
	asset  ledger.AssetID

	traderSynthetic fixed.Value
	avgEntry        fixed.Value
	pairSynthetic   fixed.Value
	pairLocked      fixed.Value
}

// PlanOpen computes the post-open values for a buy of q synthetic at the
// execution price with the given collateral locked against the pair. The
// trader's average entry price is the volume-weighted mean of its opens,
// truncating. Nothing is mutated; commit with ApplyOpen.
func (b *Book) PlanOpen(trader uuid.UUID, id pool.ID, asset ledger.AssetID, q, price, locked fixed.Value) (OpenPlan, error) {
	oldSyn, oldAvg := fixed.Zero(), fixed.Zero()
	if tp := b.Trader(trader, id, asset); tp != nil {
		oldSyn, oldAvg = tp.Synthetic, tp.AvgEntryPrice
	}
	avg, err := weightedEntry(oldSyn, oldAvg, q, price)
	if err != nil {
		return OpenPlan{}, err
	}
	newSyn, err := oldSyn.Add(q)
	if err != nil {
		return OpenPlan{}, err
	}

	pairSyn, pairLocked := fixed.Zero(), fixed.Zero()
	if pp := b.Pair(id, asset); pp != nil {
		pairSyn, pairLocked = pp.Synthetic, pp.Locked
	}
	if pairSyn, err = pairSyn.Add(q); err != nil {
		return OpenPlan{}, err
	}
	if pairLocked, err = pairLocked.Add(locked); err != nil {
		return OpenPlan{}, err
	}

	return OpenPlan{
		trader:          trader,
		pool:            id,
		asset:           asset,
		traderSynthetic: newSyn,
		avgEntry:        avg,
		pairSynthetic:   pairSyn,
		pairLocked:      pairLocked,
	}, nil
}

// ApplyOpen commits a previously computed plan.
func (b *Book) ApplyOpen(p OpenPlan) {
	tp := b.orCreateTrader(p.trader, p.pool, p.asset)
	tp.Synthetic = p.traderSynthetic
	tp.AvgEntryPrice = p.avgEntry
	pp := b.orCreatePair(p.pool, p.asset)
	pp.Synthetic = p.pairSynthetic
	pp.Locked = p.pairLocked
}

// RecordOpen plans and applies a buy in one step.
func (b *Book) RecordOpen(trader uuid.UUID, id pool.ID, asset ledger.AssetID, q, price, locked fixed.Value) error {
	plan, err := b.PlanOpen(trader, id, asset, q, price, locked)
	if err != nil {
		return err
	}
	b.ApplyOpen(plan)
	return nil
}

// RecordClose applies a sell: q synthetic burned from the trader, the pair's
// locked collateral reset to newLocked (the caller has already settled the
// difference). A position driven to zero is removed; the entry price of the
// remainder is unchanged.
func (b *Book) RecordClose(trader uuid.UUID, id pool.ID, asset ledger.AssetID, q, newLocked fixed.Value) error {
	key := traderKey{trader, id, asset}
	tp := b.traders[key]
	if tp == nil {
		return ledger.ErrInsufficientBalance
	}
	remaining, err := tp.Synthetic.Sub(q)
	if err != nil {
		return err
	}
	if remaining.Sign() < 0 {
		return ledger.ErrInsufficientBalance
	}

	pp := b.orCreatePair(id, asset)
	pairSyn, err := pp.Synthetic.Sub(q)
	if err != nil {
		return err
	}

	if remaining.IsZero() {
		delete(b.traders, key)
	} else {
		tp.Synthetic = remaining
	}
	pp.Synthetic = pairSyn
	pp.Locked = newLocked
	if pp.Synthetic.IsZero() && pp.Locked.IsZero() {
		delete(b.pairs, pairKey{id, asset})
	}
	return nil
}

// AddLocked raises the pair's locked collateral without touching synthetic
// exposure (the add-collateral cure path).
func (b *Book) AddLocked(id pool.ID, asset ledger.AssetID, amount fixed.Value) error {
	pp := b.orCreatePair(id, asset)
	locked, err := pp.Locked.Add(amount)
	if err != nil {
		return err
	}
	pp.Locked = locked
	return nil
}

// HasOpenExposure reports whether any pair under the pool still carries
// synthetic or locked collateral. Satisfies pool.ExposureChecker.
func (b *Book) HasOpenExposure(id pool.ID) bool {
	for k, p := range b.pairs {
		if k.Pool == id && (!p.Synthetic.IsZero() || !p.Locked.IsZero()) {
			return true
		}
	}
	return false
}

// TraderPositions returns the trader's open positions under one pool.
func (b *Book) TraderPositions(trader uuid.UUID, id pool.ID) []*TraderPosition {
	var out []*TraderPosition
	for k, p := range b.traders {
		if k.Trader == trader && k.Pool == id {
			out = append(out, p)
		}
	}
	return out
}

// PairPositions returns the pool's aggregate positions across assets.
func (b *Book) PairPositions(id pool.ID) []*PairPosition {
	var out []*PairPosition
	for k, p := range b.pairs {
		if k.Pool == id {
			out = append(out, p)
		}
	}
	return out
}

// weightedEntry folds a new fill into the volume-weighted entry price:
// (oldQty*oldAvg + q*price) / (oldQty + q), truncating.
func weightedEntry(oldQty, oldAvg, q, price fixed.Value) (fixed.Value, error) {
	if oldQty.IsZero() {
		return price, nil
	}
	prev, err := oldQty.Mul(oldAvg)
	if err != nil {
		return fixed.Zero(), err
	}
	add, err := q.Mul(price)
	if err != nil {
		return fixed.Zero(), err
	}
	num, err := prev.Add(add)
	if err != nil {
		return fixed.Zero(), err
	}
	den, err := oldQty.Add(q)
	if err != nil {
		return fixed.Zero(), err
	}
	return num.Div(den)
}
