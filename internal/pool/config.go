package pool

import (
	"fmt"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
	"SynthLedger/internal/ledger"
)

// SetSpread configures the bid/ask spread for a pair. Owner only; the spread
// must be a fraction in [0, 1].
func (r *Registry) SetSpread(caller uuid.UUID, id ID, asset ledger.AssetID, spread fixed.Ratio) error {
	if err := r.requireOwner(id, caller); err != nil {
		return err
	}
	if !spread.IsFraction() {
		return fmt.Errorf("spread %d exceeds 100%%", spread)
	}
	cfg := r.pair(id, asset)
	cfg.Spread = spread
	cfg.SpreadSet = true
	r.pairs[pairKey{id, asset}] = cfg
	return nil
}

// SetAdditionalCollateralRatio configures the pair's collateral buffer.
// Owner only. The effective ratio never falls below the registry-wide
// minimum (see SetMinAdditionalCollateralRatio).
func (r *Registry) SetAdditionalCollateralRatio(caller uuid.UUID, id ID, asset ledger.AssetID, ratio fixed.Ratio) error {
	if err := r.requireOwner(id, caller); err != nil {
		return err
	}
	cfg := r.pair(id, asset)
	cfg.AdditionalCollateralRatio = ratio
	r.pairs[pairKey{id, asset}] = cfg
	return nil
}

// EnableSyntheticPair opens or closes a pair for trading. Owner only.
func (r *Registry) EnableSyntheticPair(caller uuid.UUID, id ID, asset ledger.AssetID, enabled bool) error {
	if err := r.requireOwner(id, caller); err != nil {
		return err
	}
	cfg := r.pair(id, asset)
	cfg.SyntheticEnabled = enabled
	r.pairs[pairKey{id, asset}] = cfg
	return nil
}

// SetLiquidationRatio overrides the pair's liquidation safety threshold.
// Operator setting; origin checks happen upstream of the registry.
func (r *Registry) SetLiquidationRatio(id ID, asset ledger.AssetID, ratio fixed.Ratio) error {
	if !r.Exists(id) {
		return fmt.Errorf("%w: pool %d", ErrPoolNotFound, id)
	}
	cfg := r.pair(id, asset)
	cfg.LiquidationRatio = ratio
	r.pairs[pairKey{id, asset}] = cfg
	return nil
}

// SetMinAdditionalCollateralRatio sets the floor applied to every pair's
// collateral buffer. Operator setting.
func (r *Registry) SetMinAdditionalCollateralRatio(ratio fixed.Ratio) {
	r.minAdditionalRatio = ratio
}

// MinAdditionalCollateralRatio returns the registry-wide buffer floor.
func (r *Registry) MinAdditionalCollateralRatio() fixed.Ratio {
	return r.minAdditionalRatio
}

// PairConfig returns the configuration for a (pool, asset) pair.
func (r *Registry) PairConfig(id ID, asset ledger.AssetID) (PairConfig, bool) {
	cfg, ok := r.pairs[pairKey{id, asset}]
	return cfg, ok
}

// EffectiveAdditionalRatio is the pair's buffer with the registry floor
// applied.
func (r *Registry) EffectiveAdditionalRatio(id ID, asset ledger.AssetID) fixed.Ratio {
	cfg := r.pairs[pairKey{id, asset}]
	if cfg.AdditionalCollateralRatio < r.minAdditionalRatio {
		return r.minAdditionalRatio
	}
	return cfg.AdditionalCollateralRatio
}

// pair returns the stored config or a zero-value one with defaults applied.
func (r *Registry) pair(id ID, asset ledger.AssetID) PairConfig {
	if cfg, ok := r.pairs[pairKey{id, asset}]; ok {
		return cfg
	}
	return PairConfig{LiquidationRatio: r.defaultLiquidationRatio}
}

// PairAssets returns the assets with any configuration under a pool, in no
// particular order.
func (r *Registry) PairAssets(id ID) []ledger.AssetID {
	var assets []ledger.AssetID
	for k := range r.pairs {
		if k.Pool == id {
			assets = append(assets, k.Asset)
		}
	}
	return assets
}

// LiquidationRatio returns the pair's safety threshold (the default when the
// pair was never configured explicitly).
func (r *Registry) LiquidationRatio(id ID, asset ledger.AssetID) fixed.Ratio {
	return r.pair(id, asset).LiquidationRatio
}
