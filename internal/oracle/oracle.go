package oracle

import (
	"errors"
	"fmt"

	"SynthLedger/internal/fixed"
	"SynthLedger/internal/ledger"
)

var ErrNoPriceConfigured = errors.New("no price configured")

// Board holds the last-set mid-price per asset. Prices arrive out-of-band
// (the NATS price feed in production, direct sets in tests); only the latest
// value is retained.
type Board struct {
	prices map[ledger.AssetID]fixed.Value
}

func NewBoard() *Board {
	return &Board{prices: make(map[ledger.AssetID]fixed.Value)}
}

// SetPrice records the current mid-price for an asset. Non-positive prices
// are rejected.
func (b *Board) SetPrice(asset ledger.AssetID, price fixed.Value) error {
	if price.Sign() <= 0 {
		return fmt.Errorf("oracle price must be positive, got %s", price)
	}
	b.prices[asset] = price
	return nil
}

// Price returns the last-set mid-price for an asset.
func (b *Board) Price(asset ledger.AssetID) (fixed.Value, bool) {
	p, ok := b.prices[asset]
	return p, ok
}
