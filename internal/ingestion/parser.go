package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"SynthLedger/internal/fixed"
)

// PriceUpdate is one oracle quote from the feed.
type PriceUpdate struct {
	Symbol    string
	Price     fixed.Value
	Timestamp time.Time
}

// priceJSON is the wire format published on synth.prices.>. Prices travel as
// decimal strings; raw scaled integers never appear on the wire.
type priceJSON struct {
	Symbol      string `json:"symbol"`
	Price       string `json:"price"`
	TimestampUs int64  `json:"timestamp_us"`
}

var (
	ErrMissingSymbol    = errors.New("missing symbol")
	ErrNonPositivePrice = errors.New("price must be positive")
)

// ParsePriceUpdate validates and converts a feed payload. Parse failures are
// permanent: the payload will never become valid on redelivery.
func ParsePriceUpdate(data []byte) (PriceUpdate, error) {
	var j priceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return PriceUpdate{}, fmt.Errorf("parse price update: %w", err)
	}
	if j.Symbol == "" {
		return PriceUpdate{}, ErrMissingSymbol
	}
	price, err := fixed.Parse(j.Price)
	if err != nil {
		return PriceUpdate{}, fmt.Errorf("parse price %q: %w", j.Price, err)
	}
	if price.Sign() <= 0 {
		return PriceUpdate{}, ErrNonPositivePrice
	}
	return PriceUpdate{
		Symbol:    j.Symbol,
		Price:     price,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}
