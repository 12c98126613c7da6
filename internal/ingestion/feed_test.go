package ingestion_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"SynthLedger/internal/fixed"
	"SynthLedger/internal/ingestion"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/testutil"
)

type quote struct {
	asset ledger.AssetID
	price fixed.Value
}

// captureSink records every applied quote. The channel is buffered so the
// consumer callback never blocks on it.
type captureSink struct {
	quotes chan quote
}

func (s *captureSink) SetOraclePrice(asset ledger.AssetID, price fixed.Value) error {
	s.quotes <- quote{asset: asset, price: price}
	return nil
}

func TestPriceFeed_DeliversToSinks(t *testing.T) {
	testutil.RequireIntegration(t)

	nc, js, err := ingestion.Connect(testutil.TestNATSURL(), zerolog.Nop())
	if err != nil {
		t.Skipf("test nats not available: %v", err)
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := ingestion.EnsureStream(ctx, js); err != nil {
		t.Fatalf("ensure stream: %v", err)
	}

	l := ledger.New()
	feur := l.RegisterAsset("fEUR", fixed.Zero())
	sink := &captureSink{quotes: make(chan quote, 64)}
	feed := ingestion.NewPriceFeed(js, l, []ingestion.PriceSink{sink}, nil, zerolog.Nop())
	if err := feed.Subscribe(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer feed.Stop()

	payload := fmt.Sprintf(`{"symbol":"fEUR","price":"3.03","timestamp_us":%d}`, time.Now().UnixMicro())
	if _, err := js.Publish(ctx, "synth.prices.fEUR", []byte(payload)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	want := fixed.MustRaw("3030000000000000000")
	deadline := time.After(10 * time.Second)
	for {
		select {
		case q := <-sink.quotes:
			// The durable consumer may replay quotes from earlier runs
			// first; wait for the one just published.
			if q.asset == feur && q.price.Cmp(want) == 0 {
				return
			}
		case <-deadline:
			t.Fatal("published quote never reached the sink")
		}
	}
}
