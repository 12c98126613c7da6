package ingestion_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"SynthLedger/internal/ingestion"
)

func payload(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestParsePriceUpdate(t *testing.T) {
	data := payload(t, map[string]interface{}{
		"symbol":       "fEUR",
		"price":        "3.03",
		"timestamp_us": int64(1700000000000000),
	})

	update, err := ingestion.ParsePriceUpdate(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if update.Symbol != "fEUR" {
		t.Errorf("symbol: got %s, want fEUR", update.Symbol)
	}
	if got := update.Price.RawString(); got != "3030000000000000000" {
		t.Errorf("price: got %s", got)
	}
	if !update.Timestamp.Equal(time.UnixMicro(1700000000000000)) {
		t.Errorf("timestamp: got %v", update.Timestamp)
	}
}

func TestParsePriceUpdate_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		payload map[string]interface{}
		wantErr error
	}{
		{
			name:    "missing symbol",
			payload: map[string]interface{}{"price": "3"},
			wantErr: ingestion.ErrMissingSymbol,
		},
		{
			name:    "zero price",
			payload: map[string]interface{}{"symbol": "fEUR", "price": "0"},
			wantErr: ingestion.ErrNonPositivePrice,
		},
		{
			name:    "negative price",
			payload: map[string]interface{}{"symbol": "fEUR", "price": "-1.5"},
			wantErr: ingestion.ErrNonPositivePrice,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ingestion.ParsePriceUpdate(payload(t, tc.payload))
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("want %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestParsePriceUpdate_MalformedDecimal(t *testing.T) {
	data := payload(t, map[string]interface{}{
		"symbol": "fEUR",
		"price":  "not-a-number",
	})
	if _, err := ingestion.ParsePriceUpdate(data); err == nil {
		t.Fatal("expected parse error")
	}

	if _, err := ingestion.ParsePriceUpdate([]byte("{broken")); err == nil {
		t.Fatal("expected json error")
	}
}
