package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"SynthLedger/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_FileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
listen_addr: ":9000"
persist:
  channel_size: 256
  batch_size: 10
  flush_timeout: 25ms
assets:
  - symbol: aUSD
    existential_deposit: "0"
  - symbol: fEUR
    existential_deposit: "0.000001"
namespaces:
  - name: synthetic
    settlement_asset: aUSD
    enp_threshold_ppm: 4000000
    ell_threshold_ppm: 1000000
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":9000" {
		t.Errorf("listen_addr: got %s", cfg.ListenAddr)
	}
	if cfg.Persist.BatchSize != 10 || cfg.Persist.FlushTimeout != 25*time.Millisecond {
		t.Errorf("persist: got %+v", cfg.Persist)
	}
	// Unset fields keep their defaults.
	if cfg.NATSURL != "nats://localhost:4222" {
		t.Errorf("nats_url default: got %s", cfg.NATSURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
	if cfg.Namespaces[0].ENPThresholdPPM != 4_000_000 {
		t.Errorf("enp threshold: got %d", cfg.Namespaces[0].ENPThresholdPPM)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SYNTH_LISTEN_ADDR", ":7777")
	t.Setenv("SYNTH_PERSIST_BATCH_SIZE", "5")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":7777" {
		t.Errorf("listen_addr: got %s", cfg.ListenAddr)
	}
	if cfg.Persist.BatchSize != 5 {
		t.Errorf("batch_size: got %d", cfg.Persist.BatchSize)
	}
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*config.Config)
	}{
		{"no namespaces", func(c *config.Config) { c.Namespaces = nil }},
		{"duplicate namespace", func(c *config.Config) {
			c.Namespaces = append(c.Namespaces, c.Namespaces[0])
		}},
		{"unknown settlement asset", func(c *config.Config) {
			c.Namespaces[0].SettlementAsset = "fXYZ"
		}},
		{"duplicate asset", func(c *config.Config) {
			c.Assets = append(c.Assets, c.Assets[0])
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mod(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
