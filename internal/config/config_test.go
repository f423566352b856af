package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
providers:
  - id: alpha
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if c.Strategy != "priority" {
		t.Fatalf("default strategy: got %q", c.Strategy)
	}
	if c.BatchConcurrency != 4 || c.ListenAddr != ":8090" {
		t.Fatalf("server defaults: %+v", c)
	}
	if c.Breaker.ConsecutiveFailures != 5 || c.Breaker.CooldownSeconds != 30 {
		t.Fatalf("breaker defaults: %+v", c.Breaker)
	}
	if c.Cache.QuoteTTLSeconds != 15 || c.Cache.HistoricalTTLHours != 24 {
		t.Fatalf("cache defaults: %+v", c.Cache)
	}

	p := c.Providers[0]
	if p.Kind != "sim" || p.CostPerCall != "0" || p.Currency != "USD" {
		t.Fatalf("provider defaults: %+v", p)
	}
	if len(p.Regions) == 0 || len(p.DataTypes) == 0 {
		t.Fatalf("capability defaults missing: %+v", p)
	}
}

func TestLoadExplicitValuesWin(t *testing.T) {
	path := writeConfig(t, `
strategy: cost_optimized
listen_addr: ":9000"
providers:
  - id: lse
    kind: mock
    regions: [eu]
    cost_per_call: "0.001"
    currency: GBP
    symbol_suffix: ".L"
    symbol_map:
      BRK.B: BRK-B.L
breaker:
  consecutive_failures: 2
`)
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Strategy != "cost_optimized" || c.ListenAddr != ":9000" {
		t.Fatalf("explicit values lost: %+v", c)
	}
	if c.Breaker.ConsecutiveFailures != 2 {
		t.Fatalf("breaker override lost: %+v", c.Breaker)
	}
	p := c.Providers[0]
	if p.Currency != "GBP" || p.SymbolSuffix != ".L" || p.SymbolMap["BRK.B"] != "BRK-B.L" {
		t.Fatalf("provider fields lost: %+v", p)
	}
}

func TestLoadRejectsEmptyProviders(t *testing.T) {
	path := writeConfig(t, `strategy: priority`)
	if _, err := Load(path); err == nil {
		t.Fatal("config without providers must fail")
	}
}

func TestLoadRejectsDuplicateIDs(t *testing.T) {
	path := writeConfig(t, `
providers:
  - id: alpha
  - id: alpha
`)
	if _, err := Load(path); err == nil {
		t.Fatal("duplicate provider ids must fail")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing file must fail")
	}
}
