package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Provider declares one upstream data provider: identity, capabilities and
// the static limits the orchestration layer enforces against it.
type Provider struct {
	ID         string   `yaml:"id"`
	Kind       string   `yaml:"kind"` // adapter kind: sim | mock | ...
	Regions    []string `yaml:"regions"`
	AssetTypes []string `yaml:"asset_types"`
	DataTypes  []string `yaml:"data_types"`

	RatePerMinute int    `yaml:"rate_per_minute"`
	RatePerDay    int    `yaml:"rate_per_day"`
	CostPerCall   string `yaml:"cost_per_call"`  // decimal USD, e.g. "0.002"
	DailyBudget   string `yaml:"daily_budget"`   // decimal USD, empty = uncapped
	MonthlyBudget string `yaml:"monthly_budget"` // decimal USD, empty = uncapped
	Priority      int    `yaml:"priority"`

	// Normalization
	Currency     string            `yaml:"currency"`
	SymbolSuffix string            `yaml:"symbol_suffix"` // e.g. ".L" for LSE-style feeds
	SymbolMap    map[string]string `yaml:"symbol_map"`    // canonical -> provider symbol

	// Opaque transport credentials passed through to the wire adapter.
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// Symbol pins exchange/region metadata for a canonical symbol. Symbols not
// listed default to US equities on XNYS.
type Symbol struct {
	Symbol    string `yaml:"symbol"`
	Exchange  string `yaml:"exchange"`
	Region    string `yaml:"region"`
	AssetType string `yaml:"asset_type"`
}

type Breaker struct {
	ConsecutiveFailures int     `yaml:"consecutive_failures"`
	ErrorRateThreshold  float64 `yaml:"error_rate_threshold"`
	ErrorRateMinCalls   int     `yaml:"error_rate_min_calls"`
	CooldownSeconds     int     `yaml:"cooldown_seconds"`
	MaxCooldownSeconds  int     `yaml:"max_cooldown_seconds"`
}

type Redis struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type Cache struct {
	QuoteTTLSeconds    int   `yaml:"quote_ttl_seconds"`
	IntradayTTLSeconds int   `yaml:"intraday_ttl_seconds"`
	HistoricalTTLHours int   `yaml:"historical_ttl_hours"`
	StaleGraceSeconds  int   `yaml:"stale_grace_seconds"`
	Redis              Redis `yaml:"redis"`
}

type Storage struct {
	Path string `yaml:"path"`
}

type Root struct {
	Strategy         string              `yaml:"strategy"` // priority | cost_optimized | round_robin
	BatchConcurrency int                 `yaml:"batch_concurrency"`
	ListenAddr       string              `yaml:"listen_addr"`
	Providers        []Provider          `yaml:"providers"`
	Symbols          []Symbol            `yaml:"symbols"`
	Breaker          Breaker             `yaml:"breaker"`
	Cache            Cache               `yaml:"cache"`
	Storage          Storage             `yaml:"storage"`
	Holidays         map[string][]string `yaml:"holidays"` // exchange -> dates ("2006-01-02")
}

// Load reads and defaults the configuration.
func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	applyDefaults(&c)
	if err := validate(&c); err != nil {
		return c, err
	}
	return c, nil
}

func applyDefaults(c *Root) {
	if c.Strategy == "" {
		c.Strategy = "priority"
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = 4
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8090"
	}
	if c.Breaker.ConsecutiveFailures <= 0 {
		c.Breaker.ConsecutiveFailures = 5
	}
	if c.Breaker.ErrorRateThreshold <= 0 {
		c.Breaker.ErrorRateThreshold = 0.5
	}
	if c.Breaker.ErrorRateMinCalls <= 0 {
		c.Breaker.ErrorRateMinCalls = 10
	}
	if c.Breaker.CooldownSeconds <= 0 {
		c.Breaker.CooldownSeconds = 30
	}
	if c.Breaker.MaxCooldownSeconds <= 0 {
		c.Breaker.MaxCooldownSeconds = 600
	}
	if c.Cache.QuoteTTLSeconds <= 0 {
		c.Cache.QuoteTTLSeconds = 15
	}
	if c.Cache.IntradayTTLSeconds <= 0 {
		c.Cache.IntradayTTLSeconds = 300
	}
	if c.Cache.HistoricalTTLHours <= 0 {
		c.Cache.HistoricalTTLHours = 24
	}
	if c.Cache.StaleGraceSeconds <= 0 {
		c.Cache.StaleGraceSeconds = 180
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/bars.db"
	}
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.Kind == "" {
			p.Kind = "sim"
		}
		if len(p.Regions) == 0 {
			p.Regions = []string{"us"}
		}
		if len(p.AssetTypes) == 0 {
			p.AssetTypes = []string{"equity", "etf"}
		}
		if len(p.DataTypes) == 0 {
			p.DataTypes = []string{"quote", "historical"}
		}
		if p.CostPerCall == "" {
			p.CostPerCall = "0"
		}
		if p.Currency == "" {
			p.Currency = "USD"
		}
	}
}

func validate(c *Root) error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("config: at least one provider is required")
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("config: provider with empty id")
		}
		if seen[p.ID] {
			return fmt.Errorf("config: duplicate provider id %q", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}
