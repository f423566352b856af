package orchestrator

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfeed/marketdata/internal/adapters"
	"github.com/quantfeed/marketdata/internal/budget"
	"github.com/quantfeed/marketdata/internal/cache"
	"github.com/quantfeed/marketdata/internal/calendar"
	"github.com/quantfeed/marketdata/internal/config"
	"github.com/quantfeed/marketdata/internal/gaps"
	"github.com/quantfeed/marketdata/internal/health"
	"github.com/quantfeed/marketdata/internal/normalize"
	"github.com/quantfeed/marketdata/internal/observ"
	"github.com/quantfeed/marketdata/internal/ratelimit"
	"github.com/quantfeed/marketdata/internal/router"
	"github.com/quantfeed/marketdata/internal/storage"
)

// Build assembles the full orchestration layer from static configuration.
// Configuration errors surface here, at startup, never at request time.
func Build(cfg config.Root) (*Orchestrator, error) {
	strategy, err := router.ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	rl := ratelimit.New()
	bt := budget.New()
	hm := health.New(health.Config{
		ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
		ErrorRateThreshold:  cfg.Breaker.ErrorRateThreshold,
		ErrorRateMinCalls:   cfg.Breaker.ErrorRateMinCalls,
		Cooldown:            time.Duration(cfg.Breaker.CooldownSeconds) * time.Second,
		MaxCooldown:         time.Duration(cfg.Breaker.MaxCooldownSeconds) * time.Second,
	})
	norm := normalize.New()

	set := make(map[string]adapters.Adapter, len(cfg.Providers))
	descriptors := make([]adapters.Descriptor, 0, len(cfg.Providers))
	for _, p := range cfg.Providers {
		desc, err := buildDescriptor(p)
		if err != nil {
			return nil, err
		}
		a, err := adapters.New(p.Kind, desc)
		if err != nil {
			return nil, err
		}
		set[p.ID] = a
		descriptors = append(descriptors, desc)

		rl.Register(p.ID, p.RatePerMinute, p.RatePerDay)
		bt.Register(p.ID, desc.CostPerCall, desc.DailyBudget, desc.MonthlyBudget)
		hm.Register(p.ID)

		fm := normalize.DefaultFieldMap()
		fm.Currency = p.Currency
		norm.RegisterProvider(p.ID, fm)
		if p.SymbolSuffix != "" {
			norm.SetSuffixRule(p.ID, p.SymbolSuffix)
		}
		for canonical, providerSymbol := range p.SymbolMap {
			norm.AddSymbolMapping(p.ID, canonical, providerSymbol)
		}
	}

	cal := calendar.NewMarketHours()
	for exchange, dates := range cfg.Holidays {
		cal.AddHolidays(exchange, dates)
	}

	var cacheStore cache.Store
	if cfg.Cache.Redis.Enabled {
		rs, err := cache.NewRedisStore(cache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		cacheStore = rs
	} else {
		cacheStore = cache.NewMemoryStore()
	}
	cm := cache.NewManager(cacheStore, cache.TTLs{
		Quote:      time.Duration(cfg.Cache.QuoteTTLSeconds) * time.Second,
		Intraday:   time.Duration(cfg.Cache.IntradayTTLSeconds) * time.Second,
		Historical: time.Duration(cfg.Cache.HistoricalTTLHours) * time.Hour,
		StaleGrace: time.Duration(cfg.Cache.StaleGraceSeconds) * time.Second,
	})

	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("bar storage: %w", err)
	}

	symbols := make(map[string]SymbolMeta, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		meta := defaultMeta
		if s.Exchange != "" {
			meta.Exchange = s.Exchange
		}
		if s.Region != "" {
			meta.Region = adapters.Region(s.Region)
		}
		if s.AssetType != "" {
			meta.AssetType = adapters.AssetType(s.AssetType)
		}
		symbols[s.Symbol] = meta
	}

	observ.Log("orchestrator_built", map[string]any{
		"providers": len(set),
		"strategy":  string(strategy),
		"symbols":   len(symbols),
	})

	return New(Deps{
		Adapters:         set,
		Router:           router.New(descriptors, strategy),
		Failover:         router.NewFailover(set, rl, bt, hm),
		Rate:             rl,
		Budget:           bt,
		Health:           hm,
		Normalizer:       norm,
		Cache:            cm,
		Gaps:             gaps.New(cal),
		Store:            store,
		Symbols:          symbols,
		BatchConcurrency: cfg.BatchConcurrency,
	}), nil
}

func buildDescriptor(p config.Provider) (adapters.Descriptor, error) {
	cost, err := decimal.NewFromString(p.CostPerCall)
	if err != nil {
		return adapters.Descriptor{}, fmt.Errorf("provider %s: cost_per_call %q: %w", p.ID, p.CostPerCall, err)
	}
	daily := decimal.Zero
	if p.DailyBudget != "" {
		if daily, err = decimal.NewFromString(p.DailyBudget); err != nil {
			return adapters.Descriptor{}, fmt.Errorf("provider %s: daily_budget %q: %w", p.ID, p.DailyBudget, err)
		}
	}
	monthly := decimal.Zero
	if p.MonthlyBudget != "" {
		if monthly, err = decimal.NewFromString(p.MonthlyBudget); err != nil {
			return adapters.Descriptor{}, fmt.Errorf("provider %s: monthly_budget %q: %w", p.ID, p.MonthlyBudget, err)
		}
	}

	regions := make([]adapters.Region, len(p.Regions))
	for i, r := range p.Regions {
		regions[i] = adapters.Region(r)
	}
	assets := make([]adapters.AssetType, len(p.AssetTypes))
	for i, a := range p.AssetTypes {
		assets[i] = adapters.AssetType(a)
	}
	dataTypes := make([]adapters.DataType, len(p.DataTypes))
	for i, d := range p.DataTypes {
		dataTypes[i] = adapters.DataType(d)
	}

	return adapters.Descriptor{
		ID:            p.ID,
		Regions:       regions,
		AssetTypes:    assets,
		DataTypes:     dataTypes,
		RatePerMinute: p.RatePerMinute,
		RatePerDay:    p.RatePerDay,
		CostPerCall:   cost,
		DailyBudget:   daily,
		MonthlyBudget: monthly,
		Priority:      p.Priority,
	}, nil
}
