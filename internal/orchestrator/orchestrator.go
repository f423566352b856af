// Package orchestrator is the public facade of the provider orchestration
// layer: cache in front, router and failover cascade behind, normalization
// on the way out, and gap-aware backfill for historical series.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/quantfeed/marketdata/internal/adapters"
	"github.com/quantfeed/marketdata/internal/budget"
	"github.com/quantfeed/marketdata/internal/cache"
	"github.com/quantfeed/marketdata/internal/gaps"
	"github.com/quantfeed/marketdata/internal/health"
	"github.com/quantfeed/marketdata/internal/normalize"
	"github.com/quantfeed/marketdata/internal/observ"
	"github.com/quantfeed/marketdata/internal/ratelimit"
	"github.com/quantfeed/marketdata/internal/router"
	"github.com/quantfeed/marketdata/internal/storage"
)

// SymbolMeta resolves a canonical symbol to its exchange and routing keys.
type SymbolMeta struct {
	Exchange  string
	Region    adapters.Region
	AssetType adapters.AssetType
}

var defaultMeta = SymbolMeta{Exchange: "XNYS", Region: adapters.RegionUS, AssetType: adapters.AssetEquity}

// Orchestrator composes the orchestration layer behind four data calls and
// a diagnostics surface.
type Orchestrator struct {
	adapters   map[string]adapters.Adapter
	router     *router.Router
	failover   *router.Failover
	rate       *ratelimit.Limiter
	budget     *budget.Tracker
	health     *health.Monitor
	normalizer *normalize.Normalizer
	cache      *cache.Manager
	gaps       *gaps.Detector
	store      storage.BarStore

	mu      sync.RWMutex
	symbols map[string]SymbolMeta

	batchConcurrency int
	now              func() time.Time
}

// Deps carries the wired components into the facade.
type Deps struct {
	Adapters         map[string]adapters.Adapter
	Router           *router.Router
	Failover         *router.Failover
	Rate             *ratelimit.Limiter
	Budget           *budget.Tracker
	Health           *health.Monitor
	Normalizer       *normalize.Normalizer
	Cache            *cache.Manager
	Gaps             *gaps.Detector
	Store            storage.BarStore
	Symbols          map[string]SymbolMeta
	BatchConcurrency int
}

// New assembles the facade.
func New(d Deps) *Orchestrator {
	if d.BatchConcurrency <= 0 {
		d.BatchConcurrency = 4
	}
	if d.Symbols == nil {
		d.Symbols = make(map[string]SymbolMeta)
	}
	return &Orchestrator{
		adapters:         d.Adapters,
		router:           d.Router,
		failover:         d.Failover,
		rate:             d.Rate,
		budget:           d.Budget,
		health:           d.Health,
		normalizer:       d.Normalizer,
		cache:            d.Cache,
		gaps:             d.Gaps,
		store:            d.Store,
		symbols:          d.Symbols,
		batchConcurrency: d.BatchConcurrency,
		now:              time.Now,
	}
}

// SetSymbolMeta pins routing metadata for a canonical symbol.
func (o *Orchestrator) SetSymbolMeta(symbol string, meta SymbolMeta) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.symbols[symbol] = meta
}

func (o *Orchestrator) meta(symbol string) SymbolMeta {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if m, ok := o.symbols[symbol]; ok {
		return m
	}
	return defaultMeta
}

// GetQuote serves one canonical quote: cache first, then the failover
// cascade. When every candidate is exhausted a still-tolerably-stale cached
// quote is returned with its age instead of the aggregate error.
func (o *Orchestrator) GetQuote(ctx context.Context, symbol string) (*adapters.Quote, error) {
	meta := o.meta(symbol)
	key := cache.QuoteKey(symbol)

	var q adapters.Quote
	err := o.cache.GetOrFetch(ctx, key, cache.ClassQuote, &q, func(ctx context.Context) (any, error) {
		return o.fetchQuote(ctx, symbol, meta)
	})
	if err == nil {
		return &q, nil
	}

	var cascade *router.CascadeError
	if errors.As(err, &cascade) {
		var stale adapters.Quote
		if age, ok := o.cache.GetStale(ctx, key, &stale); ok {
			stale.StalenessMs = age.Milliseconds()
			observ.Log("quote_served_stale", map[string]any{
				"symbol": symbol,
				"age_ms": stale.StalenessMs,
			})
			return &stale, nil
		}
	}
	return nil, err
}

func (o *Orchestrator) fetchQuote(ctx context.Context, symbol string, meta SymbolMeta) (*adapters.Quote, error) {
	candidates := o.router.Candidates(meta.Region, meta.AssetType, adapters.DataQuote)

	var quote *adapters.Quote
	_, err := o.failover.Execute(ctx, symbol, adapters.DataQuote, candidates, func(a adapters.Adapter) error {
		id := a.Descriptor().ID
		raw, err := a.GetQuote(ctx, o.normalizer.ToProviderSymbol(id, symbol))
		if err != nil {
			return err
		}
		q, err := o.normalizer.NormalizeQuote(id, symbol, raw)
		if err != nil {
			return err
		}
		quote = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}

// GetHistorical returns the full requested range [start, end) from storage,
// backfilling only the calendar-aware gaps first. Reading back from storage
// keeps provenance uniform regardless of which gaps were fetched when.
func (o *Orchestrator) GetHistorical(ctx context.Context, symbol string, tf adapters.Timeframe, start, end time.Time) ([]adapters.Bar, error) {
	meta := o.meta(symbol)
	key := cache.HistoricalKey(symbol, string(tf), start, end)
	class := cache.ClassHistorical
	if end.After(o.todayUTC()) {
		class = cache.ClassIntraday
	}

	var bars []adapters.Bar
	err := o.cache.GetOrFetch(ctx, key, class, &bars, func(ctx context.Context) (any, error) {
		if err := o.backfill(ctx, symbol, meta, tf, start, end); err != nil {
			return nil, err
		}
		return o.store.Query(ctx, symbol, tf, start, end)
	})
	if err != nil {
		return nil, err
	}
	return bars, nil
}

// backfill fetches every missing sub-range through the cascade and upserts
// the normalized bars.
func (o *Orchestrator) backfill(ctx context.Context, symbol string, meta SymbolMeta, tf adapters.Timeframe, start, end time.Time) error {
	stored, err := o.store.Timestamps(ctx, symbol, tf, start, end)
	if err != nil {
		return err
	}
	missing := o.gaps.Missing(symbol, meta.Exchange, tf, start, end, stored)
	if len(missing) == 0 {
		return nil
	}
	observ.Log("backfill_planned", map[string]any{
		"symbol":    symbol,
		"timeframe": string(tf),
		"gaps":      len(missing),
	})

	candidates := o.router.Candidates(meta.Region, meta.AssetType, adapters.DataHistorical)
	for _, gap := range missing {
		var bars []adapters.Bar
		_, err := o.failover.Execute(ctx, symbol, adapters.DataHistorical, candidates, func(a adapters.Adapter) error {
			id := a.Descriptor().ID
			raws, err := a.GetHistorical(ctx, o.normalizer.ToProviderSymbol(id, symbol), tf, gap.Start, gap.End)
			if err != nil {
				return err
			}
			bars = bars[:0]
			for _, raw := range raws {
				b, err := o.normalizer.NormalizeBar(id, symbol, tf, raw)
				if err != nil {
					return err
				}
				bars = append(bars, *b)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if err := o.store.Upsert(ctx, bars); err != nil {
			return err
		}
	}
	return nil
}

// GetHistoricalBatch runs the historical pipeline per symbol with a bounded
// fan-out. Symbols that fail after full cascade exhaustion are omitted from
// the result, not fatal to the batch.
func (o *Orchestrator) GetHistoricalBatch(ctx context.Context, symbols []string, tf adapters.Timeframe, start, end time.Time) map[string][]adapters.Bar {
	results := make(map[string][]adapters.Bar, len(symbols))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, o.batchConcurrency)

	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			bars, err := o.GetHistorical(ctx, symbol, tf, start, end)
			if err != nil {
				observ.Log("batch_symbol_failed", map[string]any{
					"symbol": symbol,
					"error":  err.Error(),
				})
				return
			}
			mu.Lock()
			results[symbol] = bars
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()
	return results
}

// GetFundamentals serves a canonical fundamental snapshot through the
// cascade. Fundamentals are slow-moving, so they ride the historical TTL.
func (o *Orchestrator) GetFundamentals(ctx context.Context, symbol string) (*adapters.Fundamentals, error) {
	meta := o.meta(symbol)
	key := "fund/" + symbol

	var f adapters.Fundamentals
	err := o.cache.GetOrFetch(ctx, key, cache.ClassHistorical, &f, func(ctx context.Context) (any, error) {
		candidates := o.router.Candidates(meta.Region, meta.AssetType, adapters.DataFundamentals)
		var out *adapters.Fundamentals
		_, err := o.failover.Execute(ctx, symbol, adapters.DataFundamentals, candidates, func(a adapters.Adapter) error {
			id := a.Descriptor().ID
			raw, err := a.GetFundamentals(ctx, o.normalizer.ToProviderSymbol(id, symbol))
			if err != nil {
				return err
			}
			nf, err := o.normalizer.NormalizeFundamentals(id, symbol, raw)
			if err != nil {
				return err
			}
			out = nf
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ProviderDiagnostics is the operational view of one provider's runtime
// state.
type ProviderDiagnostics struct {
	Provider        string          `json:"provider"`
	Circuit         health.Snapshot `json:"circuit"`
	RateMinuteLeft  int             `json:"rate_minute_left"`  // -1 = uncapped
	RateDayLeft     int             `json:"rate_day_left"`     // -1 = uncapped
	BudgetDayLeft   string          `json:"budget_day_left"`   // decimal USD, "-1" = uncapped
	BudgetMonthLeft string          `json:"budget_month_left"` // decimal USD, "-1" = uncapped
}

// Diagnostics snapshots every provider's circuit, budget and rate state.
func (o *Orchestrator) Diagnostics() []ProviderDiagnostics {
	out := make([]ProviderDiagnostics, 0, len(o.adapters))
	for id := range o.adapters {
		minute, day := o.rate.Remaining(id)
		bDay, bMonth := o.budget.Remaining(id)
		observ.SetGauge("rate_minute_remaining", float64(minute), map[string]string{"provider": id})
		observ.SetGauge("budget_day_remaining", bDay.InexactFloat64(), map[string]string{"provider": id})
		out = append(out, ProviderDiagnostics{
			Provider:        id,
			Circuit:         o.health.SnapshotOf(id),
			RateMinuteLeft:  minute,
			RateDayLeft:     day,
			BudgetDayLeft:   bDay.String(),
			BudgetMonthLeft: bMonth.String(),
		})
	}
	return out
}

func (o *Orchestrator) todayUTC() time.Time {
	t := o.now().UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
