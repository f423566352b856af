// Package cache memoizes quote and historical results keyed by canonical
// request fingerprint, independent of which provider served them. Duplicate
// concurrent requests for one key coalesce onto a single compute; with
// free-tier provider budgets that coalescing is the whole point.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/quantfeed/marketdata/internal/observ"
)

// Class selects the TTL band for an entry.
type Class string

const (
	// ClassQuote: prices move, keep it seconds.
	ClassQuote Class = "quote"
	// ClassIntraday: historical ranges touching the current trading day.
	ClassIntraday Class = "intraday"
	// ClassHistorical: completed past periods, effectively immutable.
	ClassHistorical Class = "historical"
)

// TTLs configures the band durations.
type TTLs struct {
	Quote      time.Duration
	Intraday   time.Duration
	Historical time.Duration
	// StaleGrace keeps expired entries retrievable for this long past their
	// TTL, for the stale-quote fallback when every provider is down.
	StaleGrace time.Duration
}

// DefaultTTLs returns the bands used when config is silent.
func DefaultTTLs() TTLs {
	return TTLs{
		Quote:      15 * time.Second,
		Intraday:   5 * time.Minute,
		Historical: 24 * time.Hour,
		StaleGrace: 3 * time.Minute,
	}
}

// Entry is one stored payload with its freshness metadata.
type Entry struct {
	Payload   []byte        `json:"payload"`
	FetchedAt time.Time     `json:"fetched_at"`
	TTL       time.Duration `json:"ttl"`
}

// Store is the physical backend. Retention tells the store how long to keep
// the entry at minimum; logical freshness is the manager's job.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry, retention time.Duration) error
}

// Manager wraps a Store with TTL classes and per-key compute coalescing.
type Manager struct {
	store Store
	ttls  TTLs
	sf    singleflight.Group
	now   func() time.Time
}

// NewManager creates a cache manager over the given backend.
func NewManager(store Store, ttls TTLs) *Manager {
	if ttls.Quote <= 0 {
		ttls = DefaultTTLs()
	}
	return &Manager{store: store, ttls: ttls, now: time.Now}
}

// QuoteKey fingerprints a quote request.
func QuoteKey(symbol string) string {
	return "quote/" + symbol
}

// HistoricalKey fingerprints a historical request.
func HistoricalKey(symbol, timeframe string, start, end time.Time) string {
	return fmt.Sprintf("hist/%s/%s/%d/%d", symbol, timeframe, start.UTC().Unix(), end.UTC().Unix())
}

// GetOrFetch returns the cached value for key, unmarshaled into out, or runs
// compute and caches its result. At most one compute runs per key at a time;
// concurrent callers for the same key share the first computation's result.
func (m *Manager) GetOrFetch(ctx context.Context, key string, class Class, out any, compute func(ctx context.Context) (any, error)) error {
	ttl := m.ttl(class)

	if e, ok, err := m.store.Get(ctx, key); err == nil && ok {
		if m.now().Sub(e.FetchedAt) <= e.TTL {
			observ.IncCounter("cache_hits_total", map[string]string{"class": string(class)})
			return json.Unmarshal(e.Payload, out)
		}
	}
	observ.IncCounter("cache_misses_total", map[string]string{"class": string(class)})

	payload, err, shared := m.sf.Do(key, func() (any, error) {
		// Re-check under the flight: a just-finished computation may have
		// landed while we queued.
		if e, ok, err := m.store.Get(ctx, key); err == nil && ok {
			if m.now().Sub(e.FetchedAt) <= e.TTL {
				return e.Payload, nil
			}
		}

		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		e := Entry{Payload: b, FetchedAt: m.now(), TTL: ttl}
		if err := m.store.Set(ctx, key, e, ttl+m.ttls.StaleGrace); err != nil {
			observ.Log("cache_write_failed", map[string]any{"key": key, "error": err.Error()})
		}
		return b, nil
	})
	if err != nil {
		return err
	}
	if shared {
		observ.IncCounter("cache_coalesced_total", map[string]string{"class": string(class)})
	}
	return json.Unmarshal(payload.([]byte), out)
}

// GetStale returns an expired entry still within the grace window,
// unmarshaled into out, with its age. Used as a last resort after a full
// cascade exhaustion.
func (m *Manager) GetStale(ctx context.Context, key string, out any) (time.Duration, bool) {
	e, ok, err := m.store.Get(ctx, key)
	if err != nil || !ok {
		return 0, false
	}
	age := m.now().Sub(e.FetchedAt)
	if age > e.TTL+m.ttls.StaleGrace {
		return 0, false
	}
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return 0, false
	}
	return age, true
}

func (m *Manager) ttl(class Class) time.Duration {
	switch class {
	case ClassIntraday:
		return m.ttls.Intraday
	case ClassHistorical:
		return m.ttls.Historical
	default:
		return m.ttls.Quote
	}
}

// SetNow overrides the clock, for tests.
func (m *Manager) SetNow(now func() time.Time) { m.now = now }
