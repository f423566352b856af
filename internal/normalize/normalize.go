// Package normalize maps each provider's raw response shape into the
// canonical model. Normalization is pure: the same raw record always yields
// the same canonical value, and a record missing mandatory fields fails with
// a normalization-class ProviderError so the caller treats it exactly like a
// provider failure and cascades onward.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/quantfeed/marketdata/internal/adapters"
)

// FieldMap names the raw keys a provider uses for each canonical field.
// Empty optional fields are simply absent from the output; empty mandatory
// fields fail normalization.
type FieldMap struct {
	// quote fields; Price is mandatory
	Price  string
	Bid    string
	Ask    string
	Volume string

	// bar fields; all four prices are mandatory
	Open       string
	High       string
	Low        string
	Close      string
	VWAP       string
	TradeCount string

	// fundamentals fields
	Name          string
	MarketCap     string
	PERatio       string
	EPS           string
	DividendYield string
	AsOf          string

	// shared
	Timestamp  string // raw key holding the record time
	TimeLayout string // defaults to RFC3339
	Currency   string // static currency for this provider's feed
}

// DefaultFieldMap matches the schema emitted by the sim and mock adapters.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		Price: "last", Bid: "bid", Ask: "ask", Volume: "volume",
		Open: "o", High: "h", Low: "l", Close: "c",
		Name: "name", MarketCap: "market_cap", PERatio: "pe_ratio",
		EPS: "eps", DividendYield: "dividend_yield", AsOf: "as_of",
		Timestamp: "ts", TimeLayout: time.RFC3339, Currency: "USD",
	}
}

// Normalizer holds the per-provider field maps and symbol mappings.
type Normalizer struct {
	mu      sync.RWMutex
	fields  map[string]FieldMap
	toProv  map[string]map[string]string // provider -> canonical -> provider symbol
	toCanon map[string]map[string]string // provider -> provider symbol -> canonical
	suffix  map[string]string            // provider -> exchange suffix appended to non-US symbols
}

// New creates an empty normalizer.
func New() *Normalizer {
	return &Normalizer{
		fields:  make(map[string]FieldMap),
		toProv:  make(map[string]map[string]string),
		toCanon: make(map[string]map[string]string),
		suffix:  make(map[string]string),
	}
}

// RegisterProvider sets the field map for a provider. Providers without an
// explicit map fall back to the default schema.
func (n *Normalizer) RegisterProvider(provider string, fm FieldMap) {
	if fm.TimeLayout == "" {
		fm.TimeLayout = time.RFC3339
	}
	if fm.Currency == "" {
		fm.Currency = "USD"
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fields[provider] = fm
}

// AddSymbolMapping pins an explicit canonical <-> provider symbol pair,
// e.g. canonical VOD <-> "VOD.L" on a provider using LSE suffixes.
func (n *Normalizer) AddSymbolMapping(provider, canonical, providerSymbol string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.toProv[provider] == nil {
		n.toProv[provider] = make(map[string]string)
		n.toCanon[provider] = make(map[string]string)
	}
	n.toProv[provider][canonical] = providerSymbol
	n.toCanon[provider][providerSymbol] = canonical
}

// SetSuffixRule appends an exchange suffix to every symbol sent to the
// provider that has no explicit mapping (LSE-style ".L" conventions).
func (n *Normalizer) SetSuffixRule(provider, suffix string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.suffix[provider] = suffix
}

// ToProviderSymbol translates a canonical symbol into the provider's own
// convention before the adapter call.
func (n *Normalizer) ToProviderSymbol(provider, canonical string) string {
	canonical = strings.ToUpper(strings.TrimSpace(canonical))
	n.mu.RLock()
	defer n.mu.RUnlock()
	if m := n.toProv[provider]; m != nil {
		if s, ok := m[canonical]; ok {
			return s
		}
	}
	if sfx := n.suffix[provider]; sfx != "" && !strings.HasSuffix(canonical, sfx) {
		return canonical + sfx
	}
	return canonical
}

// ToCanonicalSymbol reverses the provider's symbol convention.
func (n *Normalizer) ToCanonicalSymbol(provider, providerSymbol string) string {
	providerSymbol = strings.ToUpper(strings.TrimSpace(providerSymbol))
	n.mu.RLock()
	defer n.mu.RUnlock()
	if m := n.toCanon[provider]; m != nil {
		if s, ok := m[providerSymbol]; ok {
			return s
		}
	}
	if sfx := n.suffix[provider]; sfx != "" {
		return strings.TrimSuffix(providerSymbol, sfx)
	}
	return providerSymbol
}

// NormalizeQuote maps one raw quote record into the canonical quote.
func (n *Normalizer) NormalizeQuote(provider, canonicalSymbol string, raw adapters.RawRecord) (*adapters.Quote, error) {
	fm := n.fieldMap(provider)

	price, err := mandatoryFloat(raw, fm.Price)
	if err != nil {
		return nil, adapters.NewNormalizationError(provider, canonicalSymbol, "quote price", err)
	}
	ts, err := recordTime(raw, fm)
	if err != nil {
		return nil, adapters.NewNormalizationError(provider, canonicalSymbol, "quote timestamp", err)
	}

	q := &adapters.Quote{
		Symbol:    canonicalSymbol,
		Price:     price,
		Bid:       optionalFloat(raw, fm.Bid),
		Ask:       optionalFloat(raw, fm.Ask),
		Volume:    optionalInt(raw, fm.Volume),
		Currency:  fm.Currency,
		Timestamp: ts,
		Source:    provider,
	}
	if err := adapters.ValidateQuote(q); err != nil {
		return nil, adapters.NewNormalizationError(provider, canonicalSymbol, "quote validation", err)
	}
	return q, nil
}

// NormalizeBar maps one raw bar record into the canonical bar.
func (n *Normalizer) NormalizeBar(provider, canonicalSymbol string, tf adapters.Timeframe, raw adapters.RawRecord) (*adapters.Bar, error) {
	fm := n.fieldMap(provider)

	open, err := mandatoryFloat(raw, fm.Open)
	if err != nil {
		return nil, adapters.NewNormalizationError(provider, canonicalSymbol, "bar open", err)
	}
	high, err := mandatoryFloat(raw, fm.High)
	if err != nil {
		return nil, adapters.NewNormalizationError(provider, canonicalSymbol, "bar high", err)
	}
	low, err := mandatoryFloat(raw, fm.Low)
	if err != nil {
		return nil, adapters.NewNormalizationError(provider, canonicalSymbol, "bar low", err)
	}
	cls, err := mandatoryFloat(raw, fm.Close)
	if err != nil {
		return nil, adapters.NewNormalizationError(provider, canonicalSymbol, "bar close", err)
	}
	ts, err := recordTime(raw, fm)
	if err != nil {
		return nil, adapters.NewNormalizationError(provider, canonicalSymbol, "bar timestamp", err)
	}

	b := &adapters.Bar{
		Symbol:    canonicalSymbol,
		Timeframe: tf,
		Timestamp: ts.UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    optionalInt(raw, fm.Volume),
		Source:    provider,
	}
	if fm.VWAP != "" {
		if v, ok := floatAt(raw, fm.VWAP); ok {
			b.VWAP = &v
		}
	}
	if fm.TradeCount != "" {
		if v, ok := intAt(raw, fm.TradeCount); ok {
			b.TradeCount = &v
		}
	}
	if err := adapters.ValidateBar(b); err != nil {
		return nil, adapters.NewNormalizationError(provider, canonicalSymbol, "bar validation", err)
	}
	return b, nil
}

// NormalizeFundamentals maps one raw fundamentals record.
func (n *Normalizer) NormalizeFundamentals(provider, canonicalSymbol string, raw adapters.RawRecord) (*adapters.Fundamentals, error) {
	fm := n.fieldMap(provider)

	asOf := time.Time{}
	if fm.AsOf != "" {
		if s, ok := raw[fm.AsOf]; ok && s != "" {
			t, err := time.Parse(fm.TimeLayout, s)
			if err != nil {
				return nil, adapters.NewNormalizationError(provider, canonicalSymbol, "fundamentals as_of", err)
			}
			asOf = t.UTC()
		}
	}

	f := &adapters.Fundamentals{
		Symbol:        canonicalSymbol,
		Name:          raw[fm.Name],
		MarketCap:     optionalFloat(raw, fm.MarketCap),
		PERatio:       optionalFloat(raw, fm.PERatio),
		EPS:           optionalFloat(raw, fm.EPS),
		DividendYield: optionalFloat(raw, fm.DividendYield),
		Currency:      fm.Currency,
		AsOf:          asOf,
		Source:        provider,
	}
	if f.MarketCap == 0 && f.PERatio == 0 && f.EPS == 0 && f.Name == "" {
		return nil, adapters.NewNormalizationError(provider, canonicalSymbol, "fundamentals", fmt.Errorf("no recognizable fields in record"))
	}
	return f, nil
}

func (n *Normalizer) fieldMap(provider string) FieldMap {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if fm, ok := n.fields[provider]; ok {
		return fm
	}
	return DefaultFieldMap()
}

func recordTime(raw adapters.RawRecord, fm FieldMap) (time.Time, error) {
	if fm.Timestamp == "" {
		return time.Time{}, fmt.Errorf("no timestamp field configured")
	}
	s, ok := raw[fm.Timestamp]
	if !ok || s == "" {
		return time.Time{}, fmt.Errorf("missing field %q", fm.Timestamp)
	}
	t, err := time.Parse(fm.TimeLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func mandatoryFloat(raw adapters.RawRecord, key string) (float64, error) {
	if key == "" {
		return 0, fmt.Errorf("field not configured")
	}
	s, ok := raw[key]
	if !ok || s == "" {
		return 0, fmt.Errorf("missing field %q", key)
	}
	return strconv.ParseFloat(s, 64)
}

func optionalFloat(raw adapters.RawRecord, key string) float64 {
	v, _ := floatAt(raw, key)
	return v
}

func floatAt(raw adapters.RawRecord, key string) (float64, bool) {
	if key == "" {
		return 0, false
	}
	s, ok := raw[key]
	if !ok || s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func optionalInt(raw adapters.RawRecord, key string) int64 {
	v, _ := intAt(raw, key)
	return v
}

func intAt(raw adapters.RawRecord, key string) (int64, bool) {
	if key == "" {
		return 0, false
	}
	s, ok := raw[key]
	if !ok || s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
