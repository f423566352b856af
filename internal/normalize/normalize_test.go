package normalize

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/quantfeed/marketdata/internal/adapters"
)

func TestNormalizeQuoteDefaultSchema(t *testing.T) {
	n := New()
	raw := adapters.RawRecord{
		"last":   "187.4500",
		"bid":    "187.4000",
		"ask":    "187.5000",
		"volume": "1250000",
		"ts":     "2026-03-02T14:30:00Z",
	}

	q, err := n.NormalizeQuote("alpha", "AAPL", raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if q.Symbol != "AAPL" || q.Price != 187.45 || q.Bid != 187.40 || q.Ask != 187.50 {
		t.Fatalf("unexpected quote %+v", q)
	}
	if q.Volume != 1250000 || q.Currency != "USD" || q.Source != "alpha" {
		t.Fatalf("unexpected quote metadata %+v", q)
	}
	if !q.Timestamp.Equal(time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected timestamp %v", q.Timestamp)
	}
}

func TestNormalizationIsDeterministic(t *testing.T) {
	n := New()
	raw := adapters.RawRecord{
		"last": "50.10", "bid": "50.00", "ask": "50.20", "volume": "900",
		"ts": "2026-03-02T10:00:00Z",
	}

	first, err := n.NormalizeQuote("alpha", "MSFT", raw)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	second, err := n.NormalizeQuote("alpha", "MSFT", raw)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same raw record produced different quotes:\n%+v\n%+v", first, second)
	}
}

func TestMissingMandatoryFieldFailsWithNormalizationClass(t *testing.T) {
	n := New()
	raw := adapters.RawRecord{
		"bid": "10.00", "ask": "10.10",
		"ts": "2026-03-02T10:00:00Z",
	}

	_, err := n.NormalizeQuote("alpha", "AAPL", raw)
	if err == nil {
		t.Fatal("missing price must fail normalization")
	}
	var pe *adapters.ProviderError
	if !errors.As(err, &pe) || pe.Class != adapters.ErrNormalization {
		t.Fatalf("expected normalization-class provider error, got %v", err)
	}
}

func TestCustomFieldMap(t *testing.T) {
	n := New()
	fm := FieldMap{
		Price: "c", Volume: "v",
		Timestamp: "t", TimeLayout: "2006-01-02 15:04:05", Currency: "EUR",
	}
	n.RegisterProvider("euro_feed", fm)

	q, err := n.NormalizeQuote("euro_feed", "SAP", adapters.RawRecord{
		"c": "142.30", "v": "5000", "t": "2026-03-02 09:15:00",
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if q.Price != 142.30 || q.Currency != "EUR" || q.Volume != 5000 {
		t.Fatalf("unexpected quote %+v", q)
	}
}

func TestNormalizeBar(t *testing.T) {
	n := New()
	raw := adapters.RawRecord{
		"o": "100.0", "h": "102.5", "l": "99.5", "c": "101.0",
		"volume": "40000", "ts": "2026-03-02T00:00:00Z",
	}

	b, err := n.NormalizeBar("alpha", "AAPL", adapters.Timeframe1d, raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if b.Open != 100 || b.High != 102.5 || b.Low != 99.5 || b.Close != 101 {
		t.Fatalf("unexpected bar %+v", b)
	}
	if b.Timeframe != adapters.Timeframe1d || b.Source != "alpha" {
		t.Fatalf("unexpected bar metadata %+v", b)
	}
}

func TestNormalizeBarRejectsInvalidRange(t *testing.T) {
	n := New()
	// high < low fails canonical validation, surfaced as normalization class.
	raw := adapters.RawRecord{
		"o": "100", "h": "99", "l": "101", "c": "100",
		"ts": "2026-03-02T00:00:00Z",
	}
	_, err := n.NormalizeBar("alpha", "AAPL", adapters.Timeframe1d, raw)
	var pe *adapters.ProviderError
	if !errors.As(err, &pe) || pe.Class != adapters.ErrNormalization {
		t.Fatalf("expected normalization-class error, got %v", err)
	}
}

func TestSymbolSuffixRule(t *testing.T) {
	n := New()
	n.SetSuffixRule("lse_feed", ".L")

	if got := n.ToProviderSymbol("lse_feed", "VOD"); got != "VOD.L" {
		t.Fatalf("ToProviderSymbol: got %q", got)
	}
	if got := n.ToCanonicalSymbol("lse_feed", "VOD.L"); got != "VOD" {
		t.Fatalf("ToCanonicalSymbol: got %q", got)
	}
	// Unmapped providers pass symbols through untouched.
	if got := n.ToProviderSymbol("us_feed", "VOD"); got != "VOD" {
		t.Fatalf("pass-through: got %q", got)
	}
}

func TestExplicitSymbolMappingBeatsSuffix(t *testing.T) {
	n := New()
	n.SetSuffixRule("lse_feed", ".L")
	n.AddSymbolMapping("lse_feed", "BRK.B", "BRK-B.L")

	if got := n.ToProviderSymbol("lse_feed", "BRK.B"); got != "BRK-B.L" {
		t.Fatalf("explicit mapping should win, got %q", got)
	}
	if got := n.ToCanonicalSymbol("lse_feed", "BRK-B.L"); got != "BRK.B" {
		t.Fatalf("reverse mapping: got %q", got)
	}
}

func TestNormalizeFundamentals(t *testing.T) {
	n := New()
	raw := adapters.RawRecord{
		"name": "Apple Inc", "market_cap": "2900000000000",
		"pe_ratio": "29.4", "eps": "6.42", "dividend_yield": "0.0055",
		"as_of": "2026-02-28T00:00:00Z",
	}

	f, err := n.NormalizeFundamentals("alpha", "AAPL", raw)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if f.Name != "Apple Inc" || f.PERatio != 29.4 || f.EPS != 6.42 {
		t.Fatalf("unexpected fundamentals %+v", f)
	}

	if _, err := n.NormalizeFundamentals("alpha", "AAPL", adapters.RawRecord{}); err == nil {
		t.Fatal("empty record must fail")
	}
}
