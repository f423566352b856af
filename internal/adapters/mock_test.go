package adapters

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMockAdapterScriptedQuote(t *testing.T) {
	m := NewMockAdapter(Descriptor{ID: "mock1"})
	m.SetQuotePrice("AAPL", 187.45)

	rec, err := m.GetQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("get quote: %v", err)
	}
	if rec["last"] != "187.4500" {
		t.Fatalf("unexpected record %v", rec)
	}
	if m.QuoteCalls != 1 || m.Calls() != 1 {
		t.Fatalf("call counting broken: %d", m.Calls())
	}
}

func TestMockAdapterUnscriptedSymbol(t *testing.T) {
	m := NewMockAdapter(Descriptor{ID: "mock1"})

	_, err := m.GetQuote(context.Background(), "GHOST")
	var pe *ProviderError
	if !errors.As(err, &pe) || pe.Class != ErrNotAvailable {
		t.Fatalf("expected not_available, got %v", err)
	}
}

func TestMockAdapterFailWith(t *testing.T) {
	m := NewMockAdapter(Descriptor{ID: "mock1"})
	m.SetQuotePrice("AAPL", 100)
	m.FailWith(NewRateLimitError("mock1", "AAPL", "429"))

	if _, err := m.GetQuote(context.Background(), "AAPL"); ClassOf(err) != ErrRateLimit {
		t.Fatalf("expected scripted failure, got %v", err)
	}

	m.FailWith(nil)
	if _, err := m.GetQuote(context.Background(), "AAPL"); err != nil {
		t.Fatalf("healed adapter should serve, got %v", err)
	}
}

func TestMockAdapterBarWindowFilter(t *testing.T) {
	m := NewMockAdapter(Descriptor{ID: "mock1"})
	m.SetBars("AAPL", []RawRecord{
		{"o": "1", "h": "2", "l": "1", "c": "2", "ts": "2024-01-08T00:00:00Z"},
		{"o": "1", "h": "2", "l": "1", "c": "2", "ts": "2024-01-09T00:00:00Z"},
		{"o": "1", "h": "2", "l": "1", "c": "2", "ts": "2024-01-10T00:00:00Z"},
	})

	start := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	recs, err := m.GetHistorical(context.Background(), "AAPL", Timeframe1d, start, end)
	if err != nil {
		t.Fatalf("get historical: %v", err)
	}
	if len(recs) != 1 || recs[0]["ts"] != "2024-01-09T00:00:00Z" {
		t.Fatalf("window filter broken, got %v", recs)
	}
}

func TestSimAdapterEmitsDefaultSchema(t *testing.T) {
	s := NewSimAdapter(Descriptor{ID: "sim1"})

	rec, err := s.GetQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("get quote: %v", err)
	}
	for _, key := range []string{"last", "bid", "ask", "volume", "ts"} {
		if rec[key] == "" {
			t.Fatalf("missing %q in sim record %v", key, rec)
		}
	}
	if _, err := time.Parse(time.RFC3339, rec["ts"]); err != nil {
		t.Fatalf("sim ts not RFC3339: %v", err)
	}
}

func TestFactoryKinds(t *testing.T) {
	if _, err := New(KindSim, Descriptor{ID: "a"}); err != nil {
		t.Fatalf("sim kind: %v", err)
	}
	if _, err := New(KindMock, Descriptor{ID: "b"}); err != nil {
		t.Fatalf("mock kind: %v", err)
	}
	if _, err := New("grpc", Descriptor{ID: "c"}); err == nil {
		t.Fatal("unknown kind must error")
	}
}
