package calendar

import (
	"testing"
	"time"
)

func TestTradingSessionsSkipWeekends(t *testing.T) {
	mh := NewMarketHours()

	// Mon 2024-01-08 .. Sun 2024-01-14 UTC.
	start := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	sessions := mh.TradingSessions("XNYS", start, end)
	if len(sessions) != 5 {
		t.Fatalf("expected 5 weekday sessions, got %d", len(sessions))
	}
	for _, s := range sessions {
		if wd := s.Open.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("weekend session at %v", s.Open)
		}
		if !s.Close.After(s.Open) {
			t.Fatalf("degenerate session %+v", s)
		}
	}
}

func TestTradingSessionsSkipHolidays(t *testing.T) {
	mh := NewMarketHours()
	mh.AddHolidays("XNYS", []string{"2024-01-01"})

	// Mon 2024-01-01 (holiday) through Wed 2024-01-03.
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)

	sessions := mh.TradingSessions("XNYS", start, end)
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions (Jan 2, Jan 3), got %d", len(sessions))
	}
	if d := sessions[0].Open.Day(); d != 2 {
		t.Fatalf("first session should be Jan 2, got day %d", d)
	}
}

func TestSessionHoursLocal(t *testing.T) {
	mh := NewMarketHours()
	ny, _ := time.LoadLocation("America/New_York")

	start := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)

	sessions := mh.TradingSessions("XNYS", start, end)
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	open := sessions[0].Open.In(ny)
	close := sessions[0].Close.In(ny)
	if open.Hour() != 9 || open.Minute() != 30 {
		t.Fatalf("open should be 09:30 NY, got %v", open)
	}
	if close.Hour() != 16 || close.Minute() != 0 {
		t.Fatalf("close should be 16:00 NY, got %v", close)
	}
}

func TestUnknownExchangeFallsBackToNYSE(t *testing.T) {
	mh := NewMarketHours()

	start := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)

	known := mh.TradingSessions("XNYS", start, end)
	unknown := mh.TradingSessions("XXXX", start, end)
	if len(known) != len(unknown) {
		t.Fatalf("fallback mismatch: %d vs %d", len(known), len(unknown))
	}
	if !known[0].Open.Equal(unknown[0].Open) {
		t.Fatalf("fallback should mirror XNYS hours")
	}
}

func TestIsOpen(t *testing.T) {
	mh := NewMarketHours()
	ny, _ := time.LoadLocation("America/New_York")

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"midday_monday", time.Date(2024, 1, 8, 12, 0, 0, 0, ny), true},
		{"before_open", time.Date(2024, 1, 8, 9, 0, 0, 0, ny), false},
		{"after_close", time.Date(2024, 1, 8, 16, 30, 0, 0, ny), false},
		{"saturday", time.Date(2024, 1, 6, 12, 0, 0, 0, ny), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := mh.IsOpen("XNYS", tc.at); got != tc.want {
				t.Fatalf("IsOpen(%v)=%v want %v", tc.at, got, tc.want)
			}
		})
	}
}

func TestLondonHours(t *testing.T) {
	mh := NewMarketHours()
	ldn, _ := time.LoadLocation("Europe/London")

	start := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)

	sessions := mh.TradingSessions("XLON", start, end)
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	open := sessions[0].Open.In(ldn)
	if open.Hour() != 8 || open.Minute() != 0 {
		t.Fatalf("XLON opens 08:00 local, got %v", open)
	}
}
