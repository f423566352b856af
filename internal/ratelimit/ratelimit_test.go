package ratelimit

import (
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestMinuteWindowExhaustion(t *testing.T) {
	base := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	l := New()
	l.SetNow(fixedClock(base))
	l.Register("alpha", 3, 0)

	for i := 0; i < 3; i++ {
		if !l.TryAcquire("alpha") {
			t.Fatalf("call %d should be admitted", i+1)
		}
	}
	if l.TryAcquire("alpha") {
		t.Fatal("fourth call within the same minute should be rejected")
	}

	// A full minute later the bucket has refilled.
	l.SetNow(fixedClock(base.Add(time.Minute)))
	if !l.TryAcquire("alpha") {
		t.Fatal("call after refill should be admitted")
	}
}

func TestDayCapPersistsAcrossMinutes(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	now := base
	l := New()
	l.SetNow(func() time.Time { return now })
	l.Register("alpha", 100, 2)

	if !l.TryAcquire("alpha") || !l.TryAcquire("alpha") {
		t.Fatal("first two calls should be admitted")
	}
	now = base.Add(3 * time.Hour)
	if l.TryAcquire("alpha") {
		t.Fatal("day cap should still reject hours later")
	}

	// New UTC day resets the counter.
	now = base.Add(24 * time.Hour)
	if !l.TryAcquire("alpha") {
		t.Fatal("call after UTC day rollover should be admitted")
	}
}

func TestPenalizeClosesWindowUntilNextMinute(t *testing.T) {
	base := time.Date(2026, 3, 2, 14, 0, 20, 0, time.UTC)
	now := base
	l := New()
	l.SetNow(func() time.Time { return now })
	l.Register("alpha", 100, 0)

	l.Penalize("alpha")
	if l.TryAcquire("alpha") {
		t.Fatal("penalized provider should reject within the same minute")
	}

	now = time.Date(2026, 3, 2, 14, 0, 59, 0, time.UTC)
	if l.TryAcquire("alpha") {
		t.Fatal("penalty should hold until the minute boundary")
	}

	now = time.Date(2026, 3, 2, 14, 1, 0, 0, time.UTC)
	if !l.TryAcquire("alpha") {
		t.Fatal("penalty should lift at the next minute boundary")
	}
}

func TestRemaining(t *testing.T) {
	base := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	l := New()
	l.SetNow(fixedClock(base))
	l.Register("capped", 5, 10)
	l.Register("open", 0, 0)

	minute, day := l.Remaining("capped")
	if minute != 5 || day != 10 {
		t.Fatalf("fresh windows: got minute=%d day=%d", minute, day)
	}

	l.TryAcquire("capped")
	minute, day = l.Remaining("capped")
	if minute != 4 || day != 9 {
		t.Fatalf("after one call: got minute=%d day=%d", minute, day)
	}

	minute, day = l.Remaining("open")
	if minute != -1 || day != -1 {
		t.Fatalf("uncapped tiers should report -1, got minute=%d day=%d", minute, day)
	}
}

func TestUnknownProviderRejected(t *testing.T) {
	l := New()
	if l.TryAcquire("ghost") {
		t.Fatal("unregistered provider should be rejected")
	}
}
