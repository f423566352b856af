package health

import (
	"sync"
	"testing"
	"time"
)

func newTestMonitor(now *time.Time) *Monitor {
	m := New(Config{
		ConsecutiveFailures: 3,
		ErrorRateThreshold:  0.5,
		ErrorRateMinCalls:   10,
		Cooldown:            30 * time.Second,
		MaxCooldown:         4 * time.Minute,
	})
	m.SetNow(func() time.Time { return *now })
	m.Register("alpha")
	return m
}

func TestTripsAfterConsecutiveFailures(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	m := newTestMonitor(&now)

	for i := 0; i < 2; i++ {
		m.ReportFailure("alpha", 10*time.Millisecond)
		if !m.Eligible("alpha") {
			t.Fatalf("still closed after %d failures", i+1)
		}
	}
	m.ReportFailure("alpha", 10*time.Millisecond)

	if s := m.SnapshotOf("alpha"); s.State != StateOpen {
		t.Fatalf("expected open after threshold, got %s", s.State)
	}
	if m.Eligible("alpha") {
		t.Fatal("open breaker must reject")
	}
}

func TestSuccessResetsConsecutiveCount(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	m := newTestMonitor(&now)

	m.ReportFailure("alpha", time.Millisecond)
	m.ReportFailure("alpha", time.Millisecond)
	m.ReportSuccess("alpha", time.Millisecond)
	m.ReportFailure("alpha", time.Millisecond)
	m.ReportFailure("alpha", time.Millisecond)

	if s := m.SnapshotOf("alpha"); s.State != StateClosed {
		t.Fatalf("interleaved success should keep the breaker closed, got %s", s.State)
	}
}

func TestHalfOpenSingleTrialPermit(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	m := newTestMonitor(&now)

	for i := 0; i < 3; i++ {
		m.ReportFailure("alpha", time.Millisecond)
	}
	now = now.Add(31 * time.Second) // cooldown elapsed

	var granted int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Eligible("alpha") {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 1 {
		t.Fatalf("exactly one concurrent caller may win the trial, got %d", granted)
	}
	if s := m.SnapshotOf("alpha"); s.State != StateHalfOpen {
		t.Fatalf("expected half_open, got %s", s.State)
	}
}

func TestTrialSuccessCloses(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	m := newTestMonitor(&now)

	for i := 0; i < 3; i++ {
		m.ReportFailure("alpha", time.Millisecond)
	}
	now = now.Add(31 * time.Second)
	if !m.Eligible("alpha") {
		t.Fatal("trial permit expected after cooldown")
	}
	m.ReportSuccess("alpha", time.Millisecond)

	if s := m.SnapshotOf("alpha"); s.State != StateClosed {
		t.Fatalf("trial success should close the breaker, got %s", s.State)
	}
	if !m.Eligible("alpha") {
		t.Fatal("closed breaker admits freely")
	}
}

func TestTrialFailureDoublesCooldown(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	m := newTestMonitor(&now)

	for i := 0; i < 3; i++ {
		m.ReportFailure("alpha", time.Millisecond)
	}

	// First trial fails: cooldown doubles to 60s.
	now = now.Add(31 * time.Second)
	if !m.Eligible("alpha") {
		t.Fatal("first trial permit expected")
	}
	m.ReportFailure("alpha", time.Millisecond)

	now = now.Add(31 * time.Second)
	if m.Eligible("alpha") {
		t.Fatal("doubled cooldown should still hold at +31s")
	}
	now = now.Add(30 * time.Second)
	if !m.Eligible("alpha") {
		t.Fatal("second trial permit expected after doubled cooldown")
	}

	// Cooldown backoff is capped at MaxCooldown.
	m.ReportFailure("alpha", time.Millisecond) // 120s
	now = now.Add(121 * time.Second)
	if !m.Eligible("alpha") {
		t.Fatal("third trial permit expected")
	}
	m.ReportFailure("alpha", time.Millisecond) // 240s = cap
	now = now.Add(241 * time.Second)
	if !m.Eligible("alpha") {
		t.Fatal("fourth trial permit expected")
	}
	m.ReportFailure("alpha", time.Millisecond) // stays at 240s cap
	now = now.Add(241 * time.Second)
	if !m.Eligible("alpha") {
		t.Fatal("cooldown must not grow past the ceiling")
	}
}

func TestErrorRateTrip(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	m := newTestMonitor(&now)

	// Two failures then a success, repeated: the consecutive counter never
	// reaches 3, but once the 10-call window fills the failure rate is 0.7.
	for i := 0; i < 3; i++ {
		m.ReportFailure("alpha", time.Millisecond)
		m.ReportFailure("alpha", time.Millisecond)
		m.ReportSuccess("alpha", time.Millisecond)
	}
	m.ReportFailure("alpha", time.Millisecond)

	if s := m.SnapshotOf("alpha"); s.State != StateOpen {
		t.Fatalf("error rate over threshold should trip, got %s", s.State)
	}
}

func TestDisableIsTerminal(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	m := newTestMonitor(&now)

	m.Disable("alpha", "invalid api key")
	if m.Eligible("alpha") {
		t.Fatal("disabled provider must reject")
	}

	// Neither success reports nor time heal a disabled provider.
	m.ReportSuccess("alpha", time.Millisecond)
	now = now.Add(time.Hour)
	if m.Eligible("alpha") {
		t.Fatal("disabled provider must stay rejected")
	}

	s := m.SnapshotOf("alpha")
	if !s.Disabled || s.DisabledReason != "invalid api key" {
		t.Fatalf("snapshot should carry the disable reason, got %+v", s)
	}
}

func TestUnknownProviderIneligible(t *testing.T) {
	m := New(DefaultConfig())
	if m.Eligible("ghost") {
		t.Fatal("unregistered provider must be ineligible")
	}
}
