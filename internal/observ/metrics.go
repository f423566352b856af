package observ

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type registry struct {
	mu       sync.Mutex
	counters map[string]map[string]int64
	gauges   map[string]map[string]float64
	hist     map[string]map[string][]float64
}

var reg = &registry{
	counters: map[string]map[string]int64{},
	gauges:   map[string]map[string]float64{},
	hist:     map[string]map[string][]float64{},
}

// canonLabels flattens a label map with stable key order.
func canonLabels(lbl map[string]string) string {
	if len(lbl) == 0 {
		return ""
	}
	keys := make([]string, 0, len(lbl))
	for k := range lbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(lbl[k])
	}
	return b.String()
}

func IncCounter(name string, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.counters[name]
	if !ok {
		m = map[string]int64{}
		reg.counters[name] = m
	}
	m[canonLabels(labels)]++
}

func SetGauge(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.gauges[name]
	if !ok {
		m = map[string]float64{}
		reg.gauges[name] = m
	}
	m[canonLabels(labels)] = value
}

func Observe(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.hist[name]
	if !ok {
		m = map[string][]float64{}
		reg.hist[name] = m
	}
	k := canonLabels(labels)
	m[k] = append(m[k], value)
}

// RecordDuration records a latency sample in milliseconds.
func RecordDuration(name string, d time.Duration, labels map[string]string) {
	Observe(name+"_ms", float64(d.Milliseconds()), labels)
}

// CounterValue reads a counter back, for tests and the summary below.
func CounterValue(name string, labels map[string]string) int64 {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if m, ok := reg.counters[name]; ok {
		return m[canonLabels(labels)]
	}
	return 0
}

// Summary is the operational digest served next to the raw dump.
type Summary struct {
	ProviderRequests int64   `json:"provider_requests"`
	ProviderErrors   int64   `json:"provider_errors"`
	SuccessRate      float64 `json:"success_rate"`
	CacheHitRate     float64 `json:"cache_hit_rate"`
	LatencyP95Ms     float64 `json:"latency_p95_ms"`
}

// buildSummary reads the registry; caller holds reg.mu.
func buildSummary() Summary {
	var s Summary
	for _, v := range reg.counters["provider_requests_total"] {
		s.ProviderRequests += v
	}
	for _, v := range reg.counters["provider_errors_total"] {
		s.ProviderErrors += v
	}
	if s.ProviderRequests > 0 {
		s.SuccessRate = float64(s.ProviderRequests-s.ProviderErrors) / float64(s.ProviderRequests)
	}

	var hits, misses int64
	for _, v := range reg.counters["cache_hits_total"] {
		hits += v
	}
	for _, v := range reg.counters["cache_misses_total"] {
		misses += v
	}
	if hits+misses > 0 {
		s.CacheHitRate = float64(hits) / float64(hits+misses)
	}

	var samples []float64
	for _, vs := range reg.hist["provider_latency_ms"] {
		samples = append(samples, vs...)
	}
	if len(samples) > 0 {
		sort.Float64s(samples)
		idx := int(float64(len(samples)) * 0.95)
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		s.LatencyP95Ms = samples[idx]
	}
	return s
}

// Handler dumps the registry as JSON. Deliberately not Prometheus format;
// this is a single-process diagnostic surface.
func Handler() http.Handler {
	type dump struct {
		Summary  Summary                         `json:"summary"`
		Counters map[string]map[string]int64     `json:"counters"`
		Gauges   map[string]map[string]float64   `json:"gauges"`
		Hist     map[string]map[string][]float64 `json:"histograms"`
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(dump{
			Summary:  buildSummary(),
			Counters: reg.counters,
			Gauges:   reg.gauges,
			Hist:     reg.hist,
		})
	})
}

// Health answers liveness probes.
func Health() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}
