package audit

import (
	"sort"
	"sync"
	"time"
)

// Snapshot is the in-process aggregate served by the stats endpoint.
type Snapshot struct {
	Total            int64            `json:"total"`
	ByOutcome        map[string]int64 `json:"by_outcome"`
	ByConfidence     map[string]int64 `json:"by_confidence"`
	ByCategory       map[string]int64 `json:"by_refusal_category"`
	ByLLMStatus      map[string]int64 `json:"by_llm_status"`
	CacheHits        int64            `json:"cache_hits"`
	AvgLatencyMs     float64          `json:"avg_latency_ms"`
	P50LatencyMs     int64            `json:"p50_latency_ms"`
	P95LatencyMs     int64            `json:"p95_latency_ms"`
	P99LatencyMs     int64            `json:"p99_latency_ms"`
	QueriesPerMinute float64          `json:"queries_per_minute"`
}

const maxLatencySamples = 10000

// Stats counts decisions. Latency percentiles use the most recent samples.
type Stats struct {
	mu           sync.Mutex
	total        int64
	cacheHits    int64
	byOutcome    map[string]int64
	byConfidence map[string]int64
	byCategory   map[string]int64
	byLLM        map[string]int64
	latencies    []int64
	next         int
	startTime    time.Time
}

func NewStats() *Stats {
	return &Stats{
		byOutcome:    make(map[string]int64),
		byConfidence: make(map[string]int64),
		byCategory:   make(map[string]int64),
		byLLM:        make(map[string]int64),
		latencies:    make([]int64, 0, 256),
		startTime:    time.Now(),
	}
}

func (s *Stats) Record(e DecisionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.byOutcome[e.Outcome]++
	s.byConfidence[e.Confidence]++
	if e.Category != "" {
		s.byCategory[e.Category]++
	}
	s.byLLM[e.LLMStatus]++
	if e.CacheHit {
		s.cacheHits++
	}
	if len(s.latencies) < maxLatencySamples {
		s.latencies = append(s.latencies, e.LatencyMs)
	} else {
		s.latencies[s.next] = e.LatencyMs
		s.next = (s.next + 1) % maxLatencySamples
	}
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Total:        s.total,
		ByOutcome:    copyCounts(s.byOutcome),
		ByConfidence: copyCounts(s.byConfidence),
		ByCategory:   copyCounts(s.byCategory),
		ByLLMStatus:  copyCounts(s.byLLM),
		CacheHits:    s.cacheHits,
	}
	if len(s.latencies) > 0 {
		sorted := append([]int64(nil), s.latencies...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		snap.AvgLatencyMs = float64(sum) / float64(len(sorted))
		snap.P50LatencyMs = percentile(sorted, 50)
		snap.P95LatencyMs = percentile(sorted, 95)
		snap.P99LatencyMs = percentile(sorted, 99)
	}
	if elapsed := time.Since(s.startTime).Minutes(); elapsed > 0 {
		snap.QueriesPerMinute = float64(s.total) / elapsed
	}
	return snap
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
