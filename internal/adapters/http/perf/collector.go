package perf

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRingSize is the default capacity of the ring buffer.
const DefaultRingSize = 10000

// EntryKind distinguishes console requests, local queries and remote API calls.
type EntryKind uint8

const (
	KindRequest EntryKind = iota
	KindQuery
	KindUpstream
)

// Entry is a single timing record stored in the ring buffer.
type Entry struct {
	Kind       EntryKind
	Path       string // "GET /dashboard", "ExecContext" or "GET /admin/overview"
	StatusCode int    // 0 for queries and transport failures
	DurationMs float64
	Timestamp  time.Time
}

// Failed reports whether an upstream entry ended without a 2xx response.
func (e Entry) Failed() bool {
	return e.StatusCode < 200 || e.StatusCode >= 300
}

// Collector is a fixed-size ring buffer for timing entries.
// When full, the oldest entries are overwritten. Aggregation happens only in Snapshot.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
	size    int
	pos     int
	count   int64
}

// NewCollector creates a collector with the given ring buffer capacity.
// PRE: size > 0 (DefaultRingSize otherwise)
// POST: Returns a ready-to-use collector with pre-allocated storage
func NewCollector(size int) *Collector {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Collector{
		entries: make([]Entry, size),
		size:    size,
	}
}

// Record appends an entry, overwriting the oldest when the buffer is full.
func (c *Collector) Record(e Entry) {
	c.mu.Lock()
	c.entries[c.pos] = e
	c.pos = (c.pos + 1) % c.size
	c.mu.Unlock()
	atomic.AddInt64(&c.count, 1)
}

// TotalRecorded returns the number of entries ever recorded.
func (c *Collector) TotalRecorded() int64 {
	return atomic.LoadInt64(&c.count)
}

// Snapshot holds aggregated performance data computed on read.
type Snapshot struct {
	TotalRecorded   int64
	RequestP50Ms    float64
	RequestP95Ms    float64
	RequestP99Ms    float64
	UpstreamP95Ms   float64
	UpstreamCalls   int
	UpstreamFailed  int
	SlowestPaths    []PathStat
	SlowestQueries  []PathStat
	SlowestUpstream []PathStat
}

// UpstreamFailureRate is the share of remote API calls without a 2xx response.
func (s Snapshot) UpstreamFailureRate() float64 {
	if s.UpstreamCalls == 0 {
		return 0
	}
	return float64(s.UpstreamFailed) / float64(s.UpstreamCalls)
}

// PathStat aggregates timing for one path, query op or upstream endpoint.
type PathStat struct {
	Path    string
	AvgMs   float64
	MaxMs   float64
	Count   int
	TotalMs float64
}

type statSet map[string]*PathStat

func (s statSet) add(e Entry) {
	ps, ok := s[e.Path]
	if !ok {
		ps = &PathStat{Path: e.Path}
		s[e.Path] = ps
	}
	ps.Count++
	ps.TotalMs += e.DurationMs
	if e.DurationMs > ps.MaxMs {
		ps.MaxMs = e.DurationMs
	}
}

// Snapshot computes percentiles and top-N lists over entries recorded since the given time.
// It copies and sorts the buffer, so call it from the perf page only.
func (c *Collector) Snapshot(since time.Time, topN int) Snapshot {
	c.mu.Lock()
	buf := make([]Entry, c.size)
	copy(buf, c.entries)
	c.mu.Unlock()

	var requestDurations, upstreamDurations []float64
	requests, queries, upstream := statSet{}, statSet{}, statSet{}
	snap := Snapshot{TotalRecorded: c.TotalRecorded()}

	for _, e := range buf {
		if e.Timestamp.IsZero() || e.Timestamp.Before(since) {
			continue
		}
		switch e.Kind {
		case KindRequest:
			requestDurations = append(requestDurations, e.DurationMs)
			requests.add(e)
		case KindQuery:
			queries.add(e)
		case KindUpstream:
			upstreamDurations = append(upstreamDurations, e.DurationMs)
			upstream.add(e)
			snap.UpstreamCalls++
			if e.Failed() {
				snap.UpstreamFailed++
			}
		}
	}

	snap.SlowestPaths = topByAvg(requests, topN)
	snap.SlowestQueries = topByAvg(queries, topN)
	snap.SlowestUpstream = topByAvg(upstream, topN)

	if len(requestDurations) > 0 {
		sort.Float64s(requestDurations)
		snap.RequestP50Ms = percentile(requestDurations, 50)
		snap.RequestP95Ms = percentile(requestDurations, 95)
		snap.RequestP99Ms = percentile(requestDurations, 99)
	}
	if len(upstreamDurations) > 0 {
		sort.Float64s(upstreamDurations)
		snap.UpstreamP95Ms = percentile(upstreamDurations, 95)
	}
	return snap
}

// percentile returns the p-th percentile from a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower == upper || upper >= len(sorted) {
		return sorted[lower]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// topByAvg returns the n slowest entries by average duration, descending.
func topByAvg(stats statSet, n int) []PathStat {
	list := make([]PathStat, 0, len(stats))
	for _, s := range stats {
		s.AvgMs = s.TotalMs / float64(s.Count)
		list = append(list, *s)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].AvgMs != list[j].AvgMs {
			return list[i].AvgMs > list[j].AvgMs
		}
		return list[i].Path < list[j].Path
	})
	if len(list) > n {
		list = list[:n]
	}
	return list
}
