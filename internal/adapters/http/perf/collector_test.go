package perf

import (
	"sync"
	"testing"
	"time"
)

// TestCollector_Record_And_Snapshot verifies basic record and snapshot functionality.
func TestCollector_Record_And_Snapshot(t *testing.T) {
	c := NewCollector(100)
	now := time.Now()

	c.Record(Entry{Kind: KindRequest, Path: "GET /dashboard", StatusCode: 200, DurationMs: 10, Timestamp: now})
	c.Record(Entry{Kind: KindRequest, Path: "GET /dashboard", StatusCode: 200, DurationMs: 30, Timestamp: now})
	c.Record(Entry{Kind: KindQuery, Path: "ExecContext", DurationMs: 5, Timestamp: now})

	snap := c.Snapshot(now.Add(-time.Minute), 10)
	if snap.TotalRecorded != 3 {
		t.Errorf("TotalRecorded = %d, want 3", snap.TotalRecorded)
	}
	if len(snap.SlowestPaths) != 1 {
		t.Fatalf("SlowestPaths len = %d, want 1", len(snap.SlowestPaths))
	}
	if snap.SlowestPaths[0].AvgMs != 20 {
		t.Errorf("AvgMs = %v, want 20", snap.SlowestPaths[0].AvgMs)
	}
	if len(snap.SlowestQueries) != 1 {
		t.Fatalf("SlowestQueries len = %d, want 1", len(snap.SlowestQueries))
	}
}

// TestCollector_Upstream verifies remote API calls are aggregated separately with a failure rate.
func TestCollector_Upstream(t *testing.T) {
	c := NewCollector(100)
	now := time.Now()

	c.Record(Entry{Kind: KindUpstream, Path: "GET /admin/overview", StatusCode: 200, DurationMs: 120, Timestamp: now})
	c.Record(Entry{Kind: KindUpstream, Path: "GET /admin/overview", StatusCode: 503, DurationMs: 40, Timestamp: now})
	c.Record(Entry{Kind: KindUpstream, Path: "GET /admin/history", StatusCode: 0, DurationMs: 900, Timestamp: now})
	c.Record(Entry{Kind: KindUpstream, Path: "GET /admin/history", StatusCode: 200, DurationMs: 300, Timestamp: now})

	snap := c.Snapshot(now.Add(-time.Minute), 10)
	if snap.UpstreamCalls != 4 || snap.UpstreamFailed != 2 {
		t.Fatalf("calls=%d failed=%d, want 4 and 2", snap.UpstreamCalls, snap.UpstreamFailed)
	}
	if got := snap.UpstreamFailureRate(); got != 0.5 {
		t.Errorf("UpstreamFailureRate = %v, want 0.5", got)
	}
	if len(snap.SlowestUpstream) != 2 || snap.SlowestUpstream[0].Path != "GET /admin/history" {
		t.Errorf("SlowestUpstream = %+v, want history first", snap.SlowestUpstream)
	}
	if len(snap.SlowestPaths) != 0 {
		t.Errorf("upstream entries leaked into request stats: %+v", snap.SlowestPaths)
	}
}

// TestCollector_RingBuffer_Overwrites verifies oldest entries are overwritten when full.
func TestCollector_RingBuffer_Overwrites(t *testing.T) {
	c := NewCollector(3)
	now := time.Now()

	for i := 0; i < 5; i++ {
		c.Record(Entry{Kind: KindRequest, Path: "GET /history", DurationMs: float64(i), Timestamp: now})
	}
	if c.TotalRecorded() != 5 {
		t.Errorf("TotalRecorded = %d, want 5", c.TotalRecorded())
	}

	snap := c.Snapshot(now.Add(-time.Minute), 10)
	if len(snap.SlowestPaths) != 1 {
		t.Fatalf("SlowestPaths len = %d, want 1", len(snap.SlowestPaths))
	}
	if snap.SlowestPaths[0].Count != 3 {
		t.Errorf("Count = %d, want 3 (ring buffer kept last 3)", snap.SlowestPaths[0].Count)
	}
}

// TestCollector_Percentiles verifies P50/P95/P99 calculation.
func TestCollector_Percentiles(t *testing.T) {
	c := NewCollector(200)
	now := time.Now()
	for i := 1; i <= 100; i++ {
		c.Record(Entry{Kind: KindRequest, Path: "GET /p", DurationMs: float64(i), Timestamp: now})
	}

	snap := c.Snapshot(now.Add(-time.Minute), 10)
	if snap.RequestP50Ms < 49 || snap.RequestP50Ms > 51 {
		t.Errorf("P50 = %v, want ~50", snap.RequestP50Ms)
	}
	if snap.RequestP95Ms < 94 || snap.RequestP95Ms > 96 {
		t.Errorf("P95 = %v, want ~95", snap.RequestP95Ms)
	}
	if snap.RequestP99Ms < 98 || snap.RequestP99Ms > 100 {
		t.Errorf("P99 = %v, want ~99", snap.RequestP99Ms)
	}
}

// TestCollector_Snapshot_FiltersBySince verifies old entries are excluded.
func TestCollector_Snapshot_FiltersBySince(t *testing.T) {
	c := NewCollector(100)
	c.Record(Entry{Kind: KindRequest, Path: "GET /old", DurationMs: 100, Timestamp: time.Now().Add(-2 * time.Hour)})
	c.Record(Entry{Kind: KindRequest, Path: "GET /new", DurationMs: 10, Timestamp: time.Now()})

	snap := c.Snapshot(time.Now().Add(-time.Hour), 10)
	if len(snap.SlowestPaths) != 1 {
		t.Fatalf("SlowestPaths len = %d, want 1 (old entry filtered)", len(snap.SlowestPaths))
	}
	if snap.SlowestPaths[0].Path != "GET /new" {
		t.Errorf("Path = %q, want GET /new", snap.SlowestPaths[0].Path)
	}
}

// TestCollector_ConcurrentWrites verifies goroutine safety of Record.
func TestCollector_ConcurrentWrites(t *testing.T) {
	c := NewCollector(1000)
	now := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				c.Record(Entry{Kind: KindUpstream, Path: "GET /admin/history", DurationMs: float64(n), Timestamp: now})
			}
		}(i)
	}
	wg.Wait()
	if c.TotalRecorded() != 1000 {
		t.Errorf("TotalRecorded = %d, want 1000", c.TotalRecorded())
	}
}

// BenchmarkCollectorRecord measures per-call cost of Record().
func BenchmarkCollectorRecord(b *testing.B) {
	c := NewCollector(DefaultRingSize)
	e := Entry{Kind: KindRequest, Path: "GET /bench", StatusCode: 200, DurationMs: 1.5, Timestamp: time.Now()}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Record(e)
	}
}
