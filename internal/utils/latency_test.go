package utils

import (
	"slices"
	"testing"
	"time"
)

func TestLatencyWindowStats(t *testing.T) {
	window := NewLatencyWindow(10)
	for _, ms := range []int{50, 10, 40, 20, 30} {
		window.Observe(time.Duration(ms) * time.Millisecond)
	}

	stats := window.Stats()
	if stats.Count != 5 {
		t.Fatalf("expected count 5, got %d", stats.Count)
	}
	if stats.Min != 10*time.Millisecond {
		t.Fatalf("expected min 10ms, got %v", stats.Min)
	}
	if stats.Median != 30*time.Millisecond {
		t.Fatalf("expected median 30ms, got %v", stats.Median)
	}
	if stats.P95 < 40*time.Millisecond {
		t.Fatalf("expected p95 >= 40ms, got %v", stats.P95)
	}
	if stats.Max != 50*time.Millisecond {
		t.Fatalf("expected max 50ms, got %v", stats.Max)
	}
}

func TestLatencyWindowEvictsOldestFirst(t *testing.T) {
	window := NewLatencyWindow(3)
	for i := 1; i <= 5; i++ {
		window.Observe(time.Duration(i) * time.Millisecond)
	}

	if window.Count() != 3 {
		t.Fatalf("expected window size 3, got %d", window.Count())
	}
	want := []time.Duration{3 * time.Millisecond, 4 * time.Millisecond, 5 * time.Millisecond}
	if got := window.Samples(); !slices.Equal(got, want) {
		t.Fatalf("expected samples %v, got %v", want, got)
	}
}

func TestLatencyWindowDefaultsToHundred(t *testing.T) {
	window := NewLatencyWindow(0)
	for i := 0; i < 250; i++ {
		window.Observe(time.Millisecond)
	}
	if window.Count() != DefaultWindowSize {
		t.Fatalf("expected window size %d, got %d", DefaultWindowSize, window.Count())
	}
}

func TestLatencyWindowEmpty(t *testing.T) {
	window := NewLatencyWindow(5)
	if stats := window.Stats(); stats != (LatencyStats{}) {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
	if p := window.Percentile(95); p != 0 {
		t.Fatalf("expected zero percentile, got %v", p)
	}
}
