package utils

import (
	"sort"
	"sync"
	"time"
)

// DefaultWindowSize is the number of response-time samples kept per source.
const DefaultWindowSize = 100

// LatencyWindow keeps the most recent duration samples, evicting the oldest first.
type LatencyWindow struct {
	mu      sync.RWMutex
	samples []time.Duration
	maxSize int
}

// LatencyStats is a point-in-time summary of a LatencyWindow.
type LatencyStats struct {
	Count  int
	Min    time.Duration
	Median time.Duration
	P95    time.Duration
	Max    time.Duration
}

// NewLatencyWindow creates a window storing up to maxSize samples.
func NewLatencyWindow(maxSize int) *LatencyWindow {
	if maxSize <= 0 {
		maxSize = DefaultWindowSize
	}
	return &LatencyWindow{maxSize: maxSize, samples: make([]time.Duration, 0, maxSize)}
}

// Observe records a new duration.
func (l *LatencyWindow) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.samples) == l.maxSize {
		copy(l.samples, l.samples[1:])
		l.samples = l.samples[:l.maxSize-1]
	}
	l.samples = append(l.samples, d)
}

// Percentile returns the nearest-rank percentile (0-100). Zero if empty.
func (l *LatencyWindow) Percentile(p float64) time.Duration {
	return percentile(l.sorted(), p)
}

// Stats returns min/median/p95/max over the current window.
func (l *LatencyWindow) Stats() LatencyStats {
	sorted := l.sorted()
	if len(sorted) == 0 {
		return LatencyStats{}
	}
	return LatencyStats{
		Count:  len(sorted),
		Min:    sorted[0],
		Median: percentile(sorted, 50),
		P95:    percentile(sorted, 95),
		Max:    sorted[len(sorted)-1],
	}
}

// Count returns number of samples held.
func (l *LatencyWindow) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.samples)
}

// Samples returns a copy of the window, oldest first.
func (l *LatencyWindow) Samples() []time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]time.Duration(nil), l.samples...)
}

func (l *LatencyWindow) sorted() []time.Duration {
	l.mu.RLock()
	sorted := append([]time.Duration(nil), l.samples...)
	l.mu.RUnlock()
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	index := int((p / 100.0) * float64(len(sorted)-1))
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
