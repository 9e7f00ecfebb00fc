package resilience

import (
	"sync"
	"time"
)

// HourlyBudget is a fixed-window call counter. The window starts at the first
// call and resets once an hour has elapsed since that start.
type HourlyBudget struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu          sync.Mutex
	windowStart time.Time
	used        int
}

// NewHourlyBudget allows limit calls per hour. limit <= 0 disables the budget.
func NewHourlyBudget(limit int) *HourlyBudget {
	return &HourlyBudget{limit: limit, window: time.Hour, now: time.Now}
}

// WithClock overrides the time source.
func (h *HourlyBudget) WithClock(now func() time.Time) *HourlyBudget {
	h.now = now
	return h
}

// Allow consumes one unit of budget and reports whether the call may proceed.
func (h *HourlyBudget) Allow() bool {
	if h.limit <= 0 {
		return true
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	if h.windowStart.IsZero() || now.Sub(h.windowStart) >= h.window {
		h.windowStart = now
		h.used = 0
	}
	if h.used >= h.limit {
		return false
	}
	h.used++
	return true
}

// Remaining reports the calls left in the current window.
func (h *HourlyBudget) Remaining() int {
	if h.limit <= 0 {
		return -1
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.windowStart.IsZero() || h.now().Sub(h.windowStart) >= h.window {
		return h.limit
	}
	return h.limit - h.used
}
