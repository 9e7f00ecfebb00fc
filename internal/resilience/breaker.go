package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// BreakerConfig tunes a Breaker. Zero values fall back to the defaults below.
type BreakerConfig struct {
	FailureThreshold int
	CoolDown         time.Duration
	HalfOpenMaxCalls int
	SuccessThreshold int
}

const (
	DefaultFailureThreshold = 5
	DefaultCoolDown         = 30 * time.Second
	DefaultHalfOpenMaxCalls = 1
	DefaultSuccessThreshold = 1
)

// Breaker trips OPEN after FailureThreshold consecutive failures, rejects calls
// for CoolDown, then lets HalfOpenMaxCalls trial calls through. Any trial
// failure reopens it; SuccessThreshold trial successes close it.
type Breaker struct {
	cfg     BreakerConfig
	now     func() time.Time
	onState func(State)

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	inFlight  int
	openedAt  time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = DefaultCoolDown
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = DefaultHalfOpenMaxCalls
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultSuccessThreshold
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// WithClock overrides the time source.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// OnStateChange registers a hook called (under the breaker lock) on every transition.
func (b *Breaker) OnStateChange(fn func(State)) *Breaker {
	b.onState = fn
	return b
}

// State returns the current state, promoting OPEN to HALF_OPEN once the cool-down elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.promote()
	return b.state
}

// Execute runs fn unless the breaker rejects it with ErrCircuitOpen.
// Context cancellation by the caller and ErrBulkheadFull are not counted as
// failures: the dependency was never reached.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	if notReached(ctx, err) {
		b.release()
		return err
	}
	b.record(err == nil)
	return err
}

func notReached(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrBulkheadFull) {
		return true
	}
	return errors.Is(err, context.Canceled) && ctx.Err() != nil
}

// release frees a half-open trial slot without counting an outcome.
func (b *Breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.inFlight > 0 {
		b.inFlight--
	}
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.promote()

	switch b.state {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.inFlight >= b.cfg.HalfOpenMaxCalls {
			return ErrCircuitOpen
		}
		b.inFlight++
	}
	return nil
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if success {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		if b.inFlight > 0 {
			b.inFlight--
		}
		if !success {
			b.transition(StateOpen)
			return
		}
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
		}
	case StateOpen:
		// A call admitted before the trip finished late; nothing to update.
	}
}

// promote must be called with mu held.
func (b *Breaker) promote() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.CoolDown {
		b.transition(StateHalfOpen)
	}
}

// transition must be called with mu held.
func (b *Breaker) transition(to State) {
	b.state = to
	b.failures = 0
	b.successes = 0
	b.inFlight = 0
	if to == StateOpen {
		b.openedAt = b.now()
	}
	if b.onState != nil {
		b.onState(to)
	}
}
