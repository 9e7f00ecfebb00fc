package resilience

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Config assembles every wrapper for one dependency.
type Config struct {
	RateLimitPerHour  int
	RequestsPerSecond float64
	CallTimeout       time.Duration
	Breaker           BreakerConfig
	Retry             RetryConfig
	BulkheadSize      int
	BulkheadMaxWait   time.Duration
}

// Pipeline composes the wrappers around a single outbound call in this order:
// hourly budget, circuit breaker, bulkhead, retry, then per-attempt throttle
// and timeout.
type Pipeline struct {
	Budget   *HourlyBudget
	Breaker  *Breaker
	Bulkhead *Bulkhead
	retry    RetryConfig
	timeout  time.Duration
	throttle *rate.Limiter
}

// NewPipeline builds a Pipeline from cfg.
func NewPipeline(cfg Config) *Pipeline {
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &Pipeline{
		Budget:   NewHourlyBudget(cfg.RateLimitPerHour),
		Breaker:  NewBreaker(cfg.Breaker),
		Bulkhead: NewBulkhead(cfg.BulkheadSize, cfg.BulkheadMaxWait),
		retry:    cfg.Retry,
		timeout:  cfg.CallTimeout,
		throttle: rate.NewLimiter(limit, burst),
	}
}

// Run executes fn through the pipeline. ErrBudgetExhausted is returned before
// any other wrapper is touched.
func (p *Pipeline) Run(ctx context.Context, fn func(context.Context) error) error {
	return p.RunCached(ctx, nil, fn)
}

// RunCached is Run with a lookup consulted after the budget is spent and
// before the remaining wrappers. When lookup reports true, fn is skipped.
func (p *Pipeline) RunCached(ctx context.Context, lookup func(context.Context) bool, fn func(context.Context) error) error {
	if !p.Budget.Allow() {
		return ErrBudgetExhausted
	}
	if lookup != nil && lookup(ctx) {
		return nil
	}
	return p.Breaker.Execute(ctx, func(ctx context.Context) error {
		return p.Bulkhead.Execute(ctx, func(ctx context.Context) error {
			return Retry(ctx, p.retry, func(ctx context.Context) error {
				if err := p.throttle.Wait(ctx); err != nil {
					return err
				}
				return WithTimeout(ctx, p.timeout, fn)
			})
		})
	})
}
