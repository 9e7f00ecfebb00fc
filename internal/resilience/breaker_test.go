package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func fail(context.Context) error    { return errBoom }
func succeed(context.Context) error { return nil }

func TestBreakerOpensAfterThreshold(t *testing.T) {
	clock := newClock()
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, CoolDown: time.Minute}).WithClock(clock.now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	}
	require.Equal(t, StateOpen, b.State())

	calls := 0
	err := b.Execute(ctx, func(context.Context) error { calls++; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, calls)
}

func TestBreakerSuccessResetsConsecutiveCount(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 2})
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, succeed)
	_ = b.Execute(ctx, fail)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	clock := newClock()
	var transitions []State
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, CoolDown: time.Minute, SuccessThreshold: 2, HalfOpenMaxCalls: 2}).
		WithClock(clock.now).
		OnStateChange(func(s State) { transitions = append(transitions, s) })
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	require.Equal(t, StateOpen, b.State())

	clock.advance(time.Minute)
	require.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Execute(ctx, succeed))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := newClock()
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, CoolDown: time.Minute}).WithClock(clock.now)
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	clock.advance(2 * time.Minute)
	assert.ErrorIs(t, b.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, b.State())

	clock.advance(30 * time.Second)
	assert.ErrorIs(t, b.Execute(ctx, succeed), ErrCircuitOpen)
}

func TestBreakerHalfOpenLimitsTrialCalls(t *testing.T) {
	clock := newClock()
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, CoolDown: time.Second, HalfOpenMaxCalls: 1}).WithClock(clock.now)
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	clock.advance(time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.ErrorIs(t, b.Execute(ctx, succeed), ErrCircuitOpen)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, b.State())
}
