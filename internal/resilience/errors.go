// Package resilience holds the wrappers composed around outbound calls:
// circuit breaker, retry, bulkhead, timeout and a local hourly budget.
package resilience

import "errors"

var (
	// ErrCircuitOpen is returned without invoking the call while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrBulkheadFull is returned when no concurrency slot frees up in time.
	ErrBulkheadFull = errors.New("bulkhead full")
	// ErrTimeout is returned when a call misses its deadline.
	ErrTimeout = errors.New("call timed out")
	// ErrBudgetExhausted is returned when the hourly call budget is spent.
	ErrBudgetExhausted = errors.New("rate limit budget exhausted")
)

// permanentError marks a failure that retrying cannot fix.
type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so Retry gives up immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
