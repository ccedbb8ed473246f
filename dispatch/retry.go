package dispatch

import (
	"context"
	"time"

	"github.com/tradewell/execution/broker"
)

// RetryPolicy bounds how a fallible broker operation is retried: up to
// Attempts invocations, sleeping Backoff*attempt between them. The policy
// itself knows nothing broker-specific; classification comes from the
// error values the operation returns.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetryPolicy is three attempts with a 500ms base backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: 500 * time.Millisecond}
}

// Execute runs op until it succeeds, fails permanently, or exhausts the
// attempt budget. Failures classified permanent (broker.IsPermanent) return
// immediately; everything else is retried. It returns the number of retries
// performed and the final error, nil on success. The context is honored
// between attempts; an in-flight call is never interrupted.
func (p RetryPolicy) Execute(ctx context.Context, op func() error) (int, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := op()
		if err == nil {
			return attempt - 1, nil
		}
		if broker.IsPermanent(err) {
			return attempt - 1, err
		}
		last = err

		if attempt < attempts {
			// Linear backoff: base * attempt number.
			select {
			case <-ctx.Done():
				return attempt - 1, ctx.Err()
			case <-time.After(p.Backoff * time.Duration(attempt)):
			}
		}
	}
	return attempts - 1, last
}
