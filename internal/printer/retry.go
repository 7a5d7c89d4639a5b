package printer

import (
	"context"
	"errors"
	"time"
)

// errBudgetExhausted marks a poll loop that ran out of attempts. Callers
// translate it into the taxonomy error that fits their leg of the protocol
// (ErrAuthTimeout for pairing, ErrPollExhausted for method echo).
var errBudgetExhausted = errors.New("retry budget exhausted")

// poll runs fn up to attempts times, delay apart, until fn reports done.
// A non-nil error from fn aborts immediately. Cancellation is honored
// between attempts so a waiting caller can bail out mid-poll.
func poll[T any](ctx context.Context, attempts int, delay time.Duration, fn func() (T, bool, error)) (T, error) {
	var zero T

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, done, err := fn()
		if err != nil {
			return zero, err
		}
		if done {
			return result, nil
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, errBudgetExhausted
}
