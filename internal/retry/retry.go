// Package retry provides a bounded poll-until-terminal combinator.
package retry

import (
	"context"
	"time"
)

// Policy bounds a polling loop: at most Attempts calls, Delay apart.
type Policy struct {
	Attempts int
	Delay    time.Duration
	// Wait suspends between attempts; nil uses a context-aware timer.
	Wait func(ctx context.Context, d time.Duration) error
}

// Result is the outcome of Until. Exactly one of Resolved or Exhausted is true.
type Result[T any] struct {
	Value    T     // last value observed from a successful attempt
	Observed bool  // at least one attempt returned without error
	Resolved bool  // done(Value) held
	Attempts int   // attempts made
	Err      error // error of the last failed attempt, or the context error
}

// Exhausted reports whether the loop ended without reaching a terminal value.
func (r Result[T]) Exhausted() bool { return !r.Resolved }

// Until calls attempt until done reports true for its value or the policy runs
// out. An attempt error counts as a non-terminal attempt. Cancelling ctx ends the
// loop as Exhausted.
func Until[T any](ctx context.Context, p Policy, attempt func(ctx context.Context) (T, error), done func(T) bool) Result[T] {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	wait := p.Wait
	if wait == nil {
		wait = sleep
	}

	var res Result[T]
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := wait(ctx, p.Delay); err != nil {
				res.Err = err
				return res
			}
		}
		res.Attempts++
		v, err := attempt(ctx)
		if err != nil {
			res.Err = err
			continue
		}
		res.Value = v
		res.Observed = true
		res.Err = nil
		if done(v) {
			res.Resolved = true
			return res
		}
	}
	return res
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
