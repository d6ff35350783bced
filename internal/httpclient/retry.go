package httpclient

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"
)

const (
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 5 * time.Second
)

// RetryPolicy configures retry behavior for transport failures.
type RetryPolicy struct {
	MaxAttempts int                                        // total attempts including initial try
	ShouldRetry func(error) bool                           // predicate; if nil, all errors retried
	DelayFunc   func(attempt int, err error) time.Duration // backoff; attempt is 1-based
}

// NewRetryPolicy returns a policy allowing retries extra attempts with
// exponential backoff and jitter. Cancellation is never retried. A per-request
// timeout is retried; the caller's own deadline ends the loop in run.
func NewRetryPolicy(retries int) RetryPolicy {
	source := &jitterSource{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}

	return RetryPolicy{
		MaxAttempts: retries + 1,
		ShouldRetry: func(err error) bool {
			if err == nil {
				return false
			}
			return !errors.Is(err, context.Canceled)
		},
		DelayFunc: func(attempt int, err error) time.Duration {
			if attempt < 1 {
				attempt = 1
			}
			backoff := time.Duration(1<<uint(attempt-1)) * baseRetryDelay
			if backoff > maxRetryDelay {
				backoff = maxRetryDelay
			}
			return backoff + source.jitter(backoff/2)
		},
	}
}

// run calls fn until it succeeds, the policy gives up, or ctx ends.
func (p RetryPolicy) run(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}

		// Don't delay after the last attempt.
		if attempt < attempts {
			if p.ShouldRetry != nil && !p.ShouldRetry(lastErr) {
				return lastErr
			}
			var delay time.Duration
			if p.DelayFunc != nil {
				delay = p.DelayFunc(attempt, lastErr)
			}
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				}
			}
		}
	}
	return lastErr
}

type jitterSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (j *jitterSource) jitter(max time.Duration) time.Duration {
	if j == nil || max <= 0 {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return time.Duration(j.rnd.Int63n(int64(max)))
}
