package retry

import (
	"context"
	"math/rand"
	"time"
)

type Config struct {
	// Attempts is the total number of calls, including the first.
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Jitter adds up to this much random delay before capping. Zero disables it.
	Jitter time.Duration

	// Retryable reports whether a failed attempt may be retried. Nil retries everything.
	Retryable func(error) bool
	// OnRetry is called before sleeping ahead of the next attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Backoff returns the delay after the given zero-based failed attempt:
// base * 2^attempt, capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// Do calls fn until it succeeds, returns a non-retryable error, or the attempt
// budget runs out. The last error is returned unwrapped.
func Do(ctx context.Context, config Config, fn func(attempt int) error) error {
	attempts := config.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	baseDelay := config.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	maxDelay := config.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	sleep := config.Sleep
	if sleep == nil {
		sleep = timerSleep
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if config.Retryable != nil && !config.Retryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		if ctx.Err() != nil {
			return lastErr
		}

		delay := Backoff(baseDelay, maxDelay, attempt)
		if config.Jitter > 0 {
			delay += time.Duration(rand.Int63n(int64(config.Jitter)))
			if delay > maxDelay {
				delay = maxDelay
			}
		}
		if config.OnRetry != nil {
			config.OnRetry(attempt, delay, err)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}

func timerSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
