package llm

import (
	"time"

	"go.uber.org/zap"
)

// Caller bounds an arbitrary call with a wall-clock deadline and retries
// transient failures with a short incremental backoff.
//
// Known limitation: the deadline does not cancel the underlying call. When
// it expires the worker goroutine keeps running, and its eventual result is
// discarded into a buffered channel. Under sustained timeout pressure this
// leaks in-flight requests; the HTTP client's own (longer) timeout bounds
// how long each leaked call survives.
type Caller struct {
	// Timeout is the app-level guard on one Run invocation.
	Timeout time.Duration
	// MaxAttempts bounds WithRetries. Zero means 3.
	MaxAttempts int
	// BaseBackoff is the sleep before the second attempt; attempt i sleeps
	// i times this. Zero means 600ms.
	BaseBackoff time.Duration
	// Sleep is injectable for tests. Nil means time.Sleep.
	Sleep func(time.Duration)
	// Log defaults to a nop logger.
	Log *zap.Logger
}

// NewCaller returns a Caller with the given app-level timeout and defaults
// for everything else.
func NewCaller(timeout time.Duration) *Caller {
	return &Caller{Timeout: timeout}
}

func (c *Caller) attempts() int {
	if c.MaxAttempts <= 0 {
		return 3
	}
	return c.MaxAttempts
}

func (c *Caller) sleep(d time.Duration) {
	if c.Sleep != nil {
		c.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (c *Caller) logger() *zap.Logger {
	if c.Log != nil {
		return c.Log
	}
	return zap.NewNop()
}

// WithRetries runs thunk up to c.MaxAttempts times, retrying only errors
// whose message matches a transient signature ("timeout", "429", "rate",
// "unavailable", case-insensitive). Any other error propagates immediately.
func WithRetries[T any](c *Caller, thunk func() (T, error)) (T, error) {
	var zero T
	base := c.BaseBackoff
	if base <= 0 {
		base = 600 * time.Millisecond
	}
	attempts := c.attempts()
	var lastErr error
	for i := 0; i < attempts; i++ {
		v, err := thunk()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if !retryable(err) || i == attempts-1 {
			return zero, err
		}
		c.logger().Debug("retrying transient llm failure",
			zap.Int("attempt", i+1), zap.Error(err))
		c.sleep(base * time.Duration(i+1))
	}
	return zero, lastErr
}

// Run executes WithRetries(thunk) on a worker goroutine and waits at most
// c.Timeout for the result. On expiry it returns *UnavailableError with
// reason "app_timeout"; the thunk is not cancelled (see type comment).
func Run[T any](c *Caller, thunk func() (T, error)) (T, error) {
	type outcome struct {
		v   T
		err error
	}
	// Buffered so the worker can always deliver and exit after we stop
	// waiting.
	ch := make(chan outcome, 1)
	go func() {
		v, err := WithRetries(c, thunk)
		ch <- outcome{v: v, err: err}
	}()

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 22 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		return out.v, out.err
	case <-timer.C:
		c.logger().Warn("llm app timeout", zap.Duration("timeout", timeout))
		var zero T
		return zero, &UnavailableError{Reason: "app_timeout"}
	}
}
