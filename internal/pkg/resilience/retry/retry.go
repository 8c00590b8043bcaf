// Package retry runs operations that may fail for a while, such as a wallet
// that has not finished unlocking. It wraps Avast's retry-go behind a small
// interface configured with functional options.
//
// Delays grow exponentially up to a cap by default. WithFixedDelay switches
// to a constant pause, which suits polling checks:
//
//	r := retry.New(
//	    retry.WithAttempts(3),
//	    retry.WithDelay(500*time.Millisecond),
//	    retry.WithFixedDelay(),
//	)
//	err := r.Execute(ctx, checkWallet)
package retry

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v4"
)

// Retry runs an operation until it succeeds, attempts run out or ctx ends.
type Retry interface {
	// Execute calls operation at least once. It returns nil on the first
	// success, otherwise the last error (or every error, see
	// WithLastErrorOnly). Ending ctx stops the loop with the context error.
	Execute(ctx context.Context, operation func() error) error
}

type config struct {
	attempts    uint          // total calls, first one included
	delay       time.Duration // first pause, or every pause with fixedDelay
	maxDelay    time.Duration // cap for the exponential growth
	lastErrOnly bool          // drop errors of earlier attempts
	fixedDelay  bool          // constant pause instead of backoff
	retryIf     func(error) bool
	onRetry     func(attempt uint, err error)
}

// Option configures a Retry.
type Option func(*config)

type retrier struct {
	cfg config
}

var _ Retry = (*retrier)(nil)

// New returns a Retry. Defaults: 3 attempts, 1s base delay growing
// exponentially up to 5s, and only the last error reported.
func New(opts ...Option) Retry {
	cfg := config{
		attempts:    3,
		delay:       time.Second,
		maxDelay:    5 * time.Second,
		lastErrOnly: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &retrier{cfg: cfg}
}

func (r *retrier) Execute(ctx context.Context, operation func() error) error {
	delayType := retry.BackOffDelay
	if r.cfg.fixedDelay {
		delayType = retry.FixedDelay
	}

	options := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(r.cfg.attempts),
		retry.Delay(r.cfg.delay),
		retry.MaxDelay(r.cfg.maxDelay),
		retry.DelayType(delayType),
		retry.LastErrorOnly(r.cfg.lastErrOnly),
	}
	if r.cfg.retryIf != nil {
		options = append(options, retry.RetryIf(r.cfg.retryIf))
	}
	if r.cfg.onRetry != nil {
		options = append(options, retry.OnRetry(r.cfg.onRetry))
	}

	return retry.Do(operation, options...)
}

// WithAttempts sets the total number of calls, the first one included.
// Zero is treated as one.
func WithAttempts(n uint) Option {
	return func(c *config) {
		c.attempts = max(n, 1)
	}
}

// WithDelay sets the pause before the first retry.
func WithDelay(d time.Duration) Option {
	return func(c *config) {
		c.delay = d
	}
}

// WithMaxDelay caps the pause between attempts.
func WithMaxDelay(d time.Duration) Option {
	return func(c *config) {
		c.maxDelay = d
	}
}

// WithLastErrorOnly chooses between the last error (true, the default) and
// all of them joined.
func WithLastErrorOnly(b bool) Option {
	return func(c *config) {
		c.lastErrOnly = b
	}
}

// WithFixedDelay waits exactly the configured delay between attempts.
func WithFixedDelay() Option {
	return func(c *config) {
		c.fixedDelay = true
	}
}

// WithRetryIf retries only errors accepted by fn; any other error ends the
// loop at once.
func WithRetryIf(fn func(error) bool) Option {
	return func(c *config) {
		c.retryIf = fn
	}
}

// WithOnRetry calls fn after every failed attempt that will be retried.
// attempt counts from zero.
func WithOnRetry(fn func(attempt uint, err error)) Option {
	return func(c *config) {
		c.onRetry = fn
	}
}
