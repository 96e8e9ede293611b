package notification

import (
	"context"

	"github.com/cenkalti/backoff/v4"

	"github.com/mikeyg42/motionwatch/internal/config"
)

// SendWithRetry runs sendFunc until it succeeds, returns a permanent error,
// runs out of attempts, or ctx is done. Delays grow exponentially from
// Delay up to MaxDelay.
func SendWithRetry(ctx context.Context, cfg config.RetryConfig, sendFunc func(context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	exp := backoff.NewExponentialBackOff()
	if cfg.Delay > 0 {
		exp.InitialInterval = cfg.Delay
	}
	if cfg.MaxDelay > 0 {
		exp.MaxInterval = cfg.MaxDelay
	}
	exp.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)

	return backoff.Retry(func() error {
		return sendFunc(ctx)
	}, b)
}

// permanent marks err as not worth retrying.
func permanent(err error) error {
	return backoff.Permanent(err)
}
