package adapters

import (
	"context"
	"time"

	"github.com/cenk/backoff"
)

const (
	defaultHTTPTimeout   = 30 * time.Second
	defaultHTTPAttempts  = 3
	defaultHTTPBaseDelay = 100 * time.Millisecond
	maxHTTPRetryDelay    = 5 * time.Second
)

// retryPolicy bounds the attempts of one logical request. Delays grow
// exponentially from BaseDelay without jitter.
type retryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	Notify    func(err error, delay time.Duration)
}

func newRetryPolicy(attempts int, baseDelay time.Duration) retryPolicy {
	return retryPolicy{
		Attempts:  normalizeAttempts(attempts),
		BaseDelay: normalizeBaseDelay(baseDelay),
	}
}

func (p retryPolicy) run(ctx context.Context, op func() error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = maxHTTPRetryDelay
	exp.MaxElapsedTime = 0
	exp.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.Attempts-1)), ctx)
	return backoff.RetryNotify(op, policy, p.Notify)
}

// permanent stops the retry loop and surfaces err unchanged.
func permanent(err error) error {
	return backoff.Permanent(err)
}

func normalizeAttempts(value int) int {
	if value <= 0 {
		return defaultHTTPAttempts
	}
	return value
}

func normalizeBaseDelay(value time.Duration) time.Duration {
	if value <= 0 {
		return defaultHTTPBaseDelay
	}
	if value > maxHTTPRetryDelay {
		return maxHTTPRetryDelay
	}
	return value
}

func normalizeTimeout(value time.Duration) time.Duration {
	if value <= 0 {
		return defaultHTTPTimeout
	}
	return value
}
