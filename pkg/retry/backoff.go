package retry

import (
	"github.com/cenkalti/backoff/v4"
)

func newBackoff(policy Policy) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}
	if policy.Multiplier > 0 {
		b.Multiplier = policy.Multiplier
	}
	b.MaxElapsedTime = policy.MaxElapsedTime
	b.Reset()
	return b
}
