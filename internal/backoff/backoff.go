// Package backoff computes reconnect delays for the Connection Manager. It
// wraps cenkalti/backoff/v5's exponential backoff rather than hand-rolling
// jitter math, configured to never stop producing delays on its own — the
// Connection Manager, not the backoff strategy, decides when a close code
// is irrecoverable and reconnection should stop.
package backoff

import (
	"time"

	cenkalti "github.com/cenkalti/backoff/v5"
)

// Default tuning: an initial one-second delay growing to a 30s ceiling,
// with 20% jitter so many clients reconnecting after the same server event
// don't retry in lockstep.
const (
	DefaultInitialInterval     = time.Second
	DefaultMaxInterval         = 30 * time.Second
	DefaultRandomizationFactor = 0.2
	DefaultMultiplier          = 2.0
)

// Strategy produces successive reconnect delays and can be reset back to
// its initial state once a connection attempt succeeds.
type Strategy struct {
	backoff *cenkalti.ExponentialBackOff
}

// New builds a Strategy using the package defaults.
func New() *Strategy {
	b := &cenkalti.ExponentialBackOff{
		InitialInterval:     DefaultInitialInterval,
		RandomizationFactor: DefaultRandomizationFactor,
		Multiplier:          DefaultMultiplier,
		MaxInterval:         DefaultMaxInterval,
	}
	b.Reset()
	return &Strategy{backoff: b}
}

// Next returns the delay to wait before the next reconnect attempt. It
// never returns cenkalti's "stop" sentinel: this strategy has no elapsed
// time cap, since the Connection Manager owns the decision to give up.
func (s *Strategy) Next() time.Duration {
	d := s.backoff.NextBackOff()
	if d < 0 {
		return DefaultMaxInterval
	}
	return d
}

// Reset returns the strategy to its initial interval, called after a
// successful (re)connection.
func (s *Strategy) Reset() {
	s.backoff.Reset()
}
