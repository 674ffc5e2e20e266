package session

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Reconnect defaults: a fixed five second delay with no growth and no
// attempt cap.
const (
	DefaultReconnectInterval = 5 * time.Second
	DefaultPairingSettle     = 2 * time.Second
)

// ReconnectPolicy describes the delay schedule between reconnect attempts
// after a non-terminal connection loss.
type ReconnectPolicy struct {
	// Interval is the initial delay before the first reconnect attempt.
	Interval time.Duration
	// Multiplier grows the delay between consecutive attempts. Values at
	// or below 1 keep the interval fixed.
	Multiplier float64
	// MaxInterval caps the grown delay.
	MaxInterval time.Duration
	// MaxAttempts caps consecutive failed attempts before the session is
	// dropped. Zero means retry forever.
	MaxAttempts int
}

func (p ReconnectPolicy) normalized() ReconnectPolicy {
	if p.Interval <= 0 {
		p.Interval = DefaultReconnectInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.MaxInterval < p.Interval {
		p.MaxInterval = p.Interval
	}
	if p.MaxAttempts < 0 {
		p.MaxAttempts = 0
	}
	return p
}

func (p ReconnectPolicy) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.Interval
	bo.RandomizationFactor = 0
	bo.Multiplier = p.Multiplier
	bo.MaxInterval = p.MaxInterval
	bo.Reset()
	return bo
}

// retryState tracks reconnect bookkeeping for one session id. It survives
// the supersession that each reconnect attempt performs, so the delay keeps
// growing across consecutive failures and resets only on a successful open.
type retryState struct {
	attempts int
	delay    *backoff.ExponentialBackOff
}
