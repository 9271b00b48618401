// Package retry decides the fate of a work item after a failed
// classification attempt. It performs no I/O.
package retry

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/vietddude/reviewer/internal/core/domain"
)

// Decision is the outcome of a retry decision.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// GiveUp is the terminal decision.
var GiveUp = Decision{}

// Policy decides whether a failed attempt is retried.
type Policy interface {
	// Decide is called after attempt number `attempt` (1-indexed) failed with kind.
	Decide(attempt int, kind domain.ErrorKind, maxAttempts int) Decision
}

// Backoff implements exponential backoff with ±50% jitter.
//
// The un-jittered delay for attempt n is Base * 2^(n-1), capped at Max.
// The returned delay is drawn uniformly from [0.5*d, 1.5*d) so that items
// failing together on a shared outage do not retry in lockstep.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	// Jitter returns a value in [0, 1). Defaults to math/rand/v2.
	Jitter func() float64
}

// DefaultBackoff returns 2s, 4s, 8s, ... capped at 60s.
func DefaultBackoff() *Backoff {
	return &Backoff{
		Base: 2 * time.Second,
		Max:  60 * time.Second,
	}
}

// BaseDelay returns the un-jittered delay after the given attempt.
func (b *Backoff) BaseDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(b.Base) * math.Pow(2, float64(attempt-1))
	if delay > float64(b.Max) {
		return b.Max
	}
	return time.Duration(delay)
}

// Decide retries transient and unknown failures while attempt < maxAttempts.
func (b *Backoff) Decide(attempt int, kind domain.ErrorKind, maxAttempts int) Decision {
	if !kind.Retryable() || attempt >= maxAttempts {
		return GiveUp
	}

	jitter := rand.Float64
	if b.Jitter != nil {
		jitter = b.Jitter
	}
	d := float64(b.BaseDelay(attempt))
	return Decision{
		Retry: true,
		Delay: time.Duration(d * (0.5 + jitter())),
	}
}

// Reason builds the message recorded for a terminal failure.
func Reason(kind domain.ErrorKind, attempts int, err error) string {
	if kind.Retryable() {
		return fmt.Sprintf("%s retries exhausted after %d attempts: %v", kind, attempts, err)
	}
	return fmt.Sprintf("%s failure after %d attempt(s): %v", kind, attempts, err)
}
