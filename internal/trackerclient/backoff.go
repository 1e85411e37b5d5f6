package trackerclient

import (
	"time"

	"github.com/cenkalti/backoff"
)

// maxBEP15Attempts is n = 0..8: nine total timeout windows before the
// tracker is abandoned for this cycle.
const maxBEP15Attempts = 9

// bep15BackOff implements cenkalti/backoff.BackOff with the fixed
// schedule BEP 15 specifies for tracker requests: 15*2^n seconds for
// n = 0..8, then backoff.Stop. Unlike the generic ExponentialBackOff the
// rest of this module's dependency tree uses for jittered HTTP retries
// (see uber-kraken/tracker/metainfoclient), this schedule is exact and
// unjittered, since the tracker's own transaction-id matching is what
// BEP 15 relies on to detect a lost request, not timing variation.
type bep15BackOff struct {
	attempt int
}

func newBEP15BackOff() *bep15BackOff {
	return &bep15BackOff{}
}

// NextBackOff returns the duration of the next timeout window, or
// backoff.Stop once all nine attempts have been handed out.
func (b *bep15BackOff) NextBackOff() time.Duration {
	if b.attempt >= maxBEP15Attempts {
		return backoff.Stop
	}
	d := 15 * time.Second * time.Duration(int64(1)<<uint(b.attempt))
	b.attempt++
	return d
}

// Reset restarts the schedule from n = 0.
func (b *bep15BackOff) Reset() {
	b.attempt = 0
}
