package playback

import "time"

// Policy bounds the recovery behaviour.
type Policy struct {
	MaxFatalRetries    int
	MaxNonFatalRetries int
	BaseRetryDelay     time.Duration
	MaxRetryDelay      time.Duration
	// StopGrace is how long late events are ignored after a stop.
	StopGrace time.Duration
}

// DefaultPolicy returns the stock limits: five reconnects backing off
// 2s, 4s, 8s, 16s, 30s and up to ten stall recoveries.
func DefaultPolicy() Policy {
	return Policy{
		MaxFatalRetries:    5,
		MaxNonFatalRetries: 10,
		BaseRetryDelay:     time.Second,
		MaxRetryDelay:      30 * time.Second,
		StopGrace:          500 * time.Millisecond,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxFatalRetries <= 0 {
		p.MaxFatalRetries = d.MaxFatalRetries
	}
	if p.MaxNonFatalRetries <= 0 {
		p.MaxNonFatalRetries = d.MaxNonFatalRetries
	}
	if p.BaseRetryDelay <= 0 {
		p.BaseRetryDelay = d.BaseRetryDelay
	}
	if p.MaxRetryDelay <= 0 {
		p.MaxRetryDelay = d.MaxRetryDelay
	}
	if p.StopGrace <= 0 {
		p.StopGrace = d.StopGrace
	}
	return p
}

// RetryDelay returns min(2^attempt * base, max).
func (p Policy) RetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := p.BaseRetryDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxRetryDelay {
			return p.MaxRetryDelay
		}
	}
	if delay > p.MaxRetryDelay {
		return p.MaxRetryDelay
	}
	return delay
}

// retryState holds the counters and the single pending reconnect timer.
type retryState struct {
	fatal    int
	nonFatal int
	timer    Timer
}

// schedule replaces any pending timer.
func (r *retryState) schedule(clock Clock, d time.Duration, fn func()) {
	r.cancel()
	r.timer = clock.AfterFunc(d, fn)
}

func (r *retryState) cancel() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *retryState) pending() bool {
	return r.timer != nil
}

func (r *retryState) reset() {
	r.fatal = 0
	r.nonFatal = 0
}
