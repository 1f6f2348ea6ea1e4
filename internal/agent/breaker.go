package agent

import (
	"sync/atomic"
	"time"
)

// BreakerState is the provider circuit state.
type BreakerState int32

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker opens after threshold consecutive failures and lets one probe
// through once cooldown has elapsed since the last failure.
type Breaker struct {
	state     atomic.Int32
	failures  atomic.Int32
	lastFail  atomic.Int64
	probing   atomic.Bool
	threshold int32
	cooldown  time.Duration
	now       func() time.Time
}

func NewBreaker(threshold int, cooldown time.Duration, now func() time.Time) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 5 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Breaker{
		threshold: int32(threshold),
		cooldown:  cooldown,
		now:       now,
	}
}

// Allow reports whether a call may proceed.
func (b *Breaker) Allow() bool {
	for {
		switch BreakerState(b.state.Load()) {
		case BreakerClosed:
			return true

		case BreakerOpen:
			lastFail := time.Unix(0, b.lastFail.Load())
			if b.now().Sub(lastFail) < b.cooldown {
				return false
			}
			if !b.state.CompareAndSwap(int32(BreakerOpen), int32(BreakerHalfOpen)) {
				continue
			}
			b.probing.Store(true)
			return true

		case BreakerHalfOpen:
			return b.probing.CompareAndSwap(false, true)
		}
	}
}

func (b *Breaker) RecordSuccess() {
	b.failures.Store(0)
	b.probing.Store(false)
	b.state.Store(int32(BreakerClosed))
}

func (b *Breaker) RecordFailure() {
	failures := b.failures.Add(1)
	b.lastFail.Store(b.now().UnixNano())
	b.probing.Store(false)

	if BreakerState(b.state.Load()) == BreakerHalfOpen {
		b.state.Store(int32(BreakerOpen))
		return
	}
	if failures >= b.threshold {
		b.state.CompareAndSwap(int32(BreakerClosed), int32(BreakerOpen))
	}
}

func (b *Breaker) State() BreakerState {
	return BreakerState(b.state.Load())
}

// Failures returns the current run of consecutive failures.
func (b *Breaker) Failures() int {
	return int(b.failures.Load())
}
