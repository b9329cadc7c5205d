// Package sessionclock owns the auto-logout and silent-refresh timers that
// are derived from a session's expiry.
package sessionclock

import (
	"math"
	"sync"
	"time"

	"github.com/fw-platform/wish-console/session"
)

const (
	// RefreshLead is how long before expiry the refresh timer fires
	RefreshLead = 30 * time.Second
	// MinRefreshDelay clamps the refresh timer for very short sessions
	MinRefreshDelay = 1 * time.Second
)

// Timer is a scheduled one-shot callback
type Timer interface {
	Stop() bool
}

// Scheduler creates timers. RealScheduler uses the wall clock; tests use clockfake.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type RealScheduler struct{}

func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Clock holds at most one expire/refresh timer pair. Each Arm starts a new
// cycle; callbacks from a previous cycle never run.
type Clock struct {
	scheduler Scheduler

	lock    sync.Mutex
	cycle   uint64
	expire  Timer
	refresh Timer
}

func New(scheduler Scheduler) *Clock {
	if scheduler == nil {
		scheduler = RealScheduler{}
	}
	return &Clock{scheduler: scheduler}
}

// RefreshDelay returns when the refresh timer fires for a given expiry
func RefreshDelay(expiresIn float64) time.Duration {
	secs := math.Max(expiresIn-RefreshLead.Seconds(), MinRefreshDelay.Seconds())
	return time.Duration(secs * float64(time.Second))
}

// Arm cancels any pending timers and, when expiresIn is a finite positive
// number of seconds, schedules onExpire at expiry and onRefreshDue
// RefreshLead earlier. Both callbacks receive generation unchanged. It
// reports whether timers were armed; a missing or non-positive expiry means
// the session does not expire.
func (c *Clock) Arm(expiresIn float64, generation uint64, onExpire, onRefreshDue func(generation uint64)) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.stopLocked()
	if !session.ValidExpiry(expiresIn) {
		return false
	}

	cycle := c.cycle
	expireAfter := time.Duration(expiresIn * float64(time.Second))

	c.expire = c.scheduler.AfterFunc(expireAfter, func() {
		if c.fire(cycle, true) {
			onExpire(generation)
		}
	})
	c.refresh = c.scheduler.AfterFunc(RefreshDelay(expiresIn), func() {
		if c.fire(cycle, false) {
			onRefreshDue(generation)
		}
	})
	return true
}

// Cancel stops both timers. Safe to call when nothing is armed.
func (c *Clock) Cancel() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.stopLocked()
}

// Armed reports whether the expire timer is still pending
func (c *Clock) Armed() bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.expire != nil
}

func (c *Clock) stopLocked() {
	if c.expire != nil {
		c.expire.Stop()
		c.expire = nil
	}
	if c.refresh != nil {
		c.refresh.Stop()
		c.refresh = nil
	}
	c.cycle++
}

// fire marks a timer of cycle as done and reports whether the cycle is current
func (c *Clock) fire(cycle uint64, expire bool) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	if cycle != c.cycle {
		return false
	}
	if expire {
		c.expire = nil
	} else {
		c.refresh = nil
	}
	return true
}
