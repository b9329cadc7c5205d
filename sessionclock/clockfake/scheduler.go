package clockfake

import (
	"sync"
	"time"

	"github.com/fw-platform/wish-console/sessionclock"
)

var _ sessionclock.Scheduler = (*Scheduler)(nil)

// Scheduler is a manual clock. Timers fire synchronously inside Advance, in
// due order, on the caller's goroutine.
type Scheduler struct {
	lock   sync.Mutex
	now    time.Duration
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	s    *Scheduler
	at   time.Duration
	seq  int
	f    func()
	done bool
}

func New() *Scheduler {
	return &Scheduler{}
}

func (s *Scheduler) AfterFunc(d time.Duration, f func()) sessionclock.Timer {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.seq++
	t := &fakeTimer{s: s, at: s.now + d, seq: s.seq, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.s.lock.Lock()
	defer t.s.lock.Unlock()

	if t.done {
		return false
	}
	t.done = true
	return true
}

// Advance moves the clock forward, firing every timer that comes due
func (s *Scheduler) Advance(d time.Duration) {
	s.lock.Lock()
	target := s.now + d
	for {
		next := s.nextDueLocked(target)
		if next == nil {
			break
		}
		next.done = true
		s.now = next.at
		s.lock.Unlock()
		next.f()
		s.lock.Lock()
	}
	s.now = target
	s.compactLocked()
	s.lock.Unlock()
}

// Elapsed is the total time advanced so far
func (s *Scheduler) Elapsed() time.Duration {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.now
}

// Pending returns the number of timers not yet fired or stopped
func (s *Scheduler) Pending() int {
	s.lock.Lock()
	defer s.lock.Unlock()

	n := 0
	for _, t := range s.timers {
		if !t.done {
			n++
		}
	}
	return n
}

func (s *Scheduler) nextDueLocked(target time.Duration) *fakeTimer {
	var next *fakeTimer
	for _, t := range s.timers {
		if t.done || t.at > target {
			continue
		}
		if next == nil || t.at < next.at || (t.at == next.at && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

func (s *Scheduler) compactLocked() {
	live := s.timers[:0]
	for _, t := range s.timers {
		if !t.done {
			live = append(live, t)
		}
	}
	s.timers = live
}
