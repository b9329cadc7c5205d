package notify

import "sync/atomic"

// Loading counts in-flight requests
type Loading struct {
	active atomic.Int64
}

func (l *Loading) Start() {
	l.active.Add(1)
}

// Stop never drives the counter below zero
func (l *Loading) Stop() {
	for {
		n := l.active.Load()
		if n <= 0 {
			return
		}
		if l.active.CompareAndSwap(n, n-1) {
			return
		}
	}
}

func (l *Loading) Active() bool {
	return l.active.Load() > 0
}

func (l *Loading) Count() int64 {
	return l.active.Load()
}
