// Package notify carries user-visible notices and the in-flight request
// indicator for front ends built on the session client.
package notify

import (
	"sync"
	"time"

	"github.com/fw-platform/wish-console/sessionclock"
	"github.com/rs/zerolog/log"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
)

// DefaultDuration is how long a toast stays visible
const DefaultDuration = 4 * time.Second

type Toast struct {
	ID       int
	Text     string
	Level    Level
	Duration time.Duration
}

// Toasts is the list of visible notices. Each toast dismisses itself after
// its duration.
type Toasts struct {
	scheduler sessionclock.Scheduler

	lock        sync.Mutex
	nextID      int
	items       []Toast
	subscribers map[int]func(Toast)
	nextSubID   int
}

func NewToasts(scheduler sessionclock.Scheduler) *Toasts {
	if scheduler == nil {
		scheduler = sessionclock.RealScheduler{}
	}
	return &Toasts{
		scheduler:   scheduler,
		nextID:      1,
		subscribers: make(map[int]func(Toast)),
	}
}

// Show adds a toast. A non-positive duration uses DefaultDuration.
func (t *Toasts) Show(text string, level Level, duration time.Duration) Toast {
	if duration <= 0 {
		duration = DefaultDuration
	}

	t.lock.Lock()
	toast := Toast{ID: t.nextID, Text: text, Level: level, Duration: duration}
	t.nextID++
	t.items = append(t.items, toast)
	subs := make([]func(Toast), 0, len(t.subscribers))
	for _, fn := range t.subscribers {
		subs = append(subs, fn)
	}
	t.lock.Unlock()

	log.Debug().Int("toast_id", toast.ID).Str("level", string(level)).Msg(text)
	t.scheduler.AfterFunc(duration, func() { t.Dismiss(toast.ID) })
	for _, fn := range subs {
		fn(toast)
	}
	return toast
}

func (t *Toasts) Success(text string) { t.Show(text, LevelSuccess, 0) }
func (t *Toasts) Error(text string)   { t.Show(text, LevelError, 0) }
func (t *Toasts) Info(text string)    { t.Show(text, LevelInfo, 0) }
func (t *Toasts) Warning(text string) { t.Show(text, LevelWarning, 0) }

func (t *Toasts) Dismiss(id int) {
	t.lock.Lock()
	defer t.lock.Unlock()

	kept := t.items[:0]
	for _, item := range t.items {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	t.items = kept
}

// List returns the visible toasts, oldest first
func (t *Toasts) List() []Toast {
	t.lock.Lock()
	defer t.lock.Unlock()

	return append([]Toast(nil), t.items...)
}

// Subscribe calls fn for every new toast until the returned func is called
func (t *Toasts) Subscribe(fn func(Toast)) func() {
	t.lock.Lock()
	defer t.lock.Unlock()

	id := t.nextSubID
	t.nextSubID++
	t.subscribers[id] = fn
	return func() {
		t.lock.Lock()
		defer t.lock.Unlock()
		delete(t.subscribers, id)
	}
}
