package sessionclock_test

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/fw-platform/wish-console/sessionclock"
	"github.com/fw-platform/wish-console/sessionclock/clockfake"
	"github.com/stretchr/testify/require"
)

// recorder captures callback firings with the fake elapsed time
type recorder struct {
	lock      sync.Mutex
	scheduler *clockfake.Scheduler
	events    []event
}

type event struct {
	name       string
	at         time.Duration
	generation uint64
}

func (r *recorder) onExpire(gen uint64) {
	r.record("expire", gen)
}

func (r *recorder) onRefresh(gen uint64) {
	r.record("refresh", gen)
}

func (r *recorder) record(name string, gen uint64) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, event{name: name, at: r.scheduler.Elapsed(), generation: gen})
}

func setup(t *testing.T) (*clockfake.Scheduler, *sessionclock.Clock, *recorder) {
	t.Helper()

	s := clockfake.New()
	return s, sessionclock.New(s), &recorder{scheduler: s}
}

func TestArmSchedulesRefreshThenExpire(t *testing.T) {
	s, c, r := setup(t)

	require.True(t, c.Arm(60, 7, r.onExpire, r.onRefresh))
	require.True(t, c.Armed())

	s.Advance(29 * time.Second)
	require.Empty(t, r.events)

	s.Advance(time.Second)
	require.Equal(t, []event{{"refresh", 30 * time.Second, 7}}, r.events)

	s.Advance(30 * time.Second)
	require.Equal(t, []event{
		{"refresh", 30 * time.Second, 7},
		{"expire", 60 * time.Second, 7},
	}, r.events)
	require.False(t, c.Armed())
}

func TestRearmSupersedesPreviousExpire(t *testing.T) {
	s, c, r := setup(t)

	c.Arm(60, 1, r.onExpire, func(uint64) {
		// A successful refresh at t=30s re-arms with a long expiry
		c.Arm(3600, 2, r.onExpire, r.onRefresh)
	})

	s.Advance(61 * time.Second)
	require.Empty(t, r.events, "the original t=60s expire must not fire")
	require.True(t, c.Armed())

	s.Advance(3600 * time.Second)
	require.Len(t, r.events, 2)
	require.Equal(t, "refresh", r.events[0].name)
	require.Equal(t, uint64(2), r.events[0].generation)
	require.Equal(t, "expire", r.events[1].name)
	require.Equal(t, 3630*time.Second, r.events[1].at)
}

func TestShortExpiryClampsRefresh(t *testing.T) {
	s, c, r := setup(t)

	c.Arm(10, 3, r.onExpire, r.onRefresh)
	s.Advance(time.Second)
	require.Equal(t, []event{{"refresh", time.Second, 3}}, r.events)

	s.Advance(9 * time.Second)
	require.Len(t, r.events, 2)
	require.Equal(t, "expire", r.events[1].name)
}

func TestNonExpiringSessionArmsNothing(t *testing.T) {
	for _, exp := range []float64{0, -1, math.Inf(1), math.NaN()} {
		s, c, r := setup(t)

		require.False(t, c.Arm(exp, 1, r.onExpire, r.onRefresh))
		require.False(t, c.Armed())
		require.Equal(t, 0, s.Pending())

		s.Advance(24 * time.Hour)
		require.Empty(t, r.events)
	}
}

func TestArmWithoutExpiryCancelsPreviousPair(t *testing.T) {
	s, c, r := setup(t)

	c.Arm(60, 1, r.onExpire, r.onRefresh)
	c.Arm(0, 2, r.onExpire, r.onRefresh)

	s.Advance(time.Hour)
	require.Empty(t, r.events)
}

func TestCancel(t *testing.T) {
	s, c, r := setup(t)

	c.Cancel() // nothing armed
	c.Arm(60, 1, r.onExpire, r.onRefresh)
	c.Cancel()
	c.Cancel()

	require.False(t, c.Armed())
	require.Equal(t, 0, s.Pending())
	s.Advance(time.Hour)
	require.Empty(t, r.events)
}

func TestRefreshDelay(t *testing.T) {
	require.Equal(t, 30*time.Second, sessionclock.RefreshDelay(60))
	require.Equal(t, time.Second, sessionclock.RefreshDelay(30))
	require.Equal(t, time.Second, sessionclock.RefreshDelay(5))
	require.Equal(t, 870*time.Second, sessionclock.RefreshDelay(900))
}

func TestRealSchedulerFires(t *testing.T) {
	c := sessionclock.New(nil)
	expired := make(chan uint64, 1)

	c.Arm(0.05, 9, func(gen uint64) { expired <- gen }, func(uint64) {})

	select {
	case gen := <-expired:
		require.Equal(t, uint64(9), gen)
	case <-time.After(5 * time.Second):
		t.Fatal("expire timer did not fire")
	}
}
