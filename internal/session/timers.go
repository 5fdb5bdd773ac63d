package session

import (
	"sync"
	"time"
)

// timerArena owns every ad-hoc timer a controller schedules (pending
// fail-safes, typing auto-stop, typing hard expiry, mark-read debounce),
// keyed by name so teardown can cancel all of them deterministically.
type timerArena struct {
	mu      sync.Mutex
	timers  map[string]*arenaTimer
	gen     uint64
	stopped bool
}

type arenaTimer struct {
	t   *time.Timer
	gen uint64
}

func newTimerArena() *timerArena {
	return &timerArena{timers: make(map[string]*arenaTimer)}
}

// Set schedules fn to run after d, replacing any timer already scheduled
// under the same key. No-op once the arena is stopped.
func (a *timerArena) Set(key string, d time.Duration, fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	if existing, ok := a.timers[key]; ok {
		existing.t.Stop()
	}
	a.gen++
	gen := a.gen
	at := &arenaTimer{gen: gen}
	at.t = time.AfterFunc(d, func() {
		a.mu.Lock()
		current, ok := a.timers[key]
		fire := ok && current.gen == gen && !a.stopped
		if fire {
			delete(a.timers, key)
		}
		a.mu.Unlock()
		if fire {
			fn()
		}
	})
	a.timers[key] = at
}

// Cancel stops the timer under key, if any.
func (a *timerArena) Cancel(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if at, ok := a.timers[key]; ok {
		at.t.Stop()
		delete(a.timers, key)
	}
}

// Active reports whether a timer is currently scheduled under key.
func (a *timerArena) Active(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.timers[key]
	return ok
}

// CancelAll stops every timer and rejects future Set calls. Used on
// controller teardown so no callback fires against a torn-down controller.
func (a *timerArena) CancelAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	for key, at := range a.timers {
		at.t.Stop()
		delete(a.timers, key)
	}
}
