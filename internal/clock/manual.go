package clock

import (
	"sort"
	"sync"
	"time"
)

// Manual is a hand-driven Clock and Scheduler. Callbacks fire synchronously
// from Advance, in due-time order, which keeps tests deterministic.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	subs   map[int]*manualSubscription
}

// NewManual returns a Manual clock positioned at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start, subs: make(map[int]*manualSubscription)}
}

// Now returns the simulated time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set jumps to t without firing callbacks.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Every registers fn to fire each time the simulated clock crosses interval.
func (m *Manual) Every(interval time.Duration, fn func()) Subscription {
	if interval <= 0 {
		interval = time.Second
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	sub := &manualSubscription{
		owner:    m,
		id:       m.nextID,
		interval: interval,
		next:     m.now.Add(interval),
		fn:       fn,
	}
	m.subs[sub.id] = sub
	return sub
}

// Active reports how many subscriptions are still registered.
func (m *Manual) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Advance moves the clock forward by d, firing every callback that falls due.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		due := m.nextDueLocked(target)
		if due == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		//1.- Move time to the callback's due instant before running it.
		m.now = due.next
		due.next = due.next.Add(due.interval)
		fn := due.fn
		m.mu.Unlock()

		//2.- Run outside the lock so callbacks may read Now or cancel subscriptions.
		if fn != nil {
			fn()
		}
	}
}

func (m *Manual) nextDueLocked(target time.Time) *manualSubscription {
	candidates := make([]*manualSubscription, 0, len(m.subs))
	for _, sub := range m.subs {
		if !sub.next.After(target) {
			candidates = append(candidates, sub)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].next.Equal(candidates[j].next) {
			return candidates[i].id < candidates[j].id
		}
		return candidates[i].next.Before(candidates[j].next)
	})
	return candidates[0]
}

type manualSubscription struct {
	owner    *Manual
	id       int
	interval time.Duration
	next     time.Time
	fn       func()
}

// Cancel removes the subscription from its owner.
func (s *manualSubscription) Cancel() {
	s.owner.mu.Lock()
	delete(s.owner.subs, s.id)
	s.owner.mu.Unlock()
}
