package domain

import (
	"time"

	"idlegame/engine/internal/bignum"
)

// State is an immutable snapshot of a game. Transition methods return a new
// State and never modify the receiver.
type State struct {
	Counter     bignum.Int
	Production  bignum.Int
	LastSave    time.Time
	LastSavedAt time.Time
}

// New returns the canonical fresh game started at now.
func New(now time.Time) State {
	return State{
		Counter:    bignum.Zero(),
		Production: bignum.One(),
		LastSave:   truncateMilli(now),
	}
}

// Tick adds one step of production to the counter.
func (s State) Tick() State {
	next := s
	next.Counter = s.Counter.Add(s.Production)
	return next
}

// UpgradeProduction doubles production.
func (s State) UpgradeProduction() State {
	next := s
	next.Production = s.Production.Scale(2)
	return next
}

// Stamped marks the snapshot as saved at now.
func (s State) Stamped(now time.Time) State {
	next := s
	at := truncateMilli(now)
	next.LastSave = at
	next.LastSavedAt = at
	return next
}

// CatchUp credits production for every whole second between LastSave and now,
// then moves LastSave to now. Time going backwards credits nothing.
func (s State) CatchUp(now time.Time) (State, uint64) {
	next := s
	elapsed := ElapsedSeconds(s.LastSave, now)
	if elapsed > 0 {
		next.Counter = s.Counter.Add(s.Production.Scale(elapsed))
	}
	next.LastSave = truncateMilli(now)
	return next, elapsed
}

// HasSaved reports whether the snapshot has ever been persisted.
func (s State) HasSaved() bool { return !s.LastSavedAt.IsZero() }

// Equal compares every field of two snapshots.
func (s State) Equal(o State) bool {
	return s.Counter.Equal(o.Counter) &&
		s.Production.Equal(o.Production) &&
		s.LastSave.Equal(o.LastSave) &&
		s.LastSavedAt.Equal(o.LastSavedAt)
}

// ElapsedSeconds is floor((to-from)/1s) at millisecond resolution, clamped at zero.
func ElapsedSeconds(from, to time.Time) uint64 {
	ms := to.UnixMilli() - from.UnixMilli()
	if ms <= 0 {
		return 0
	}
	return uint64(ms / 1000)
}

func truncateMilli(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.UnixMilli(t.UnixMilli()).UTC()
}
