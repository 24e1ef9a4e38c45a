package persistence

import (
	"errors"

	"idlegame/engine/internal/clock"
	"idlegame/engine/internal/domain"
)

// DefaultKey is the durable-store slot holding the game.
const DefaultKey = "idle_game_save"

// Restored is a loaded snapshot together with the offline progress credited to it.
type Restored struct {
	State          domain.State
	OfflineSeconds uint64
}

// Option customises an Adapter.
type Option func(*Adapter)

// WithKey overrides the durable-store key.
func WithKey(key string) Option {
	return func(a *Adapter) {
		if key != "" {
			a.key = key
		}
	}
}

// Adapter saves and restores snapshots through a Store.
type Adapter struct {
	store Store
	clock clock.Clock
	key   string
}

// NewAdapter binds a store to the wall clock used for stamping and catch-up.
func NewAdapter(store Store, clk clock.Clock, opts ...Option) *Adapter {
	if clk == nil {
		clk = clock.Real{}
	}
	adapter := &Adapter{store: store, clock: clk, key: DefaultKey}
	for _, opt := range opts {
		if opt != nil {
			opt(adapter)
		}
	}
	return adapter
}

// Key returns the store slot used by the adapter.
func (a *Adapter) Key() string {
	if a == nil {
		return DefaultKey
	}
	return a.key
}

// Save stamps st as saved now and writes it. The stamped snapshot is returned
// only when the write succeeded.
func (a *Adapter) Save(st domain.State) (domain.State, error) {
	if a == nil || a.store == nil {
		return st, &StorageError{Op: "save", Key: a.Key(), Err: errors.New("no store configured")}
	}
	stamped := st.Stamped(a.clock.Now())
	blob, err := EncodeState(stamped)
	if err != nil {
		return st, &StorageError{Op: "encode", Key: a.key, Err: err}
	}
	if err := a.store.Set(a.key, blob); err != nil {
		return st, &StorageError{Op: "write", Key: a.key, Err: err}
	}
	return stamped, nil
}

// Restore reads the saved snapshot and credits whole seconds of production
// elapsed since its last save. It returns ErrNotFound for an empty slot and a
// *StorageError for read or decode failures.
func (a *Adapter) Restore() (Restored, error) {
	if a == nil || a.store == nil {
		return Restored{}, &StorageError{Op: "load", Key: a.Key(), Err: errors.New("no store configured")}
	}
	blob, err := a.store.Get(a.key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Restored{}, ErrNotFound
		}
		return Restored{}, &StorageError{Op: "read", Key: a.key, Err: err}
	}
	stored, err := DecodeState(blob)
	if err != nil {
		return Restored{}, &StorageError{Op: "decode", Key: a.key, Err: err}
	}
	st, elapsed := stored.CatchUp(a.clock.Now())
	return Restored{State: st, OfflineSeconds: elapsed}, nil
}

// Load is Restore without the diagnostics: ok is false whenever nothing usable
// was stored.
func (a *Adapter) Load() (domain.State, bool) {
	restored, err := a.Restore()
	if err != nil {
		return domain.State{}, false
	}
	return restored.State, true
}
