// Package engine holds the game's transition function.
package engine

import (
	"errors"

	"idlegame/engine/internal/clock"
	"idlegame/engine/internal/commands"
	"idlegame/engine/internal/domain"
	"idlegame/engine/internal/logging"
	"idlegame/engine/internal/persistence"
)

// Persister is the slice of the persistence adapter the machine depends on.
type Persister interface {
	Save(st domain.State) (domain.State, error)
	Restore() (persistence.Restored, error)
}

// Machine applies commands to snapshots. Tick, UpgradeProduction and Reset are
// pure; Save and Load reach the persister and never fail outward.
type Machine struct {
	persist Persister
	clock   clock.Clock
	log     *logging.Logger
}

// NewMachine wires the collaborators. A nil persister makes Save and Load
// logged no-ops.
func NewMachine(persist Persister, clk clock.Clock, logger *logging.Logger) *Machine {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.L()
	}
	return &Machine{persist: persist, clock: clk, log: logger}
}

// Fresh returns the canonical new game at the machine's current time.
func (m *Machine) Fresh() domain.State {
	return domain.New(m.clock.Now())
}

// Apply returns the snapshot that follows st under cmd. st is never modified.
func (m *Machine) Apply(st domain.State, cmd commands.Command) domain.State {
	next, _ := m.Transition(st, cmd)
	return next
}

// Transition behaves like Apply and also reports whether cmd took effect.
// A failed Save or Load, an unknown command or a nil command report false.
func (m *Machine) Transition(st domain.State, cmd commands.Command) (domain.State, bool) {
	if cmd == nil {
		return st, false
	}
	switch cmd.(type) {
	case commands.Tick, *commands.Tick:
		return st.Tick(), true
	case commands.UpgradeProduction, *commands.UpgradeProduction:
		return st.UpgradeProduction(), true
	case commands.Reset, *commands.Reset:
		return m.Fresh(), true
	case commands.Save, *commands.Save:
		return m.save(st, cmd)
	case commands.Load, *commands.Load:
		return m.load(st, cmd)
	default:
		m.log.Warn("ignoring unknown command", logging.String("command", cmd.Name()), logging.String("command_id", cmd.CommandID()))
		return st, false
	}
}

func (m *Machine) save(st domain.State, cmd commands.Command) (domain.State, bool) {
	if m.persist == nil {
		m.log.Warn("save requested without a store", logging.String("command_id", cmd.CommandID()))
		return st, false
	}
	saved, err := m.persist.Save(st)
	if err != nil {
		m.log.Error("Save error", logging.Error(err), logging.String("command_id", cmd.CommandID()))
		return st, false
	}
	m.log.Debug("game saved", logging.String("counter", saved.Counter.String()), logging.String("command_id", cmd.CommandID()))
	return saved, true
}

func (m *Machine) load(st domain.State, cmd commands.Command) (domain.State, bool) {
	if m.persist == nil {
		m.log.Warn("load requested without a store", logging.String("command_id", cmd.CommandID()))
		return st, false
	}
	restored, err := m.persist.Restore()
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			m.log.Info("no saved game to load", logging.String("command_id", cmd.CommandID()))
		} else {
			m.log.Error("Load error", logging.Error(err), logging.String("command_id", cmd.CommandID()))
		}
		return st, false
	}
	m.log.Info("game loaded",
		logging.String("counter", restored.State.Counter.String()),
		logging.String("production", restored.State.Production.String()),
		logging.Uint64("offline_seconds", restored.OfflineSeconds),
		logging.String("command_id", cmd.CommandID()),
	)
	return restored.State, true
}
