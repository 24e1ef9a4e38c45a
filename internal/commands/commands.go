package commands

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Command is an action delivered to the game's transition function.
type Command interface {
	CommandID() string
	Name() string
}

const (
	NameTick              = "Tick"
	NameUpgradeProduction = "UpgradeProduction"
	NameSave              = "Save"
	NameLoad              = "Load"
	NameReset             = "Reset"
)

// Tick advances the game by one production step.
type Tick struct {
	ID string
}

func (c Tick) CommandID() string {
	return c.ID
}

func (c Tick) Name() string {
	return NameTick
}

// UpgradeProduction doubles production.
type UpgradeProduction struct {
	ID string
}

func (c UpgradeProduction) CommandID() string {
	return c.ID
}

func (c UpgradeProduction) Name() string {
	return NameUpgradeProduction
}

// Save persists the current snapshot.
type Save struct {
	ID string
}

func (c Save) CommandID() string {
	return c.ID
}

func (c Save) Name() string {
	return NameSave
}

// Load replaces the current snapshot with the persisted one, credited with
// offline progress.
type Load struct {
	ID string
}

func (c Load) CommandID() string {
	return c.ID
}

func (c Load) Name() string {
	return NameLoad
}

// Reset discards all progress.
type Reset struct {
	ID string
}

func (c Reset) CommandID() string {
	return c.ID
}

func (c Reset) Name() string {
	return NameReset
}

// NewID returns a fresh command identifier.
func NewID() string {
	return uuid.NewString()
}

// Parse maps a user-facing action name to a Command carrying a fresh ID.
// Matching ignores case, and "upgrade" is accepted for UpgradeProduction.
func Parse(name string) (Command, error) {
	id := NewID()
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "tick":
		return Tick{ID: id}, nil
	case "upgrade", "upgradeproduction", "upgrade_production":
		return UpgradeProduction{ID: id}, nil
	case "save":
		return Save{ID: id}, nil
	case "load":
		return Load{ID: id}, nil
	case "reset":
		return Reset{ID: id}, nil
	default:
		return nil, fmt.Errorf("unknown action %q", name)
	}
}
