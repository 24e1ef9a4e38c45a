package journalplayer

import (
	"fmt"

	"idlegame/engine/internal/bignum"
	"idlegame/engine/internal/commands"
	"idlegame/engine/internal/journal"
)

// Mismatch flags an entry whose values do not follow from its predecessor.
type Mismatch struct {
	Sequence uint64 `json:"seq"`
	Session  string `json:"session"`
	Action   string `json:"action"`
	Reason   string `json:"reason"`
}

// Summary aggregates a journal per run.
type Summary struct {
	Sessions   int               `json:"sessions"`
	Entries    int               `json:"entries"`
	Actions    map[string]int    `json:"actions"`
	Final      map[string]string `json:"final_counter"`
	Mismatches []Mismatch        `json:"mismatches"`
}

type tracked struct {
	counter    bignum.Int
	production bignum.Int
}

// Replay checks that every Tick and UpgradeProduction entry matches the
// transition applied to the previous entry of the same run. Save, Load and
// Reset entries resynchronise the expected values.
func Replay(entries []journal.Entry) (Summary, error) {
	summary := Summary{Actions: make(map[string]int), Final: make(map[string]string)}
	last := make(map[string]tracked)

	for _, entry := range entries {
		counter, err := bignum.Parse(entry.Counter)
		if err != nil {
			return summary, fmt.Errorf("entry %d counter: %w", entry.Sequence, err)
		}
		production, err := bignum.Parse(entry.Production)
		if err != nil {
			return summary, fmt.Errorf("entry %d production: %w", entry.Sequence, err)
		}
		summary.Entries++
		summary.Actions[entry.Action]++

		prev, seen := last[entry.Session]
		if !seen {
			summary.Sessions++
		}
		//1.- Only the pure transitions can be checked without the store.
		if seen {
			switch entry.Action {
			case commands.NameTick:
				if want := prev.counter.Add(prev.production); !counter.Equal(want) || !production.Equal(prev.production) {
					summary.Mismatches = append(summary.Mismatches, mismatch(entry, fmt.Sprintf("expected counter %s production %s", want, prev.production)))
				}
			case commands.NameUpgradeProduction:
				if want := prev.production.Scale(2); !production.Equal(want) || !counter.Equal(prev.counter) {
					summary.Mismatches = append(summary.Mismatches, mismatch(entry, fmt.Sprintf("expected counter %s production %s", prev.counter, want)))
				}
			}
		}
		last[entry.Session] = tracked{counter: counter, production: production}
		summary.Final[entry.Session] = counter.String()
	}
	return summary, nil
}

func mismatch(entry journal.Entry, reason string) Mismatch {
	return Mismatch{Sequence: entry.Sequence, Session: entry.Session, Action: entry.Action, Reason: reason}
}
