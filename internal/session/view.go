package session

import (
	"time"

	"idlegame/engine/internal/domain"
	"idlegame/engine/internal/format"
)

// View is the presentation of a snapshot shared by every outer surface.
type View struct {
	Counter           string `json:"counter"`
	Production        string `json:"production"`
	CounterDisplay    string `json:"counterDisplay"`
	ProductionDisplay string `json:"productionDisplay"`
	LastSaved         string `json:"lastSaved"`
	LastSaveMs        int64  `json:"lastSaveMs"`
	LastSavedAtMs     *int64 `json:"lastSavedAtMs"`
}

// NewView renders st as seen at now.
func NewView(st domain.State, now time.Time) View {
	view := View{
		Counter:           st.Counter.String(),
		Production:        st.Production.String(),
		CounterDisplay:    format.Number(st.Counter),
		ProductionDisplay: format.Number(st.Production),
		LastSaved:         format.LastSaved(st.LastSavedAt, now),
		LastSaveMs:        st.LastSave.UnixMilli(),
	}
	if st.HasSaved() {
		ms := st.LastSavedAt.UnixMilli()
		view.LastSavedAtMs = &ms
	}
	return view
}

// Fields flattens the view into a generic map, used for protobuf Structs.
func (v View) Fields() map[string]any {
	fields := map[string]any{
		"counter":           v.Counter,
		"production":        v.Production,
		"counterDisplay":    v.CounterDisplay,
		"productionDisplay": v.ProductionDisplay,
		"lastSaved":         v.LastSaved,
		"lastSaveMs":        float64(v.LastSaveMs),
		"lastSavedAtMs":     nil,
	}
	if v.LastSavedAtMs != nil {
		fields["lastSavedAtMs"] = float64(*v.LastSavedAtMs)
	}
	return fields
}

// View renders the current snapshot using the session clock.
func (s *Session) View() View {
	return NewView(s.Snapshot(), s.clock.Now())
}
