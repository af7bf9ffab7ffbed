package game

import "challasaath/internal/engine"

// ChangeKind tags a change reported to presenters.
type ChangeKind int

const (
	ChangeStarted ChangeKind = iota
	ChangePlanned
	ChangeArrived
	ChangeCaptured
	ChangeStopped
	ChangeScored
	ChangeScore
	ChangeColor
	ChangeTurn
	ChangeSynced
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeStarted:
		return "started"
	case ChangePlanned:
		return "planned"
	case ChangeArrived:
		return "arrived"
	case ChangeCaptured:
		return "captured"
	case ChangeStopped:
		return "stopped"
	case ChangeScored:
		return "scored"
	case ChangeScore:
		return "score"
	case ChangeColor:
		return "color"
	case ChangeTurn:
		return "turn"
	case ChangeSynced:
		return "synced"
	}
	return "unknown"
}

// Change is something presenters may want to render. ChangeColor is the
// color-assigned notification: Slot got palette index Color.
type Change struct {
	Kind  ChangeKind
	Piece engine.PieceID
	By    engine.PieceID
	Cell  int
	Slot  int
	Color int
	Plan  []int
}

func (m *Match) changeLocked(c Change) {
	m.pending = append(m.pending, c)
}

func (m *Match) takeLocked() []Change {
	out := m.pending
	m.pending = nil
	return out
}

func (m *Match) emit(changes []Change) {
	if m.opts.OnChange == nil {
		return
	}
	for _, c := range changes {
		m.opts.OnChange(c)
	}
}
