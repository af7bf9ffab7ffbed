package game

import "challasaath/internal/board"

// Turn points at the slot whose turn it is. Only the master advances it.
// Slots whose players left the room mid-game are skipped.
type Turn struct {
	Current int                 `json:"current"`
	Players int                 `json:"players"`
	Left    [board.Players]bool `json:"left"`
}

// Advance moves the pointer to the next slot still in the room and returns it.
func (t *Turn) Advance() int {
	if t.Players <= 0 {
		return t.Current
	}
	for i := 0; i < t.Players; i++ {
		t.Current = (t.Current + 1) % t.Players
		if !t.Left[t.Current] {
			break
		}
	}
	return t.Current
}

// Leave marks slot as gone and reports whether it held the turn.
func (t *Turn) Leave(slot int) bool {
	if slot < 0 || slot >= board.Players {
		return false
	}
	t.Left[slot] = true
	return slot == t.Current
}
