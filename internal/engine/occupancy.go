package engine

import (
	"fmt"
	"sort"
)

// PieceID identifies a kavdi by player slot and piece slot.
type PieceID struct {
	Player int `json:"player"`
	Slot   int `json:"slot"`
}

func (id PieceID) String() string { return fmt.Sprintf("%d/%d", id.Player, id.Slot) }

func (id PieceID) less(o PieceID) bool {
	if id.Player != o.Player {
		return id.Player < o.Player
	}
	return id.Slot < o.Slot
}

// Occupancy maps board cells to the pieces resting on them. A piece is in at
// most one cell at a time and in none while at home or scored.
type Occupancy struct {
	cells map[int]map[PieceID]struct{}
	at    map[PieceID]int
}

// NewOccupancy returns an empty index.
func NewOccupancy() *Occupancy {
	return &Occupancy{
		cells: make(map[int]map[PieceID]struct{}),
		at:    make(map[PieceID]int),
	}
}

// Place moves id onto cell, removing it from any cell it occupied before.
func (o *Occupancy) Place(id PieceID, cell int) {
	o.Remove(id)
	set, ok := o.cells[cell]
	if !ok {
		set = make(map[PieceID]struct{})
		o.cells[cell] = set
	}
	set[id] = struct{}{}
	o.at[id] = cell
}

// Remove takes id off the board and reports the cell it was on.
func (o *Occupancy) Remove(id PieceID) (int, bool) {
	cell, ok := o.at[id]
	if !ok {
		return 0, false
	}
	delete(o.at, id)
	if set := o.cells[cell]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(o.cells, cell)
		}
	}
	return cell, true
}

// CellOf returns the cell id currently rests on.
func (o *Occupancy) CellOf(id PieceID) (int, bool) {
	cell, ok := o.at[id]
	return cell, ok
}

// Occupants lists the pieces on cell in a stable order.
func (o *Occupancy) Occupants(cell int) []PieceID {
	set := o.cells[cell]
	out := make([]PieceID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

// Count is the number of pieces on cell.
func (o *Occupancy) Count(cell int) int { return len(o.cells[cell]) }

// Clear empties the index.
func (o *Occupancy) Clear() {
	o.cells = make(map[int]map[PieceID]struct{})
	o.at = make(map[PieceID]int)
}
