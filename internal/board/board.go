// Package board describes the static Challas Aath board: cells, per-player
// paths and ghar (home) cells. A Topology is immutable once built.
package board

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

const (
	// Players is the number of player slots on a board.
	Players = 4
	// PiecesPerPlayer is the number of kavdis each player controls.
	PiecesPerPlayer = 4
	// NotFound is returned by lookups that do not resolve.
	NotFound = -1
)

// Cell is a single board square. Row and Col are the spatial anchor used by presenters.
type Cell struct {
	Index int  `json:"index"`
	Row   int  `json:"row"`
	Col   int  `json:"col"`
	Home  bool `json:"home"`
}

// Topology is the board description shared by every replica.
type Topology struct {
	cells   []Cell
	paths   [Players][]int
	ghars   [Players]int
	pathPos [Players]map[int]int
}

// ErrInvalidTopology is returned by New when the layout is inconsistent.
var ErrInvalidTopology = errors.New("invalid board topology")

// New validates and builds a topology. cells must be indexed 0..n-1 in order,
// paths hold global cell indices per player and ghars the start cell per player.
func New(cells []Cell, paths [Players][]int, ghars [Players]int) (*Topology, error) {
	for i, c := range cells {
		if c.Index != i {
			return nil, fmt.Errorf("%w: cell %d has index %d", ErrInvalidTopology, i, c.Index)
		}
	}
	t := &Topology{cells: append([]Cell(nil), cells...), ghars: ghars}
	for p := 0; p < Players; p++ {
		if len(paths[p]) == 0 {
			return nil, fmt.Errorf("%w: empty path for player %d", ErrInvalidTopology, p)
		}
		if ghars[p] < 0 || ghars[p] >= len(cells) {
			return nil, fmt.Errorf("%w: ghar %d out of range for player %d", ErrInvalidTopology, ghars[p], p)
		}
		pos := make(map[int]int, len(paths[p]))
		for i, idx := range paths[p] {
			if idx < 0 || idx >= len(cells) {
				return nil, fmt.Errorf("%w: player %d path step %d references cell %d", ErrInvalidTopology, p, i, idx)
			}
			if _, dup := pos[idx]; dup {
				return nil, fmt.Errorf("%w: player %d visits cell %d twice", ErrInvalidTopology, p, idx)
			}
			pos[idx] = i
		}
		t.paths[p] = append([]int(nil), paths[p]...)
		t.pathPos[p] = pos
	}
	return t, nil
}

// Cells returns a copy of every cell in global order.
func (t *Topology) Cells() []Cell {
	return append([]Cell(nil), t.cells...)
}

// Len is the number of cells on the board.
func (t *Topology) Len() int { return len(t.cells) }

// PathFor returns the ordered global cell indices a player's pieces travel.
func (t *Topology) PathFor(player int) ([]int, bool) {
	if player < 0 || player >= Players {
		log.Warn().Int("player", player).Msg("board: no path for player")
		return nil, false
	}
	return t.paths[player], true
}

// PathLen is the length of a player's path, or 0 for an unknown player.
func (t *Topology) PathLen(player int) int {
	if player < 0 || player >= Players {
		return 0
	}
	return len(t.paths[player])
}

// PathIndex returns the position of cell on the player's path, or NotFound.
func (t *Topology) PathIndex(player, cell int) int {
	if player < 0 || player >= Players {
		return NotFound
	}
	if i, ok := t.pathPos[player][cell]; ok {
		return i
	}
	return NotFound
}

// IndexOf returns the global index of the cell at c's anchor, or NotFound.
func (t *Topology) IndexOf(c Cell) int {
	if c.Index >= 0 && c.Index < len(t.cells) && t.cells[c.Index].Row == c.Row && t.cells[c.Index].Col == c.Col {
		return c.Index
	}
	for _, cell := range t.cells {
		if cell.Row == c.Row && cell.Col == c.Col {
			return cell.Index
		}
	}
	log.Warn().Int("row", c.Row).Int("col", c.Col).Msg("board: cell not on board")
	return NotFound
}

// CellAt returns the cell with the given global index.
func (t *Topology) CellAt(index int) (Cell, bool) {
	if index < 0 || index >= len(t.cells) {
		return Cell{Index: NotFound}, false
	}
	return t.cells[index], true
}

// IsHome reports whether the cell at index is a ghar / safe cell.
func (t *Topology) IsHome(index int) bool {
	c, ok := t.CellAt(index)
	return ok && c.Home
}

// HomeCellFor returns the ghar cell a piece starts on and is returned to when captured.
func (t *Topology) HomeCellFor(player, piece int) (Cell, bool) {
	if player < 0 || player >= Players || piece < 0 || piece >= PiecesPerPlayer {
		log.Warn().Int("player", player).Int("piece", piece).Msg("board: no ghar cell")
		return Cell{Index: NotFound}, false
	}
	return t.cells[t.ghars[player]], true
}
