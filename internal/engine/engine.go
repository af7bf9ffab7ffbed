// Package engine holds the deterministic movement core: per-piece move plans,
// step-by-step application, occupancy tracking and capture resolution.
//
// An Engine is not safe for concurrent use; the owning session serializes access.
package engine

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"challasaath/internal/board"
)

const (
	// ExitMarker stands in for a cell once a plan runs past the end of the path.
	ExitMarker = -1
	// AtHome is the path position of a piece waiting in its ghar.
	AtHome = -1
)

var (
	ErrUnknownPiece  = errors.New("unknown piece")
	ErrPieceBusy     = errors.New("piece is already moving")
	ErrPieceScored   = errors.New("piece has already scored")
	ErrMalformedPlan = errors.New("malformed move plan")
)

// Piece is the replicated state of one kavdi. A scored piece keeps the
// position and cell it last landed on. Moves counts the plans it has begun.
type Piece struct {
	ID        PieceID `json:"id"`
	Position  int     `json:"position"`
	InTransit bool    `json:"inTransit"`
	Scored    bool    `json:"scored"`
	Moves     int     `json:"moves"`

	plan []int
	step int
}

// EventKind tags what happened while applying a step.
type EventKind int

const (
	EventArrived EventKind = iota
	EventCaptured
	EventScored
	EventStopped
)

func (k EventKind) String() string {
	switch k {
	case EventArrived:
		return "arrived"
	case EventCaptured:
		return "captured"
	case EventScored:
		return "scored"
	case EventStopped:
		return "stopped"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is an outcome of Arrive. For captures Piece is the victim and By the mover.
type Event struct {
	Kind  EventKind `json:"kind"`
	Piece PieceID   `json:"piece"`
	Cell  int       `json:"cell"`
	By    PieceID   `json:"by"`
}

// Engine owns every piece and the occupancy index, stored flat and addressed by PieceID.
type Engine struct {
	board  *board.Topology
	pieces [board.Players][board.PiecesPerPlayer]Piece
	occ    *Occupancy
}

// New creates an engine with every piece at home.
func New(b *board.Topology) *Engine {
	e := &Engine{board: b, occ: NewOccupancy()}
	e.Reset()
	return e
}

// Board returns the topology the engine moves pieces on.
func (e *Engine) Board() *board.Topology { return e.board }

// Occupancy exposes the occupancy index for read access.
func (e *Engine) Occupancy() *Occupancy { return e.occ }

// Reset puts every piece back in its ghar and empties the board.
func (e *Engine) Reset() {
	e.occ.Clear()
	for p := 0; p < board.Players; p++ {
		for s := 0; s < board.PiecesPerPlayer; s++ {
			e.pieces[p][s] = Piece{ID: PieceID{Player: p, Slot: s}, Position: AtHome}
		}
	}
}

func (e *Engine) piece(id PieceID) (*Piece, error) {
	if id.Player < 0 || id.Player >= board.Players || id.Slot < 0 || id.Slot >= board.PiecesPerPlayer {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPiece, id)
	}
	return &e.pieces[id.Player][id.Slot], nil
}

// Piece returns a copy of a piece's state.
func (e *Engine) Piece(id PieceID) (Piece, error) {
	p, err := e.piece(id)
	if err != nil {
		return Piece{}, err
	}
	cp := *p
	cp.plan = nil
	return cp, nil
}

// Pieces returns copies of the pieces owned by player.
func (e *Engine) Pieces(player int) []Piece {
	if player < 0 || player >= board.Players {
		return nil
	}
	out := make([]Piece, 0, board.PiecesPerPlayer)
	for s := 0; s < board.PiecesPerPlayer; s++ {
		cp := e.pieces[player][s]
		cp.plan = nil
		out = append(out, cp)
	}
	return out
}

// PlanMove resolves a roll distance into the global cells the piece will step
// through. Once the path is exhausted every remaining step is ExitMarker.
// A distance of zero or less yields an empty plan.
func (e *Engine) PlanMove(id PieceID, distance int) ([]int, error) {
	p, err := e.piece(id)
	if err != nil {
		return nil, err
	}
	if p.Scored {
		return nil, ErrPieceScored
	}
	if p.InTransit {
		return nil, ErrPieceBusy
	}
	if distance <= 0 {
		return nil, nil
	}
	path, _ := e.board.PathFor(id.Player)
	plan := make([]int, 0, distance)
	pos := p.Position
	for i := 0; i < distance; i++ {
		pos++
		if pos >= len(path) {
			plan = append(plan, ExitMarker)
			continue
		}
		plan = append(plan, path[pos])
	}
	return plan, nil
}

// Begin loads a plan for a piece. The plan is validated as a whole so a bad
// command is rejected without partial application. A plan received while the
// piece is still moving replaces the remainder of the previous one.
func (e *Engine) Begin(id PieceID, plan []int) error {
	p, err := e.piece(id)
	if err != nil {
		return err
	}
	if len(plan) == 0 {
		return fmt.Errorf("%w: empty plan for %s", ErrMalformedPlan, id)
	}
	if p.Scored {
		return ErrPieceScored
	}
	for i, cell := range plan {
		if cell < 0 {
			continue
		}
		if e.board.PathIndex(id.Player, cell) == board.NotFound {
			return fmt.Errorf("%w: step %d cell %d is not on player %d's path", ErrMalformedPlan, i, cell, id.Player)
		}
	}
	if p.InTransit {
		log.Debug().Str("piece", id.String()).Int("remaining", len(p.plan)-p.step).Msg("engine: plan replaced mid-transit")
	}
	p.plan = append([]int(nil), plan...)
	p.step = 0
	p.InTransit = true
	p.Moves++
	return nil
}

// Target returns the cell the piece is currently heading for.
func (e *Engine) Target(id PieceID) (int, bool) {
	p, err := e.piece(id)
	if err != nil || !p.InTransit || p.step >= len(p.plan) {
		return 0, false
	}
	return p.plan[p.step], true
}

// Arrive signals that the piece reached its current target and applies that step.
func (e *Engine) Arrive(id PieceID) ([]Event, error) {
	p, err := e.piece(id)
	if err != nil {
		return nil, err
	}
	if !p.InTransit || p.step >= len(p.plan) {
		return nil, nil
	}
	target := p.plan[p.step]

	if target < 0 {
		final := p.plan[len(p.plan)-1]
		p.InTransit = false
		p.plan = nil
		p.step = 0
		if final >= 0 || p.Position != e.board.PathLen(id.Player)-1 {
			log.Warn().Str("piece", id.String()).Int("position", p.Position).Msg("engine: exit marker before end of path, stopping")
			return []Event{{Kind: EventStopped, Piece: id, Cell: ExitMarker}}, nil
		}
		p.Scored = true
		return []Event{{Kind: EventScored, Piece: id, Cell: ExitMarker}}, nil
	}

	e.occ.Place(id, target)
	p.Position = e.board.PathIndex(id.Player, target)
	p.step++
	if p.step >= len(p.plan) {
		p.InTransit = false
		p.plan = nil
		p.step = 0
	}
	events := []Event{{Kind: EventArrived, Piece: id, Cell: target}}
	return append(events, e.resolve(id, target)...), nil
}

// Replay applies a whole plan at once, as a headless replica does.
func (e *Engine) Replay(id PieceID, plan []int) ([]Event, error) {
	if err := e.Begin(id, plan); err != nil {
		return nil, err
	}
	var events []Event
	for {
		p, _ := e.piece(id)
		if !p.InTransit {
			return events, nil
		}
		evs, err := e.Arrive(id)
		if err != nil {
			return events, err
		}
		events = append(events, evs...)
	}
}

// SendHome returns a piece to its ghar, abandoning any plan it was following.
func (e *Engine) SendHome(id PieceID) error {
	p, err := e.piece(id)
	if err != nil {
		return err
	}
	e.occ.Remove(id)
	p.Position = AtHome
	p.InTransit = false
	p.Scored = false
	p.plan = nil
	p.step = 0
	return nil
}

// Resting is a piece's state as streamed by its owner.
type Resting struct {
	Position int  `json:"position"`
	Scored   bool `json:"scored"`
	Moves    int  `json:"moves"`
}

// Sync overwrites a resting piece's state from the owner's periodic stream.
// Pieces that are still moving locally keep their own state, and a stream
// that predates a plan this replica already applied is ignored. No captures
// are resolved. It reports whether anything changed.
func (e *Engine) Sync(id PieceID, st Resting) (bool, error) {
	p, err := e.piece(id)
	if err != nil {
		return false, err
	}
	if p.InTransit || st.Moves < p.Moves {
		return false, nil
	}
	changed := st.Moves != p.Moves
	p.Moves = st.Moves
	if p.Position == st.Position && p.Scored == st.Scored {
		return changed, nil
	}
	path, _ := e.board.PathFor(id.Player)
	switch {
	case st.Position < 0:
		e.occ.Remove(id)
		p.Position, p.Scored = AtHome, false
	case st.Position >= len(path):
		return changed, fmt.Errorf("%w: position %d past the end of player %d's path", ErrMalformedPlan, st.Position, id.Player)
	default:
		e.occ.Place(id, path[st.Position])
		p.Position, p.Scored = st.Position, st.Scored
	}
	return true, nil
}
