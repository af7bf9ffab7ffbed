// Package game is the per-session match context: it replays movement
// commands on the local engine and keeps scores, colors and the turn pointer
// converged with the other participants.
package game

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"challasaath/internal/board"
	"challasaath/internal/client"
	"challasaath/internal/config"
	"challasaath/internal/engine"
	"challasaath/internal/logging"
	"challasaath/internal/protocol"
)

var (
	ErrNotYourPiece = errors.New("piece belongs to another player")
	ErrNotYourTurn  = errors.New("not your turn")
	ErrNotRolled    = errors.New("roll before moving")
	ErrNotStarted   = errors.New("game has not started")
)

// Room is what a match needs from its session. *client.Session satisfies it.
type Room interface {
	Raise(target protocol.Target, code string, data any) error
	SetProps(props protocol.Props) error
	Props() protocol.Props
	Slot() int
	MasterSlot() int
	IsMaster() bool
	PlayerCount() int
}

// Options configures a Match. With AutoAdvance set, every plan is applied
// in one go instead of waiting for Arrive.
type Options struct {
	Board        *board.Topology
	Palette      []config.Color
	AutoAdvance  bool
	EnforceTurns bool
	Seed         int64
	OnChange     func(Change)
}

// Match is the owning context of one game session.
type Match struct {
	room Room
	opts Options
	dice *Dice
	log  zerolog.Logger

	mu         sync.Mutex
	engine     *engine.Engine
	scores     ScoreRecord
	colors     *ColorTable
	turn       Turn
	started    bool
	rolled     int
	colorAsked bool
	pending    []Change
}

// New creates a match bound to room.
func New(room Room, opts Options) *Match {
	if opts.Board == nil {
		opts.Board = board.Standard()
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	return &Match{
		room:   room,
		opts:   opts,
		dice:   NewDice(opts.Seed),
		log:    logging.For("match"),
		engine: engine.New(opts.Board),
		scores: NewScoreRecord(),
		colors: NewColorTable(opts.Palette),
	}
}

// Handle is the match's single dispatcher for session events.
func (m *Match) Handle(ev client.Event) {
	m.mu.Lock()
	switch ev.Kind {
	case client.EventJoined:
		m.colors.Reset()
		m.applyColorsLocked(ev.Room.Props)
	case client.EventGameStarted:
		m.applyColorsLocked(ev.Room.Props)
		m.startLocked(len(ev.Room.Players))
		m.ensureColorLocked()
	case client.EventPropsChanged:
		m.applyColorsLocked(ev.Props)
	case client.EventPlayerEntered:
		if m.started {
			m.streamLocked()
		}
	case client.EventPlayerLeft:
		if m.started {
			m.turn.Leave(ev.Player.Actor - 1)
			m.skipDepartedLocked()
		}
	case client.EventMasterChanged:
		m.colorAsked = false
		if m.started {
			m.ensureColorLocked()
			m.skipDepartedLocked()
		}
	case client.EventLeft, client.EventReturnedToLobby:
		m.started = false
		m.rolled = 0
	case client.EventGameEvent:
		m.handleGameLocked(ev.Game)
	}
	changes := m.takeLocked()
	m.mu.Unlock()
	m.emit(changes)
}

func (m *Match) startLocked(players int) {
	m.engine.Reset()
	m.scores = NewScoreRecord()
	m.turn = Turn{Current: 0, Players: players}
	m.started = true
	m.rolled = 0
	m.log.Info().Int("players", players).Int("slot", m.room.Slot()).Msg("game started")
	m.changeLocked(Change{Kind: ChangeStarted, Slot: m.turn.Current})
}

func (m *Match) handleGameLocked(ev protocol.Event) {
	sender := ev.Sender - 1
	switch ev.Code {
	case CodeMove:
		var cmd MoveCommand
		if !m.decode(ev, &cmd) {
			return
		}
		if cmd.Player != sender {
			m.log.Warn().Int("sender", sender).Int("player", cmd.Player).Msg("move for a piece the sender does not own")
			return
		}
		m.applyMoveLocked(cmd)
	case CodeAddScore:
		var cmd SlotCommand
		if m.decode(ev, &cmd) && m.scores.Add(cmd.Player) {
			m.changeLocked(Change{Kind: ChangeScore, Slot: cmd.Player})
		}
	case CodeColorRequest:
		var cmd SlotCommand
		if !m.decode(ev, &cmd) {
			return
		}
		if !m.room.IsMaster() {
			m.log.Warn().Int("slot", cmd.Player).Msg("color request reached a non-master")
			return
		}
		m.assignLocked(cmd.Player)
	case CodePieceSync:
		var ps PieceSync
		if !m.decode(ev, &ps) || ps.Player != sender || ps.Player == m.room.Slot() {
			return
		}
		for _, st := range ps.Pieces {
			id := engine.PieceID{Player: ps.Player, Slot: st.Piece}
			changed, err := m.engine.Sync(id, engine.Resting{Position: st.Position, Scored: st.Scored, Moves: st.Moves})
			if err != nil {
				m.log.Warn().Err(err).Str("piece", id.String()).Msg("piece sync")
				continue
			}
			if changed {
				m.changeLocked(Change{Kind: ChangeSynced, Piece: id, Cell: st.Position})
			}
		}
	case CodeScoreSync:
		var ss ScoreSync
		if !m.decode(ev, &ss) || sender != m.room.MasterSlot() || m.room.IsMaster() {
			return
		}
		if m.scores.Merge(ss.Record) {
			m.changeLocked(Change{Kind: ChangeScore, Slot: board.NotFound})
		}
		if ss.Turn != m.turn {
			m.turn = ss.Turn
			m.changeLocked(Change{Kind: ChangeTurn, Slot: m.turn.Current})
		}
	case CodeSetTurn:
		var cmd SlotCommand
		if !m.decode(ev, &cmd) || sender != m.room.MasterSlot() {
			return
		}
		m.turn.Current = cmd.Player
		m.changeLocked(Change{Kind: ChangeTurn, Slot: cmd.Player})
	case CodeEndTurn:
		var cmd SlotCommand
		if !m.decode(ev, &cmd) || !m.room.IsMaster() {
			return
		}
		if cmd.Player == m.turn.Current {
			m.advanceTurnLocked()
		}
	default:
		m.log.Warn().Str("code", ev.Code).Msg("unknown game event")
	}
}

func (m *Match) decode(ev protocol.Event, v any) bool {
	if err := json.Unmarshal(ev.Data, v); err != nil {
		m.log.Warn().Err(err).Str("code", ev.Code).Msg("malformed game event")
		return false
	}
	return true
}

func (m *Match) applyMoveLocked(cmd MoveCommand) {
	id := cmd.id()
	if !m.opts.AutoAdvance {
		if err := m.engine.Begin(id, cmd.Cells); err != nil {
			m.log.Warn().Err(err).Str("piece", id.String()).Msg("move ignored")
			return
		}
		m.changeLocked(Change{Kind: ChangePlanned, Piece: id, Plan: append([]int(nil), cmd.Cells...)})
		return
	}
	events, err := m.engine.Replay(id, cmd.Cells)
	if err != nil {
		m.log.Warn().Err(err).Str("piece", id.String()).Msg("move ignored")
		return
	}
	m.outcomesLocked(events)
	m.pieceStoppedLocked(id)
}

// Arrive tells the match that a piece animated by the presenter reached its
// current target cell.
func (m *Match) Arrive(id engine.PieceID) error {
	m.mu.Lock()
	events, err := m.engine.Arrive(id)
	if err == nil {
		m.outcomesLocked(events)
		if p, _ := m.engine.Piece(id); !p.InTransit && len(events) > 0 {
			m.pieceStoppedLocked(id)
		}
	}
	changes := m.takeLocked()
	m.mu.Unlock()
	m.emit(changes)
	return err
}

// Target returns the cell a moving piece is heading for.
func (m *Match) Target(id engine.PieceID) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.Target(id)
}

func (m *Match) outcomesLocked(events []engine.Event) {
	for _, e := range events {
		switch e.Kind {
		case engine.EventArrived:
			m.changeLocked(Change{Kind: ChangeArrived, Piece: e.Piece, Cell: e.Cell})
		case engine.EventCaptured:
			m.log.Debug().Str("victim", e.Piece.String()).Str("by", e.By.String()).Int("cell", e.Cell).Msg("capture")
			m.changeLocked(Change{Kind: ChangeCaptured, Piece: e.Piece, By: e.By, Cell: e.Cell})
		case engine.EventStopped:
			m.changeLocked(Change{Kind: ChangeStopped, Piece: e.Piece})
		case engine.EventScored:
			m.changeLocked(Change{Kind: ChangeScored, Piece: e.Piece})
			if e.Piece.Player == m.room.Slot() {
				if err := m.room.Raise(protocol.TargetAll, CodeAddScore, SlotCommand{Player: e.Piece.Player}); err != nil {
					m.log.Warn().Err(err).Msg("add score")
				}
			}
		}
	}
}

func (m *Match) pieceStoppedLocked(id engine.PieceID) {
	if id.Player != m.room.Slot() {
		return
	}
	m.endTurnLocked()
}

func (m *Match) endTurnLocked() {
	slot := m.room.Slot()
	if m.room.IsMaster() {
		if m.turn.Current == slot {
			m.advanceTurnLocked()
		}
		return
	}
	if err := m.room.Raise(protocol.TargetMaster, CodeEndTurn, SlotCommand{Player: slot}); err != nil {
		m.log.Warn().Err(err).Msg("end turn")
	}
}

// skipDepartedLocked moves the turn on when its holder has left the room.
func (m *Match) skipDepartedLocked() {
	if !m.room.IsMaster() || !m.turn.Left[m.turn.Current] {
		return
	}
	m.log.Info().Int("slot", m.turn.Current).Msg("turn holder left, advancing")
	m.advanceTurnLocked()
}

func (m *Match) advanceTurnLocked() {
	next := m.turn.Advance()
	m.changeLocked(Change{Kind: ChangeTurn, Slot: next})
	if err := m.room.Raise(protocol.TargetOthers, CodeSetTurn, SlotCommand{Player: next}); err != nil {
		m.log.Warn().Err(err).Msg("set turn")
	}
}

// EnsureColor makes sure this participant's slot has a color: the master
// assigns one directly, anyone else asks the master once.
func (m *Match) EnsureColor() {
	m.mu.Lock()
	m.ensureColorLocked()
	changes := m.takeLocked()
	m.mu.Unlock()
	m.emit(changes)
}

func (m *Match) ensureColorLocked() {
	slot := m.room.Slot()
	if slot < 0 || m.colors.Of(slot) != Unassigned {
		return
	}
	if m.room.IsMaster() {
		m.assignLocked(slot)
		return
	}
	if m.colorAsked {
		return
	}
	m.colorAsked = true
	if err := m.room.Raise(protocol.TargetMaster, CodeColorRequest, SlotCommand{Player: slot}); err != nil {
		m.colorAsked = false
		m.log.Warn().Err(err).Msg("color request")
	}
}

// assignLocked hands slot the next pool color and republishes the whole table.
func (m *Match) assignLocked(slot int) {
	if m.colors.Of(slot) != Unassigned {
		return
	}
	idx, ok := m.colors.Assign(slot)
	if !ok {
		m.log.Warn().Int("slot", slot).Msg("no color left to assign")
		return
	}
	m.changeLocked(Change{Kind: ChangeColor, Slot: slot, Color: idx})
	if err := m.room.SetProps(m.colors.Props()); err != nil {
		m.log.Warn().Err(err).Msg("publish colors")
	}
}

func (m *Match) applyColorsLocked(props protocol.Props) {
	if len(props) == 0 {
		return
	}
	changed, err := m.colors.Apply(props)
	if err != nil {
		m.log.Warn().Err(err).Msg("color table")
	}
	for _, slot := range changed {
		idx := m.colors.Of(slot)
		if slot == m.room.Slot() && idx != Unassigned {
			m.colorAsked = false
		}
		m.changeLocked(Change{Kind: ChangeColor, Slot: slot, Color: idx})
	}
}

// Roll throws the cowries for this participant's turn.
func (m *Match) Roll() (Roll, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return Roll{}, ErrNotStarted
	}
	if m.opts.EnforceTurns && m.turn.Current != m.room.Slot() {
		return Roll{}, ErrNotYourTurn
	}
	r := m.dice.Throw()
	m.rolled = r.Value
	return r, nil
}

// Move moves one of this participant's pieces by the last roll.
func (m *Match) Move(id engine.PieceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rolled == 0 {
		return ErrNotRolled
	}
	if err := m.moveLocked(id, m.rolled); err != nil {
		return err
	}
	m.rolled = 0
	return nil
}

// Pass ends this participant's turn without moving, for rolls no piece can use.
func (m *Match) Pass() error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return ErrNotStarted
	}
	if m.turn.Current != m.room.Slot() {
		m.mu.Unlock()
		return ErrNotYourTurn
	}
	m.rolled = 0
	m.endTurnLocked()
	changes := m.takeLocked()
	m.mu.Unlock()
	m.emit(changes)
	return nil
}

// MovePiece plans a move of distance for one of this participant's pieces
// and broadcasts the plan to every participant, this one included.
func (m *Match) MovePiece(id engine.PieceID, distance int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.moveLocked(id, distance)
}

func (m *Match) moveLocked(id engine.PieceID, distance int) error {
	if !m.started {
		return ErrNotStarted
	}
	slot := m.room.Slot()
	if slot < 0 {
		return client.ErrNotInRoom
	}
	if id.Player != slot {
		return ErrNotYourPiece
	}
	if m.opts.EnforceTurns && m.turn.Current != slot {
		return ErrNotYourTurn
	}
	plan, err := m.engine.PlanMove(id, distance)
	if err != nil {
		return err
	}
	if len(plan) == 0 {
		return nil
	}
	return m.room.Raise(protocol.TargetAll, CodeMove, MoveCommand{Player: id.Player, Piece: id.Slot, Cells: plan})
}

// Tick streams this participant's pieces, and the score table and turn
// pointer when it is the master, to everyone else.
func (m *Match) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		m.streamLocked()
	}
}

// Run calls Tick every interval until ctx is done.
func (m *Match) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			m.Tick()
		}
	}
}

func (m *Match) streamLocked() {
	slot := m.room.Slot()
	if slot < 0 {
		return
	}
	ps := PieceSync{Player: slot}
	for _, p := range m.engine.Pieces(slot) {
		ps.Pieces = append(ps.Pieces, PieceState{
			Piece:     p.ID.Slot,
			Position:  p.Position,
			Scored:    p.Scored,
			Moves:     p.Moves,
			Transform: m.transform(p),
		})
	}
	if err := m.room.Raise(protocol.TargetOthers, CodePieceSync, ps); err != nil {
		m.log.Debug().Err(err).Msg("piece sync")
		return
	}
	if m.room.IsMaster() {
		if err := m.room.Raise(protocol.TargetOthers, CodeScoreSync, ScoreSync{Record: m.scores, Turn: m.turn}); err != nil {
			m.log.Debug().Err(err).Msg("score sync")
		}
	}
}

// transform anchors a piece on its board cell as (col, 0, row).
func (m *Match) transform(p engine.Piece) [3]float64 {
	b := m.opts.Board
	path, _ := b.PathFor(p.ID.Player)
	var cell board.Cell
	if p.Position < 0 {
		cell, _ = b.HomeCellFor(p.ID.Player, p.ID.Slot)
	} else {
		cell, _ = b.CellAt(path[p.Position])
	}
	return [3]float64{float64(cell.Col), 0, float64(cell.Row)}
}

// Piece returns a copy of a piece's state.
func (m *Match) Piece(id engine.PieceID) (engine.Piece, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.Piece(id)
}

// Occupants lists the pieces resting on a cell.
func (m *Match) Occupants(cell int) []engine.PieceID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.Occupancy().Occupants(cell)
}

// Scores returns a copy of the score record.
func (m *Match) Scores() ScoreRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scores
}

// Standings returns the score display rows for the players in the game.
func (m *Match) Standings() []Standing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scores.Standings(m.turn.Players)
}

// Turn returns the turn pointer.
func (m *Match) Turn() Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.turn
}

// ColorOf returns the palette index assigned to slot.
func (m *Match) ColorOf(slot int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.colors.Of(slot)
}

// Color returns the palette entry assigned to slot.
func (m *Match) Color(slot int) (config.Color, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.colors.Color(slot)
}

// Started reports whether a game is in progress.
func (m *Match) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Board returns the topology the match is played on.
func (m *Match) Board() *board.Topology { return m.opts.Board }
