package engine

import "github.com/rs/zerolog/log"

// resolve runs capture and safety rules for mover having just landed on cell.
//
// A mover sharing a ghar with one of its own pieces is safe and captures
// nobody. Otherwise every opposing occupant is sent home unless it too shares
// a ghar with a piece of its own player. Same-player pieces never capture
// each other, and a piece that has scored is out of play. Counts are taken before anyone is removed, and sending a piece
// home never triggers further captures.
func (e *Engine) resolve(mover PieceID, cell int) []Event {
	occupants := e.occ.Occupants(cell)
	if len(occupants) <= 1 {
		return nil
	}
	home := e.board.IsHome(cell)
	perPlayer := make(map[int]int, len(occupants))
	for _, o := range occupants {
		perPlayer[o.Player]++
	}
	if home && perPlayer[mover.Player] >= 2 {
		return nil
	}

	var events []Event
	for _, o := range occupants {
		if o.Player == mover.Player {
			continue
		}
		if home && perPlayer[o.Player] >= 2 {
			continue
		}
		if e.pieces[o.Player][o.Slot].Scored {
			continue
		}
		_ = e.SendHome(o)
		log.Debug().Str("victim", o.String()).Str("by", mover.String()).Int("cell", cell).Msg("engine: capture")
		events = append(events, Event{Kind: EventCaptured, Piece: o, Cell: cell, By: mover})
	}
	return events
}
