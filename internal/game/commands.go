package game

import "challasaath/internal/engine"

// Event codes raised through the room.
const (
	CodeMove         = "move"
	CodeAddScore     = "add_score"
	CodeColorRequest = "color_request"
	CodePieceSync    = "piece_sync"
	CodeScoreSync    = "score_sync"
	CodeSetTurn      = "set_turn"
	CodeEndTurn      = "end_turn"
)

// MoveCommand carries a precomputed plan. Cells holds global cell indices,
// with engine.ExitMarker for steps past the end of the path.
type MoveCommand struct {
	Player int   `json:"player"`
	Piece  int   `json:"piece"`
	Cells  []int `json:"cells"`
}

func (c MoveCommand) id() engine.PieceID {
	return engine.PieceID{Player: c.Player, Slot: c.Piece}
}

// SlotCommand names a single player slot.
type SlotCommand struct {
	Player int `json:"player"`
}

// PieceState is one piece in an owner's periodic stream. Moves is the number
// of plans the owner has applied to the piece, so receivers can drop a state
// streamed before a move they already replayed.
type PieceState struct {
	Piece     int        `json:"piece"`
	Position  int        `json:"position"`
	Scored    bool       `json:"scored"`
	Moves     int        `json:"moves"`
	Transform [3]float64 `json:"transform"`
}

// PieceSync is an owner's stream of its own pieces.
type PieceSync struct {
	Player int          `json:"player"`
	Pieces []PieceState `json:"pieces"`
}

// ScoreSync is the master's stream of the score table and turn pointer.
type ScoreSync struct {
	Record ScoreRecord `json:"record"`
	Turn   Turn        `json:"turn"`
}
