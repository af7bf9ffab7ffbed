package game

import "challasaath/internal/board"

// ScoreRecord counts pieces that reached the exit per slot and the order in
// which slots finished. A finish position of 0 means unfinished.
type ScoreRecord struct {
	Scores     [board.Players]int `json:"scores"`
	Finish     [board.Players]int `json:"finish"`
	NextFinish int                `json:"nextFinish"`
}

// NewScoreRecord returns an empty record.
func NewScoreRecord() ScoreRecord {
	return ScoreRecord{NextFinish: 1}
}

// Add counts one more scored piece for slot and reports whether anything changed.
// Scores never exceed the pieces a player owns.
func (r *ScoreRecord) Add(slot int) bool {
	if slot < 0 || slot >= board.Players || r.Scores[slot] >= board.PiecesPerPlayer {
		return false
	}
	r.Scores[slot]++
	if r.Scores[slot] == board.PiecesPerPlayer && r.Finish[slot] == 0 {
		r.Finish[slot] = r.NextFinish
		r.NextFinish++
	}
	return true
}

// Merge folds in a full record streamed by the master. Scores only grow, and
// the master's finish order wins wherever it has one.
func (r *ScoreRecord) Merge(in ScoreRecord) bool {
	changed := false
	for s := 0; s < board.Players; s++ {
		if in.Scores[s] > r.Scores[s] && in.Scores[s] <= board.PiecesPerPlayer {
			r.Scores[s] = in.Scores[s]
			changed = true
		}
		if in.Finish[s] > 0 && in.Finish[s] != r.Finish[s] {
			r.Finish[s] = in.Finish[s]
			changed = true
		}
	}
	if in.NextFinish > r.NextFinish {
		r.NextFinish = in.NextFinish
		changed = true
	}
	return changed
}

// Standing is one row of the score display.
type Standing struct {
	Slot   int `json:"slot"`
	Score  int `json:"score"`
	Finish int `json:"finish"`
}

// Standings lists the first players slots.
func (r *ScoreRecord) Standings(players int) []Standing {
	if players > board.Players {
		players = board.Players
	}
	out := make([]Standing, 0, players)
	for s := 0; s < players; s++ {
		out = append(out, Standing{Slot: s, Score: r.Scores[s], Finish: r.Finish[s]})
	}
	return out
}
