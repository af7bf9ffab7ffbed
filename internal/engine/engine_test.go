package engine

import (
	"errors"
	"testing"

	"challasaath/internal/board"
)

func newTestEngine() *Engine {
	return New(board.Standard())
}

// place puts a resting piece on a given global cell through the sync path.
func place(t *testing.T, e *Engine, id PieceID, cell int) {
	t.Helper()
	pos := e.Board().PathIndex(id.Player, cell)
	if pos == board.NotFound {
		t.Fatalf("cell %d not on player %d's path", cell, id.Player)
	}
	if _, err := e.Sync(id, Resting{Position: pos}); err != nil {
		t.Fatalf("sync %s: %v", id, err)
	}
}

func cellAt(t *testing.T, e *Engine, player, pos int) int {
	t.Helper()
	path, ok := e.Board().PathFor(player)
	if !ok || pos < 0 || pos >= len(path) {
		t.Fatalf("no position %d on player %d's path", pos, player)
	}
	return path[pos]
}

func TestPlanMoveMonotonic(t *testing.T) {
	e := newTestEngine()
	b := e.Board()
	for player := 0; player < board.Players; player++ {
		path, _ := b.PathFor(player)
		for _, start := range []int{AtHome, 0, 10, len(path) - 3, len(path) - 1} {
			id := PieceID{Player: player, Slot: 0}
			e.Reset()
			if start != AtHome {
				if _, err := e.Sync(id, Resting{Position: start}); err != nil {
					t.Fatalf("sync: %v", err)
				}
			}
			for distance := 0; distance <= 12; distance++ {
				plan, err := e.PlanMove(id, distance)
				if err != nil {
					t.Fatalf("plan: %v", err)
				}
				if len(plan) != distance {
					t.Fatalf("player %d start %d distance %d: got %d steps", player, start, distance, len(plan))
				}
				exited := false
				for i, cell := range plan {
					pos := start + 1 + i
					if cell == ExitMarker {
						if pos < len(path) {
							t.Fatalf("early exit marker at step %d", i)
						}
						exited = true
						continue
					}
					if exited {
						t.Fatalf("valid cell after exit marker at step %d", i)
					}
					if cell != path[pos] {
						t.Fatalf("step %d: got cell %d, want %d", i, cell, path[pos])
					}
				}
			}
		}
	}
}

func TestBasicMoveScenario(t *testing.T) {
	e := newTestEngine()
	id := PieceID{Player: 0, Slot: 0}
	path, _ := e.Board().PathFor(0)

	plan, err := e.PlanMove(id, 3)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	want := []int{path[0], path[1], path[2]}
	for i := range want {
		if plan[i] != want[i] {
			t.Fatalf("plan = %v, want %v", plan, want)
		}
	}
	if _, err := e.Replay(id, plan); err != nil {
		t.Fatalf("replay: %v", err)
	}
	p, _ := e.Piece(id)
	if p.Position != 2 || p.InTransit {
		t.Fatalf("unexpected piece state %+v", p)
	}
	occ := e.Occupancy().Occupants(path[2])
	if len(occ) != 1 || occ[0] != id {
		t.Fatalf("occupants of %d = %v", path[2], occ)
	}
	if e.Occupancy().Count(path[1]) != 0 {
		t.Fatalf("piece left behind on intermediate cell")
	}
}

func TestStepwiseArrival(t *testing.T) {
	e := newTestEngine()
	id := PieceID{Player: 2, Slot: 1}
	plan, _ := e.PlanMove(id, 2)
	if err := e.Begin(id, plan); err != nil {
		t.Fatalf("begin: %v", err)
	}
	for i, cell := range plan {
		target, ok := e.Target(id)
		if !ok || target != cell {
			t.Fatalf("step %d: target = %d,%v want %d", i, target, ok, cell)
		}
		p, _ := e.Piece(id)
		if !p.InTransit {
			t.Fatalf("step %d: expected piece in transit", i)
		}
		if _, err := e.Arrive(id); err != nil {
			t.Fatalf("arrive: %v", err)
		}
	}
	if _, ok := e.Target(id); ok {
		t.Fatalf("expected no target after plan completes")
	}
	if evs, _ := e.Arrive(id); evs != nil {
		t.Fatalf("arrive on idle piece should be a no-op, got %v", evs)
	}
}

func TestCaptureScenario(t *testing.T) {
	e := newTestEngine()
	a := PieceID{Player: 0, Slot: 0}
	b := PieceID{Player: 1, Slot: 2}
	path, _ := e.Board().PathFor(0)
	landing := path[2]
	if e.Board().IsHome(landing) {
		t.Fatalf("test expects a plain cell")
	}
	place(t, e, b, landing)

	plan, _ := e.PlanMove(a, 3)
	events, err := e.Replay(a, plan)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	victim, _ := e.Piece(b)
	if victim.Position != AtHome {
		t.Fatalf("victim not sent home: %+v", victim)
	}
	if _, on := e.Occupancy().CellOf(b); on {
		t.Fatalf("victim still on the board")
	}
	occ := e.Occupancy().Occupants(landing)
	if len(occ) != 1 || occ[0] != a {
		t.Fatalf("expected mover alone on cell, got %v", occ)
	}
	mover, _ := e.Piece(a)
	if mover.Position != 2 {
		t.Fatalf("mover state changed by capture: %+v", mover)
	}
	var captured int
	for _, ev := range events {
		if ev.Kind == EventCaptured {
			captured++
			if ev.Piece != b || ev.By != a || ev.Cell != landing {
				t.Fatalf("unexpected capture event %+v", ev)
			}
		}
	}
	if captured != 1 {
		t.Fatalf("expected one capture event, got %d", captured)
	}
}

func TestSafeStackScenario(t *testing.T) {
	e := newTestEngine()
	ghar, _ := e.Board().HomeCellFor(0, 0)
	p0a := PieceID{Player: 0, Slot: 0}
	p0b := PieceID{Player: 0, Slot: 1}
	for _, id := range []PieceID{p0a, p0b} {
		plan, _ := e.PlanMove(id, 1)
		if plan[0] != ghar.Index {
			t.Fatalf("first step should be the ghar")
		}
		if _, err := e.Replay(id, plan); err != nil {
			t.Fatalf("replay: %v", err)
		}
	}
	if e.Occupancy().Count(ghar.Index) != 2 {
		t.Fatalf("expected both player 0 pieces on ghar")
	}

	intruder := PieceID{Player: 1, Slot: 0}
	pos := e.Board().PathIndex(1, ghar.Index)
	if _, err := e.Sync(intruder, Resting{Position: pos - 1}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	plan, _ := e.PlanMove(intruder, 1)
	events, _ := e.Replay(intruder, plan)
	for _, ev := range events {
		if ev.Kind == EventCaptured {
			t.Fatalf("unexpected capture on safe stack: %+v", ev)
		}
	}
	occ := e.Occupancy().Occupants(ghar.Index)
	if len(occ) != 3 {
		t.Fatalf("expected three coexisting pieces, got %v", occ)
	}

	// a second player 1 piece now shares the ghar with its partner and is itself safe
	second := PieceID{Player: 1, Slot: 1}
	if _, err := e.Sync(second, Resting{Position: pos - 1}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	plan, _ = e.PlanMove(second, 1)
	events, _ = e.Replay(second, plan)
	for _, ev := range events {
		if ev.Kind == EventCaptured {
			t.Fatalf("safe mover must not capture: %+v", ev)
		}
	}
	if e.Occupancy().Count(ghar.Index) != 4 {
		t.Fatalf("expected four pieces on ghar")
	}
}

func TestLonePieceOnGharIsCaptured(t *testing.T) {
	e := newTestEngine()
	ghar, _ := e.Board().HomeCellFor(0, 0)
	victim := PieceID{Player: 0, Slot: 3}
	place(t, e, victim, ghar.Index)

	mover := PieceID{Player: 3, Slot: 0}
	pos := e.Board().PathIndex(3, ghar.Index)
	if _, err := e.Sync(mover, Resting{Position: pos - 2}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	plan, _ := e.PlanMove(mover, 2)
	if _, err := e.Replay(mover, plan); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if p, _ := e.Piece(victim); p.Position != AtHome {
		t.Fatalf("lone piece on ghar should be captured, got %+v", p)
	}
}

func TestSamePlayerNeverCaptures(t *testing.T) {
	e := newTestEngine()
	path, _ := e.Board().PathFor(0)
	first := PieceID{Player: 0, Slot: 0}
	second := PieceID{Player: 0, Slot: 1}
	place(t, e, first, path[5])
	plan, _ := e.PlanMove(second, 6)
	events, _ := e.Replay(second, plan)
	for _, ev := range events {
		if ev.Kind == EventCaptured {
			t.Fatalf("same player capture: %+v", ev)
		}
	}
	if e.Occupancy().Count(path[5]) != 2 {
		t.Fatalf("expected both pieces to share the cell")
	}
}

func TestScoringAndClamp(t *testing.T) {
	e := newTestEngine()
	id := PieceID{Player: 1, Slot: 3}
	pathLen := e.Board().PathLen(1)
	if _, err := e.Sync(id, Resting{Position: pathLen - 2}); err != nil {
		t.Fatalf("sync: %v", err)
	}
	plan, _ := e.PlanMove(id, 4)
	if plan[0] < 0 || plan[1] != ExitMarker || plan[3] != ExitMarker {
		t.Fatalf("unexpected overshoot plan %v", plan)
	}
	events, err := e.Replay(id, plan)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	last := events[len(events)-1]
	if last.Kind != EventScored || last.Piece != id {
		t.Fatalf("expected scored event, got %+v", events)
	}
	p, _ := e.Piece(id)
	if !p.Scored || p.InTransit || p.Position != pathLen-1 {
		t.Fatalf("unexpected scored state %+v", p)
	}
	path, _ := e.Board().PathFor(1)
	if cell, on := e.Occupancy().CellOf(id); !on || cell != path[pathLen-1] {
		t.Fatalf("scored piece should stay on its last cell, got %d,%v", cell, on)
	}
	if _, err := e.PlanMove(id, 2); !errors.Is(err, ErrPieceScored) {
		t.Fatalf("expected ErrPieceScored, got %v", err)
	}
	if err := e.Begin(id, []int{ExitMarker}); !errors.Is(err, ErrPieceScored) {
		t.Fatalf("expected ErrPieceScored from Begin, got %v", err)
	}
}

func TestMalformedPlansIgnored(t *testing.T) {
	e := newTestEngine()
	id := PieceID{Player: 0, Slot: 0}
	if err := e.Begin(id, nil); !errors.Is(err, ErrMalformedPlan) {
		t.Fatalf("expected ErrMalformedPlan for empty plan, got %v", err)
	}
	if err := e.Begin(id, []int{45, 999}); !errors.Is(err, ErrMalformedPlan) {
		t.Fatalf("expected ErrMalformedPlan for off-board cell, got %v", err)
	}
	if p, _ := e.Piece(id); p.InTransit || p.Position != AtHome {
		t.Fatalf("malformed plan partially applied: %+v", p)
	}
	if _, err := e.PlanMove(PieceID{Player: 5}, 1); !errors.Is(err, ErrUnknownPiece) {
		t.Fatalf("expected ErrUnknownPiece, got %v", err)
	}
}

func TestEarlyExitMarkerStops(t *testing.T) {
	e := newTestEngine()
	id := PieceID{Player: 0, Slot: 2}
	path, _ := e.Board().PathFor(0)
	events, err := e.Replay(id, []int{ExitMarker, path[0]})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventStopped {
		t.Fatalf("expected a single stop event, got %+v", events)
	}
	if p, _ := e.Piece(id); p.Scored || p.InTransit {
		t.Fatalf("piece should neither score nor keep moving: %+v", p)
	}
	// a lone exit marker only scores from the last cell of the path
	events, _ = e.Replay(id, []int{ExitMarker})
	if len(events) != 1 || events[0].Kind != EventStopped {
		t.Fatalf("expected exit from mid path to stop, got %+v", events)
	}
	if p, _ := e.Piece(id); p.Scored {
		t.Fatalf("piece scored without reaching the end: %+v", p)
	}
}

func TestBusyPieceCannotPlan(t *testing.T) {
	e := newTestEngine()
	id := PieceID{Player: 0, Slot: 0}
	plan, _ := e.PlanMove(id, 2)
	_ = e.Begin(id, plan)
	if _, err := e.PlanMove(id, 1); !errors.Is(err, ErrPieceBusy) {
		t.Fatalf("expected ErrPieceBusy, got %v", err)
	}
	if changed, _ := e.Sync(id, Resting{Position: 10}); changed {
		t.Fatalf("sync must not override a moving piece")
	}
}

func TestSyncReconciles(t *testing.T) {
	e := newTestEngine()
	id := PieceID{Player: 3, Slot: 1}
	path, _ := e.Board().PathFor(3)
	if changed, _ := e.Sync(id, Resting{Position: 4}); !changed {
		t.Fatalf("expected sync to apply")
	}
	if cell, ok := e.Occupancy().CellOf(id); !ok || cell != path[4] {
		t.Fatalf("sync placed piece on %d,%v", cell, ok)
	}
	if changed, _ := e.Sync(id, Resting{Position: 4}); changed {
		t.Fatalf("second identical sync should be a no-op")
	}
	_, _ = e.Sync(id, Resting{Position: AtHome})
	if _, ok := e.Occupancy().CellOf(id); ok {
		t.Fatalf("piece synced home should be off the board")
	}
	last := len(path) - 1
	if changed, _ := e.Sync(id, Resting{Position: last, Scored: true}); !changed {
		t.Fatalf("expected scored sync to apply")
	}
	if p, _ := e.Piece(id); !p.Scored || p.Position != last {
		t.Fatalf("scored sync left %+v", p)
	}
	if cell, ok := e.Occupancy().CellOf(id); !ok || cell != path[last] {
		t.Fatalf("scored piece should rest on the last cell, got %d,%v", cell, ok)
	}
	if _, err := e.Sync(id, Resting{Position: len(path) + 3}); !errors.Is(err, ErrMalformedPlan) {
		t.Fatalf("expected ErrMalformedPlan past the path end, got %v", err)
	}
}

func TestExitMarkerKeepsLastCell(t *testing.T) {
	e := newTestEngine()
	id := PieceID{Player: 0, Slot: 1}
	path, _ := e.Board().PathFor(0)
	last := len(path) - 1
	place(t, e, id, path[last-1])

	plan, _ := e.PlanMove(id, 3)
	if plan[0] != path[last] || plan[1] != ExitMarker || plan[2] != ExitMarker {
		t.Fatalf("unexpected plan %v", plan)
	}
	if _, err := e.Replay(id, plan); err != nil {
		t.Fatalf("replay: %v", err)
	}
	p, _ := e.Piece(id)
	if !p.Scored || p.Position != last {
		t.Fatalf("expected scored piece at position %d, got %+v", last, p)
	}
	if occ := e.Occupancy().Occupants(path[last]); len(occ) != 1 || occ[0] != id {
		t.Fatalf("occupants of the last cell = %v", occ)
	}
}

func TestScoredPieceIsNotCaptured(t *testing.T) {
	e := newTestEngine()
	path0, _ := e.Board().PathFor(0)
	last := len(path0) - 1
	done := PieceID{Player: 0, Slot: 0}
	place(t, e, done, path0[last-1])
	plan, _ := e.PlanMove(done, 2)
	if _, err := e.Replay(done, plan); err != nil {
		t.Fatalf("replay: %v", err)
	}

	mover := PieceID{Player: 2, Slot: 0}
	pos := e.Board().PathIndex(2, path0[last])
	place(t, e, mover, cellAt(t, e, 2, pos-1))
	plan, _ = e.PlanMove(mover, 1)
	events, _ := e.Replay(mover, plan)
	for _, ev := range events {
		if ev.Kind == EventCaptured {
			t.Fatalf("scored piece captured: %+v", ev)
		}
	}
	if p, _ := e.Piece(done); !p.Scored || p.Position != last {
		t.Fatalf("scored piece disturbed: %+v", p)
	}
}

func TestStaleSyncIgnored(t *testing.T) {
	e := newTestEngine()
	id := PieceID{Player: 1, Slot: 2}
	plan, _ := e.PlanMove(id, 3)
	if _, err := e.Replay(id, plan); err != nil {
		t.Fatalf("replay: %v", err)
	}
	// streamed before the owner applied its own move
	if changed, _ := e.Sync(id, Resting{Position: AtHome, Moves: 0}); changed {
		t.Fatalf("stale sync applied")
	}
	if p, _ := e.Piece(id); p.Position != 2 || p.Moves != 1 {
		t.Fatalf("piece = %+v", p)
	}
	if changed, _ := e.Sync(id, Resting{Position: 4, Moves: 2}); !changed {
		t.Fatalf("newer sync should apply")
	}
	if p, _ := e.Piece(id); p.Position != 4 || p.Moves != 2 {
		t.Fatalf("piece = %+v", p)
	}
}
