package relay

import (
	"encoding/json"
	"sort"
	"time"

	"challasaath/internal/protocol"
)

func newRoom(code string, visible bool, maxPlayers int, props protocol.Props, now time.Time) *Room {
	if props == nil {
		props = make(protocol.Props)
	} else {
		props = props.Clone()
	}
	return &Room{
		Code:       code,
		Visible:    visible,
		Open:       true,
		MaxPlayers: maxPlayers,
		Props:      props,
		Members:    make(map[int]*Peer),
		Watchers:   make(map[chan []byte]struct{}),
		CreatedAt:  now,
		LastSeen:   now,
	}
}

// QuickMatchLocked reports whether the room was auto-created by quick match
// (must be called with lock held).
func (r *Room) QuickMatchLocked() bool {
	var qm bool
	ok, err := r.Props.Get(protocol.PropQuickMatch, &qm)
	return ok && err == nil && qm
}

// Full reports whether every seat is taken (must be called with lock held).
func (r *Room) Full() bool { return len(r.Members) >= r.MaxPlayers }

// freeActor returns the lowest unused actor number, or 0 when full.
func (r *Room) freeActor() int {
	for a := 1; a <= r.MaxPlayers; a++ {
		if _, taken := r.Members[a]; !taken {
			return a
		}
	}
	return 0
}

func (r *Room) actors() []int {
	out := make([]int, 0, len(r.Members))
	for a := range r.Members {
		out = append(out, a)
	}
	sort.Ints(out)
	return out
}

// seat adds p under the lowest free actor number.
func (r *Room) seat(p *Peer, now time.Time) int {
	actor := r.freeActor()
	r.seq++
	p.room = r
	p.actor = actor
	p.joinSeq = r.seq
	p.joinedAt = now
	r.Members[actor] = p
	r.LastSeen = now
	return actor
}

func (r *Room) unseat(p *Peer) {
	delete(r.Members, p.actor)
	p.room = nil
	p.actor = 0
	p.joinSeq = 0
}

// elect hands authority to the earliest-joined remaining member.
func (r *Room) elect() int {
	best := 0
	var bestSeq uint64
	for actor, m := range r.Members {
		if best == 0 || m.joinSeq < bestSeq {
			best, bestSeq = actor, m.joinSeq
		}
	}
	r.Master = best
	return best
}

// SnapshotLocked returns the room as seen by actor (must be called with lock held).
func (r *Room) SnapshotLocked(actor int) protocol.Room {
	players := make([]protocol.Player, 0, len(r.Members))
	for _, a := range r.actors() {
		players = append(players, r.Members[a].playerLocked())
	}
	return protocol.Room{
		Code:       r.Code,
		Visible:    r.Visible,
		Open:       r.Open,
		MaxPlayers: r.MaxPlayers,
		Props:      r.Props.Clone(),
		Players:    players,
		Master:     r.Master,
		Actor:      actor,
	}
}

// InfoLocked returns the public room state (must be called with lock held).
func (r *Room) InfoLocked() RoomInfo {
	return RoomInfo{
		Kind:       "room",
		Code:       r.Code,
		Visible:    r.Visible,
		Open:       r.Open,
		QuickMatch: r.QuickMatchLocked(),
		MaxPlayers: r.MaxPlayers,
		Players:    len(r.Members),
		Watchers:   len(r.Watchers),
		LastSeen:   r.LastSeen.UnixMilli(),
	}
}

// broadcast sends env to every member except the given actor (0 excludes nobody).
func (r *Room) broadcast(env protocol.Envelope, except int) {
	for _, a := range r.actors() {
		if a == except {
			continue
		}
		r.Members[a].send(env)
	}
}

// notifyWatchersLocked pushes the public room state to spectators.
func (r *Room) notifyWatchersLocked() {
	if len(r.Watchers) == 0 {
		return
	}
	data, _ := json.Marshal(r.InfoLocked())
	r.pushWatchers(data)
}

func (r *Room) closeWatchersLocked() {
	info := r.InfoLocked()
	info.Closed = true
	info.Players = 0
	data, _ := json.Marshal(info)
	r.pushWatchers(data)
}

func (r *Room) pushWatchers(data []byte) {
	for ch := range r.Watchers {
		select {
		case ch <- data:
		default:
		}
	}
}
