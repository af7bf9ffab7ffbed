// Package relay is the room relay participants connect to: rooms keyed by
// code, a shared property bag per room, targeted event fan-out and master
// election.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"challasaath/internal/config"
	"challasaath/internal/logging"
	"challasaath/internal/protocol"
	"challasaath/internal/storage"
	"challasaath/pkg/utils"
)

// ErrRoomNotFound is returned by lookups for unknown room codes.
var ErrRoomNotFound = errors.New("room not found")

const (
	sweepInterval   = 5 * time.Minute
	directoryWrite  = 5 * time.Second
	maxNicknameLen  = 32
	defaultOutbox   = 256
	directoryBuffer = 256
)

// job is a deferred room directory write, applied in order off the hub lock.
type job func(ctx context.Context, s *storage.Store) error

// NewHub creates a relay hub. Call Run to start idle cleanup and directory writes.
func NewHub(opts Options) *Hub {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 24 * time.Hour
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = defaultOutbox
	}
	return &Hub{
		Rooms: make(map[string]*Room),
		peers: make(map[string]*Peer),
		store: opts.Store,
		opts:  opts,
		jobs:  make(chan job, directoryBuffer),
		log:   logging.For("relay"),
	}
}

// Run sweeps idle rooms and flushes directory writes until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			if n := h.Sweep(now); n > 0 {
				h.log.Info().Int("rooms", n).Msg("swept idle rooms")
			}
		case j := <-h.jobs:
			wctx, cancel := context.WithTimeout(ctx, directoryWrite)
			if err := j(wctx, h.store); err != nil {
				h.log.Warn().Err(err).Msg("room directory write failed")
			}
			cancel()
		}
	}
}

func (h *Hub) persist(j job) {
	if h.store == nil {
		return
	}
	select {
	case h.jobs <- j:
	default:
		h.log.Warn().Msg("room directory queue full, dropping write")
	}
}

// Connect registers a new peer. The peer is greeted once it sends hello.
func (h *Hub) Connect(nickname string) *Peer {
	limit := rate.Inf
	if h.opts.PeerRate > 0 {
		limit = rate.Limit(h.opts.PeerRate)
	}
	burst := h.opts.PeerBurst
	if burst <= 0 {
		burst = 1
	}
	id := uuid.New()
	p := &Peer{
		ID:       id.String(),
		UserID:   id,
		Nickname: cleanNickname(nickname, id),
		out:      make(chan protocol.Envelope, h.opts.OutboxSize),
		done:     make(chan struct{}),
		limiter:  rate.NewLimiter(limit, burst),
	}
	h.Mu.Lock()
	h.peers[p.ID] = p
	h.Mu.Unlock()
	logging.Debugf("peer %s connected as %q", p.ID, p.Nickname)
	return p
}

// Disconnect removes the peer from its room and drops it.
func (h *Hub) Disconnect(p *Peer) {
	h.Mu.Lock()
	if p.room != nil {
		h.leaveLocked(p, false)
	}
	delete(h.peers, p.ID)
	h.Mu.Unlock()
	p.kick()
	logging.Debugf("peer %s disconnected", p.ID)
}

// Drop disconnects the peer with the given id, reporting whether it existed.
func (h *Hub) Drop(id string) bool {
	h.Mu.Lock()
	p, ok := h.peers[id]
	h.Mu.Unlock()
	if !ok {
		return false
	}
	h.Disconnect(p)
	return true
}

// PeerCount returns the number of connected peers.
func (h *Hub) PeerCount() int {
	h.Mu.Lock()
	defer h.Mu.Unlock()
	return len(h.peers)
}

// Handle applies one envelope sent by p.
func (h *Hub) Handle(p *Peer, env protocol.Envelope) {
	select {
	case <-p.done:
		return
	default:
	}
	if !p.limiter.Allow() {
		p.fail(protocol.KindError, protocol.FailRateLimited, "slow down")
		return
	}

	h.Mu.Lock()
	defer h.Mu.Unlock()
	now := time.Now()
	if p.room != nil {
		p.room.LastSeen = now
	}

	var err error
	switch env.Kind {
	case protocol.KindHello:
		err = h.hello(p, env)
	case protocol.KindJoinLobby:
		p.inLobby = true
		p.send(protocol.Envelope{Kind: protocol.KindLobbyJoined})
	case protocol.KindCreateRoom:
		err = h.createRoom(p, env, now)
	case protocol.KindJoinRoom:
		err = h.joinRoom(p, env, now)
	case protocol.KindJoinRandom:
		h.joinRandom(p, now)
	case protocol.KindLeaveRoom:
		if p.room == nil {
			p.fail(protocol.KindError, protocol.FailNotInRoom, "not in a room")
			return
		}
		h.leaveLocked(p, true)
	case protocol.KindSetProps:
		err = h.setProps(p, env)
	case protocol.KindSetOpen:
		err = h.setOpen(p, env)
	case protocol.KindRaise:
		err = h.raise(p, env)
	default:
		err = fmt.Errorf("unknown kind %q", env.Kind)
	}
	if err != nil {
		h.log.Warn().Err(err).Str("peer", p.ID).Msg("bad request")
		p.fail(protocol.KindError, protocol.FailBadRequest, err.Error())
	}
}

func (h *Hub) hello(p *Peer, env protocol.Envelope) error {
	var req protocol.Hello
	if err := env.Decode(&req); err != nil {
		return err
	}
	p.Nickname = cleanNickname(req.Nickname, p.UserID)
	p.send(protocol.MustEncode(protocol.KindWelcome, protocol.Welcome{UserID: p.ID}))
	return nil
}

func (h *Hub) createRoom(p *Peer, env protocol.Envelope, now time.Time) error {
	var req protocol.CreateRoom
	if err := env.Decode(&req); err != nil {
		return err
	}
	if p.room != nil {
		p.fail(protocol.KindCreateFailed, protocol.FailAlreadyInRoom, "already in room "+p.room.Code)
		return nil
	}
	code := utils.NormalizeRoomCode(req.Code)
	if !utils.ValidRoomCode(code) {
		p.fail(protocol.KindCreateFailed, protocol.FailBadRequest, "malformed room code")
		return nil
	}
	if _, exists := h.Rooms[code]; exists {
		p.fail(protocol.KindCreateFailed, protocol.FailRoomExists, "room "+code+" already exists")
		return nil
	}

	r := newRoom(code, req.Visible, config.ClampCapacity(req.MaxPlayers), req.Props, now)
	h.Rooms[code] = r
	actor := r.seat(p, now)
	r.Master = actor
	h.log.Info().Str("room", code).Bool("visible", r.Visible).Int("max", r.MaxPlayers).Msg("room created")

	snap := r.SnapshotLocked(actor)
	p.send(protocol.MustEncode(protocol.KindRoomCreated, snap))
	p.send(protocol.MustEncode(protocol.KindJoined, snap))

	row := storage.Room{
		Code:         code,
		Visible:      r.Visible,
		Open:         r.Open,
		QuickMatch:   r.QuickMatchLocked(),
		MaxPlayers:   r.MaxPlayers,
		PlayerCount:  1,
		MasterUserID: p.UserID,
	}
	uid, nick := p.UserID, p.Nickname
	h.persist(func(ctx context.Context, s *storage.Store) error {
		if err := s.CreateRoom(ctx, row); err != nil {
			return err
		}
		return s.AddParticipant(ctx, code, uid, nick, actor, now)
	})
	return nil
}

func (h *Hub) joinRoom(p *Peer, env protocol.Envelope, now time.Time) error {
	var req protocol.JoinRoom
	if err := env.Decode(&req); err != nil {
		return err
	}
	if p.room != nil {
		p.fail(protocol.KindJoinFailed, protocol.FailAlreadyInRoom, "already in room "+p.room.Code)
		return nil
	}
	code := utils.NormalizeRoomCode(req.Code)
	r, ok := h.Rooms[code]
	switch {
	case !ok:
		p.fail(protocol.KindJoinFailed, protocol.FailRoomNotFound, "no room "+code)
	case !r.Open:
		p.fail(protocol.KindJoinFailed, protocol.FailRoomClosed, "room "+code+" is closed")
	case r.Full():
		p.fail(protocol.KindJoinFailed, protocol.FailRoomFull, "room "+code+" is full")
	default:
		h.seatLocked(r, p, now)
	}
	return nil
}

// joinRandom seats p in the oldest public open room with a free seat.
func (h *Hub) joinRandom(p *Peer, now time.Time) {
	if p.room != nil {
		p.fail(protocol.KindJoinRandomFailed, protocol.FailAlreadyInRoom, "already in room "+p.room.Code)
		return
	}
	var best *Room
	for _, r := range h.Rooms {
		if !r.Visible || !r.Open || r.Full() {
			continue
		}
		if best == nil || r.CreatedAt.Before(best.CreatedAt) ||
			(r.CreatedAt.Equal(best.CreatedAt) && r.Code < best.Code) {
			best = r
		}
	}
	if best == nil {
		p.fail(protocol.KindJoinRandomFailed, protocol.FailNoMatch, "no open public room")
		return
	}
	h.seatLocked(best, p, now)
}

func (h *Hub) seatLocked(r *Room, p *Peer, now time.Time) {
	actor := r.seat(p, now)
	h.log.Info().Str("room", r.Code).Int("actor", actor).Int("players", len(r.Members)).Msg("player joined")

	p.send(protocol.MustEncode(protocol.KindJoined, r.SnapshotLocked(actor)))
	r.broadcast(protocol.MustEncode(protocol.KindPlayerEntered, protocol.PlayerRef{
		Player: p.playerLocked(),
		Count:  len(r.Members),
	}), actor)
	r.notifyWatchersLocked()

	code, uid, nick, count := r.Code, p.UserID, p.Nickname, len(r.Members)
	h.persist(func(ctx context.Context, s *storage.Store) error {
		if err := s.AddParticipant(ctx, code, uid, nick, actor, now); err != nil {
			return err
		}
		return s.UpdateRoom(ctx, code, storage.RoomUpdate{PlayerCount: &count})
	})
}

// leaveLocked removes p from its room, destroying the room when it empties
// and migrating authority when the master leaves.
func (h *Hub) leaveLocked(p *Peer, notify bool) {
	r := p.room
	left := p.playerLocked()
	wasMaster := r.Master == p.actor
	r.unseat(p)
	if notify {
		p.send(protocol.Envelope{Kind: protocol.KindLeft})
	}
	h.log.Info().Str("room", r.Code).Int("actor", left.Actor).Int("players", len(r.Members)).Msg("player left")

	code := r.Code
	if len(r.Members) == 0 {
		h.destroyLocked(r)
		return
	}

	update := storage.RoomUpdate{}
	count := len(r.Members)
	update.PlayerCount = &count
	if wasMaster {
		master := r.elect()
		uid := r.Members[master].UserID
		update.MasterUserID = &uid
		h.log.Info().Str("room", code).Int("master", master).Msg("master migrated")
		r.broadcast(protocol.MustEncode(protocol.KindMasterChanged, protocol.MasterChanged{Master: master}), 0)
	}
	r.broadcast(protocol.MustEncode(protocol.KindPlayerLeft, protocol.PlayerRef{Player: left, Count: count}), 0)
	r.notifyWatchersLocked()

	actor := left.Actor
	h.persist(func(ctx context.Context, s *storage.Store) error {
		if err := s.RemoveParticipant(ctx, code, actor); err != nil {
			return err
		}
		return s.UpdateRoom(ctx, code, update)
	})
}

func (h *Hub) destroyLocked(r *Room) {
	delete(h.Rooms, r.Code)
	r.closeWatchersLocked()
	h.log.Info().Str("room", r.Code).Msg("room destroyed")
	code := r.Code
	h.persist(func(ctx context.Context, s *storage.Store) error {
		return s.DeleteRoom(ctx, code)
	})
}

// setProps replaces whole keys of the property bag. A JSON null deletes the key.
func (h *Hub) setProps(p *Peer, env protocol.Envelope) error {
	var req protocol.SetProps
	if err := env.Decode(&req); err != nil {
		return err
	}
	r := p.room
	if r == nil {
		p.fail(protocol.KindError, protocol.FailNotInRoom, "not in a room")
		return nil
	}
	if len(req.Props) == 0 {
		return nil
	}
	for k, v := range req.Props {
		if strings.TrimSpace(string(v)) == "null" {
			delete(r.Props, k)
			continue
		}
		r.Props[k] = v
	}
	r.broadcast(protocol.MustEncode(protocol.KindPropsChanged, protocol.PropsChanged{Props: req.Props}), 0)
	r.notifyWatchersLocked()
	return nil
}

func (h *Hub) setOpen(p *Peer, env protocol.Envelope) error {
	var req protocol.SetOpen
	if err := env.Decode(&req); err != nil {
		return err
	}
	r := p.room
	switch {
	case r == nil:
		p.fail(protocol.KindError, protocol.FailNotInRoom, "not in a room")
		return nil
	case r.Master != p.actor:
		p.fail(protocol.KindError, protocol.FailNotMaster, "only the master can open or close the room")
		return nil
	}
	r.Open = req.Open
	r.notifyWatchersLocked()
	code, open := r.Code, r.Open
	h.persist(func(ctx context.Context, s *storage.Store) error {
		return s.UpdateRoom(ctx, code, storage.RoomUpdate{Open: &open})
	})
	return nil
}

func (h *Hub) raise(p *Peer, env protocol.Envelope) error {
	var req protocol.Raise
	if err := env.Decode(&req); err != nil {
		return err
	}
	r := p.room
	if r == nil {
		p.fail(protocol.KindError, protocol.FailNotInRoom, "not in a room")
		return nil
	}
	if req.Code == "" {
		return errors.New("raise without event code")
	}
	out := protocol.MustEncode(protocol.KindEvent, protocol.Event{Sender: p.actor, Code: req.Code, Data: req.Data})
	switch req.Target {
	case protocol.TargetAll, "":
		r.broadcast(out, 0)
	case protocol.TargetOthers:
		r.broadcast(out, p.actor)
	case protocol.TargetMaster:
		if m, ok := r.Members[r.Master]; ok {
			m.send(out)
		}
	default:
		return fmt.Errorf("unknown target %q", req.Target)
	}
	return nil
}

// Sweep destroys rooms idle for longer than the configured TTL and returns how many went.
func (h *Hub) Sweep(now time.Time) int {
	h.Mu.Lock()
	defer h.Mu.Unlock()
	n := 0
	for _, r := range h.Rooms {
		if now.Sub(r.LastSeen) <= h.opts.IdleTTL {
			continue
		}
		for _, a := range r.actors() {
			m := r.Members[a]
			r.unseat(m)
			m.send(protocol.Envelope{Kind: protocol.KindLeft})
		}
		h.destroyLocked(r)
		n++
	}
	return n
}

// Info returns the public state of a room.
func (h *Hub) Info(code string) (RoomInfo, error) {
	h.Mu.Lock()
	defer h.Mu.Unlock()
	r, ok := h.Rooms[utils.NormalizeRoomCode(code)]
	if !ok {
		return RoomInfo{}, ErrRoomNotFound
	}
	return r.InfoLocked(), nil
}

// OpenRooms lists public rooms that still accept players, oldest first.
func (h *Hub) OpenRooms() []RoomInfo {
	h.Mu.Lock()
	rooms := make([]*Room, 0, len(h.Rooms))
	for _, r := range h.Rooms {
		if r.Visible && r.Open && !r.Full() {
			rooms = append(rooms, r)
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].Code < rooms[j].Code
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.InfoLocked())
	}
	h.Mu.Unlock()
	return out
}

// Stats counts live rooms and seated players.
func (h *Hub) Stats() storage.Stats {
	h.Mu.Lock()
	defer h.Mu.Unlock()
	var st storage.Stats
	for _, r := range h.Rooms {
		st.Rooms++
		if r.Visible {
			st.Public++
		}
		st.Players += int64(len(r.Members))
	}
	return st
}

// AddWatcher subscribes ch to public state updates of a room.
func (h *Hub) AddWatcher(code string, ch chan []byte) (RoomInfo, error) {
	h.Mu.Lock()
	defer h.Mu.Unlock()
	r, ok := h.Rooms[utils.NormalizeRoomCode(code)]
	if !ok {
		return RoomInfo{}, ErrRoomNotFound
	}
	r.Watchers[ch] = struct{}{}
	r.notifyWatchersLocked()
	return r.InfoLocked(), nil
}

// RemoveWatcher unsubscribes ch.
func (h *Hub) RemoveWatcher(code string, ch chan []byte) {
	h.Mu.Lock()
	defer h.Mu.Unlock()
	r, ok := h.Rooms[utils.NormalizeRoomCode(code)]
	if !ok {
		return
	}
	delete(r.Watchers, ch)
	r.notifyWatchersLocked()
}

func cleanNickname(name string, id uuid.UUID) string {
	name = strings.TrimSpace(strings.ToValidUTF8(name, ""))
	if utf8.RuneCountInString(name) > maxNicknameLen {
		name = strings.TrimSpace(string([]rune(name)[:maxNicknameLen]))
	}
	if name == "" {
		name = "player-" + id.String()[:4]
	}
	return name
}
