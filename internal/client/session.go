package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"challasaath/internal/config"
	"challasaath/internal/logging"
	"challasaath/internal/protocol"
	"challasaath/pkg/utils"
)

// CodeStartGame is the event raised by the master to begin the game.
const CodeStartGame = "start_game"

var errConnectionLost = errors.New("connection lost")

// Options configures a Session.
type Options struct {
	Nickname          string
	Dial              Dialer
	Capacity          int
	QuickMatchTimeout time.Duration
	ReconnectBackoff  time.Duration
	NewCode           func() string
	OnEvent           Handler
}

// OptionsFromConfig fills the tunables of Options from cfg.
func OptionsFromConfig(cfg config.Config, nickname string, dial Dialer) Options {
	return Options{
		Nickname:          nickname,
		Dial:              dial,
		Capacity:          cfg.RoomCapacity,
		QuickMatchTimeout: cfg.QuickMatchTimeout,
		ReconnectBackoff:  cfg.ReconnectBackoff,
	}
}

// Session tracks one participant's connection and room membership.
type Session struct {
	opts    Options
	log     zerolog.Logger
	closeCh chan struct{}

	mu       sync.Mutex
	state    State
	conn     Transport
	userID   string
	room     *protocol.Room
	creating *protocol.CreateRoom
	quick    bool
	timer    *time.Timer
	timerGen int
	closed   bool

	queue    []Event
	flushing bool
}

// New creates a disconnected session. Call Run to connect.
func New(opts Options) *Session {
	def := config.Default()
	opts.Capacity = config.ClampCapacity(opts.Capacity)
	if opts.QuickMatchTimeout <= 0 {
		opts.QuickMatchTimeout = def.QuickMatchTimeout
	}
	if opts.ReconnectBackoff <= 0 {
		opts.ReconnectBackoff = def.ReconnectBackoff
	}
	if opts.NewCode == nil {
		opts.NewCode = utils.RoomCode
	}
	return &Session{
		opts:    opts,
		log:     logging.For("session").With().Str("nick", opts.Nickname).Logger(),
		closeCh: make(chan struct{}),
	}
}

// Run keeps the session connected, reconnecting after the backoff whenever
// the transport drops. Room state is not restored. Run returns when ctx is
// done or the session is closed.
func (s *Session) Run(ctx context.Context) error {
	if s.opts.Dial == nil {
		return errors.New("client: no dialer")
	}
	for {
		err := s.connect(ctx)
		if ctx.Err() != nil || s.isClosed() {
			return nil
		}
		s.log.Warn().Err(err).Dur("backoff", s.opts.ReconnectBackoff).Msg("disconnected, reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-s.closeCh:
			return nil
		case <-time.After(s.opts.ReconnectBackoff):
		}
	}
}

func (s *Session) connect(ctx context.Context) error {
	s.mu.Lock()
	s.setStateLocked(Connecting)
	s.mu.Unlock()
	s.flush()

	conn, err := s.opts.Dial(ctx)
	if err != nil {
		s.mu.Lock()
		s.setStateLocked(Disconnected)
		s.mu.Unlock()
		s.flush()
		return err
	}
	defer s.drop(conn)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.conn = conn
	err = s.sendLocked(protocol.KindHello, protocol.Hello{Nickname: s.opts.Nickname})
	s.mu.Unlock()
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closeCh:
			return ErrClosed
		case <-conn.Done():
			return errConnectionLost
		case env := <-conn.Recv():
			s.dispatch(env)
		}
	}
}

func (s *Session) drop(conn Transport) {
	_ = conn.Close()
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.resetRoomLocked()
	s.userID = ""
	s.setStateLocked(Disconnected)
	s.mu.Unlock()
	s.flush()
}

// Close stops Run and drops the connection.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.closeCh)
	}
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// CreateRoom asks for a private room under a fresh code and returns that
// code. A taken code is replaced and retried until one succeeds; the room
// finally created is reported by EventJoined.
func (s *Session) CreateRoom() (string, error) {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != InLobby {
		s.log.Warn().Stringer("state", s.state).Msg("create room: not in lobby")
		return "", ErrNotReady
	}
	code := s.opts.NewCode()
	s.setStateLocked(CreatingRoom)
	if err := s.requestCreateLocked(code, false); err != nil {
		s.creating = nil
		s.setStateLocked(InLobby)
		return "", err
	}
	return code, nil
}

func (s *Session) requestCreateLocked(code string, visible bool) error {
	props := protocol.Props{}
	_ = props.Set(protocol.PropRoomCode, code)
	if s.quick {
		_ = props.Set(protocol.PropQuickMatch, true)
	}
	req := protocol.CreateRoom{Code: code, Visible: visible, MaxPlayers: s.opts.Capacity, Props: props}
	s.creating = &req
	return s.sendLocked(protocol.KindCreateRoom, req)
}

// JoinRoom asks to enter the room with the given code. The outcome arrives
// as EventJoined or EventJoinFailed.
func (s *Session) JoinRoom(code string) error {
	code = utils.NormalizeRoomCode(code)
	if len(code) != utils.RoomCodeLength {
		s.log.Warn().Str("code", code).Msg("join room: malformed code")
		return ErrInvalidRoomCode
	}
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != InLobby {
		s.log.Warn().Stringer("state", s.state).Msg("join room: not in lobby")
		return ErrNotReady
	}
	s.setStateLocked(JoiningRoom)
	if err := s.sendLocked(protocol.KindJoinRoom, protocol.JoinRoom{Code: code}); err != nil {
		s.setStateLocked(InLobby)
		return err
	}
	return nil
}

// StartQuickMatch joins any open public room, creating a public quick-match
// room when there is none. If the room is still not full after
// Options.QuickMatchTimeout, the session leaves it, abandoning a room it
// created, returns to the lobby and emits EventQuickMatchTimeout.
func (s *Session) StartQuickMatch() error {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != InLobby {
		s.log.Warn().Stringer("state", s.state).Msg("quick match: not in lobby")
		return ErrNotReady
	}
	s.quick = true
	s.setStateLocked(SearchingQuickMatch)
	if err := s.sendLocked(protocol.KindJoinRandom, nil); err != nil {
		s.quick = false
		s.setStateLocked(InLobby)
		return err
	}
	s.startTimerLocked()
	return nil
}

func (s *Session) startTimerLocked() {
	s.stopTimerLocked()
	gen := s.timerGen
	s.timer = time.AfterFunc(s.opts.QuickMatchTimeout, func() { s.quickMatchExpired(gen) })
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

func (s *Session) quickMatchExpired(gen int) {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.timerGen {
		return
	}
	s.timer = nil
	switch {
	case s.state == SearchingQuickMatch:
		s.quick = false
		s.creating = nil
		s.setStateLocked(InLobby)
	case s.state == InRoom && s.quick && s.room != nil && len(s.room.Players) < s.room.MaxPlayers:
		_ = s.sendLocked(protocol.KindLeaveRoom, nil)
	default:
		return
	}
	s.log.Info().Dur("timeout", s.opts.QuickMatchTimeout).Msg("quick match timed out")
	s.queueLocked(Event{Kind: EventQuickMatchTimeout})
}

// LeaveRoom leaves the current room. EventLeft follows.
func (s *Session) LeaveRoom() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return ErrNotInRoom
	}
	return s.sendLocked(protocol.KindLeaveRoom, nil)
}

// StartGame closes the room to new joiners and tells every member to start.
// Only the master may call it, and only once the room is full.
func (s *Session) StartGame() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != InRoom || s.room == nil {
		return ErrNotInRoom
	}
	if s.room.Master != s.room.Actor {
		s.log.Warn().Int("actor", s.room.Actor).Msg("start game: not the master")
		return ErrNotAuthority
	}
	if len(s.room.Players) < s.room.MaxPlayers {
		return ErrRoomNotFull
	}
	if err := s.sendLocked(protocol.KindSetOpen, protocol.SetOpen{Open: false}); err != nil {
		return err
	}
	return s.raiseLocked(protocol.TargetAll, CodeStartGame, nil)
}

// Raise sends an application event to the given receivers.
func (s *Session) Raise(target protocol.Target, code string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return ErrNotInRoom
	}
	return s.raiseLocked(target, code, data)
}

func (s *Session) raiseLocked(target protocol.Target, code string, data any) error {
	req := protocol.Raise{Target: target, Code: code}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		req.Data = raw
	}
	return s.sendLocked(protocol.KindRaise, req)
}

// SetProps replaces whole keys of the room property bag. The change comes
// back to every member, the caller included, as EventPropsChanged.
func (s *Session) SetProps(props protocol.Props) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return ErrNotInRoom
	}
	return s.sendLocked(protocol.KindSetProps, protocol.SetProps{Props: props})
}

func (s *Session) sendLocked(kind protocol.Kind, v any) error {
	if s.conn == nil {
		return ErrNotReady
	}
	env, err := protocol.Encode(kind, v)
	if err != nil {
		return err
	}
	return s.conn.Send(env)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// UserID returns the relay-issued identity of the current connection.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// IsMaster reports whether this participant holds authority in its room.
func (s *Session) IsMaster() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room != nil && s.room.Master == s.room.Actor
}

// Actor returns the relay actor number, 0 outside a room.
func (s *Session) Actor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return 0
	}
	return s.room.Actor
}

// Slot returns the player slot (actor number minus one), -1 outside a room.
func (s *Session) Slot() int {
	return s.Actor() - 1
}

// MasterSlot returns the player slot of the current master, -1 outside a room.
func (s *Session) MasterSlot() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return -1
	}
	return s.room.Master - 1
}

// PlayerCount returns the number of members in the room.
func (s *Session) PlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return 0
	}
	return len(s.room.Players)
}

// MaxPlayers returns the room capacity, 0 outside a room.
func (s *Session) MaxPlayers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return 0
	}
	return s.room.MaxPlayers
}

// RoomCode returns the canonical code of the current room.
func (s *Session) RoomCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return ""
	}
	return s.room.Code
}

// Players returns the room members ordered by actor number.
func (s *Session) Players() []protocol.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return nil
	}
	return append([]protocol.Player(nil), s.room.Players...)
}

// Props returns a copy of the room property bag.
func (s *Session) Props() protocol.Props {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return protocol.Props{}
	}
	return s.room.Props.Clone()
}

func (s *Session) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.log.Debug().Stringer("from", s.state).Stringer("to", st).Msg("state")
	s.state = st
	s.queueLocked(Event{Kind: EventStateChanged, State: st})
}

func (s *Session) resetRoomLocked() {
	s.room = nil
	s.creating = nil
	s.quick = false
	s.stopTimerLocked()
}

func (s *Session) queueLocked(ev Event) {
	s.queue = append(s.queue, ev)
}

// flush delivers queued events outside the lock, one at a time. Events
// queued by the handler itself are delivered after it returns.
func (s *Session) flush() {
	s.mu.Lock()
	if s.flushing {
		s.mu.Unlock()
		return
	}
	s.flushing = true
	for len(s.queue) > 0 {
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		if s.opts.OnEvent != nil {
			s.opts.OnEvent(ev)
		}
		s.mu.Lock()
	}
	s.flushing = false
	s.mu.Unlock()
}
