package client

import (
	"strings"

	"challasaath/internal/protocol"
)

// dispatch applies one relay envelope to the session.
func (s *Session) dispatch(env protocol.Envelope) {
	defer s.flush()
	s.mu.Lock()
	defer s.mu.Unlock()

	switch env.Kind {
	case protocol.KindWelcome:
		var w protocol.Welcome
		if s.decode(env, &w) {
			s.userID = w.UserID
			s.setStateLocked(ConnectedIdle)
			_ = s.sendLocked(protocol.KindJoinLobby, nil)
		}
	case protocol.KindLobbyJoined:
		if s.state == ConnectedIdle {
			s.setStateLocked(InLobby)
		}
	case protocol.KindRoomCreated:
		s.log.Debug().RawJSON("room", env.Data).Msg("room created")
	case protocol.KindCreateFailed:
		var f protocol.Failure
		if s.decode(env, &f) {
			s.createFailedLocked(f)
		}
	case protocol.KindJoined:
		var room protocol.Room
		if s.decode(env, &room) {
			s.joinedLocked(room)
		}
	case protocol.KindJoinFailed:
		var f protocol.Failure
		if s.decode(env, &f) && s.state == JoiningRoom {
			s.log.Info().Str("reason", f.Reason).Msg("join failed")
			s.setStateLocked(InLobby)
			s.queueLocked(Event{Kind: EventJoinFailed, Failure: f})
		}
	case protocol.KindJoinRandomFailed:
		var f protocol.Failure
		if !s.decode(env, &f) || s.state != SearchingQuickMatch {
			return
		}
		if f.Code == protocol.FailNoMatch {
			s.log.Info().Msg("no open room, creating a quick match room")
			_ = s.requestCreateLocked(s.opts.NewCode(), true)
			return
		}
		s.resetRoomLocked()
		s.setStateLocked(InLobby)
		s.queueLocked(Event{Kind: EventJoinFailed, Failure: f})
	case protocol.KindLeft:
		s.resetRoomLocked()
		s.setStateLocked(ConnectedIdle)
		s.queueLocked(Event{Kind: EventLeft})
		_ = s.sendLocked(protocol.KindJoinLobby, nil)
	case protocol.KindPlayerEntered:
		var ref protocol.PlayerRef
		if s.decode(env, &ref) && s.room != nil {
			s.addPlayerLocked(ref.Player)
			s.queueLocked(Event{Kind: EventPlayerEntered, Player: ref.Player, Count: len(s.room.Players)})
			if s.quick && len(s.room.Players) >= s.room.MaxPlayers {
				s.stopTimerLocked()
			}
		}
	case protocol.KindPlayerLeft:
		var ref protocol.PlayerRef
		if s.decode(env, &ref) && s.room != nil {
			s.playerLeftLocked(ref.Player)
		}
	case protocol.KindMasterChanged:
		var mc protocol.MasterChanged
		if s.decode(env, &mc) && s.room != nil {
			s.room.Master = mc.Master
			s.log.Info().Int("master", mc.Master).Bool("self", mc.Master == s.room.Actor).Msg("master changed")
			s.queueLocked(Event{Kind: EventMasterChanged, Master: mc.Master})
		}
	case protocol.KindPropsChanged:
		var pc protocol.PropsChanged
		if s.decode(env, &pc) && s.room != nil {
			for k, v := range pc.Props {
				if strings.TrimSpace(string(v)) == "null" {
					delete(s.room.Props, k)
					continue
				}
				s.room.Props[k] = v
			}
			s.queueLocked(Event{Kind: EventPropsChanged, Props: pc.Props})
		}
	case protocol.KindEvent:
		var ev protocol.Event
		if !s.decode(env, &ev) || s.room == nil {
			return
		}
		if ev.Code == CodeStartGame {
			if s.state == InRoom {
				s.stopTimerLocked()
				s.setStateLocked(InGame)
				s.queueLocked(Event{Kind: EventGameStarted, Room: s.snapshotLocked()})
			}
			return
		}
		s.queueLocked(Event{Kind: EventGameEvent, Game: ev})
	case protocol.KindError:
		var f protocol.Failure
		if s.decode(env, &f) {
			s.log.Warn().Str("code", string(f.Code)).Str("reason", f.Reason).Msg("relay error")
			s.queueLocked(Event{Kind: EventError, Failure: f})
		}
	default:
		s.log.Warn().Str("kind", string(env.Kind)).Msg("unknown envelope")
	}
}

func (s *Session) decode(env protocol.Envelope, v any) bool {
	if err := env.Decode(v); err != nil {
		s.log.Warn().Err(err).Msg("malformed envelope")
		return false
	}
	return true
}

func (s *Session) createFailedLocked(f protocol.Failure) {
	pending := s.state == CreatingRoom || s.state == SearchingQuickMatch
	if f.Code == protocol.FailRoomExists && pending && s.creating != nil {
		code := s.opts.NewCode()
		s.log.Info().Str("taken", s.creating.Code).Str("code", code).Msg("room code taken, retrying")
		_ = s.requestCreateLocked(code, s.creating.Visible)
		return
	}
	if !pending {
		return
	}
	s.log.Warn().Str("reason", f.Reason).Msg("create room failed")
	s.resetRoomLocked()
	s.setStateLocked(InLobby)
	s.queueLocked(Event{Kind: EventCreateFailed, Failure: f})
}

func (s *Session) joinedLocked(room protocol.Room) {
	switch s.state {
	case CreatingRoom, JoiningRoom, SearchingQuickMatch:
	default:
		// a join that completed after we gave up on it
		s.log.Info().Str("room", room.Code).Msg("leaving stale room")
		s.room = &room
		_ = s.sendLocked(protocol.KindLeaveRoom, nil)
		return
	}
	if room.Props == nil {
		room.Props = protocol.Props{}
	}
	s.room = &room
	s.creating = nil
	s.log.Info().Str("room", room.Code).Int("actor", room.Actor).Int("players", len(room.Players)).Msg("joined room")
	s.setStateLocked(InRoom)
	s.queueLocked(Event{Kind: EventJoined, Room: s.snapshotLocked(), Count: len(room.Players)})
	if s.quick && len(room.Players) >= room.MaxPlayers {
		s.stopTimerLocked()
	}
}

func (s *Session) addPlayerLocked(p protocol.Player) {
	for i, q := range s.room.Players {
		if q.Actor == p.Actor {
			s.room.Players[i] = p
			return
		}
	}
	at := len(s.room.Players)
	for i, q := range s.room.Players {
		if q.Actor > p.Actor {
			at = i
			break
		}
	}
	s.room.Players = append(s.room.Players, protocol.Player{})
	copy(s.room.Players[at+1:], s.room.Players[at:])
	s.room.Players[at] = p
}

func (s *Session) playerLeftLocked(p protocol.Player) {
	players := s.room.Players[:0]
	for _, q := range s.room.Players {
		if q.Actor != p.Actor {
			players = append(players, q)
		}
	}
	s.room.Players = players
	count := len(players)
	s.queueLocked(Event{Kind: EventPlayerLeft, Player: p, Count: count})
	if s.state == InGame && count < 2 {
		s.log.Info().Int("players", count).Msg("not enough players, returning to lobby")
		s.queueLocked(Event{Kind: EventReturnedToLobby})
		_ = s.sendLocked(protocol.KindLeaveRoom, nil)
	}
}

func (s *Session) snapshotLocked() protocol.Room {
	room := *s.room
	room.Props = s.room.Props.Clone()
	room.Players = append([]protocol.Player(nil), s.room.Players...)
	return room
}
