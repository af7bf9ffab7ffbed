// Package client is the participant side of the relay: connection lifecycle,
// lobby, room creation, joining, quick match and game start.
package client

import (
	"context"
	"errors"

	"challasaath/internal/protocol"
)

// Errors reported by session operations. Failures leave the state unchanged.
var (
	ErrNotReady        = errors.New("not connected to the lobby")
	ErrInvalidRoomCode = errors.New("room code must be 6 characters of A-Z or 0-9")
	ErrNotAuthority    = errors.New("only the master can do that")
	ErrRoomNotFull     = errors.New("room is not full")
	ErrNotInRoom       = errors.New("not in a room")
	ErrClosed          = errors.New("session closed")
)

// Transport is a bidirectional envelope stream to the relay.
type Transport interface {
	Send(protocol.Envelope) error
	Recv() <-chan protocol.Envelope
	Done() <-chan struct{}
	Close() error
}

// Dialer opens a new transport.
type Dialer func(ctx context.Context) (Transport, error)

// State is a session lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	ConnectedIdle
	InLobby
	CreatingRoom
	JoiningRoom
	SearchingQuickMatch
	InRoom
	InGame
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case ConnectedIdle:
		return "connected"
	case InLobby:
		return "in_lobby"
	case CreatingRoom:
		return "creating_room"
	case JoiningRoom:
		return "joining_room"
	case SearchingQuickMatch:
		return "searching_quick_match"
	case InRoom:
		return "in_room"
	case InGame:
		return "in_game"
	}
	return "unknown"
}

// EventKind tags a session event.
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventJoined
	EventJoinFailed
	EventCreateFailed
	EventLeft
	EventPlayerEntered
	EventPlayerLeft
	EventMasterChanged
	EventPropsChanged
	EventGameStarted
	EventGameEvent
	EventReturnedToLobby
	EventQuickMatchTimeout
	EventError
)

var eventNames = [...]string{
	EventStateChanged:      "state_changed",
	EventJoined:            "joined",
	EventJoinFailed:        "join_failed",
	EventCreateFailed:      "create_failed",
	EventLeft:              "left",
	EventPlayerEntered:     "player_entered",
	EventPlayerLeft:        "player_left",
	EventMasterChanged:     "master_changed",
	EventPropsChanged:      "props_changed",
	EventGameStarted:       "game_started",
	EventGameEvent:         "game_event",
	EventReturnedToLobby:   "returned_to_lobby",
	EventQuickMatchTimeout: "quick_match_timeout",
	EventError:             "error",
}

func (k EventKind) String() string {
	if k < 0 || int(k) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[k]
}

// Event is delivered to the session's handler. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind    EventKind
	State   State
	Room    protocol.Room
	Player  protocol.Player
	Count   int
	Master  int
	Props   protocol.Props
	Game    protocol.Event
	Failure protocol.Failure
}

// Handler consumes session events. Calls are serialized.
type Handler func(Event)
