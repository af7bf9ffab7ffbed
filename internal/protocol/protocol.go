// Package protocol defines the JSON envelopes exchanged between participants
// and the relay.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind tags an envelope.
type Kind string

// Participant to relay.
const (
	KindHello      Kind = "hello"
	KindJoinLobby  Kind = "join_lobby"
	KindCreateRoom Kind = "create_room"
	KindJoinRoom   Kind = "join_room"
	KindJoinRandom Kind = "join_random"
	KindLeaveRoom  Kind = "leave_room"
	KindSetProps   Kind = "set_props"
	KindSetOpen    Kind = "set_open"
	KindRaise      Kind = "raise"
)

// Relay to participant.
const (
	KindWelcome          Kind = "welcome"
	KindLobbyJoined      Kind = "lobby_joined"
	KindRoomCreated      Kind = "room_created"
	KindCreateFailed     Kind = "create_failed"
	KindJoined           Kind = "joined"
	KindJoinFailed       Kind = "join_failed"
	KindJoinRandomFailed Kind = "join_random_failed"
	KindLeft             Kind = "left"
	KindPlayerEntered    Kind = "player_entered"
	KindPlayerLeft       Kind = "player_left"
	KindMasterChanged    Kind = "master_changed"
	KindPropsChanged     Kind = "props_changed"
	KindEvent            Kind = "event"
	KindError            Kind = "error"
)

// Envelope is one frame on the wire.
type Envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode wraps v as the payload of a kind-tagged envelope.
func Encode(kind Kind, v any) (Envelope, error) {
	if v == nil {
		return Envelope{Kind: kind}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", kind, err)
	}
	return Envelope{Kind: kind, Data: data}, nil
}

// MustEncode is Encode for payloads that are known to marshal.
func MustEncode(kind Kind, v any) Envelope {
	env, err := Encode(kind, v)
	if err != nil {
		panic(err)
	}
	return env
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("decode %s: empty payload", e.Kind)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", e.Kind, err)
	}
	return nil
}

// Props is a room's shared property bag. Values are opaque JSON; the relay
// replaces whole keys and never merges inside a value.
type Props map[string]json.RawMessage

// Well-known room property keys.
const (
	PropRoomCode        = "RoomCode"
	PropQuickMatch      = "QuickMatch"
	PropPlayerColors    = "playerColorIndexes"
	PropAvailableColors = "availableColorIndexes"
)

// Set stores v under key.
func (p Props) Set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("prop %s: %w", key, err)
	}
	p[key] = data
	return nil
}

// Get decodes key into v and reports whether it was present.
func (p Props) Get(key string, v any) (bool, error) {
	raw, ok := p[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("prop %s: %w", key, err)
	}
	return true, nil
}

// Clone returns a shallow copy.
func (p Props) Clone() Props {
	out := make(Props, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Target selects the receivers of a raised event.
type Target string

const (
	TargetAll    Target = "all"
	TargetOthers Target = "others"
	TargetMaster Target = "master"
)

// Hello introduces a participant.
type Hello struct {
	Nickname string `json:"nickname"`
}

// Welcome acknowledges Hello with the relay-issued identity.
type Welcome struct {
	UserID string `json:"userId"`
}

// CreateRoom asks the relay for a room with the given code as its name.
type CreateRoom struct {
	Code       string `json:"code"`
	Visible    bool   `json:"visible"`
	MaxPlayers int    `json:"maxPlayers"`
	Props      Props  `json:"props,omitempty"`
}

// JoinRoom asks to enter a room by code.
type JoinRoom struct {
	Code string `json:"code"`
}

// SetProps replaces the given keys of the room property bag.
type SetProps struct {
	Props Props `json:"props"`
}

// SetOpen toggles whether the room accepts new joiners.
type SetOpen struct {
	Open bool `json:"open"`
}

// Raise sends an application event to a receiver group.
type Raise struct {
	Target Target          `json:"target"`
	Code   string          `json:"code"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Player is a room member. Actor numbers start at 1.
type Player struct {
	Actor    int    `json:"actor"`
	Nickname string `json:"nickname"`
	UserID   string `json:"userId"`
}

// Room is a snapshot of a room as seen by a member.
type Room struct {
	Code       string   `json:"code"`
	Visible    bool     `json:"visible"`
	Open       bool     `json:"open"`
	MaxPlayers int      `json:"maxPlayers"`
	Props      Props    `json:"props"`
	Players    []Player `json:"players"`
	Master     int      `json:"master"`
	Actor      int      `json:"actor"`
}

// FailCode classifies relay failures.
type FailCode string

const (
	FailRoomExists    FailCode = "room_exists"
	FailRoomNotFound  FailCode = "room_not_found"
	FailRoomFull      FailCode = "room_full"
	FailRoomClosed    FailCode = "room_closed"
	FailNoMatch       FailCode = "no_match"
	FailAlreadyInRoom FailCode = "already_in_room"
	FailNotInRoom     FailCode = "not_in_room"
	FailNotMaster     FailCode = "not_master"
	FailRateLimited   FailCode = "rate_limited"
	FailBadRequest    FailCode = "bad_request"
)

// Failure reports why a request was refused.
type Failure struct {
	Code   FailCode `json:"code"`
	Reason string   `json:"reason"`
}

func (f Failure) Error() string { return fmt.Sprintf("%s: %s", f.Code, f.Reason) }

// PlayerRef carries a membership change.
type PlayerRef struct {
	Player Player `json:"player"`
	Count  int    `json:"count"`
}

// MasterChanged announces the new authority.
type MasterChanged struct {
	Master int `json:"master"`
}

// PropsChanged carries the keys that were replaced.
type PropsChanged struct {
	Props Props `json:"props"`
}

// Event is a raised event delivered to a receiver.
type Event struct {
	Sender int             `json:"sender"`
	Code   string          `json:"code"`
	Data   json.RawMessage `json:"data,omitempty"`
}
