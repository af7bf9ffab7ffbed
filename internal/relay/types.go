package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"challasaath/internal/protocol"
	"challasaath/internal/storage"
)

// Hub manages all live rooms and connected peers.
// Every room and peer field is guarded by Mu.
type Hub struct {
	Mu    sync.Mutex
	Rooms map[string]*Room
	peers map[string]*Peer
	store *storage.Store
	opts  Options
	jobs  chan job
	log   zerolog.Logger
}

// Options tunes a Hub. Zero values pick the defaults.
type Options struct {
	IdleTTL    time.Duration
	PeerRate   float64
	PeerBurst  int
	OutboxSize int
	Store      *storage.Store
}

// Room represents a single relay room with its members and watchers
type Room struct {
	Code       string
	Visible    bool
	Open       bool
	MaxPlayers int
	Props      protocol.Props
	Members    map[int]*Peer // actor -> peer
	Master     int
	Watchers   map[chan []byte]struct{}
	CreatedAt  time.Time
	LastSeen   time.Time
	seq        uint64
}

// Peer is one connected participant.
type Peer struct {
	ID       string
	UserID   uuid.UUID
	Nickname string

	out     chan protocol.Envelope
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter

	room     *Room
	actor    int
	joinSeq  uint64
	joinedAt time.Time
	inLobby  bool
}

// RoomInfo is the public view of a room served to listings and spectators.
type RoomInfo struct {
	Kind       string `json:"kind"`
	Code       string `json:"code"`
	Visible    bool   `json:"visible"`
	Open       bool   `json:"open"`
	QuickMatch bool   `json:"quickMatch"`
	MaxPlayers int    `json:"maxPlayers"`
	Players    int    `json:"players"`
	Watchers   int    `json:"watchers"`
	LastSeen   int64  `json:"lastSeen"`
	Closed     bool   `json:"closed,omitempty"`
}
