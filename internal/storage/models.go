package storage

import (
	"time"

	"github.com/google/uuid"
)

// Room is a live relay room. Rows exist only while the room does.
type Room struct {
	Code         string    `gorm:"primaryKey;size:6"`
	Visible      bool      `gorm:"index"`
	Open         bool      `gorm:"index"`
	QuickMatch   bool
	MaxPlayers   int
	PlayerCount  int
	MasterUserID uuid.UUID `gorm:"type:uuid"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Participants []Participant `gorm:"foreignKey:RoomCode;references:Code;constraint:OnDelete:CASCADE;"`
}

// Participant is a member currently seated in a room.
type Participant struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoomCode string    `gorm:"size:6;index;uniqueIndex:idx_room_actor"`
	UserID   uuid.UUID `gorm:"type:uuid;index"`
	Nickname string
	Actor    int `gorm:"uniqueIndex:idx_room_actor"`
	JoinedAt time.Time
}
