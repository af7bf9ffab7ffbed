package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store wraps a gorm DB instance and provides the room directory.
// A nil *Store is valid and turns every write into a no-op.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new store helper from a gorm DB.
func NewStore(db *gorm.DB) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

// ErrNotFound is returned when a record is not found.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrNoStore is returned by reads on a nil store.
var ErrNoStore = errors.New("room directory disabled")

// RoomUpdate represents a partial update to a room row.
type RoomUpdate struct {
	Open         *bool
	PlayerCount  *int
	MasterUserID *uuid.UUID
}

// CreateRoom inserts a room row, leaving an existing row with the same code untouched.
func (s *Store) CreateRoom(ctx context.Context, room Room) error {
	if s == nil {
		return nil
	}
	room.Participants = nil
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&room).Error
}

// UpdateRoom applies partial updates to the room row.
func (s *Store) UpdateRoom(ctx context.Context, code string, upd RoomUpdate) error {
	if s == nil {
		return nil
	}
	updates := make(map[string]any)
	if upd.Open != nil {
		updates["open"] = *upd.Open
	}
	if upd.PlayerCount != nil {
		updates["player_count"] = *upd.PlayerCount
	}
	if upd.MasterUserID != nil {
		updates["master_user_id"] = *upd.MasterUserID
	}
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&Room{}).Where("code = ?", code).Updates(updates).Error
}

// DeleteRoom removes a room and its participants.
func (s *Store) DeleteRoom(ctx context.Context, code string) error {
	if s == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_code = ?", code).Delete(&Participant{}).Error; err != nil {
			return err
		}
		return tx.Where("code = ?", code).Delete(&Room{}).Error
	})
}

// AddParticipant upserts the participant seated at actor in the room.
func (s *Store) AddParticipant(ctx context.Context, code string, userID uuid.UUID, nickname string, actor int, joinedAt time.Time) error {
	if s == nil {
		return nil
	}
	p := Participant{
		ID:       uuid.New(),
		RoomCode: code,
		UserID:   userID,
		Nickname: nickname,
		Actor:    actor,
		JoinedAt: joinedAt,
	}
	return s.db.WithContext(ctx).
		Where("room_code = ? AND actor = ?", code, actor).
		Assign(map[string]any{
			"user_id":   userID,
			"nickname":  nickname,
			"joined_at": joinedAt,
		}).
		FirstOrCreate(&p).Error
}

// RemoveParticipant deletes the participant seated at actor.
func (s *Store) RemoveParticipant(ctx context.Context, code string, actor int) error {
	if s == nil {
		return nil
	}
	return s.db.WithContext(ctx).Where("room_code = ? AND actor = ?", code, actor).Delete(&Participant{}).Error
}

// LoadRoom fetches a room row with its participants.
func (s *Store) LoadRoom(ctx context.Context, code string) (*Room, error) {
	if s == nil {
		return nil, ErrNoStore
	}
	var room Room
	if err := s.db.WithContext(ctx).Preload("Participants").First(&room, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// ListOpenRooms returns public rooms that still accept players, oldest first.
func (s *Store) ListOpenRooms(ctx context.Context) ([]Room, error) {
	if s == nil {
		return nil, ErrNoStore
	}
	var rooms []Room
	err := s.db.WithContext(ctx).
		Where("visible = ? AND open = ? AND player_count < max_players", true, true).
		Order("created_at").
		Find(&rooms).Error
	return rooms, err
}

// Stats represents aggregate counts for the home page.
type Stats struct {
	Rooms   int64 `json:"rooms"`
	Public  int64 `json:"public"`
	Players int64 `json:"players"`
}

// FetchStats aggregates counts across live rooms.
func (s *Store) FetchStats(ctx context.Context) (Stats, error) {
	var stats Stats
	if s == nil {
		return stats, nil
	}
	if err := s.db.WithContext(ctx).Model(&Room{}).Count(&stats.Rooms).Error; err != nil {
		return stats, err
	}
	if err := s.db.WithContext(ctx).Model(&Room{}).Where("visible = ?", true).Count(&stats.Public).Error; err != nil {
		return stats, err
	}
	if err := s.db.WithContext(ctx).Model(&Participant{}).Count(&stats.Players).Error; err != nil {
		return stats, err
	}
	return stats, nil
}

// Purge removes every row, used when the relay starts since rooms never outlive the process.
func (s *Store) Purge(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Participant{}).Error; err != nil {
			return err
		}
		return tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Room{}).Error
	})
}
