package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNilStoreIsNoop(t *testing.T) {
	var s *Store
	ctx := context.Background()
	if err := s.CreateRoom(ctx, Room{Code: "ABC123"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.AddParticipant(ctx, "ABC123", uuid.New(), "p", 1, time.Now()); err != nil {
		t.Fatalf("add participant: %v", err)
	}
	if err := s.DeleteRoom(ctx, "ABC123"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.LoadRoom(ctx, "ABC123"); !errors.Is(err, ErrNoStore) {
		t.Fatalf("expected ErrNoStore from load, got %v", err)
	}
	if _, err := s.ListOpenRooms(ctx); !errors.Is(err, ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
	if stats, err := s.FetchStats(ctx); err != nil || stats.Rooms != 0 {
		t.Fatalf("stats = %+v, %v", stats, err)
	}
	if NewStore(nil) != nil {
		t.Fatalf("NewStore(nil) should be nil")
	}
}

// TestRoomDirectory runs against a real database when TEST_DATABASE_URL is set.
func TestRoomDirectory(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := New(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s := NewStore(db)
	ctx := context.Background()
	if err := s.Purge(ctx); err != nil {
		t.Fatalf("purge: %v", err)
	}

	master := uuid.New()
	if err := s.CreateRoom(ctx, Room{Code: "QM0001", Visible: true, Open: true, QuickMatch: true, MaxPlayers: 2, PlayerCount: 1, MasterUserID: master}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.AddParticipant(ctx, "QM0001", master, "host", 1, time.Now()); err != nil {
		t.Fatalf("add: %v", err)
	}
	rooms, err := s.ListOpenRooms(ctx)
	if err != nil || len(rooms) != 1 {
		t.Fatalf("list = %v, %v", rooms, err)
	}

	count := 2
	if err := s.UpdateRoom(ctx, "QM0001", RoomUpdate{PlayerCount: &count}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if rooms, _ := s.ListOpenRooms(ctx); len(rooms) != 0 {
		t.Fatalf("full room still listed")
	}
	room, err := s.LoadRoom(ctx, "QM0001")
	if err != nil || len(room.Participants) != 1 {
		t.Fatalf("load = %+v, %v", room, err)
	}
	if err := s.DeleteRoom(ctx, "QM0001"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.LoadRoom(ctx, "QM0001"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
