package utils

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// RoomCodeAlphabet is the character class of room codes.
const RoomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RoomCodeLength is the fixed length of a room code.
const RoomCodeLength = 6

// RoomCode generates a random uppercase alphanumeric room code.
func RoomCode() string {
	var sb strings.Builder
	sb.Grow(RoomCodeLength)
	max := big.NewInt(int64(len(RoomCodeAlphabet)))
	for i := 0; i < RoomCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms
			n = big.NewInt(int64(i))
		}
		sb.WriteByte(RoomCodeAlphabet[n.Int64()])
	}
	return sb.String()
}

// NormalizeRoomCode uppercases s and strips every character outside [A-Z0-9].
func NormalizeRoomCode(s string) string {
	s = strings.ToUpper(s)
	var sb strings.Builder
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// ValidRoomCode reports whether s is already a canonical room code.
func ValidRoomCode(s string) bool {
	if len(s) != RoomCodeLength {
		return false
	}
	return NormalizeRoomCode(s) == s
}
