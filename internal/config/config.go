package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Color is a named palette entry.
type Color struct {
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

// DefaultPalette holds the six predefined piece colors.
var DefaultPalette = []Color{
	{Name: "red", Hex: "#ff3333"},
	{Name: "blue", Hex: "#3366ff"},
	{Name: "green", Hex: "#33ff4d"},
	{Name: "yellow", Hex: "#ffe633"},
	{Name: "magenta", Hex: "#ff4dff"},
	{Name: "cyan", Hex: "#33ffff"},
}

// Config holds designer-supplied constants for the relay and for participants.
type Config struct {
	Port        string
	DatabaseURL string
	LogLevel    string

	RoomCapacity      int
	QuickMatchTimeout time.Duration
	ReconnectBackoff  time.Duration
	SyncInterval      time.Duration
	RoomIdleTTL       time.Duration

	PeerRate  float64
	PeerBurst int

	Palette  []Color
	RelayURL string
}

// Default returns the configuration used when no environment overrides are present.
func Default() Config {
	return Config{
		Port:              "8080",
		LogLevel:          "info",
		RoomCapacity:      2,
		QuickMatchTimeout: 30 * time.Second,
		ReconnectBackoff:  3 * time.Second,
		SyncInterval:      100 * time.Millisecond,
		RoomIdleTTL:       24 * time.Hour,
		PeerRate:          50,
		PeerBurst:         100,
		Palette:           append([]Color(nil), DefaultPalette...),
		RelayURL:          "ws://localhost:8080/ws",
	}
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()
	get := func(k, def string) string {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			return v
		}
		return def
	}

	cfg.Port = get("PORT", cfg.Port)
	cfg.DatabaseURL = get("DATABASE_URL", "")
	cfg.LogLevel = get("LOG_LEVEL", cfg.LogLevel)
	cfg.RelayURL = get("RELAY_URL", cfg.RelayURL)

	var err error
	if cfg.RoomCapacity, err = intVar(get, "ROOM_CAPACITY", cfg.RoomCapacity); err != nil {
		return cfg, err
	}
	cfg.RoomCapacity = ClampCapacity(cfg.RoomCapacity)
	if cfg.PeerBurst, err = intVar(get, "PEER_BURST", cfg.PeerBurst); err != nil {
		return cfg, err
	}
	if v := get("PEER_RATE", ""); v != "" {
		if cfg.PeerRate, err = strconv.ParseFloat(v, 64); err != nil {
			return cfg, fmt.Errorf("PEER_RATE: %w", err)
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"QUICK_MATCH_TIMEOUT", &cfg.QuickMatchTimeout},
		{"RECONNECT_BACKOFF", &cfg.ReconnectBackoff},
		{"SYNC_INTERVAL", &cfg.SyncInterval},
		{"ROOM_IDLE_TTL", &cfg.RoomIdleTTL},
	}
	for _, d := range durations {
		v := get(d.key, "")
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if v := get("PALETTE", ""); v != "" {
		p, err := ParsePalette(v)
		if err != nil {
			return cfg, err
		}
		cfg.Palette = p
	}
	return cfg, nil
}

// ClampCapacity keeps a room capacity within the supported 2..4 players.
func ClampCapacity(n int) int {
	if n < 2 {
		return 2
	}
	if n > 4 {
		return 4
	}
	return n
}

// ParsePalette parses "name:#hex,name:#hex" into palette entries.
func ParsePalette(s string) ([]Color, error) {
	var out []Color
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, hex, ok := strings.Cut(part, ":")
		if !ok || name == "" || !strings.HasPrefix(hex, "#") {
			return nil, fmt.Errorf("PALETTE: bad entry %q", part)
		}
		out = append(out, Color{Name: name, Hex: hex})
	}
	if len(out) < 4 {
		return nil, fmt.Errorf("PALETTE: need at least 4 colors, got %d", len(out))
	}
	return out, nil
}

func intVar(get func(string, string) string, key string, def int) (int, error) {
	v := get(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
