package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"challasaath/internal/logging"
	"challasaath/internal/protocol"
	"challasaath/internal/relay"
	"challasaath/internal/storage"
	"challasaath/internal/templates"
	"challasaath/pkg/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	heartbeat      = 15 * time.Second
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Hub   *relay.Hub
	Store *storage.Store

	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewHandler creates a new handler instance. store may be nil.
func NewHandler(hub *relay.Hub, store *storage.Store) *Handler {
	return &Handler{
		Hub:   hub,
		Store: store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: logging.For("http"),
	}
}

// Router wires every route. No request timeout is set since /ws and /sse are long lived.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(h.log))

	r.Get("/", h.HandlePage)
	r.Get("/health", h.HandleHealth)
	r.Get("/ws", h.HandleWS)
	r.Get("/rooms", h.HandleRooms)
	r.Get("/rooms/{code}", h.HandleRoom)
	r.Get("/stats", h.HandleStats)
	r.Get("/sse/{code}", h.HandleSSE)
	r.Get("/watch/{code}", h.HandleWatch)
	return r
}

// HandlePage serves the home page
func (h *Handler) HandlePage(w http.ResponseWriter, r *http.Request) {
	templates.WriteHomeHTML(w, templates.HomeData{
		Rooms: h.Hub.OpenRooms(),
		Stats: h.Hub.Stats(),
	})
}

// HandleWatch serves the spectator page
func (h *Handler) HandleWatch(w http.ResponseWriter, r *http.Request) {
	templates.WriteWatchHTML(w, chi.URLParam(r, "code"))
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"commit": templates.Commit(),
		"built":  templates.BuildDate(),
		"peers":  h.Hub.PeerCount(),
	})
}

// HandleRooms lists public rooms still accepting players. With a room
// directory configured the listing comes from it, otherwise from the hub.
func (h *Handler) HandleRooms(w http.ResponseWriter, r *http.Request) {
	if h.Store != nil {
		rows, err := h.Store.ListOpenRooms(r.Context())
		if err == nil {
			rooms := make([]relay.RoomInfo, 0, len(rows))
			for _, row := range rows {
				rooms = append(rooms, directoryInfo(row))
			}
			WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "rooms": rooms})
			return
		}
		h.log.Warn().Err(err).Msg("list rooms from directory")
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "rooms": h.Hub.OpenRooms()})
}

// Seat is one directory participant as served by /rooms/{code}.
type Seat struct {
	Actor    int       `json:"actor"`
	Nickname string    `json:"nickname"`
	JoinedAt time.Time `json:"joinedAt"`
}

// HandleRoom returns the public state of one room, with its seated players
// when a room directory is configured.
func (h *Handler) HandleRoom(w http.ResponseWriter, r *http.Request) {
	code := utils.NormalizeRoomCode(chi.URLParam(r, "code"))
	info, err := h.Hub.Info(code)
	if errors.Is(err, relay.ErrRoomNotFound) {
		WriteJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "room not found"})
		return
	}
	resp := map[string]any{"ok": true, "room": info}
	if h.Store != nil {
		row, err := h.Store.LoadRoom(r.Context(), code)
		switch {
		case err == nil:
			seats := make([]Seat, 0, len(row.Participants))
			for _, p := range row.Participants {
				seats = append(seats, Seat{Actor: p.Actor, Nickname: p.Nickname, JoinedAt: p.JoinedAt})
			}
			sort.Slice(seats, func(i, j int) bool { return seats[i].Actor < seats[j].Actor })
			resp["seats"] = seats
		case !errors.Is(err, storage.ErrNotFound):
			h.log.Warn().Err(err).Str("room", code).Msg("load room from directory")
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

func directoryInfo(row storage.Room) relay.RoomInfo {
	return relay.RoomInfo{
		Kind:       "room",
		Code:       row.Code,
		Visible:    row.Visible,
		Open:       row.Open,
		QuickMatch: row.QuickMatch,
		MaxPlayers: row.MaxPlayers,
		Players:    row.PlayerCount,
		LastSeen:   row.UpdatedAt.UnixMilli(),
	}
}

// HandleStats reports live counters, plus the persisted directory when one is configured.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"ok": true, "live": h.Hub.Stats()}
	if h.Store != nil {
		st, err := h.Store.FetchStats(r.Context())
		if err != nil {
			h.log.Warn().Err(err).Msg("fetch directory stats")
		} else {
			resp["directory"] = st
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// HandleSSE streams public room state to spectators
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := make(chan []byte, 16)
	info, err := h.Hub.AddWatcher(code, ch)
	if err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	defer h.Hub.RemoveWatcher(code, ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	initial, _ := json.Marshal(info)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", initial)
	flusher.Flush()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// heartbeat
			_, _ = w.Write([]byte("data: {}\n\n"))
			flusher.Flush()
		case msg := <-ch:
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(msg)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
			var st relay.RoomInfo
			if json.Unmarshal(msg, &st) == nil && st.Closed {
				return
			}
		}
	}
}

// HandleWS upgrades to a websocket and attaches a relay peer to it
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("upgrade")
		return
	}
	p := h.Hub.Connect(r.URL.Query().Get("name"))
	log := h.log.With().Str("peer", p.ID).Str("ip", ClientIP(r)).Logger()
	log.Debug().Msg("peer connected")

	go h.writePump(ws, p)
	h.readPump(ws, p)
	log.Debug().Msg("peer disconnected")
}

func (h *Handler) readPump(ws *websocket.Conn, p *relay.Peer) {
	defer func() {
		h.Hub.Disconnect(p)
		_ = ws.Close()
	}()
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var env protocol.Envelope
		if err := ws.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("peer", p.ID).Msg("read")
			}
			return
		}
		h.Hub.Handle(p, env)
	}
}

func (h *Handler) writePump(ws *websocket.Conn, p *relay.Peer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()
	for {
		select {
		case env := <-p.Outbox():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-p.Done():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
