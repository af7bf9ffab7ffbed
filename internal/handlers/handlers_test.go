package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"challasaath/internal/client"
	"challasaath/internal/protocol"
	"challasaath/internal/relay"
	"challasaath/internal/storage"
)

func newServer(t *testing.T) (*relay.Hub, *httptest.Server) {
	t.Helper()
	hub := relay.NewHub(relay.Options{})
	srv := httptest.NewServer(NewHandler(hub, nil).Router())
	t.Cleanup(srv.Close)
	return hub, srv
}

func recv(t *testing.T, tr client.Transport, kind protocol.Kind, v any) {
	t.Helper()
	select {
	case env := <-tr.Recv():
		if env.Kind != kind {
			t.Fatalf("expected %s, got %s (%s)", kind, env.Kind, env.Data)
		}
		if v != nil {
			if err := env.Decode(v); err != nil {
				t.Fatalf("decode %s: %v", kind, err)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no %s envelope", kind)
	}
}

func TestHealth(t *testing.T) {
	hub := relay.NewHub(relay.Options{})
	w := httptest.NewRecorder()
	NewHandler(hub, nil).Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("health not ok: %v", body)
	}
}

func TestRoomsListing(t *testing.T) {
	hub := relay.NewHub(relay.Options{})
	h := NewHandler(hub, nil).Router()

	pub, priv := hub.Dial("public"), hub.Dial("private")
	_ = pub.Send(protocol.MustEncode(protocol.KindCreateRoom, protocol.CreateRoom{Code: "ROOM01", Visible: true, MaxPlayers: 2}))
	_ = priv.Send(protocol.MustEncode(protocol.KindCreateRoom, protocol.CreateRoom{Code: "HIDDEN", MaxPlayers: 2}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms", nil))
	var listing struct {
		Rooms []relay.RoomInfo `json:"rooms"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if len(listing.Rooms) != 1 || listing.Rooms[0].Code != "ROOM01" {
		t.Fatalf("expected only ROOM01, got %+v", listing.Rooms)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms/room01", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"players":1`) {
		t.Fatalf("room lookup failed: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms/NOPE00", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}
}

func TestSSEStreamsRoomState(t *testing.T) {
	hub, srv := newServer(t)
	host := hub.Dial("host")
	_ = host.Send(protocol.MustEncode(protocol.KindCreateRoom, protocol.CreateRoom{Code: "WATCH1", Visible: true, MaxPlayers: 2}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse/WATCH1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("sse: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	lines := bufio.NewScanner(resp.Body)
	frame := func() relay.RoomInfo {
		for lines.Scan() {
			line := lines.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var info relay.RoomInfo
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &info); err != nil {
				t.Fatalf("bad frame %q: %v", line, err)
			}
			if info.Code == "" {
				continue
			}
			return info
		}
		t.Fatalf("stream ended")
		return relay.RoomInfo{}
	}

	if info := frame(); info.Code != "WATCH1" || info.Players != 1 {
		t.Fatalf("unexpected initial frame %+v", info)
	}

	guest := hub.Dial("guest")
	_ = guest.Send(protocol.MustEncode(protocol.KindJoinRoom, protocol.JoinRoom{Code: "WATCH1"}))
	for {
		info := frame()
		if info.Players == 2 {
			break
		}
	}

	_ = host.Close()
	_ = guest.Close()
	for {
		if info := frame(); info.Closed {
			break
		}
	}
}

func TestSSEUnknownRoom(t *testing.T) {
	hub := relay.NewHub(relay.Options{})
	w := httptest.NewRecorder()
	NewHandler(hub, nil).Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sse/NOPE00", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", w.Code)
	}
}

func TestWebsocketRoundTrip(t *testing.T) {
	hub, srv := newServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, err := client.Websocket(url)(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer a.Close()
	b, err := client.Websocket(url)(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer b.Close()

	_ = a.Send(protocol.MustEncode(protocol.KindHello, protocol.Hello{Nickname: "alice"}))
	var welcome protocol.Welcome
	recv(t, a, protocol.KindWelcome, &welcome)
	if welcome.UserID == "" {
		t.Fatalf("welcome without user id")
	}

	_ = a.Send(protocol.MustEncode(protocol.KindCreateRoom, protocol.CreateRoom{Code: "WSROOM", MaxPlayers: 2}))
	recv(t, a, protocol.KindRoomCreated, nil)
	recv(t, a, protocol.KindJoined, nil)

	_ = b.Send(protocol.MustEncode(protocol.KindJoinRoom, protocol.JoinRoom{Code: "wsroom"}))
	var snap protocol.Room
	recv(t, b, protocol.KindJoined, &snap)
	if len(snap.Players) != 2 {
		t.Fatalf("expected 2 players, got %d", len(snap.Players))
	}
	recv(t, a, protocol.KindPlayerEntered, nil)

	_ = b.Send(protocol.MustEncode(protocol.KindRaise, protocol.Raise{Target: protocol.TargetOthers, Code: "ping"}))
	recv(t, a, protocol.KindEvent, nil)

	_ = b.Close()
	recv(t, a, protocol.KindPlayerLeft, nil)
	if n := hub.PeerCount(); n != 1 {
		t.Fatalf("expected 1 peer after close, got %d", n)
	}
}

func newDirectory(t *testing.T) *storage.Store {
	t.Helper()
	db, err := storage.New("sqlite:file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	return storage.NewStore(db)
}

func TestRoomsFromDirectory(t *testing.T) {
	store := newDirectory(t)
	ctx := context.Background()
	hub := relay.NewHub(relay.Options{})
	h := NewHandler(hub, store).Router()

	host := hub.Dial("host")
	_ = host.Send(protocol.MustEncode(protocol.KindCreateRoom, protocol.CreateRoom{Code: "DIR001", Visible: true, MaxPlayers: 3}))
	uid := uuid.New()
	if err := store.CreateRoom(ctx, storage.Room{Code: "DIR001", Visible: true, Open: true, MaxPlayers: 3, PlayerCount: 2, MasterUserID: uid}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.AddParticipant(ctx, "DIR001", uuid.New(), "guest", 2, time.Now()); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.AddParticipant(ctx, "DIR001", uid, "host", 1, time.Now()); err != nil {
		t.Fatalf("add: %v", err)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms", nil))
	var listing struct {
		Rooms []relay.RoomInfo `json:"rooms"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	// the directory row says two players, the hub only seated one
	if len(listing.Rooms) != 1 || listing.Rooms[0].Players != 2 {
		t.Fatalf("expected the directory listing, got %+v", listing.Rooms)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rooms/dir001", nil))
	var room struct {
		Seats []Seat `json:"seats"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &room); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if len(room.Seats) != 2 || room.Seats[0].Nickname != "host" || room.Seats[1].Actor != 2 {
		t.Fatalf("seats = %+v", room.Seats)
	}
}
