package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"collabroom/core"
	"collabroom/engine"
	"collabroom/rooms"
	"collabroom/stores/memory"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logrus.SetLevel(logrus.ErrorLevel)
	os.Exit(m.Run())
}

func startRoomServer(t *testing.T) (*httptest.Server, *rooms.Registry) {
	t.Helper()
	registry := rooms.NewRegistry(memory.NewStore(), engine.Factory)

	r := chi.NewRouter()
	r.Get("/rooms/{roomID}/ws", HandleRoomSocket(registry))
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, registry
}

func dialRoom(t *testing.T, server *httptest.Server, roomID, sessionID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/rooms/" + roomID + "/ws"
	if sessionID != "" {
		wsURL += "?sessionId=" + sessionID
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForSessions(t *testing.T, registry *rooms.Registry, roomID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		room, ok := registry.Lookup(roomID)
		return ok && room.SessionCount() == n
	}, 2*time.Second, 10*time.Millisecond)
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	return payload
}

func TestRoomSocketRelaysUpdatesToPeers(t *testing.T) {
	server, registry := startRoomServer(t)

	alice := dialRoom(t, server, "board", "alice")
	bob := dialRoom(t, server, "board", "bob")
	waitForSessions(t, registry, "board", 2)

	update := []byte(`{"type":"update","data":{"elements":{"el1":{"version":1,"payload":{"x":1}}}}}`)
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, update))

	got := readFrame(t, bob)
	assert.JSONEq(t, string(update), string(got))
}

func TestRoomSocketBroadcastsPresence(t *testing.T) {
	server, registry := startRoomServer(t)

	alice := dialRoom(t, server, "board", "alice")
	bob := dialRoom(t, server, "board", "bob")
	waitForSessions(t, registry, "board", 2)

	presence := []byte(`{"type":"presence","data":{"cursor":[1,2],"name":"Alice"}}`)
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, presence))

	var env core.Envelope
	require.NoError(t, json.Unmarshal(readFrame(t, bob), &env))
	assert.Equal(t, core.MessagePresence, env.Type)
	assert.Equal(t, "alice", env.SessionID)
	assert.JSONEq(t, `{"cursor":[1,2],"name":"Alice"}`, string(env.Data))

	room, ok := registry.Lookup("board")
	require.True(t, ok)
	data, ok := room.Presence("alice")
	require.True(t, ok)
	assert.JSONEq(t, `{"cursor":[1,2],"name":"Alice"}`, string(data))
}

func TestRoomSocketRejectsDuplicateSession(t *testing.T) {
	server, registry := startRoomServer(t)

	dialRoom(t, server, "board", "dup")
	require.Eventually(t, func() bool {
		room, ok := registry.Lookup("board")
		return ok && room.SessionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	second := dialRoom(t, server, "board", "dup")

	// The duplicate is closed by the server with a policy violation.
	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := second.ReadMessage()
	require.Error(t, err)
	var closeErr *websocket.CloseError
	if assert.ErrorAs(t, err, &closeErr) {
		assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
	}

	// The first connection is unaffected.
	room, ok := registry.Lookup("board")
	require.True(t, ok)
	assert.Equal(t, 1, room.SessionCount())
}

func TestRoomSocketGeneratesSessionIDWhenMissing(t *testing.T) {
	server, registry := startRoomServer(t)

	conn := dialRoom(t, server, "board", "")
	_ = conn

	require.Eventually(t, func() bool {
		room, ok := registry.Lookup("board")
		return ok && room.SessionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

// stubSocket is an in-process core.Socket whose close can be driven by the
// test to finalize a room.
type stubSocket struct {
	mu            sync.Mutex
	closeHandlers []func()
	closed        bool
}

func (s *stubSocket) Send([]byte) error      { return nil }
func (s *stubSocket) OnMessage(func([]byte)) {}

func (s *stubSocket) OnClose(handler func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		handler()
		return
	}
	s.closeHandlers = append(s.closeHandlers, handler)
	s.mu.Unlock()
}

func (s *stubSocket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	handlers := s.closeHandlers
	s.closeHandlers = nil
	s.mu.Unlock()
	for _, handler := range handlers {
		handler()
	}
	return nil
}

func TestConnectSessionRetriesWhenRoomFinalized(t *testing.T) {
	registry := rooms.NewRegistry(memory.NewStore(), engine.Factory)

	stale, err := registry.GetOrCreate(context.Background(), "board")
	require.NoError(t, err)

	// Drain the room so it finalizes while the caller still holds the old
	// handle, mirroring a room closing between resolution and attach.
	first := &stubSocket{}
	require.NoError(t, stale.Connect("s1", first))
	require.NoError(t, first.Close())
	require.Eventually(t, func() bool {
		return stale.State() == rooms.StateClosed
	}, 2*time.Second, 10*time.Millisecond)

	err = connectSession(context.Background(), registry, stale, "s2", &stubSocket{})
	require.NoError(t, err)

	fresh, ok := registry.Lookup("board")
	require.True(t, ok)
	assert.NotSame(t, stale, fresh)
	assert.Equal(t, 1, fresh.SessionCount())
}

func TestRoomSocketDisconnectPersistsAndClosesRoom(t *testing.T) {
	server, registry := startRoomServer(t)

	conn := dialRoom(t, server, "board", "solo")
	update := []byte(`{"type":"update","data":{"elements":{"el1":{"version":1,"payload":{"x":1}}}}}`)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, update))

	room, ok := registry.Lookup("board")
	require.True(t, ok)
	require.Eventually(t, func() bool { return room.Dirty() }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	// Last detach triggers the final snapshot and the terminal transition.
	require.Eventually(t, func() bool {
		return room.State() == rooms.StateClosed
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, room.Dirty())

	// A fresh request for the same id gets a brand-new room.
	_, ok = registry.Lookup("board")
	assert.False(t, ok)
}
