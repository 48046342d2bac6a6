package rooms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"collabroom/engine"
	roomcore "collabroom/rooms"
	"collabroom/stores/memory"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *roomcore.Registry) {
	t.Helper()
	registry := roomcore.NewRegistry(memory.NewStore(), engine.Factory)

	r := chi.NewRouter()
	r.Get("/api/rooms", HandleListRooms(registry))
	r.Get("/api/rooms/{roomID}/presence", HandleGetPresence(registry))
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, registry
}

func TestListRoomsEmpty(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []roomInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Empty(t, out)
}

func TestListRoomsReportsStateAndSessions(t *testing.T) {
	server, registry := newTestServer(t)

	room, err := registry.GetOrCreate(context.Background(), "board")
	require.NoError(t, err)
	room.MarkDirty()

	resp, err := http.Get(server.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out []roomInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 1)
	assert.Equal(t, "board", out[0].ID)
	assert.Equal(t, string(roomcore.StateIdle), out[0].State)
	assert.Equal(t, 0, out[0].Sessions)
	assert.True(t, out[0].Dirty)
}

func TestGetPresence(t *testing.T) {
	server, registry := newTestServer(t)

	room, err := registry.GetOrCreate(context.Background(), "board")
	require.NoError(t, err)
	room.UpdatePresence("alice", json.RawMessage(`{"cursor":[1,2]}`))

	resp, err := http.Get(server.URL + "/api/rooms/board/presence")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Contains(t, out, "alice")
	assert.JSONEq(t, `{"cursor":[1,2]}`, string(out["alice"]))
}

func TestGetPresenceUnknownRoom(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/rooms/nope/presence")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
