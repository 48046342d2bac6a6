package rooms

import (
	"net/http"

	roomcore "collabroom/rooms"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type roomInfo struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	Sessions int    `json:"sessions"`
	Dirty    bool   `json:"dirty"`
}

// HandleListRooms returns every live room with its lifecycle state, attached
// session count and dirty flag.
func HandleListRooms(registry *roomcore.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		live := registry.Rooms()
		out := make([]roomInfo, 0, len(live))
		for _, room := range live {
			out = append(out, roomInfo{
				ID:       room.ID,
				State:    string(room.State()),
				Sessions: room.SessionCount(),
				Dirty:    room.Dirty(),
			})
		}
		render.JSON(w, r, out)
	}
}

// HandleGetPresence returns the presence map of one room, keyed by session id.
func HandleGetPresence(registry *roomcore.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomID")
		if roomID == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Room id is required"})
			return
		}

		room, ok := registry.Lookup(roomID)
		if !ok {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, map[string]string{"error": "Room not found"})
			return
		}

		render.JSON(w, r, room.AllPresence())
	}
}
