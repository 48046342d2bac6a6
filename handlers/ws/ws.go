package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"collabroom/core"
	"collabroom/rooms"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Origins are enforced by the CORS middleware on the router.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleRoomSocket resolves the room and session identifiers, upgrades the
// connection and hands the adapted socket to the room. Creation errors fail
// the request before the upgrade; connect errors close the socket with a
// websocket close code.
func HandleRoomSocket(registry *rooms.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomID")
		if roomID == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Room id is required"})
			return
		}

		sessionID := r.URL.Query().Get("sessionId")
		if sessionID == "" {
			sessionID = ulid.Make().String()
		}

		log := logrus.WithFields(logrus.Fields{
			"room_id":    roomID,
			"session_id": sessionID,
		})

		room, err := registry.GetOrCreate(r.Context(), roomID)
		if err != nil {
			log.WithError(err).Error("Failed to open room")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to open room"})
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Warn("WebSocket upgrade failed")
			return
		}

		sock := NewConn(conn)
		if err := connectSession(r.Context(), registry, room, sessionID, sock); err != nil {
			code := websocket.CloseInternalServerErr
			if errors.Is(err, core.ErrDuplicateSession) || errors.Is(err, core.ErrRoomClosed) {
				code = websocket.ClosePolicyViolation
			}
			log.WithError(err).Warn("Rejecting session")
			msg := websocket.FormatCloseMessage(code, err.Error())
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			_ = sock.Close()
			return
		}

		sock.ReadPump()
	}
}

// connectSession attaches the socket to the resolved room. A room can
// finalize between resolution and attach; the registry replaces Closed
// entries, so one retry against a fresh room absorbs that race instead of
// surfacing it to the client.
func connectSession(ctx context.Context, registry *rooms.Registry, room *rooms.Room, sessionID string, sock core.Socket) error {
	err := room.Connect(sessionID, sock)
	if err == nil || !errors.Is(err, core.ErrRoomClosed) {
		return err
	}
	fresh, err := registry.GetOrCreate(ctx, room.ID)
	if err != nil {
		return err
	}
	return fresh.Connect(sessionID, sock)
}
