package rooms

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"collabroom/core"

	"github.com/sirupsen/logrus"
)

// State is the room lifecycle phase. Idle covers both a freshly created room
// awaiting its first connection and a drained room whose engine has not yet
// finalized; the closing flag distinguishes the two.
type State string

const (
	StateIdle   State = "idle"
	StateActive State = "active"
	StateClosed State = "closed"
)

// Room owns one document engine instance plus the presence map and the set of
// attached sessions for a single room identifier. All mutation of that state
// is serialized by the room's own lock; contention on one room never blocks
// another.
type Room struct {
	ID string

	engine core.DocumentEngine
	store  core.SnapshotStore
	log    *logrus.Entry

	mu       sync.Mutex
	state    State
	sockets  map[string]core.Socket
	presence map[string]json.RawMessage
	dirty    bool
	// closing is set once the engine reports zero sessions remaining; it
	// marks a drained room whose final snapshot still has to land.
	closing bool
}

func newRoom(id string, engine core.DocumentEngine, store core.SnapshotStore) *Room {
	r := &Room{
		ID:       id,
		engine:   engine,
		store:    store,
		log:      logrus.WithField("room_id", id),
		state:    StateIdle,
		sockets:  make(map[string]core.Socket),
		presence: make(map[string]json.RawMessage),
	}
	go r.consumeEvents()
	return r
}

// consumeEvents drains the engine's lifecycle stream until Close ends it.
func (r *Room) consumeEvents() {
	for ev := range r.engine.Events() {
		switch ev.Kind {
		case core.EngineDataChanged:
			r.MarkDirty()
		case core.EngineSessionRemoved:
			r.detach(ev.SessionID)
			if ev.Remaining == 0 {
				r.finalize(context.Background())
			}
		}
	}
}

// Connect attaches a session's socket to the room and its document engine.
// A session id that is already attached is rejected rather than silently
// replaced, so the previous socket is never orphaned.
func (r *Room) Connect(sessionID string, sock core.Socket) error {
	r.mu.Lock()
	if r.state == StateClosed {
		r.mu.Unlock()
		return fmt.Errorf("room %s: %w", r.ID, core.ErrRoomClosed)
	}
	if _, ok := r.sockets[sessionID]; ok {
		r.mu.Unlock()
		return fmt.Errorf("room %s: session %s: %w", r.ID, sessionID, core.ErrDuplicateSession)
	}
	r.sockets[sessionID] = sock
	r.state = StateActive
	r.closing = false
	r.mu.Unlock()

	if err := r.engine.Connect(sessionID, sock); err != nil {
		r.mu.Lock()
		delete(r.sockets, sessionID)
		if len(r.sockets) == 0 && r.state == StateActive {
			r.state = StateIdle
		}
		r.mu.Unlock()
		return fmt.Errorf("room %s: attach session %s: %w", r.ID, sessionID, err)
	}

	sock.OnMessage(func(payload []byte) {
		r.route(sessionID, payload)
	})

	r.log.WithField("session_id", sessionID).Info("session connected")
	return nil
}

// route dispatches one inbound frame from a session: presence envelopes feed
// the presence map, everything else is relayed to the session's peers. The
// engine ingests document frames through its own handler on the same socket.
func (r *Room) route(sessionID string, payload []byte) {
	var env core.Envelope
	if err := json.Unmarshal(payload, &env); err == nil && env.Type == core.MessagePresence {
		r.UpdatePresence(sessionID, env.Data)
		return
	}
	r.Broadcast(sessionID, payload)
}

// UpdatePresence stores a session's ephemeral presence payload and notifies
// every other attached session. Presence is decoupled from document
// attachment and is never snapshotted.
func (r *Room) UpdatePresence(sessionID string, data json.RawMessage) {
	r.mu.Lock()
	r.presence[sessionID] = data
	r.mu.Unlock()

	msg, err := json.Marshal(core.Envelope{
		Type:      core.MessagePresence,
		SessionID: sessionID,
		Data:      data,
	})
	if err != nil {
		r.log.WithField("session_id", sessionID).WithError(err).Error("failed to encode presence message")
		return
	}
	r.Broadcast(sessionID, msg)
}

// Presence returns the stored payload for one session.
func (r *Room) Presence(sessionID string) (json.RawMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.presence[sessionID]
	return data, ok
}

// AllPresence returns a copy of the presence map, keyed by session id.
func (r *Room) AllPresence() map[string]json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]json.RawMessage, len(r.presence))
	for id, data := range r.presence {
		out[id] = data
	}
	return out
}

// Broadcast fans a payload out to every attached session except the
// originator. A failed delivery closes that destination's socket and never
// aborts delivery to the rest. Sends happen outside the room lock; per-sender
// ordering holds because each sender's frames arrive on a single read pump.
func (r *Room) Broadcast(from string, payload []byte) {
	r.mu.Lock()
	peers := make(map[string]core.Socket, len(r.sockets))
	for id, sock := range r.sockets {
		if id != from {
			peers[id] = sock
		}
	}
	r.mu.Unlock()

	for id, sock := range peers {
		if err := sock.Send(payload); err != nil {
			r.log.WithFields(logrus.Fields{
				"session_id": id,
				"from":       from,
			}).WithError(err).Warn("delivery failed, closing session")
			_ = sock.Close()
		}
	}
}

// MarkDirty flags unpersisted document changes. Idempotent.
func (r *Room) MarkDirty() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateClosed {
		r.dirty = true
	}
}

// detach removes a session's bookkeeping after the engine reported it gone.
func (r *Room) detach(sessionID string) {
	r.mu.Lock()
	delete(r.sockets, sessionID)
	delete(r.presence, sessionID)
	if len(r.sockets) == 0 && r.state == StateActive {
		r.state = StateIdle
	}
	r.mu.Unlock()
	r.log.WithField("session_id", sessionID).Info("session detached")
}

// finalize persists the last snapshot and closes the engine once the last
// session has detached. If the write fails the room stays dirty and un-closed
// so the saver retries and completes the close on a later tick.
func (r *Room) finalize(ctx context.Context) {
	r.mu.Lock()
	if r.state == StateClosed || len(r.sockets) > 0 {
		r.mu.Unlock()
		return
	}
	r.closing = true
	r.mu.Unlock()

	if err := r.writeSnapshot(ctx); err != nil {
		r.log.WithError(err).Error("final snapshot write failed, leaving room dirty")
		return
	}
	r.close()
}

// close transitions the room to its terminal state. Idempotent. The
// attachment check shares the transition's critical section: a session that
// connected while a final save was in flight keeps the room alive, and its
// own detach drains the room again later.
func (r *Room) close() {
	r.mu.Lock()
	if r.state == StateClosed || len(r.sockets) > 0 {
		r.mu.Unlock()
		return
	}
	r.state = StateClosed
	r.mu.Unlock()

	if !r.engine.IsClosed() {
		if err := r.engine.Close(); err != nil {
			r.log.WithError(err).Warn("engine close failed")
		}
	}
	r.log.Info("room closed")
}

// writeSnapshot captures the engine state and hands it to durable storage,
// clearing the dirty flag only on success.
func (r *Room) writeSnapshot(ctx context.Context) error {
	snap, err := r.engine.Snapshot()
	if err != nil {
		r.mu.Lock()
		r.dirty = true
		r.mu.Unlock()
		return fmt.Errorf("snapshot room %s: %w", r.ID, err)
	}
	if err := r.store.Write(ctx, r.ID, snap); err != nil {
		r.mu.Lock()
		r.dirty = true
		r.mu.Unlock()
		return fmt.Errorf("persist room %s: %w", r.ID, err)
	}
	r.mu.Lock()
	r.dirty = false
	r.mu.Unlock()
	return nil
}

// Flush is the saver's per-room unit of work: persist if dirty, and complete
// a pending close once the final snapshot has landed.
func (r *Room) Flush(ctx context.Context) error {
	r.mu.Lock()
	state, dirty := r.state, r.dirty
	r.mu.Unlock()

	if state == StateClosed || !dirty {
		return nil
	}
	if err := r.writeSnapshot(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	pending := r.closing
	r.mu.Unlock()
	if pending {
		r.close()
	}
	return nil
}

// State returns the current lifecycle phase.
func (r *Room) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SessionCount returns the number of attached sessions.
func (r *Room) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sockets)
}

// Dirty reports whether the room has unpersisted changes.
func (r *Room) Dirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty
}
