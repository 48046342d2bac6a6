package rooms

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"collabroom/core"

	"github.com/sirupsen/logrus"
)

// Registry is the process-wide map from room identifier to live Room. Room
// creation, including the potentially slow snapshot restoration read, is
// funneled through a single admission lock so a burst of concurrent first
// requests for the same id constructs exactly one document engine.
type Registry struct {
	store     core.SnapshotStore
	newEngine core.EngineFactory

	mu    sync.RWMutex
	rooms map[string]*Room

	// admit serializes restoration-then-construction. Held across the
	// storage read; never held while serving the fast path.
	admit sync.Mutex
}

func NewRegistry(store core.SnapshotStore, newEngine core.EngineFactory) *Registry {
	return &Registry{
		store:     store,
		newEngine: newEngine,
		rooms:     make(map[string]*Room),
	}
}

// GetOrCreate returns the live room for an identifier, constructing and
// registering it first if needed. A Closed entry found in the map is treated
// as absent and replaced with a fresh room. Restoration failures other than
// "no snapshot yet" surface to the caller and register nothing, so a later
// request gets a clean retry.
func (g *Registry) GetOrCreate(ctx context.Context, roomID string) (*Room, error) {
	g.mu.RLock()
	room, ok := g.rooms[roomID]
	g.mu.RUnlock()
	if ok && room.State() != StateClosed {
		return room, nil
	}

	g.admit.Lock()
	defer g.admit.Unlock()

	// Re-check: another caller may have finished admission while we waited.
	g.mu.RLock()
	room, ok = g.rooms[roomID]
	g.mu.RUnlock()
	if ok && room.State() != StateClosed {
		return room, nil
	}

	initial, err := g.store.Read(ctx, roomID)
	if err != nil {
		if !errors.Is(err, core.ErrSnapshotNotFound) {
			return nil, fmt.Errorf("restore room %s: %w", roomID, err)
		}
		initial = nil
	}

	engine, err := g.newEngine(initial)
	if err != nil {
		return nil, fmt.Errorf("construct engine for room %s: %w", roomID, err)
	}

	room = newRoom(roomID, engine, g.store)
	g.mu.Lock()
	g.rooms[roomID] = room
	g.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"room_id":  roomID,
		"restored": initial != nil,
	}).Info("room created")
	return room, nil
}

// Lookup returns a live room without creating one. Closed entries are
// invisible, matching GetOrCreate's view of the map.
func (g *Registry) Lookup(roomID string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	room, ok := g.rooms[roomID]
	if !ok || room.State() == StateClosed {
		return nil, false
	}
	return room, true
}

// Rooms returns a snapshot of all registered rooms, Closed ones included, for
// the saver's scan.
func (g *Registry) Rooms() []*Room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		out = append(out, room)
	}
	return out
}

// Remove drops a room from the registry once it reached its terminal state.
// Live rooms are never evicted here.
func (g *Registry) Remove(roomID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[roomID]
	if !ok || room.State() != StateClosed {
		return
	}
	delete(g.rooms, roomID)
	logrus.WithField("room_id", roomID).Info("room removed from registry")
}
