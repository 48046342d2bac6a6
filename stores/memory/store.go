package memory

import (
	"context"
	"fmt"
	"sync"

	"collabroom/core"

	"github.com/sirupsen/logrus"
)

// memStore keeps snapshots in process memory. The default backend; state is
// lost on restart.
type memStore struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
}

// NewStore creates a new in-memory snapshot store.
func NewStore() *memStore {
	return &memStore{snapshots: make(map[string][]byte)}
}

// Read retrieves the latest snapshot for a room. Part of the SnapshotStore interface.
func (s *memStore) Read(ctx context.Context, roomID string) (*core.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.snapshots[roomID]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", roomID, core.ErrSnapshotNotFound)
	}

	out := make([]byte, len(data))
	copy(out, data)
	logrus.WithField("room_id", roomID).Debug("Snapshot retrieved")
	return &core.Snapshot{Data: out}, nil
}

// Write replaces the stored snapshot for a room. Part of the SnapshotStore interface.
func (s *memStore) Write(ctx context.Context, roomID string, snapshot *core.Snapshot) error {
	data := make([]byte, len(snapshot.Data))
	copy(data, snapshot.Data)

	s.mu.Lock()
	s.snapshots[roomID] = data
	s.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"room_id":     roomID,
		"data_length": len(data),
	}).Debug("Snapshot saved")
	return nil
}
