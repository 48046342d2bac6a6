package filesystem

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"

	"collabroom/core"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// fsStore persists one snapshot file per room id under basePath.
type fsStore struct {
	basePath string
}

// NewStore creates a new filesystem-based snapshot store.
func NewStore(basePath string) *fsStore {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		log.Fatalf("failed to create base directory: %v", err)
	}
	return &fsStore{basePath: basePath}
}

// roomPath validates the room id so it cannot escape the base directory.
func (s *fsStore) roomPath(roomID string) (string, error) {
	if roomID == "" || roomID == "." || roomID == ".." || path.Base(roomID) != roomID {
		return "", fmt.Errorf("invalid room id: must be a simple name")
	}
	return filepath.Join(s.basePath, roomID), nil
}

// Read retrieves the latest snapshot for a room. Part of the SnapshotStore interface.
func (s *fsStore) Read(ctx context.Context, roomID string) (*core.Snapshot, error) {
	filePath, err := s.roomPath(roomID)
	if err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{"room_id": roomID, "path": filePath})

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug("No snapshot file for room")
			return nil, fmt.Errorf("room %s: %w", roomID, core.ErrSnapshotNotFound)
		}
		log.WithError(err).Error("Failed to read snapshot file")
		return nil, err
	}

	log.Debug("Snapshot retrieved")
	return &core.Snapshot{Data: data}, nil
}

// Write replaces the stored snapshot for a room. The data is written to a
// temporary file and renamed into place, so a failed write leaves the
// previous snapshot intact.
func (s *fsStore) Write(ctx context.Context, roomID string, snapshot *core.Snapshot) error {
	filePath, err := s.roomPath(roomID)
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"room_id": roomID, "path": filePath})

	tmpPath := filePath + "." + ulid.Make().String() + ".tmp"
	if err := os.WriteFile(tmpPath, snapshot.Data, 0644); err != nil {
		log.WithError(err).Error("Failed to write snapshot temp file")
		return err
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		log.WithError(err).Error("Failed to replace snapshot file")
		_ = os.Remove(tmpPath)
		return err
	}

	log.WithField("data_length", len(snapshot.Data)).Debug("Snapshot saved")
	return nil
}
