package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"collabroom/core"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

// NewStore creates a new SQLite-based snapshot store.
func NewStore(dataSourceName string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}

	tableStmt := `
	CREATE TABLE IF NOT EXISTS snapshots (
		room_id TEXT PRIMARY KEY,
		data BLOB,
		updated_at DATETIME
	);`
	if _, err = db.Exec(tableStmt); err != nil {
		log.Fatalf("failed to create snapshots table: %v", err)
	}

	return &sqliteStore{db}
}

// Read retrieves the latest snapshot for a room. Part of the SnapshotStore interface.
func (s *sqliteStore) Read(ctx context.Context, roomID string) (*core.Snapshot, error) {
	log := logrus.WithField("room_id", roomID)
	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM snapshots WHERE room_id = ?", roomID).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			log.Debug("No snapshot row for room")
			return nil, fmt.Errorf("room %s: %w", roomID, core.ErrSnapshotNotFound)
		}
		log.WithError(err).Error("Failed to retrieve snapshot")
		return nil, err
	}
	log.Debug("Snapshot retrieved")
	return &core.Snapshot{Data: data}, nil
}

// Write replaces the stored snapshot for a room. The upsert is a single
// statement, so a failure leaves the previous row intact.
func (s *sqliteStore) Write(ctx context.Context, roomID string, snapshot *core.Snapshot) error {
	log := logrus.WithFields(logrus.Fields{
		"room_id":     roomID,
		"data_length": len(snapshot.Data),
	})

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (room_id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(room_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		roomID, snapshot.Data, time.Now())
	if err != nil {
		log.WithError(err).Error("Failed to save snapshot")
		return err
	}
	log.Debug("Snapshot saved")
	return nil
}
