package core

import "context"

type (
	// Snapshot is an opaque, serializable capture of a room's document state
	// at a point in time. It is produced by the document engine and only ever
	// read back when a room is constructed.
	Snapshot struct {
		Data []byte `json:"data"`
	}

	// SnapshotStore defines the durable storage consumed by the room core.
	// Snapshots are persisted as one blob per room identifier. A failed Write
	// must leave the previous snapshot intact.
	SnapshotStore interface {
		// Read returns the latest snapshot for a room, or ErrSnapshotNotFound
		// if none has ever been written.
		Read(ctx context.Context, roomID string) (*Snapshot, error)

		// Write replaces the stored snapshot for a room.
		Write(ctx context.Context, roomID string, snapshot *Snapshot) error
	}
)
