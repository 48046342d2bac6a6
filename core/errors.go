package core

import "errors"

var (
	// ErrSnapshotNotFound is returned by SnapshotStore.Read when no snapshot
	// has been written for the room. It is the one read error that does not
	// abort room creation.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrDuplicateSession is returned by Room.Connect when the session id is
	// already attached to the room. The first connection stays untouched.
	ErrDuplicateSession = errors.New("session already connected")

	// ErrRoomClosed is returned when an operation hits a room that has
	// already been finalized. The caller should request a fresh room.
	ErrRoomClosed = errors.New("room is closed")

	// ErrEngineClosed is returned when a socket is handed to an engine that
	// has already been finalized.
	ErrEngineClosed = errors.New("document engine is closed")

	// ErrSocketClosed is returned by Socket.Send once the underlying
	// connection is no longer open.
	ErrSocketClosed = errors.New("socket is closed")
)
