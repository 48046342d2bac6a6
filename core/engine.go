package core

type EngineEventKind int

const (
	// EngineDataChanged signals that the engine's document state moved past
	// the last snapshot.
	EngineDataChanged EngineEventKind = iota

	// EngineSessionRemoved signals that a session detached from the engine.
	// Remaining carries the number of sessions still attached.
	EngineSessionRemoved
)

type (
	// EngineEvent is the typed lifecycle stream a document engine emits for
	// its owning room.
	EngineEvent struct {
		Kind      EngineEventKind
		SessionID string
		Remaining int
	}

	// DocumentEngine is the opaque per-room component that maintains and
	// merges document state from per-session update streams. The room core
	// never interprets document payloads; it only routes sockets in and
	// snapshots out.
	DocumentEngine interface {
		// Connect attaches a session's socket so the engine can ingest its
		// update stream. Fails with ErrEngineClosed on a finalized engine.
		Connect(sessionID string, socket Socket) error

		// Snapshot returns a point-in-time capture of the document state.
		Snapshot() (*Snapshot, error)

		// IsClosed reports whether Close has been called.
		IsClosed() bool

		// Close finalizes the engine and closes its event stream. Idempotent.
		Close() error

		// Events exposes the engine's lifecycle stream. The channel is closed
		// by Close.
		Events() <-chan EngineEvent
	}

	// EngineFactory constructs a document engine, optionally seeded from a
	// restored snapshot.
	EngineFactory func(initial *Snapshot) (DocumentEngine, error)
)
