package core

import "encoding/json"

const (
	// MessagePresence tags ephemeral presence envelopes (cursor, name, tool).
	MessagePresence = "presence"

	// MessageUpdate tags document update envelopes ingested by the engine.
	MessageUpdate = "update"
)

// Envelope is the framing shared by presence and document update messages.
// The room core only inspects Type; Data stays opaque except to the engine.
type Envelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}
