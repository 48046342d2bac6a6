// Package engine provides the default in-process document engine: it merges
// per-element updates last-writer-wins by version and serializes the element
// map as its snapshot. Anything satisfying core.DocumentEngine can replace it.
package engine

import (
	"encoding/json"
	"fmt"
	"sync"

	"collabroom/core"
)

// Element is one versioned unit of document state. Payload stays opaque.
type Element struct {
	Version int64           `json:"version"`
	Payload json.RawMessage `json:"payload"`
}

// update is the document message body the engine understands.
type update struct {
	Elements map[string]Element `json:"elements"`
}

// eventBuffer bounds the lifecycle stream. Data-change events may be dropped
// when the buffer is full (the next update re-emits); session removals are
// never dropped.
const eventBuffer = 64

type Engine struct {
	mu       sync.Mutex
	elements map[string]Element
	sockets  map[string]core.Socket
	closed   bool

	// emitMu fences the event channel: emitters hold the read side across
	// the closed check and the send, Close holds the write side while
	// closing the channel. A send can therefore never hit a closed channel.
	emitMu sync.RWMutex
	events chan core.EngineEvent
}

// New constructs an engine, optionally seeded from a restored snapshot.
func New(initial *core.Snapshot) (*Engine, error) {
	e := &Engine{
		elements: make(map[string]Element),
		sockets:  make(map[string]core.Socket),
		events:   make(chan core.EngineEvent, eventBuffer),
	}
	if initial != nil && len(initial.Data) > 0 {
		if err := json.Unmarshal(initial.Data, &e.elements); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
	}
	return e, nil
}

// Factory adapts New to core.EngineFactory.
func Factory(initial *core.Snapshot) (core.DocumentEngine, error) {
	return New(initial)
}

// Connect attaches a session's socket and starts ingesting its update stream.
func (e *Engine) Connect(sessionID string, sock core.Socket) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return core.ErrEngineClosed
	}
	e.sockets[sessionID] = sock
	e.mu.Unlock()

	sock.OnMessage(func(payload []byte) {
		e.ingest(payload)
	})
	sock.OnClose(func() {
		e.remove(sessionID)
	})
	return nil
}

// ingest merges one inbound frame. Frames that are not update envelopes are
// ignored; presence routing belongs to the room.
func (e *Engine) ingest(payload []byte) {
	var env core.Envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Type != core.MessageUpdate {
		return
	}
	var u update
	if err := json.Unmarshal(env.Data, &u); err != nil {
		return
	}

	e.mu.Lock()
	changed := false
	for id, el := range u.Elements {
		current, ok := e.elements[id]
		if !ok || el.Version > current.Version {
			e.elements[id] = el
			changed = true
		}
	}
	e.mu.Unlock()

	if changed {
		e.emit(core.EngineEvent{Kind: core.EngineDataChanged})
	}
}

// remove drops a session and reports how many remain attached.
func (e *Engine) remove(sessionID string) {
	e.mu.Lock()
	if _, ok := e.sockets[sessionID]; !ok {
		e.mu.Unlock()
		return
	}
	delete(e.sockets, sessionID)
	remaining := len(e.sockets)
	e.mu.Unlock()

	e.emit(core.EngineEvent{
		Kind:      core.EngineSessionRemoved,
		SessionID: sessionID,
		Remaining: remaining,
	})
}

// Snapshot serializes the element map.
func (e *Engine) Snapshot() (*core.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, err := json.Marshal(e.elements)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return &core.Snapshot{Data: data}, nil
}

// Elements returns a copy of the current document state, for inspection.
func (e *Engine) Elements() map[string]Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]Element, len(e.elements))
	for id, el := range e.elements {
		out[id] = el
	}
	return out
}

func (e *Engine) IsClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Close finalizes the engine and ends the event stream. Idempotent.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	// Wait out in-flight emitters before ending the stream.
	e.emitMu.Lock()
	close(e.events)
	e.emitMu.Unlock()
	return nil
}

func (e *Engine) Events() <-chan core.EngineEvent {
	return e.events
}

// emit publishes a lifecycle event. Session removals block until delivered;
// they drive room finalization and must not be lost. Data-change events are
// best-effort when the buffer is full.
func (e *Engine) emit(ev core.EngineEvent) {
	e.emitMu.RLock()
	defer e.emitMu.RUnlock()
	if e.IsClosed() {
		return
	}
	if ev.Kind == core.EngineSessionRemoved {
		e.events <- ev
		return
	}
	select {
	case e.events <- ev:
	default:
	}
}
