// Package events distributes run and node state changes to live observers,
// the SSE endpoint and the watch TUI among them.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

type Type string

const (
	TypeRunStarted    Type = "run.started"
	TypeRunFinished   Type = "run.finished"
	TypeNodeStarted   Type = "node.started"
	TypeNodeFinished  Type = "node.finished"
	TypePipelineSaved Type = "pipeline.saved"
)

type Event struct {
	ID    int64           `json:"id"`
	Type  Type            `json:"type"`
	At    time.Time       `json:"at"`
	RunID string          `json:"run_id,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// Hub is an in-memory pub/sub with a small ring buffer so late subscribers
// can catch up. Slow subscribers drop events rather than block publishers.
type Hub struct {
	nextID atomic.Int64

	mu    sync.Mutex
	ring  []Event
	start int
	size  int

	subs      map[int]chan Event
	nextSubID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		ring: make([]Event, capacity),
		subs: make(map[int]chan Event),
	}
}

// Publish records and fans out an event. Data is marshalled to JSON; a
// marshal failure degrades to an empty object rather than dropping the event.
func (h *Hub) Publish(t Type, runID string, data any) {
	payload := json.RawMessage(`{}`)
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	ev := Event{
		ID:    h.nextID.Add(1),
		Type:  t,
		At:    time.Now().UTC(),
		RunID: runID,
		Data:  payload,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.pushLocked(ev)
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a listener. The returned cancel func must be called to
// release it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, 128)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// SnapshotSince returns buffered events with ID > lastID, oldest first. A
// lastID of 0 returns the whole buffer.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) pushLocked(ev Event) {
	capacity := len(h.ring)
	if h.size < capacity {
		h.ring[(h.start+h.size)%capacity] = ev
		h.size++
		return
	}
	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}
