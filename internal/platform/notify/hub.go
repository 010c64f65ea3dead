package notify

import (
	"sync"
	"time"

	"microloan/go-backend/internal/domains/contracts"
)

const (
	DefaultBacklog    = 256
	subscriberBufSize = 128
)

// Hub fans out loan events to stream subscribers and keeps a bounded backlog
// so reconnecting clients can resume from a cursor.
type Hub struct {
	mu      sync.Mutex
	nextSeq int64
	limit   int
	history []contracts.NotificationEvent
	subs    map[int]chan contracts.NotificationEvent
	nextSub int
	now     func() time.Time
}

func NewHub(limit int) *Hub {
	if limit < 1 {
		limit = DefaultBacklog
	}
	return &Hub{
		limit: limit,
		subs:  make(map[int]chan contracts.NotificationEvent),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (h *Hub) Publish(method string, payload any) {
	h.publish(method, payload)
}

func (h *Hub) publish(method string, payload any) contracts.NotificationEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSeq++
	event := contracts.NotificationEvent{
		Seq:       h.nextSeq,
		Method:    method,
		Payload:   payload,
		Timestamp: h.now(),
	}
	h.history = append(h.history, event)
	if len(h.history) > h.limit {
		h.history = append([]contracts.NotificationEvent(nil), h.history[len(h.history)-h.limit:]...)
	}

	// Slow subscribers are dropped; they resume from their last cursor.
	for id, ch := range h.subs {
		select {
		case ch <- event:
		default:
			close(ch)
			delete(h.subs, id)
		}
	}
	return event
}

// Subscribe returns backlog events with Seq > cursor, a live channel, and a
// cancel func. The channel is closed on cancel, on Close, or when it falls behind.
func (h *Hub) Subscribe(cursor int64) ([]contracts.NotificationEvent, <-chan contracts.NotificationEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	replay := make([]contracts.NotificationEvent, 0)
	for _, event := range h.history {
		if event.Seq > cursor {
			replay = append(replay, event)
		}
	}

	id := h.nextSub
	h.nextSub++
	ch := make(chan contracts.NotificationEvent, subscriberBufSize)
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				close(sub)
				delete(h.subs, id)
			}
		})
	}
	return replay, ch, cancel
}

func (h *Hub) BacklogSize() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.history)
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber. The backlog is kept.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
}
