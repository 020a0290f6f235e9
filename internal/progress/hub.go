// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package progress fans batch events out to the WebSocket clients watching
// a session.
package progress

import (
	"sync"

	"go.uber.org/zap"

	"github.com/pdiddy/pubmed-retriever/internal/logging"
	"github.com/pdiddy/pubmed-retriever/pkg/types"
)

// DefaultQueueSize is the per-subscriber event buffer.
const DefaultQueueSize = 64

// Subscriber receives the events of one session. Events is closed when the
// subscriber is removed, either by Unsubscribe or because it fell behind.
type Subscriber struct {
	SessionID string
	events    chan types.Event
}

// Events returns the delivery channel.
func (s *Subscriber) Events() <-chan types.Event {
	return s.events
}

// Hub routes events to subscribers by session id. Delivery is best effort:
// a subscriber whose queue is full is dropped rather than waited on.
type Hub struct {
	mu        sync.Mutex
	subs      map[string]map[*Subscriber]struct{}
	queueSize int
	log       *zap.Logger

	// OnChange, when set, is called with the subscriber count after every
	// change.
	OnChange func(n int)
}

// NewHub returns a Hub with per-subscriber queues of queueSize events.
func NewHub(queueSize int, log *zap.Logger) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		subs:      make(map[string]map[*Subscriber]struct{}),
		queueSize: queueSize,
		log:       logging.OrNop(log),
	}
}

// Subscribe registers a new subscriber for sessionID. Several subscribers
// may watch one session.
func (h *Hub) Subscribe(sessionID string) *Subscriber {
	s := &Subscriber{SessionID: sessionID, events: make(chan types.Event, h.queueSize)}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[sessionID] = set
	}
	set[s] = struct{}{}
	h.changedLocked()
	return s
}

// Unsubscribe removes s. It is safe to call more than once.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

// Publish delivers e to every subscriber of sessionID. It never blocks.
func (h *Hub) Publish(sessionID string, e types.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs[sessionID] {
		select {
		case s.events <- e:
		default:
			h.log.Warn("dropping slow progress subscriber", zap.String("session", sessionID))
			h.removeLocked(s)
		}
	}
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.countLocked()
}

func (h *Hub) removeLocked(s *Subscriber) {
	set, ok := h.subs[s.SessionID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.SessionID)
	}
	close(s.events)
	h.changedLocked()
}

func (h *Hub) countLocked() int {
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

func (h *Hub) changedLocked() {
	if h.OnChange != nil {
		h.OnChange(h.countLocked())
	}
}
