// Package events fans out record changes to live views of an event.
package events

import (
	"sync"
	"time"
)

// Kind names the record family that changed.
type Kind string

const (
	KindRegistration Kind = "registration"
	KindChildCare    Kind = "child-care"
	KindCourse       Kind = "course"
	KindRooms        Kind = "rooms"
)

type Change struct {
	Kind     Kind      `json:"kind"`
	EventID  string    `json:"eventId"`
	RecordID string    `json:"recordId,omitempty"`
	Action   string    `json:"action"` // created | updated | deleted
	At       time.Time `json:"at"`
}

// Publisher is what services depend on; a nil Publisher is allowed.
type Publisher interface {
	Publish(Change)
}

// Hub is an in-process pub/sub keyed by event id. Delivery is best effort: a
// subscriber whose buffer is full misses the change, and is expected to
// re-read everything on the next one it does receive.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Change]struct{}
	buf  int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Change]struct{}), buf: 16}
}

func (h *Hub) Publish(c Change) {
	if h == nil {
		return
	}
	if c.At.IsZero() {
		c.At = time.Now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[c.EventID] {
		select {
		case ch <- c:
		default:
		}
	}
}

// Subscribe returns a channel of changes for eventID and a cancel func that
// must be called to release it.
func (h *Hub) Subscribe(eventID string) (<-chan Change, func()) {
	ch := make(chan Change, h.buf)
	h.mu.Lock()
	if h.subs[eventID] == nil {
		h.subs[eventID] = make(map[chan Change]struct{})
	}
	h.subs[eventID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[eventID], ch)
			if len(h.subs[eventID]) == 0 {
				delete(h.subs, eventID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers reports the number of live subscriptions for eventID.
func (h *Hub) Subscribers(eventID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[eventID])
}

func publish(p Publisher, c Change) {
	if p != nil {
		p.Publish(c)
	}
}

// Emit publishes through p when p is non-nil.
func Emit(p Publisher, kind Kind, eventID, recordID, action string) {
	publish(p, Change{Kind: kind, EventID: eventID, RecordID: recordID, Action: action, At: time.Now()})
}
