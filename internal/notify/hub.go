// Package notify fans out assessment events to websocket subscribers.
package notify

import (
	"sync"
	"time"
)

// AssessmentEvent is published after every recorded observation.
type AssessmentEvent struct {
	PatientID         string    `json:"patient_id"`
	ObservationID     string    `json:"observation_id"`
	AssessmentID      string    `json:"assessment_id"`
	Score             float64   `json:"score"`
	Status            string    `json:"status"`
	DeviationFlag     bool      `json:"deviation_flag"`
	ComplicationIndex float64   `json:"complication_index"`
	CreatedAt         time.Time `json:"created_at"`
}

// Hub is a best-effort broadcast: a subscriber that cannot keep up has
// events dropped rather than blocking the publisher.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[chan AssessmentEvent]struct{}
	buffer      int
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[chan AssessmentEvent]struct{}),
		buffer:      16,
	}
}

// Subscribe registers a listener. The caller must drain the channel and
// call the returned cancel func when done.
func (h *Hub) Subscribe() (<-chan AssessmentEvent, func()) {
	ch := make(chan AssessmentEvent, h.buffer)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

func (h *Hub) Publish(event AssessmentEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
