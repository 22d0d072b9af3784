package elicitation

import (
	"log/slog"
	"sync"
)

const subscriberBuffer = 16

// Hub is an in-process implementation of the tenant-scoped broadcast
// channel: a mutex-guarded set of subscriber channels per tenant. Emission
// is non-blocking; a subscriber that cannot keep up loses events rather than
// stalling the tool waiting on the elicitation.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[chan Event]struct{}
	logger *slog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[chan Event]struct{}),
		logger: logger.With("component", "elicitation_hub"),
	}
}

// Subscribe registers an observer for one tenant's events. The returned
// cancel function removes the subscription; it is safe to call twice.
func (h *Hub) Subscribe(tenantID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	set, ok := h.subs[tenantID]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subs[tenantID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[tenantID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, tenantID)
			}
		}
	}
	return ch, cancel
}

// Emit delivers the event to every subscriber of the tenant. Implements
// Broadcaster.
func (h *Hub) Emit(tenantID string, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[tenantID] {
		select {
		case ch <- event:
		default:
			h.logger.Warn("Dropping elicitation event for slow subscriber",
				slog.String("tenant", tenantID),
				slog.String("id", event.ID))
		}
	}
}

// SubscriberCount reports how many observers one tenant currently has.
func (h *Hub) SubscriberCount(tenantID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[tenantID])
}
