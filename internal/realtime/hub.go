package realtime

import (
	"sync"

	"github.com/iliyamo/community-resource-hub/internal/metrics"
)

// Handle is the hub's view of one live connection: something that can have
// an envelope queued on it and be torn down. *Conn is the production
// implementation; tests register fakes.
type Handle interface {
	deliver(env Envelope) bool
	Close()
}

// Hub is the notification router: a concurrency-safe directory from
// identity to the set of live connection handles, with targeted and global
// fan-out. Delivery is fire-and-forget — an identity with no registered
// handles simply misses the event, and nothing is queued or retried.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[Handle]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[Handle]struct{})}
}

// Register adds a handle to the identity's connection set. Registering the
// same handle twice is a no-op.
func (h *Hub) Register(identity string, handle Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.conns[identity]
	if !ok {
		set = make(map[Handle]struct{})
		h.conns[identity] = set
	}
	if _, dup := set[handle]; dup {
		return
	}
	set[handle] = struct{}{}
	metrics.WSConnections.Inc()
}

// Unregister removes a handle and closes it. Absent handles are a no-op, so
// a connection that was already dropped by a failed Send can be unregistered
// again by its read pump without effect.
func (h *Hub) Unregister(identity string, handle Handle) {
	h.mu.Lock()
	set, ok := h.conns[identity]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, present := set[handle]; !present {
		h.mu.Unlock()
		return
	}
	delete(set, handle)
	if len(set) == 0 {
		delete(h.conns, identity)
	}
	metrics.WSConnections.Dec()
	h.mu.Unlock()
	handle.Close()
}

// ConnectionCount reports the number of handles currently registered for
// the identity.
func (h *Hub) ConnectionCount(identity string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[identity])
}

// Send delivers the event to every handle registered for the identity. With
// no handles registered it is a silent no-op. A handle that cannot accept
// the envelope (dead or backed up) is unregistered, without affecting
// delivery to the identity's other handles.
func (h *Hub) Send(identity, event string, data any) {
	env := Envelope{Event: event, Data: data}
	h.mu.RLock()
	targets := make([]Handle, 0, len(h.conns[identity]))
	for handle := range h.conns[identity] {
		targets = append(targets, handle)
	}
	h.mu.RUnlock()

	for _, handle := range targets {
		if handle.deliver(env) {
			metrics.EventsDelivered.WithLabelValues(event).Inc()
		} else {
			h.Unregister(identity, handle)
		}
	}
}

// Broadcast delivers the event to every registered handle across all
// identities.
func (h *Hub) Broadcast(event string, data any) {
	env := Envelope{Event: event, Data: data}
	type target struct {
		identity string
		handle   Handle
	}
	h.mu.RLock()
	targets := make([]target, 0, len(h.conns))
	for identity, set := range h.conns {
		for handle := range set {
			targets = append(targets, target{identity, handle})
		}
	}
	h.mu.RUnlock()

	for _, t := range targets {
		if t.handle.deliver(env) {
			metrics.EventsDelivered.WithLabelValues(event).Inc()
		} else {
			h.Unregister(t.identity, t.handle)
		}
	}
}
