package realtime

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/iliyamo/community-resource-hub/internal/metrics"
)

// StatusStore persists the terminal presence transition so the offline
// status survives a process restart. The user repository implements it.
type StatusStore interface {
	SetOffline(ctx context.Context, username string, at time.Time) error
}

// PresencePayload is the data carried by a presence:changed broadcast.
type PresencePayload struct {
	Username string `json:"username"`
	Status   string `json:"status"` // "online" or "offline"
}

// identityState tracks one identity's live connections. A user is online
// while openConns > 0, and stays online through the grace window after the
// last connection closes so a page reload does not flap offline/online.
// timerGen guards against a stale grace timer firing after it was replaced:
// the callback compares its captured generation before acting.
type identityState struct {
	openConns int
	online    bool
	timer     *clock.Timer
	timerGen  uint64
}

// Presence is the presence registry. It owns the per-identity connection
// counts and the debounced offline transition, registers connections with
// the hub, and broadcasts presence:changed exactly once per transition
// between fully-offline and online. All transitions for one identity are
// linearized by a single mutex; the only blocking work (the offline
// write-through) happens after the lock is released.
type Presence struct {
	hub   *Hub
	store StatusStore
	grace time.Duration
	clk   clock.Clock

	mu     sync.Mutex
	states map[string]*identityState
}

// NewPresence builds a presence registry over the hub with the given grace
// window. store may be nil in tests; the write-through is skipped then.
func NewPresence(hub *Hub, store StatusStore, grace time.Duration) *Presence {
	return newPresence(hub, store, grace, clock.New())
}

// newPresence lets tests inject a mock clock to drive the grace timer.
func newPresence(hub *Hub, store StatusStore, grace time.Duration, clk clock.Clock) *Presence {
	return &Presence{
		hub:    hub,
		store:  store,
		grace:  grace,
		clk:    clk,
		states: make(map[string]*identityState),
	}
}

// ConnectionOpened registers the handle with the hub and counts it against
// the identity. The first connection out of a fully-offline state broadcasts
// presence:changed online; reconnecting inside the grace window cancels the
// pending offline timer and broadcasts nothing.
func (p *Presence) ConnectionOpened(identity string, handle Handle) {
	if identity == "" {
		log.Printf("presence: open with empty identity ignored")
		return
	}
	p.hub.Register(identity, handle)

	p.mu.Lock()
	st, ok := p.states[identity]
	if !ok {
		st = &identityState{}
		p.states[identity] = st
	}
	st.openConns++
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
		st.timerGen++
	}
	wentOnline := !st.online
	st.online = true
	p.mu.Unlock()

	if wentOnline {
		metrics.OnlineUsers.Inc()
		p.hub.Broadcast(EventPresenceChanged, PresencePayload{Username: identity, Status: "online"})
	}
}

// ConnectionClosed unregisters the handle and, when it was the identity's
// last open connection, arms the grace timer. The identity stays online
// until the timer fires with the count still at zero.
func (p *Presence) ConnectionClosed(identity string, handle Handle) {
	if identity == "" {
		log.Printf("presence: close with empty identity ignored")
		return
	}
	p.hub.Unregister(identity, handle)

	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.states[identity]
	if !ok || st.openConns == 0 {
		log.Printf("presence: close for %s with no open connections ignored", identity)
		return
	}
	st.openConns--
	if st.openConns > 0 {
		return
	}
	// Last connection gone: arm (or re-arm) the single offline timer.
	if st.timer != nil {
		st.timer.Stop()
	}
	st.timerGen++
	gen := st.timerGen
	st.timer = p.clk.AfterFunc(p.grace, func() {
		p.graceExpired(identity, gen)
	})
}

// graceExpired runs when an offline grace timer fires. It re-checks the
// condition under the lock rather than trusting it still holds: a reconnect
// or a newer timer invalidates this firing via the generation counter.
func (p *Presence) graceExpired(identity string, gen uint64) {
	p.mu.Lock()
	st, ok := p.states[identity]
	if !ok || st.timerGen != gen || st.openConns > 0 || !st.online {
		p.mu.Unlock()
		return
	}
	delete(p.states, identity)
	p.mu.Unlock()

	metrics.OnlineUsers.Dec()
	p.hub.Broadcast(EventPresenceChanged, PresencePayload{Username: identity, Status: "offline"})

	if p.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.store.SetOffline(ctx, identity, time.Now().UTC()); err != nil {
		log.Printf("presence: offline write-through for %s failed: %v", identity, err)
	}
}

// IsOnline reports whether the identity currently counts as online,
// including the grace window after its last connection closed.
func (p *Presence) IsOnline(identity string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	st, ok := p.states[identity]
	return ok && st.online
}

// Online returns the sorted list of identities currently online.
func (p *Presence) Online() []string {
	p.mu.Lock()
	out := make([]string, 0, len(p.states))
	for identity, st := range p.states {
		if st.online {
			out = append(out, identity)
		}
	}
	p.mu.Unlock()
	sort.Strings(out)
	return out
}
