package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatusStore struct {
	mu      sync.Mutex
	offline []string
}

func (f *fakeStatusStore) SetOffline(_ context.Context, username string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = append(f.offline, username)
	return nil
}

func (f *fakeStatusStore) offlineCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.offline))
	copy(out, f.offline)
	return out
}

const grace = 500 * time.Millisecond

// presenceEvents filters the watcher's received envelopes down to
// presence:changed payloads.
func presenceEvents(watcher *fakeHandle) []PresencePayload {
	var out []PresencePayload
	for _, env := range watcher.received() {
		if env.Event == EventPresenceChanged {
			out = append(out, env.Data.(PresencePayload))
		}
	}
	return out
}

func newPresenceFixture() (*Presence, *clock.Mock, *fakeStatusStore, *fakeHandle) {
	hub := NewHub()
	clk := clock.NewMock()
	store := &fakeStatusStore{}
	p := newPresence(hub, store, grace, clk)
	// An observer registered straight on the hub, outside the registry, so
	// it sees broadcasts without producing presence transitions itself.
	watcher := &fakeHandle{}
	hub.Register("watcher", watcher)
	return p, clk, store, watcher
}

func TestPresenceOnlineEmittedOncePerTransition(t *testing.T) {
	p, _, _, watcher := newPresenceFixture()

	h1 := &fakeHandle{}
	h2 := &fakeHandle{}
	p.ConnectionOpened("alice", h1)
	p.ConnectionOpened("alice", h2) // second tab: no extra event

	events := presenceEvents(watcher)
	require.Len(t, events, 1)
	assert.Equal(t, PresencePayload{Username: "alice", Status: "online"}, events[0])
	assert.True(t, p.IsOnline("alice"))
}

func TestPresenceDebounceAbsorbsReconnect(t *testing.T) {
	p, clk, store, watcher := newPresenceFixture()

	h1 := &fakeHandle{}
	p.ConnectionOpened("alice", h1)
	p.ConnectionClosed("alice", h1)

	// Reconnect inside the grace window, like a page reload.
	clk.Add(grace / 2)
	h2 := &fakeHandle{}
	p.ConnectionOpened("alice", h2)
	clk.Add(grace * 2) // the cancelled timer must not fire

	events := presenceEvents(watcher)
	require.Len(t, events, 1, "exactly one online event, zero offline events")
	assert.Equal(t, "online", events[0].Status)
	assert.True(t, p.IsOnline("alice"))
	assert.Empty(t, store.offlineCalls(), "no write-through while still online")
}

func TestPresenceOfflineAfterGrace(t *testing.T) {
	p, clk, store, watcher := newPresenceFixture()

	h1 := &fakeHandle{}
	p.ConnectionOpened("alice", h1)
	p.ConnectionClosed("alice", h1)
	clk.Add(grace)

	events := presenceEvents(watcher)
	require.Len(t, events, 2)
	assert.Equal(t, "online", events[0].Status)
	assert.Equal(t, PresencePayload{Username: "alice", Status: "offline"}, events[1])
	assert.False(t, p.IsOnline("alice"))
	assert.Equal(t, []string{"alice"}, store.offlineCalls())
}

func TestPresenceStaysOnlineWhileOtherConnectionsRemain(t *testing.T) {
	p, clk, _, watcher := newPresenceFixture()

	h1 := &fakeHandle{}
	h2 := &fakeHandle{}
	p.ConnectionOpened("alice", h1)
	p.ConnectionOpened("alice", h2)
	p.ConnectionClosed("alice", h1)
	clk.Add(grace * 2)

	events := presenceEvents(watcher)
	require.Len(t, events, 1, "no offline while a connection is still open")
	assert.True(t, p.IsOnline("alice"))
}

func TestPresenceOfflineThenOnlineEmitsAgain(t *testing.T) {
	p, clk, _, watcher := newPresenceFixture()

	h1 := &fakeHandle{}
	p.ConnectionOpened("alice", h1)
	p.ConnectionClosed("alice", h1)
	clk.Add(grace)
	h2 := &fakeHandle{}
	p.ConnectionOpened("alice", h2)

	events := presenceEvents(watcher)
	require.Len(t, events, 3)
	assert.Equal(t, "online", events[0].Status)
	assert.Equal(t, "offline", events[1].Status)
	assert.Equal(t, "online", events[2].Status)
}

func TestPresenceCloseForUnknownIdentityIsNoop(t *testing.T) {
	p, clk, store, watcher := newPresenceFixture()

	p.ConnectionClosed("nobody", &fakeHandle{})
	clk.Add(grace * 2)

	assert.Empty(t, presenceEvents(watcher))
	assert.Empty(t, store.offlineCalls())
}

func TestPresenceOnlineList(t *testing.T) {
	p, clk, _, _ := newPresenceFixture()

	a := &fakeHandle{}
	b := &fakeHandle{}
	p.ConnectionOpened("bob", b)
	p.ConnectionOpened("alice", a)
	assert.Equal(t, []string{"alice", "bob"}, p.Online())

	p.ConnectionClosed("bob", b)
	// Still online during the grace window.
	assert.Equal(t, []string{"alice", "bob"}, p.Online())
	clk.Add(grace)
	assert.Equal(t, []string{"alice"}, p.Online())
}
