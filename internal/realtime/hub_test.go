package realtime

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHandle records delivered envelopes. With failing=true it refuses
// every delivery, imitating a dead or backed-up connection.
type fakeHandle struct {
	mu      sync.Mutex
	events  []Envelope
	failing bool
	closed  bool
}

func (f *fakeHandle) deliver(env Envelope) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return false
	}
	f.events = append(f.events, env)
	return true
}

func (f *fakeHandle) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeHandle) received() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Envelope, len(f.events))
	copy(out, f.events)
	return out
}

func TestHubTargetedDelivery(t *testing.T) {
	hub := NewHub()
	aliceTab1 := &fakeHandle{}
	aliceTab2 := &fakeHandle{}
	bob := &fakeHandle{}
	hub.Register("alice", aliceTab1)
	hub.Register("alice", aliceTab2)
	hub.Register("bob", bob)

	hub.Send("alice", EventMessageReceived, "hi")

	// Every one of alice's handles gets the event, bob gets nothing.
	require.Len(t, aliceTab1.received(), 1)
	require.Len(t, aliceTab2.received(), 1)
	assert.Equal(t, EventMessageReceived, aliceTab1.received()[0].Event)
	assert.Empty(t, bob.received())
}

func TestHubSendToOfflineIdentityIsNoop(t *testing.T) {
	hub := NewHub()
	// No handles registered: must not panic, queue or retry.
	hub.Send("ghost", EventRequestReceived, nil)
	assert.Equal(t, 0, hub.ConnectionCount("ghost"))
}

func TestHubRegisterIsIdempotent(t *testing.T) {
	hub := NewHub()
	h := &fakeHandle{}
	hub.Register("alice", h)
	hub.Register("alice", h)
	assert.Equal(t, 1, hub.ConnectionCount("alice"))

	hub.Send("alice", EventResourceUpdated, nil)
	assert.Len(t, h.received(), 1)
}

func TestHubUnregisterAbsentHandleIsNoop(t *testing.T) {
	hub := NewHub()
	h := &fakeHandle{}
	hub.Unregister("alice", h)
	assert.False(t, h.closed)

	hub.Register("alice", h)
	hub.Unregister("alice", h)
	assert.True(t, h.closed)
	assert.Equal(t, 0, hub.ConnectionCount("alice"))
	// Second unregister after removal: still a no-op.
	hub.Unregister("alice", h)
}

func TestHubFailedHandleDoesNotBlockOthers(t *testing.T) {
	hub := NewHub()
	dead := &fakeHandle{failing: true}
	live := &fakeHandle{}
	hub.Register("alice", dead)
	hub.Register("alice", live)

	hub.Send("alice", EventRequestApproved, nil)

	// The live handle still got the event and the dead one was dropped.
	require.Len(t, live.received(), 1)
	assert.True(t, dead.closed)
	assert.Equal(t, 1, hub.ConnectionCount("alice"))
}

func TestHubBroadcastReachesAllIdentities(t *testing.T) {
	hub := NewHub()
	alice := &fakeHandle{}
	bob := &fakeHandle{}
	hub.Register("alice", alice)
	hub.Register("bob", bob)

	hub.Broadcast(EventPresenceChanged, PresencePayload{Username: "carol", Status: "online"})

	require.Len(t, alice.received(), 1)
	require.Len(t, bob.received(), 1)
	assert.Equal(t, EventPresenceChanged, bob.received()[0].Event)
}
