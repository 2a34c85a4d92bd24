// Package realtime owns the live side of the application: the websocket
// connection registry (Hub), the presence state machine with its debounced
// offline transition (Presence), and the event envelope every push shares.
// All state in this package is in-memory and process-local; nothing here
// touches the database except the presence registry's offline write-through.
package realtime

// Event names pushed to connected clients. These strings are part of the
// client protocol and must stay stable.
const (
	EventPresenceChanged  = "presence:changed"
	EventResourceUpdated  = "resource:updated"
	EventRequestReceived  = "request:received"
	EventRequestSent      = "request:sent"
	EventRequestApproved  = "request:approved"
	EventRequestRejected  = "request:rejected"
	EventRequestDenied    = "request:denied"
	EventRequestWithdrawn = "request:withdrawn"
	EventMessageReceived  = "message:received"
)

// Envelope is the wire format for every event delivered over a websocket:
// a name identifying the event and an arbitrary JSON payload.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}
