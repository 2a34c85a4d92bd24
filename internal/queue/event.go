// Package queue defines message payloads exchanged over the message broker.
package queue

// TransferResolvedQueue is the durable queue carrying one event per
// terminal transfer-request transition. The request row itself is deleted
// on resolution, so this stream is the only record of resolved requests.
const TransferResolvedQueue = "transfer.resolved"

// Outcome values carried by TransferResolvedEvent.
const (
	OutcomeSettled   = "SETTLED"
	OutcomeDenied    = "DENIED"
	OutcomeRejected  = "REJECTED"
	OutcomeWithdrawn = "WITHDRAWN"
)

// TransferResolvedEvent is published whenever a transfer request reaches a
// terminal state. It contains enough information for downstream consumers
// to log, audit, or trigger analytics without querying the primary
// database.
type TransferResolvedEvent struct {
	RequestID    string `json:"request_id"`
	Requester    string `json:"requester"`
	Counterparty string `json:"counterparty"`
	Kind         string `json:"kind"`
	Quantity     uint64 `json:"quantity"`
	Outcome      string `json:"outcome"`
	ResolvedAt   string `json:"resolved_at"`
}
