package model

import "time"

// TransferRequest mirrors the `transfer_requests` table. A request is
// a proposed movement of Quantity units of Kind from the counterparty's
// ledger into the requester's. Exactly one kind and one quantity per
// request, fixed at creation. Rows exist only while the request is
// pending: approval, rejection and withdrawal all delete the row, and
// the resolution is recorded on the audit queue instead.
//
// Fields:
//  ID           – primary key identifier.
//  PublicID     – UUID exposed to clients and used in API paths.
//  Requester    – username asking to receive the resource.
//  Counterparty – username asked to give the resource up.
//  Kind         – resource category being requested.
//  Quantity     – positive amount requested.
//  CreatedAt    – creation timestamp.
type TransferRequest struct {
	ID           uint64       // transfer_requests.id
	PublicID     string       // transfer_requests.public_id
	Requester    string       // transfer_requests.requester
	Counterparty string       // transfer_requests.counterparty
	Kind         ResourceKind // transfer_requests.kind
	Quantity     uint64       // transfer_requests.quantity
	CreatedAt    time.Time    // transfer_requests.created_at
}
