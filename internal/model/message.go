package model

import "time"

// Message mirrors the `messages` table. Direct messages are stored
// first and then delivered live over the recipient's open sockets
// when there are any; offline recipients read them from the store
// later. Delivery is best-effort and never blocks the write.
//
// Fields:
//  ID        – primary key identifier.
//  Sender    – username of the author.
//  Recipient – username of the addressee.
//  Body      – message text.
//  CreatedAt – creation timestamp.
type Message struct {
	ID        uint64    // messages.id
	Sender    string    // messages.sender
	Recipient string    // messages.recipient
	Body      string    // messages.body
	CreatedAt time.Time // messages.created_at
}
