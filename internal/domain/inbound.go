package domain

import "time"

// InboundRequest is one captured inbound email webhook payload.
// Append-only audit log; UpdateID links the Update it produced, if any.
type InboundRequest struct {
	ID         string // uuid
	ReceivedAt time.Time
	Payload    string
	UpdateID   int64 // 0 when the payload produced no update
}
