// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable once sequenced; only per-recipient delivery state moves.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat event.
type Message struct {
	ID             uuid.UUID // unique identifier
	ConversationID ConversationID
	SenderID       UserID
	Payload        string
	Seq            uint64 // per conversation, gapless, starting at 1
	CreatedAt      time.Time
}

type DeliveryState string

const (
	Pending   DeliveryState = "pending"
	Delivered DeliveryState = "delivered"
	Acked     DeliveryState = "acked"
)

// rank orders states so a receipt never moves backwards.
func (d DeliveryState) rank() int {
	switch d {
	case Delivered:
		return 1
	case Acked:
		return 2
	default:
		return 0
	}
}

// Advances reports whether moving from d to next is forward progress.
func (d DeliveryState) Advances(next DeliveryState) bool {
	return next.rank() > d.rank()
}

type Receipt struct {
	UserID    UserID
	State     DeliveryState
	UpdatedAt time.Time
}
