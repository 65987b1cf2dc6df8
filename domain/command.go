package domain

import (
	"time"
)

// PostMessageCommand is a sender's intent to append a message to a conversation.
// Seq and ID are assigned by the engine, never by the client.
type PostMessageCommand struct {
	ConversationID ConversationID
	SenderID       UserID
	Payload        string
	CreatedAt      time.Time
}
