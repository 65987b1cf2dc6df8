package domain

import (
	"strings"

	"github.com/google/uuid"
)

// ConversationID addresses either a Session or a Room. The kind is carried as a prefix
// ("session:<uuid>", "room:<uuid>") so the router can resolve it without a lookup table.
type ConversationID string

type ConversationKind string

const (
	KindSession ConversationKind = "session"
	KindRoom    ConversationKind = "room"
	KindUnknown ConversationKind = ""
)

func NewConversationID(kind ConversationKind) ConversationID {
	return ConversationID(string(kind) + ":" + uuid.NewString())
}

func (c ConversationID) Kind() ConversationKind {
	kind, _, ok := strings.Cut(string(c), ":")
	if !ok {
		return KindUnknown
	}
	switch ConversationKind(kind) {
	case KindSession:
		return KindSession
	case KindRoom:
		return KindRoom
	default:
		return KindUnknown
	}
}

func (c ConversationID) String() string {
	return string(c)
}
