package gateway

import (
	"encoding/json"
	"fmt"
	"support-chat/domain"
	"support-chat/errors"
	"time"

	"github.com/go-playground/validator/v10"
)

type FrameType string

// Inbound frame types.
const (
	SessionOpen   FrameType = "session.open"
	SessionAssign FrameType = "session.assign"
	SessionClose  FrameType = "session.close"
	SessionList   FrameType = "session.list"
	RoomCreate    FrameType = "room.create"
	RoomJoin      FrameType = "room.join"
	RoomLeave     FrameType = "room.leave"
	MessageSend   FrameType = "message.send"
	MessageAck    FrameType = "message.ack"
	Replay        FrameType = "replay"
	History       FrameType = "history"
	PresenceGet   FrameType = "presence.get"
)

// Outbound frame types.
const (
	TypeMessage FrameType = "message"
	TypeReply   FrameType = "reply"
	TypeError   FrameType = "error"
)

// Frame is the JSON envelope carried by every WebSocket text message.
type Frame struct {
	Type      FrameType       `json:"type" validate:"required"`
	RequestID string          `json:"request_id,omitempty" validate:"max=64"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type SessionRef struct {
	SessionID string `json:"session_id" validate:"required"`
}

type SessionClosePayload struct {
	SessionID string `json:"session_id" validate:"required"`
	Reason    string `json:"reason" validate:"max=256"`
}

type RoomRef struct {
	RoomID string `json:"room_id" validate:"required"`
}

type MessageSendPayload struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	Payload        string `json:"payload"`
}

type MessageAckPayload struct {
	MessageID string `json:"message_id" validate:"required,uuid"`
}

type ReplayPayload struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	AfterSeq       uint64 `json:"after_seq"`
}

type HistoryPayload struct {
	ConversationID string `json:"conversation_id" validate:"required"`
	AfterSeq       uint64 `json:"after_seq"`
}

type PresencePayload struct {
	UserID string `json:"user_id" validate:"required"`
}

type ErrorPayload struct {
	Code    errors.Code `json:"code"`
	Message string      `json:"message"`
}

type MessageView struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Payload        string    `json:"payload"`
	Seq            uint64    `json:"seq"`
	CreatedAt      time.Time `json:"created_at"`
}

type SessionView struct {
	ID          string     `json:"id"`
	CustomerID  string     `json:"customer_id"`
	AgentID     string     `json:"agent_id,omitempty"`
	State       string     `json:"state"`
	CreatedAt   time.Time  `json:"created_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	CloseReason string     `json:"close_reason,omitempty"`
}

type RoomView struct {
	ID        string    `json:"id"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
	Members   []string  `json:"members"`
}

type ReplayView struct {
	ConversationID string `json:"conversation_id"`
	Queued         int    `json:"queued"`
}

type HistoryView struct {
	ConversationID string        `json:"conversation_id"`
	Messages       []MessageView `json:"messages"`
}

type PresenceView struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

var validate = validator.New()

// decodePayload unmarshals and validates a frame payload.
func decodePayload[T any](frame Frame) (T, error) {
	var payload T
	if len(frame.Payload) == 0 {
		return payload, fmt.Errorf("%w: missing payload", ErrBadFrame)
	}
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		return payload, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if err := validate.Struct(payload); err != nil {
		return payload, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return payload, nil
}

func toMessageView(msg domain.Message) MessageView {
	return MessageView{
		ID:             msg.ID.String(),
		ConversationID: msg.ConversationID.String(),
		SenderID:       string(msg.SenderID),
		Payload:        msg.Payload,
		Seq:            msg.Seq,
		CreatedAt:      msg.CreatedAt,
	}
}

func toSessionView(s domain.Session) SessionView {
	return SessionView{
		ID:          s.ID.String(),
		CustomerID:  string(s.CustomerID),
		AgentID:     string(s.Agent()),
		State:       string(s.State),
		CreatedAt:   s.CreatedAt,
		ClosedAt:    s.ClosedAt,
		CloseReason: s.CloseReason,
	}
}

func toRoomView(r domain.Room) RoomView {
	members := make([]string, 0)
	for _, m := range r.Members() {
		members = append(members, string(m))
	}
	return RoomView{
		ID:        r.ID.String(),
		CreatedBy: string(r.CreatedBy),
		CreatedAt: r.CreatedAt,
		Active:    r.Active,
		Members:   members,
	}
}
