package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	ErrNotAuthorized        = fmt.Errorf("sender is not a participant of the conversation")
	ErrConversationClosed   = fmt.Errorf("conversation is closed")
	ErrConversationNotFound = fmt.Errorf("conversation not found")
	ErrInvalidPayload       = fmt.Errorf("invalid payload")
	ErrInvalidTransition    = fmt.Errorf("invalid session transition")
	ErrSessionAlreadyOpen   = fmt.Errorf("customer already has an open session")
	ErrSessionNotFound      = fmt.Errorf("session not found")
	ErrRoomNotFound         = fmt.Errorf("room not found")
	ErrMessageNotFound      = fmt.Errorf("message not found")
	ErrTransportClosed      = fmt.Errorf("transport closed")
	ErrDuplicateConnection  = fmt.Errorf("user already has a live connection")
	ErrUnknownConnection    = fmt.Errorf("unknown connection")
	ErrWrongRole            = fmt.Errorf("user role does not allow this operation")
	ErrInvalidToken         = fmt.Errorf("invalid token")
	ErrAgentAtCapacity      = fmt.Errorf("agent has no session capacity left")
)

// Code is the stable identifier written in error frames.
type Code string

const (
	CodeNotAuthorized        Code = "NOT_AUTHORIZED"
	CodeConversationClosed   Code = "CONVERSATION_CLOSED"
	CodeConversationNotFound Code = "CONVERSATION_NOT_FOUND"
	CodeInvalidPayload       Code = "INVALID_PAYLOAD"
	CodeInvalidTransition    Code = "INVALID_TRANSITION"
	CodeSessionAlreadyOpen   Code = "SESSION_ALREADY_OPEN"
	CodeSessionNotFound      Code = "SESSION_NOT_FOUND"
	CodeRoomNotFound         Code = "ROOM_NOT_FOUND"
	CodeMessageNotFound      Code = "MESSAGE_NOT_FOUND"
	CodeTransportClosed      Code = "TRANSPORT_CLOSED"
	CodeDuplicateConnection  Code = "DUPLICATE_CONNECTION"
	CodeWrongRole            Code = "WRONG_ROLE"
	CodeUnknownConnection    Code = "UNKNOWN_CONNECTION"
	CodeInvalidToken         Code = "INVALID_TOKEN"
	CodeAgentAtCapacity      Code = "AGENT_AT_CAPACITY"
	CodeInvalidArgument      Code = "INVALID_ARGUMENT"
	CodeRateLimited          Code = "RESOURCE_EXHAUSTED"
	CodeInternal             Code = "INTERNAL"
)

// codes is matched in order: an unknown conversation also wraps ErrNotAuthorized
// and must keep its own code.
var codes = []struct {
	err  error
	code Code
}{
	{ErrConversationNotFound, CodeConversationNotFound},
	{ErrNotAuthorized, CodeNotAuthorized},
	{ErrConversationClosed, CodeConversationClosed},
	{ErrInvalidPayload, CodeInvalidPayload},
	{ErrInvalidTransition, CodeInvalidTransition},
	{ErrSessionAlreadyOpen, CodeSessionAlreadyOpen},
	{ErrSessionNotFound, CodeSessionNotFound},
	{ErrRoomNotFound, CodeRoomNotFound},
	{ErrMessageNotFound, CodeMessageNotFound},
	{ErrTransportClosed, CodeTransportClosed},
	{ErrDuplicateConnection, CodeDuplicateConnection},
	{ErrWrongRole, CodeWrongRole},
	{ErrUnknownConnection, CodeUnknownConnection},
	{ErrInvalidToken, CodeInvalidToken},
	{ErrAgentAtCapacity, CodeAgentAtCapacity},
}

// MapToCode translates an engine error into the code sent to clients.
// Anything outside the taxonomy is reported as INTERNAL.
func MapToCode(err error) Code {
	for _, c := range codes {
		if stderrors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}
