// Package domain contains core concepts of the chat system.
// This file defines the one-to-one Session and its lifecycle.
package domain

import (
	"fmt"
	"time"

	"support-chat/errors"

	"github.com/samber/lo"
)

type SessionState string

const (
	Requested SessionState = "requested"
	Assigned  SessionState = "assigned"
	Active    SessionState = "active"
	Closed    SessionState = "closed"
)

// Session is a customer/agent conversation.
// Requested -> Assigned -> Active -> Closed, plus Requested -> Closed and Assigned -> Closed.
// Nothing leaves Closed.
type Session struct {
	ID          ConversationID
	CustomerID  UserID
	AgentID     *UserID
	State       SessionState
	CreatedAt   time.Time
	AssignedAt  *time.Time
	ClosedAt    *time.Time
	CloseReason string
}

func NewSession(customerID UserID, now time.Time) *Session {
	return &Session{
		ID:         NewConversationID(KindSession),
		CustomerID: customerID,
		State:      Requested,
		CreatedAt:  now,
	}
}

func (s *Session) Assign(agentID UserID, now time.Time) error {
	if s.State != Requested {
		return fmt.Errorf("%w: assign from %s", errors.ErrInvalidTransition, s.State)
	}
	s.AgentID = lo.ToPtr(agentID)
	s.AssignedAt = lo.ToPtr(now)
	s.State = Assigned
	return nil
}

// Activate is a no-op on an already active session.
func (s *Session) Activate() error {
	switch s.State {
	case Assigned:
		s.State = Active
		return nil
	case Active:
		return nil
	default:
		return fmt.Errorf("%w: activate from %s", errors.ErrInvalidTransition, s.State)
	}
}

// Close returns false when the session was already closed.
func (s *Session) Close(reason string, now time.Time) bool {
	if s.State == Closed {
		return false
	}
	s.State = Closed
	s.ClosedAt = lo.ToPtr(now)
	s.CloseReason = reason
	return true
}

func (s *Session) IsOpen() bool {
	return s.State != Closed
}

func (s *Session) IsParty(userID UserID) bool {
	return s.CustomerID == userID || (s.AgentID != nil && *s.AgentID == userID)
}

// Counterpart returns the other party of the session, if there is one yet.
func (s *Session) Counterpart(userID UserID) (UserID, bool) {
	switch {
	case s.CustomerID == userID && s.AgentID != nil:
		return *s.AgentID, true
	case s.AgentID != nil && *s.AgentID == userID:
		return s.CustomerID, true
	default:
		return "", false
	}
}

func (s *Session) Agent() UserID {
	if s.AgentID == nil {
		return ""
	}
	return *s.AgentID
}

// Snapshot copies the session so callers never share pointers with the manager.
func (s *Session) Snapshot() Session {
	cp := *s
	if s.AgentID != nil {
		cp.AgentID = lo.ToPtr(*s.AgentID)
	}
	if s.AssignedAt != nil {
		cp.AssignedAt = lo.ToPtr(*s.AssignedAt)
	}
	if s.ClosedAt != nil {
		cp.ClosedAt = lo.ToPtr(*s.ClosedAt)
	}
	return cp
}
