package services

import (
	"context"
	"support-chat/contract"
	"support-chat/domain"
	"support-chat/runtime"

	"github.com/google/uuid"
)

// IChatService is what a transport needs from the engine, one method per inbound event.
type IChatService interface {
	Connect(userID domain.UserID, handle contract.Handle) (domain.ConnectionID, error)
	Disconnect(connID domain.ConnectionID)
	PostMessage(ctx context.Context, connID domain.ConnectionID, conversationID domain.ConversationID, payload string) (domain.Message, error)
	Ack(connID domain.ConnectionID, messageID uuid.UUID) error
	Replay(connID domain.ConnectionID, conversationID domain.ConversationID, afterSeq uint64) (int, error)
	History(connID domain.ConnectionID, conversationID domain.ConversationID, afterSeq uint64) ([]domain.Message, error)
	OpenSession(customerID domain.UserID) (domain.Session, error)
	AssignAgent(sessionID domain.ConversationID, agentID domain.UserID) (domain.Session, error)
	CloseSession(userID domain.UserID, sessionID domain.ConversationID, reason string) (domain.Session, error)
	Sessions(userID domain.UserID) []domain.Session
	CreateRoom(creatorID domain.UserID) domain.Room
	JoinRoom(roomID domain.ConversationID, userID domain.UserID) (domain.Room, error)
	LeaveRoom(roomID domain.ConversationID, userID domain.UserID) (domain.Room, error)
	Presence(userID domain.UserID) domain.PresenceStatus
}

var _ IChatService = (*ChatService)(nil)

type ChatService struct {
	orchestrator *runtime.Orchestrator
}

func NewChatService(o *runtime.Orchestrator) *ChatService {
	return &ChatService{orchestrator: o}
}

func (s *ChatService) Connect(userID domain.UserID, handle contract.Handle) (domain.ConnectionID, error) {
	return s.orchestrator.Connect(userID, handle)
}

func (s *ChatService) Disconnect(connID domain.ConnectionID) {
	s.orchestrator.Disconnect(connID)
}

func (s *ChatService) PostMessage(ctx context.Context, connID domain.ConnectionID,
	conversationID domain.ConversationID, payload string) (domain.Message, error) {
	return s.orchestrator.Message(ctx, connID, conversationID, payload)
}

func (s *ChatService) Ack(connID domain.ConnectionID, messageID uuid.UUID) error {
	return s.orchestrator.Ack(connID, messageID)
}

// Replay pushes missed messages to the connection and returns how many were queued.
func (s *ChatService) Replay(connID domain.ConnectionID, conversationID domain.ConversationID, afterSeq uint64) (int, error) {
	return s.orchestrator.ReplayTo(connID, conversationID, afterSeq)
}

// History reads stored messages, including those already out of the retention window.
func (s *ChatService) History(connID domain.ConnectionID, conversationID domain.ConversationID, afterSeq uint64) ([]domain.Message, error) {
	return s.orchestrator.History(connID, conversationID, afterSeq)
}

func (s *ChatService) OpenSession(customerID domain.UserID) (domain.Session, error) {
	return s.orchestrator.OpenSession(customerID)
}

func (s *ChatService) AssignAgent(sessionID domain.ConversationID, agentID domain.UserID) (domain.Session, error) {
	return s.orchestrator.AssignAgent(sessionID, agentID)
}

func (s *ChatService) CloseSession(userID domain.UserID, sessionID domain.ConversationID, reason string) (domain.Session, error) {
	return s.orchestrator.CloseSession(userID, sessionID, reason)
}

func (s *ChatService) Sessions(userID domain.UserID) []domain.Session {
	return s.orchestrator.SessionsOf(userID)
}

func (s *ChatService) CreateRoom(creatorID domain.UserID) domain.Room {
	return s.orchestrator.CreateRoom(creatorID)
}

func (s *ChatService) JoinRoom(roomID domain.ConversationID, userID domain.UserID) (domain.Room, error) {
	return s.orchestrator.JoinRoom(roomID, userID)
}

func (s *ChatService) LeaveRoom(roomID domain.ConversationID, userID domain.UserID) (domain.Room, error) {
	return s.orchestrator.LeaveRoom(roomID, userID)
}

func (s *ChatService) Presence(userID domain.UserID) domain.PresenceStatus {
	return s.orchestrator.Presence(userID)
}
