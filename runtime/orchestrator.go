// Package runtime holds the process-wide chat engine: connections, presence,
// sessions, rooms, routing and delivery.
package runtime

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"support-chat/contract"
	"support-chat/domain"
	"support-chat/errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config is the engine surface exposed to configuration.
type Config struct {
	SingleConnectionPerUser bool
	RetentionWindow         time.Duration
	MaxPayloadSize          int
	MaxSessionsPerAgent     int
	AwayAfter               time.Duration
	PushTimeout             time.Duration
}

var _ contract.ConnectionListener = (*Orchestrator)(nil)

// Orchestrator owns every engine component and the supervised workers.
// One instance lives for the whole process and is shared by every connection.
type Orchestrator struct {
	mu         sync.Mutex
	log        *slog.Logger
	supervisor contract.ISupervisor
	identity   contract.IdentityResolver
	registry   *Registry
	presence   *Presence
	sessions   *SessionManager
	rooms      *RoomManager
	tracker    *Tracker
	router     *Router
	history    contract.HistoryReader
	workers    []contract.Worker
}

func NewOrchestrator(
	log *slog.Logger,
	supervisor contract.ISupervisor,
	identity contract.IdentityResolver,
	persister contract.Persister,
	config Config,
) *Orchestrator {
	registry := NewRegistry(log, config.SingleConnectionPerUser)
	presence := NewPresence(log, config.AwayAfter)
	sessions := NewSessionManager(log, identity, config.MaxSessionsPerAgent)
	rooms := NewRoomManager(log)
	tracker := NewTracker(log, registry, config.RetentionWindow, config.PushTimeout)
	router := NewRouter(log, sessions, rooms, tracker, persister, config.MaxPayloadSize)

	o := &Orchestrator{
		log:        log,
		supervisor: supervisor,
		identity:   identity,
		registry:   registry,
		presence:   presence,
		sessions:   sessions,
		rooms:      rooms,
		tracker:    tracker,
		router:     router,
	}
	sessions.OnAssigned(o.sessionAssigned)
	registry.Subscribe(presence)
	registry.Subscribe(tracker)
	registry.Subscribe(o)
	return o
}

// sessionAssigned makes the agent a recipient of what the customer wrote while waiting.
// It may run inside a registry notification, so it only touches the conversation log.
func (o *Orchestrator) sessionAssigned(session domain.Session) {
	agentID := session.Agent()
	if agentID == "" {
		return
	}
	if backlog := o.tracker.AddRecipient(session.ID, agentID); backlog > 0 {
		o.log.Debug("Agent receives waiting backlog",
			"session_id", session.ID,
			"agent_id", agentID,
			"count", backlog)
	}
}

// UseHistory plugs durable history in. It must be called before the orchestrator is shared.
func (o *Orchestrator) UseHistory(reader contract.HistoryReader) {
	o.history = reader
}

// Add registers workers started under supervision by Start.
func (o *Orchestrator) Add(workers ...contract.Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.workers = append(o.workers, workers...)
}

// Start hands the workers to the supervisor and runs it in the background.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	o.supervisor.Add(o.workers...)
	count := len(o.workers)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers", "workers", count)
	go o.supervisor.Run(ctx)
	return nil
}

// Stop cancels supervised workers and every connection pusher.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
	o.tracker.Close()
}

// Sweep runs one retention pass over every conversation log.
func (o *Orchestrator) Sweep(now time.Time) int {
	return o.tracker.Sweep(now)
}

// Connect registers a new live connection for an authenticated user.
func (o *Orchestrator) Connect(userID domain.UserID, handle contract.Handle) (domain.ConnectionID, error) {
	return o.registry.Register(userID, handle)
}

// Disconnect is idempotent. Messages not yet pushed to the connection stay pending.
func (o *Orchestrator) Disconnect(connID domain.ConnectionID) {
	o.registry.Unregister(connID)
}

// Message submits a chat message on behalf of the connection's user.
func (o *Orchestrator) Message(ctx context.Context, connID domain.ConnectionID,
	conversationID domain.ConversationID, payload string) (domain.Message, error) {
	conn, err := o.touch(connID)
	if err != nil {
		return domain.Message{}, err
	}
	return o.router.Submit(ctx, domain.PostMessageCommand{
		ConversationID: conversationID,
		SenderID:       conn.UserID,
		Payload:        payload,
	})
}

// Ack marks a message acknowledged by the connection's user.
// An assigned agent acknowledging a customer message activates the session.
func (o *Orchestrator) Ack(connID domain.ConnectionID, messageID uuid.UUID) error {
	conn, err := o.touch(connID)
	if err != nil {
		return err
	}
	msg, err := o.tracker.Ack(conn.UserID, messageID, func(msg domain.Message) bool {
		return o.isParticipant(conn.UserID, msg.ConversationID)
	})
	if err != nil {
		return err
	}
	if msg.ConversationID.Kind() == domain.KindSession {
		o.sessions.Activate(msg.ConversationID, conn.UserID)
	}
	return nil
}

// Replay returns the retained messages after afterSeq for a current or former participant.
func (o *Orchestrator) Replay(userID domain.UserID, conversationID domain.ConversationID,
	afterSeq uint64) (iter.Seq[domain.Message], error) {
	if err := o.canRead(userID, conversationID); err != nil {
		return nil, err
	}
	return o.tracker.Messages(conversationID, afterSeq), nil
}

// ReplayTo pushes the retained messages after afterSeq to one connection,
// through the same path as live delivery. It returns how many were queued.
func (o *Orchestrator) ReplayTo(connID domain.ConnectionID, conversationID domain.ConversationID,
	afterSeq uint64) (int, error) {
	conn, err := o.touch(connID)
	if err != nil {
		return 0, err
	}
	messages, err := o.Replay(conn.UserID, conversationID, afterSeq)
	if err != nil {
		return 0, err
	}
	count := 0
	for msg := range messages {
		o.tracker.Redeliver(connID, conn.UserID, msg)
		count++
	}
	o.log.Debug("Replay queued",
		"connection_id", connID,
		"conversation_id", conversationID,
		"after_seq", afterSeq,
		"count", count)
	return count, nil
}

// History returns stored messages after afterSeq for a current or former participant.
// Without durable history it returns the retained messages.
func (o *Orchestrator) History(connID domain.ConnectionID, conversationID domain.ConversationID,
	afterSeq uint64) ([]domain.Message, error) {
	conn, err := o.touch(connID)
	if err != nil {
		return nil, err
	}
	if err := o.canRead(conn.UserID, conversationID); err != nil {
		return nil, err
	}
	if o.history == nil {
		return slices.Collect(o.tracker.Messages(conversationID, afterSeq)), nil
	}
	return o.history.History(conversationID, afterSeq)
}

func (o *Orchestrator) Receipts(messageID uuid.UUID) (map[domain.UserID]domain.Receipt, error) {
	return o.tracker.Receipts(messageID)
}

func (o *Orchestrator) OpenSession(customerID domain.UserID) (domain.Session, error) {
	return o.sessions.OpenSession(customerID)
}

func (o *Orchestrator) AssignAgent(sessionID domain.ConversationID, agentID domain.UserID) (domain.Session, error) {
	return o.sessions.AssignAgent(sessionID, agentID)
}

// CloseSession may be called by either party of the session.
func (o *Orchestrator) CloseSession(userID domain.UserID, sessionID domain.ConversationID, reason string) (domain.Session, error) {
	session, err := o.sessions.Get(sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if !session.IsParty(userID) {
		return domain.Session{}, fmt.Errorf("%w: %s in %s", errors.ErrNotAuthorized, userID, sessionID)
	}
	return o.sessions.CloseSession(sessionID, reason)
}

func (o *Orchestrator) Session(sessionID domain.ConversationID) (domain.Session, error) {
	return o.sessions.Get(sessionID)
}

func (o *Orchestrator) SessionsOf(userID domain.UserID) []domain.Session {
	return o.sessions.OpenFor(userID)
}

func (o *Orchestrator) CreateRoom(creatorID domain.UserID) domain.Room {
	return o.rooms.CreateRoom(creatorID)
}

func (o *Orchestrator) JoinRoom(roomID domain.ConversationID, userID domain.UserID) (domain.Room, error) {
	return o.rooms.Join(roomID, userID)
}

func (o *Orchestrator) LeaveRoom(roomID domain.ConversationID, userID domain.UserID) (domain.Room, error) {
	return o.rooms.Leave(roomID, userID)
}

func (o *Orchestrator) Members(roomID domain.ConversationID) ([]domain.UserID, error) {
	return o.rooms.Members(roomID)
}

func (o *Orchestrator) Presence(userID domain.UserID) domain.PresenceStatus {
	return o.presence.Status(userID)
}

// OnConnectionEvent keeps the agent pool in line with agent connections.
func (o *Orchestrator) OnConnectionEvent(evt contract.ConnectionEvent) {
	userID := evt.Connection.UserID
	switch {
	case evt.Type == contract.Connected && evt.Remaining == 1:
		role, err := o.identity.ResolveRole(userID)
		if err != nil || role != domain.RoleAgent {
			return
		}
		if err := o.sessions.AgentOnline(userID); err != nil {
			o.log.Warn("Agent could not join the pool", "agent_id", userID, "error", err)
		}
	case evt.Type == contract.Disconnected && evt.Remaining == 0:
		o.sessions.AgentOffline(userID)
	}
}

// touch resolves the connection and records inbound activity.
func (o *Orchestrator) touch(connID domain.ConnectionID) (domain.Connection, error) {
	conn, ok := o.registry.Connection(connID)
	if !ok {
		return domain.Connection{}, fmt.Errorf("%w: %s", errors.ErrUnknownConnection, connID)
	}
	o.registry.Touch(connID)
	return conn, nil
}

// isParticipant reports whether the user currently takes part in the conversation.
// It covers messages written before the user was assigned or joined.
func (o *Orchestrator) isParticipant(userID domain.UserID, conversationID domain.ConversationID) bool {
	switch conversationID.Kind() {
	case domain.KindSession:
		session, err := o.sessions.Get(conversationID)
		return err == nil && session.IsParty(userID)
	case domain.KindRoom:
		room, err := o.rooms.Get(conversationID)
		return err == nil && room.HasMember(userID)
	default:
		return false
	}
}

// canRead accepts current and former participants of a conversation.
func (o *Orchestrator) canRead(userID domain.UserID, conversationID domain.ConversationID) error {
	switch conversationID.Kind() {
	case domain.KindSession:
		session, err := o.sessions.Get(conversationID)
		if err != nil {
			return unknownConversation(conversationID)
		}
		if session.IsParty(userID) {
			return nil
		}
	case domain.KindRoom:
		room, err := o.rooms.Get(conversationID)
		if err != nil {
			return unknownConversation(conversationID)
		}
		if room.HasMember(userID) || room.WasMember(userID) {
			return nil
		}
	default:
		return unknownConversation(conversationID)
	}
	return fmt.Errorf("%w: %s in %s", errors.ErrNotAuthorized, userID, conversationID)
}
