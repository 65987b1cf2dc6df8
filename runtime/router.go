package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"support-chat/contract"
	"support-chat/domain"
	"support-chat/domain/mimetypes"
	"support-chat/errors"
	"support-chat/observability"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Router validates a submitted message, resolves its recipients and
// hands it to the tracker. Submissions to one conversation are handled
// one at a time so sequence numbers follow acceptance order.
type Router struct {
	log            *slog.Logger
	sessions       *SessionManager
	rooms          *RoomManager
	tracker        *Tracker
	persister      contract.Persister
	maxPayloadSize int
	lanes          sync.Map // domain.ConversationID -> *sync.Mutex
	now            func() time.Time
}

func NewRouter(
	log *slog.Logger,
	sessions *SessionManager,
	rooms *RoomManager,
	tracker *Tracker,
	persister contract.Persister,
	maxPayloadSize int,
) *Router {
	return &Router{
		log:            log,
		sessions:       sessions,
		rooms:          rooms,
		tracker:        tracker,
		persister:      persister,
		maxPayloadSize: maxPayloadSize,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Submit accepts a message from a participant and returns it sequenced.
// A rejected message never gets a sequence number.
func (r *Router) Submit(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}

	lane := r.lane(cmd.ConversationID)
	lane.Lock()
	defer lane.Unlock()

	recipients, err := r.recipients(cmd)
	if err == nil {
		err = r.validatePayload(cmd.Payload)
	}
	if err != nil {
		observability.MessagesRejected.WithLabelValues(string(errors.MapToCode(err))).Inc()
		r.log.Debug("Message rejected",
			"conversation_id", cmd.ConversationID,
			"sender_id", cmd.SenderID,
			"error", err)
		return domain.Message{}, err
	}

	createdAt := cmd.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}
	msg := r.tracker.Enqueue(domain.Message{
		ID:             uuid.New(),
		ConversationID: cmd.ConversationID,
		SenderID:       cmd.SenderID,
		Payload:        cmd.Payload,
		CreatedAt:      createdAt,
	}, recipients)

	// The agent's first message makes an assigned session active
	if cmd.ConversationID.Kind() == domain.KindSession {
		r.sessions.Activate(cmd.ConversationID, cmd.SenderID)
	}
	if r.persister != nil {
		r.persister.Persist(msg)
	}
	observability.MessagesSubmitted.WithLabelValues(string(cmd.ConversationID.Kind())).Inc()
	r.log.Debug("Message accepted",
		"conversation_id", msg.ConversationID,
		"seq", msg.Seq,
		"recipients", len(recipients))
	return msg, nil
}

// recipients checks the sender may write to the conversation and returns who must receive it.
func (r *Router) recipients(cmd domain.PostMessageCommand) ([]domain.UserID, error) {
	switch cmd.ConversationID.Kind() {
	case domain.KindSession:
		session, err := r.sessions.Get(cmd.ConversationID)
		if err != nil {
			return nil, unknownConversation(cmd.ConversationID)
		}
		if !session.IsParty(cmd.SenderID) {
			return nil, fmt.Errorf("%w: %s in %s", errors.ErrNotAuthorized, cmd.SenderID, cmd.ConversationID)
		}
		if !session.IsOpen() {
			return nil, fmt.Errorf("%w: %s", errors.ErrConversationClosed, cmd.ConversationID)
		}
		if counterpart, ok := session.Counterpart(cmd.SenderID); ok {
			return []domain.UserID{counterpart}, nil
		}
		return nil, nil
	case domain.KindRoom:
		room, err := r.rooms.Get(cmd.ConversationID)
		if err != nil {
			return nil, unknownConversation(cmd.ConversationID)
		}
		if !room.HasMember(cmd.SenderID) {
			return nil, fmt.Errorf("%w: %s in %s", errors.ErrNotAuthorized, cmd.SenderID, cmd.ConversationID)
		}
		if !room.Active {
			return nil, fmt.Errorf("%w: %s", errors.ErrConversationClosed, cmd.ConversationID)
		}
		return room.Others(cmd.SenderID), nil
	default:
		return nil, unknownConversation(cmd.ConversationID)
	}
}

// unknownConversation also wraps ErrNotAuthorized: nobody participates in a conversation that does not exist.
func unknownConversation(conversationID domain.ConversationID) error {
	return fmt.Errorf("%w: %w: %s", errors.ErrConversationNotFound, errors.ErrNotAuthorized, conversationID)
}

func (r *Router) validatePayload(payload string) error {
	switch {
	case payload == "":
		return fmt.Errorf("%w: empty", errors.ErrInvalidPayload)
	case r.maxPayloadSize > 0 && len(payload) > r.maxPayloadSize:
		return fmt.Errorf("%w: %d bytes exceeds %d", errors.ErrInvalidPayload, len(payload), r.maxPayloadSize)
	case !utf8.ValidString(payload):
		return fmt.Errorf("%w: not valid UTF-8", errors.ErrInvalidPayload)
	case !mimetypes.IsText([]byte(payload)):
		return fmt.Errorf("%w: binary content", errors.ErrInvalidPayload)
	}
	return nil
}

func (r *Router) lane(conversationID domain.ConversationID) *sync.Mutex {
	lane, _ := r.lanes.LoadOrStore(conversationID, &sync.Mutex{})
	return lane.(*sync.Mutex)
}
