package sink

import (
	"context"
	"fmt"
	"log/slog"
	"support-chat/contract"
	"support-chat/domain"
	"support-chat/observability"
	"support-chat/repositories"

	"github.com/samber/lo"
)

var (
	_ contract.Persister     = (*DiskSink)(nil)
	_ contract.HistoryReader = (*DiskSink)(nil)
)

// DiskSink writes accepted messages to history in the background.
// Persist never blocks: when the buffer is full the message is dropped from history
// while live delivery and replay are unaffected.
type DiskSink struct {
	repository repositories.IMessageRepository
	log        *slog.Logger
	messages   chan domain.Message
}

func NewDiskSink(repository repositories.IMessageRepository, log *slog.Logger, bufferSize int) *DiskSink {
	return &DiskSink{
		repository: repository,
		log:        log,
		messages:   make(chan domain.Message, bufferSize),
	}
}

func (d *DiskSink) Persist(msg domain.Message) {
	select {
	case d.messages <- msg:
	default:
		observability.PersistDropped.Inc()
		d.log.Warn("History buffer full, message not persisted",
			"conversation_id", msg.ConversationID,
			"seq", msg.Seq)
	}
}

// Run drains the buffer into the repository until ctx is done.
func (d *DiskSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-d.messages:
			if err := d.repository.StoreMessage(toDiskMessage(msg)); err != nil {
				d.log.Error("Failed to persist message",
					"conversation_id", msg.ConversationID,
					"seq", msg.Seq,
					"error", err)
			}
		}
	}
}

// History reads the stored messages of a conversation after afterSeq, oldest first.
// Messages still in the buffer are not visible yet.
func (d *DiskSink) History(conversationID domain.ConversationID, afterSeq uint64) ([]domain.Message, error) {
	stored, err := d.repository.GetMessages(conversationID.String(), afterSeq)
	if err != nil {
		return nil, fmt.Errorf("reading history of %s: %w", conversationID, err)
	}
	return lo.Map(stored, func(dm repositories.DiskMessage, _ int) domain.Message {
		return fromDiskMessage(conversationID, dm)
	}), nil
}

func fromDiskMessage(conversationID domain.ConversationID, dm repositories.DiskMessage) domain.Message {
	return domain.Message{
		ID:             dm.ID,
		ConversationID: conversationID,
		SenderID:       domain.UserID(dm.Author),
		Payload:        dm.Content,
		Seq:            dm.Seq,
		CreatedAt:      dm.At,
	}
}

func toDiskMessage(msg domain.Message) repositories.DiskMessage {
	return repositories.DiskMessage{
		ID:             msg.ID,
		ConversationID: msg.ConversationID.String(),
		Seq:            msg.Seq,
		Author:         string(msg.SenderID),
		Content:        msg.Payload,
		At:             msg.CreatedAt,
	}
}
