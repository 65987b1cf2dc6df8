//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IMessageRepository interface {
	StoreMessage(message DiskMessage) error
	GetMessages(conversationID string, afterSeq uint64) ([]DiskMessage, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

type DiskMessage struct {
	ID             uuid.UUID `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Seq            uint64    `json:"seq"`
	Author         string    `json:"author"`
	Content        string    `json:"content"`
	At             time.Time `json:"at"`
}

// MessageKey is "msg:{conversation_id}:{seq_padded}".
// The 20-digit padding keeps lexicographic order equal to sequence order,
// and writing the same seq twice overwrites instead of duplicating.
func MessageKey(conversationID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", messagePrefix(conversationID), seq))
}

func messagePrefix(conversationID string) string {
	return fmt.Sprintf("msg:%s:", conversationID)
}

// StoreMessage persists a message in BadgerDB.
func (m MessageRepository) StoreMessage(message DiskMessage) error {
	bytes, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(MessageKey(message.ConversationID, message.Seq), bytes)
	})
}

// GetMessages returns the stored messages of a conversation with seq > afterSeq, oldest first.
// It stops collecting once the configured limitMessages is reached.
func (m MessageRepository) GetMessages(conversationID string, afterSeq uint64) ([]DiskMessage, error) {
	var diskMessages []DiskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix(conversationID))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(MessageKey(conversationID, afterSeq+1)); it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(diskMessages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", *m.limitMessages))
				break
			}
			err := it.Item().Value(func(value []byte) error {
				var message DiskMessage
				if err := json.Unmarshal(value, &message); err != nil {
					return err
				}
				diskMessages = append(diskMessages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return diskMessages, err
}
