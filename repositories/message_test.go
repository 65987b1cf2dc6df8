package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *badger.DB {
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func diskMessages(conversationID string, authors ...string) []DiskMessage {
	at := time.Now().UTC().Truncate(time.Millisecond)
	var res []DiskMessage
	for i, author := range authors {
		res = append(res, DiskMessage{
			ID:             uuid.New(),
			ConversationID: conversationID,
			Seq:            uint64(i + 1),
			Author:         author,
			Content:        "this message will self destruct in 5 seconds",
			At:             at.Add(time.Duration(i) * time.Minute),
		})
	}
	return res
}

func Test_Record_Multiple_Message(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), logs.GetLoggerFromLevel(slog.LevelDebug), nil)
	messages := diskMessages("room:1", "Alice", "Bob", "Clara")

	for _, dm := range messages {
		req.NoError(repository.StoreMessage(dm))
	}

	fetched, err := repository.GetMessages("room:1", 0)
	req.NoError(err)
	req.Equal(messages, fetched)
}

func Test_Get_Messages_After_Seq(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), logs.GetLoggerFromLevel(slog.LevelDebug), nil)
	messages := diskMessages("room:1", "Alice", "Bob", "Clara")
	other := diskMessages("room:10", "Dan")

	for _, dm := range append(messages, other...) {
		req.NoError(repository.StoreMessage(dm))
	}

	// Then only the later messages of the conversation come back
	fetched, err := repository.GetMessages("room:1", 1)
	req.NoError(err)
	req.Equal(messages[1:], fetched)

	// And a conversation sharing a prefix is not mixed in
	fetched, err = repository.GetMessages("room:10", 0)
	req.NoError(err)
	req.Equal(other, fetched)
}

func Test_Record_Multiple_Message_And_Limit(t *testing.T) {
	req := require.New(t)
	limit := 2
	repository := NewMessageRepository(openDB(t), logs.GetLoggerFromLevel(slog.LevelDebug), &limit)
	messages := diskMessages("session:1", "Alice", "Bob", "Clara")

	for _, dm := range messages {
		req.NoError(repository.StoreMessage(dm))
	}

	fetched, err := repository.GetMessages("session:1", 0)
	req.NoError(err)
	req.Len(fetched, limit)
	req.Equal(uint64(1), fetched[0].Seq)
}

func Test_Store_Same_Seq_Overwrites(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), logs.GetLoggerFromLevel(slog.LevelDebug), nil)
	message := diskMessages("session:1", "Alice")[0]

	req.NoError(repository.StoreMessage(message))
	req.NoError(repository.StoreMessage(message))

	fetched, err := repository.GetMessages("session:1", 0)
	req.NoError(err)
	req.Len(fetched, 1)
}
