package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"support-chat/domain"
	"support-chat/repositories"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

// Seeds a Badger directory with sample conversations so the inspectors have something to show.
func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	sessions := flag.Int("sessions", 3, "number of support sessions")
	rooms := flag.Int("rooms", 2, "number of group rooms")
	perConversation := flag.Int("messages", 10, "messages per conversation")
	flag.Parse()

	log := logs.GetLoggerFromLevel(slog.LevelInfo)
	if err := run(log, *dbPath, *sessions, *rooms, *perConversation); err != nil {
		fmt.Fprintf(os.Stderr, "gen_test_data: %v\n", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger, path string, sessions, rooms, perConversation int) error {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer db.Close()
	repository := repositories.NewMessageRepository(db, log, nil)

	start := time.Now().UTC().Add(-time.Hour)
	seed := func(kind domain.ConversationKind, authors []string) error {
		conversationID := domain.NewConversationID(kind)
		for seq := 1; seq <= perConversation; seq++ {
			author := authors[seq%len(authors)]
			err := repository.StoreMessage(repositories.DiskMessage{
				ID:             uuid.New(),
				ConversationID: conversationID.String(),
				Seq:            uint64(seq),
				Author:         author,
				Content:        fmt.Sprintf("sample message %d from %s", seq, author),
				At:             start.Add(time.Duration(seq) * time.Second),
			})
			if err != nil {
				return err
			}
		}
		log.Info("Conversation seeded", "conversation_id", conversationID, "messages", perConversation)
		return nil
	}

	for i := range sessions {
		if err := seed(domain.KindSession, []string{fmt.Sprintf("customer-%d", i), "agent-1"}); err != nil {
			return err
		}
	}
	for range rooms {
		if err := seed(domain.KindRoom, []string{"alice", "bob", "carol"}); err != nil {
			return err
		}
	}
	return nil
}
