package test

import (
	"context"
	"log/slog"
	"support-chat/auth"
	"support-chat/domain"
	"support-chat/repositories"
	"support-chat/runtime"
	"support-chat/runtime/workers"
	"support-chat/sink"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

// chanHandle forwards every pushed message to a channel.
type chanHandle struct {
	messages chan domain.Message
}

func newChanHandle() *chanHandle {
	return &chanHandle{messages: make(chan domain.Message, 16)}
}

func (h *chanHandle) Push(ctx context.Context, msg domain.Message) error {
	select {
	case h.messages <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *chanHandle) Close() error { return nil }

func (h *chanHandle) next(t *testing.T) domain.Message {
	select {
	case msg := <-h.messages:
		return msg
	case <-time.After(2 * time.Second):
		require.FailNow(t, "Timeout: message has never been pushed")
		return domain.Message{}
	}
}

func Test_Scenario(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	// Reduced to 16 Mo for testing (avoid 20 Go of storage)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)

	// Given a full engine backed by Badger
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	directory := auth.NewDirectory()
	directory.Remember(domain.User{ID: "customer", Role: domain.RoleCustomer})
	directory.Remember(domain.User{ID: "agent", Role: domain.RoleAgent})

	messageRepository := repositories.NewMessageRepository(db, log, lo.ToPtr(100))
	diskSink := sink.NewDiskSink(messageRepository, log, 16)
	supervisor := workers.NewSupervisor(log, 200*time.Millisecond)
	orchestrator := runtime.NewOrchestrator(log, supervisor, directory, diskSink, runtime.Config{
		RetentionWindow:     time.Hour,
		MaxPayloadSize:      1024,
		MaxSessionsPerAgent: 1,
		PushTimeout:         time.Second,
	})
	orchestrator.UseHistory(diskSink)
	orchestrator.Add(diskSink)
	req.NoError(orchestrator.Start(ctx))

	// Clean everything at the end of the test
	t.Cleanup(func() {
		orchestrator.Stop()
		_ = db.Close()
	})

	customerHandle := newChanHandle()
	agentHandle := newChanHandle()
	customerConn, err := orchestrator.Connect("customer", customerHandle)
	req.NoError(err)
	_, err = orchestrator.Connect("agent", agentHandle)
	req.NoError(err)

	// When the customer opens a session and writes twice
	session, err := orchestrator.OpenSession("customer")
	req.NoError(err)
	req.Equal(domain.Assigned, session.State)

	for _, content := range []string{"my order is late", "order #42"} {
		_, err := orchestrator.Message(ctx, customerConn, session.ID, content)
		req.NoError(err)
	}

	// Then the agent receives both in order
	first := agentHandle.next(t)
	second := agentHandle.next(t)
	req.Equal(uint64(1), first.Seq)
	req.Equal(uint64(2), second.Seq)
	req.Equal("order #42", second.Payload)

	// And both reach the history
	req.Eventually(func() bool {
		stored, err := messageRepository.GetMessages(session.ID.String(), 0)
		return err == nil && len(stored) == 2
	}, 2*time.Second, 20*time.Millisecond)

	stored, err := messageRepository.GetMessages(session.ID.String(), 1)
	req.NoError(err)
	req.Len(stored, 1)
	req.Equal(second.ID, stored[0].ID)
	req.Equal("customer", stored[0].Author)

	// And the customer reads them back through the engine
	history, err := orchestrator.History(customerConn, session.ID, 0)
	req.NoError(err)
	req.Len(history, 2)
	req.Equal(first.ID, history[0].ID)
	req.Equal(session.ID, history[1].ConversationID)
	req.Equal(domain.UserID("customer"), history[1].SenderID)
}
