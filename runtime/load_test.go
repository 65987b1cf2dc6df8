package runtime_test

import (
	"context"
	"fmt"
	"log/slog"
	"support-chat/domain"
	"support-chat/mocks"
	"support-chat/runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// countingHandle acknowledges every push by counting it.
type countingHandle struct {
	pushed atomic.Uint64
}

func (h *countingHandle) Push(context.Context, domain.Message) error {
	h.pushed.Add(1)
	return nil
}

func (h *countingHandle) Close() error { return nil }

func TestOrchestrator_LoadTest(t *testing.T) {
	if testing.Short() {
		t.Skip("load test skipped in short mode")
	}
	req := require.New(t)
	ctx := context.Background()

	ctrl := gomock.NewController(t)
	supervisor := mocks.NewMockISupervisor(ctrl)
	supervisor.EXPECT().Stop().AnyTimes()
	persister := mocks.NewMockPersister(ctrl)
	persister.EXPECT().Persist(gomock.Any()).AnyTimes()
	identity := mocks.NewMockIdentityResolver(ctrl)
	identity.EXPECT().ResolveRole(gomock.Any()).Return(domain.RoleCustomer, nil).AnyTimes()
	log := slog.New(slog.DiscardHandler)

	o := runtime.NewOrchestrator(log, supervisor, identity, persister, runtime.Config{
		RetentionWindow: time.Hour,
		MaxPayloadSize:  1024,
		PushTimeout:     time.Second,
	})
	defer o.Stop()

	numClients := 20
	messagesPerClient := 100

	// 1. One room, every client a member with one live connection
	room := o.CreateRoom("user-0")
	handles := make([]*countingHandle, numClients)
	conns := make([]domain.ConnectionID, numClients)
	for i := range numClients {
		userID := domain.UserID(fmt.Sprintf("user-%d", i))
		_, err := o.JoinRoom(room.ID, userID)
		req.NoError(err)
		handles[i] = &countingHandle{}
		conns[i], err = o.Connect(userID, handles[i])
		req.NoError(err)
	}

	// 2. Traffic
	var successCount atomic.Uint64
	var failureCount atomic.Uint64
	start := time.Now()
	var wg sync.WaitGroup
	for i := range numClients {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			for range messagesPerClient {
				if _, err := o.Message(ctx, conns[clientID], room.ID, "load test message"); err != nil {
					failureCount.Add(1)
				} else {
					successCount.Add(1)
				}
			}
		}(i)
	}
	wg.Wait()
	duration := time.Since(start)

	// 3. Every message accepted, numbered without gaps
	total := uint64(numClients * messagesPerClient)
	req.Equal(total, successCount.Load())
	req.Zero(failureCount.Load())

	messages, err := o.Replay("user-0", room.ID, 0)
	req.NoError(err)
	expected := uint64(1)
	for msg := range messages {
		req.Equal(expected, msg.Seq)
		expected++
	}
	req.Equal(total+1, expected)

	// 4. Every member gets everyone else's messages
	perMember := uint64((numClients - 1) * messagesPerClient)
	req.Eventually(func() bool {
		for _, h := range handles {
			if h.pushed.Load() != perMember {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	t.Logf("%d messages in %v (%.0f msg/sec)", total, duration, float64(total)/duration.Seconds())
}
