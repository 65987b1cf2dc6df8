package workers

import (
	"context"
	stderrors "errors"
	"log/slog"
	"support-chat/domain"
	"support-chat/mocks"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestPusher_Delivers_In_Order(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := mocks.NewMockIRegistry(ctrl)
	connID := domain.ConnectionID("conn-1")

	var mu sync.Mutex
	var delivered []uint64
	pusher := NewPusher(log, connID, registry, func(d Delivery) {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, d.Message.Seq)
	}, time.Second)

	registry.EXPECT().Send(gomock.Any(), connID, gomock.Any()).Return(nil).Times(3)

	// Given three queued deliveries
	for seq := uint64(1); seq <= 3; seq++ {
		req.True(pusher.Enqueue(Delivery{Recipient: "u2", Message: domain.Message{Seq: seq}}))
	}

	// When the pusher runs
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = pusher.Run(ctx)
		close(done)
	}()

	// Then they are delivered in order
	req.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered) == 3
	}, time.Second, 5*time.Millisecond)
	req.Equal([]uint64{1, 2, 3}, delivered)

	// And cancelling the context ends the pusher
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("Pusher should stop with its context")
	}
}

func TestPusher_Stops_On_First_Failure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	registry := mocks.NewMockIRegistry(ctrl)
	connID := domain.ConnectionID("conn-1")
	calls := 0
	pusher := NewPusher(log, connID, registry, func(Delivery) { calls++ }, time.Second)

	registry.EXPECT().Send(gomock.Any(), connID, gomock.Any()).Return(stderrors.New("gone")).Times(1)

	pusher.Enqueue(Delivery{Recipient: "u2", Message: domain.Message{Seq: 1}})
	pusher.Enqueue(Delivery{Recipient: "u2", Message: domain.Message{Seq: 2}})

	// When
	err := pusher.Run(context.Background())

	// Then nothing was marked delivered and the outbox is closed
	req.NoError(err)
	req.Zero(calls)
	req.False(pusher.Enqueue(Delivery{Recipient: "u2", Message: domain.Message{Seq: 3}}))
}
