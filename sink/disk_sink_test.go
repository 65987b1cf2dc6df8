package sink_test

import (
	"context"
	stderrors "errors"
	"log/slog"
	"support-chat/domain"
	"support-chat/mocks"
	"support-chat/repositories"
	"support-chat/sink"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestDiskSink_Stores_Messages(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIMessageRepository(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	diskSink := sink.NewDiskSink(repository, log, 10)
	conversationID := domain.NewConversationID(domain.KindRoom)
	msg := domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       "u1",
		Payload:        "hello",
		Seq:            1,
		CreatedAt:      time.Now().UTC(),
	}
	stored := make(chan repositories.DiskMessage, 1)

	repository.EXPECT().StoreMessage(gomock.Any()).DoAndReturn(func(dm repositories.DiskMessage) error {
		stored <- dm
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = diskSink.Run(ctx) }()

	// When
	diskSink.Persist(msg)

	// Then
	select {
	case dm := <-stored:
		req.Equal(msg.ID, dm.ID)
		req.Equal(conversationID.String(), dm.ConversationID)
		req.Equal(uint64(1), dm.Seq)
		req.Equal("u1", dm.Author)
		req.Equal("hello", dm.Content)
	case <-time.After(time.Second):
		req.Fail("message not stored")
	}
}

func TestDiskSink_Persist_Never_Blocks(t *testing.T) {
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIMessageRepository(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	diskSink := sink.NewDiskSink(repository, log, 1)

	// Given nobody drains the buffer, every extra message is dropped without blocking
	for i := 0; i < 5; i++ {
		diskSink.Persist(domain.Message{Seq: uint64(i + 1)})
	}
}

func TestDiskSink_Repository_Failure_Keeps_Running(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIMessageRepository(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	diskSink := sink.NewDiskSink(repository, log, 10)
	calls := make(chan struct{}, 2)

	repository.EXPECT().StoreMessage(gomock.Any()).DoAndReturn(func(repositories.DiskMessage) error {
		calls <- struct{}{}
		return stderrors.New("disk full")
	}).Times(2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- diskSink.Run(ctx) }()

	diskSink.Persist(domain.Message{Seq: 1})
	diskSink.Persist(domain.Message{Seq: 2})
	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(time.Second):
			req.Fail("store not attempted")
		}
	}

	cancel()
	req.NoError(<-done)
}

func TestDiskSink_History_Reads_Repository(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIMessageRepository(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	diskSink := sink.NewDiskSink(repository, log, 10)
	conversationID := domain.NewConversationID(domain.KindSession)
	at := time.Now().UTC()
	id := uuid.New()

	repository.EXPECT().GetMessages(conversationID.String(), uint64(3)).Return([]repositories.DiskMessage{
		{ID: id, ConversationID: conversationID.String(), Seq: 4, Author: "c1", Content: "still waiting", At: at},
	}, nil)

	// When
	messages, err := diskSink.History(conversationID, 3)

	// Then
	req.NoError(err)
	req.Equal([]domain.Message{{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       "c1",
		Payload:        "still waiting",
		Seq:            4,
		CreatedAt:      at,
	}}, messages)
}

func TestDiskSink_History_Failure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repository := mocks.NewMockIMessageRepository(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	diskSink := sink.NewDiskSink(repository, log, 10)
	failure := stderrors.New("badger closed")

	repository.EXPECT().GetMessages(gomock.Any(), uint64(0)).Return(nil, failure)

	_, err := diskSink.History(domain.NewConversationID(domain.KindRoom), 0)
	req.ErrorIs(err, failure)
}
