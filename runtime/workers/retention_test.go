package workers

import (
	"context"
	"log/slog"
	"support-chat/mocks"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRetentionWorker_Rejects_Invalid_Cron(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	_, err := NewRetentionWorker(log, nil, "every now and then")
	req.Error(err)
}

func TestRetentionWorker_Sweeps_On_Tick(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	sweeper := mocks.NewMockSweeper(ctrl)
	swept := make(chan struct{}, 1)

	sweeper.EXPECT().Sweep(gomock.Any()).DoAndReturn(func(time.Time) int {
		select {
		case swept <- struct{}{}:
		default:
		}
		return 0
	}).MinTimes(1)

	// Given a worker ticking every minute, a few milliseconds before the next minute
	worker, err := NewRetentionWorker(log, sweeper, "* * * * *")
	req.NoError(err)
	worker.now = func() time.Time {
		return time.Now().UTC().Truncate(time.Minute).Add(time.Minute - 20*time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- worker.Run(ctx) }()

	// Then a sweep happens
	select {
	case <-swept:
	case <-time.After(3 * time.Second):
		req.Fail("No sweep within three seconds")
	}

	// And the worker stops cleanly
	cancel()
	req.NoError(<-done)
}
