package workers

import (
	"context"
	"fmt"
	"log/slog"
	"support-chat/contract"
	"time"

	"github.com/adhocore/gronx"
)

// RetentionWorker runs a retention sweep at every tick of a cron expression.
type RetentionWorker struct {
	log     *slog.Logger
	sweeper contract.Sweeper
	cron    string
	now     func() time.Time
}

func NewRetentionWorker(log *slog.Logger, sweeper contract.Sweeper, cron string) (*RetentionWorker, error) {
	if !gronx.New().IsValid(cron) {
		return nil, fmt.Errorf("invalid retention cron expression %q", cron)
	}
	return &RetentionWorker{
		log:     log,
		sweeper: sweeper,
		cron:    cron,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (w *RetentionWorker) Run(ctx context.Context) error {
	w.log.Info("Starting retention worker", "cron", w.cron)
	for {
		now := w.now()
		next, err := gronx.NextTickAfter(w.cron, now, false)
		if err != nil {
			return fmt.Errorf("next retention tick: %w", err)
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			w.log.Debug("Context done, stopping retention worker")
			return nil
		case <-timer.C:
			evicted := w.sweeper.Sweep(w.now())
			w.log.Debug("Retention tick", "evicted", evicted, "next_after", next)
		}
	}
}
