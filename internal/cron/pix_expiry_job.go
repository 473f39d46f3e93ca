package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/dpfarias/leadline-backend/internal/payments"
	"github.com/dpfarias/leadline-backend/pkg/logger"
)

const defaultExpiryBatch = 50

// pixSweeper expires stale PIX charges.
type pixSweeper interface {
	SweepExpiredPix(ctx context.Context, now time.Time, limit int) (payments.SweepSummary, error)
}

// PixExpiryJobParams configure the PIX expiry sweep job.
type PixExpiryJobParams struct {
	Logger  *logger.Logger
	Sweeper pixSweeper
	Batch   int
	// Every runs the sweep once per N cron cycles; the dispatch job runs on
	// every cycle but expiry needs less frequency than the queue.
	Every int
}

type pixExpiryJob struct {
	logg    *logger.Logger
	sweeper pixSweeper
	batch   int
	every   int
	cycles  int
	now     func() time.Time
}

// NewPixExpiryJob builds the cron job that cancels expired PIX charges.
func NewPixExpiryJob(params PixExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	every := params.Every
	if every <= 0 {
		every = 1
	}
	return &pixExpiryJob{
		logg:    params.Logger,
		sweeper: params.Sweeper,
		batch:   batch,
		every:   every,
		now:     time.Now,
	}, nil
}

func (j *pixExpiryJob) Name() string { return "pix-expiry" }

func (j *pixExpiryJob) Run(ctx context.Context) error {
	j.cycles++
	if (j.cycles-1)%j.every != 0 {
		j.logg.Info(ctx, "pix expiry sweep skipped this cycle")
		return nil
	}

	summary, err := j.sweeper.SweepExpiredPix(ctx, j.now().UTC(), j.batch)
	if err != nil {
		return fmt.Errorf("sweep expired pix: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"checked": summary.Checked,
		"expired": summary.Expired,
		"queued":  summary.Queued,
		"errors":  summary.Errors,
	})
	if summary.Errors > 0 {
		j.logg.Warn(logCtx, "pix expiry sweep finished with errors")
		return fmt.Errorf("pix expiry sweep: %d of %d charges errored", summary.Errors, summary.Checked)
	}
	j.logg.Info(logCtx, "pix expiry sweep complete")
	return nil
}
