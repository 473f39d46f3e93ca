package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/dpfarias/leadline-backend/internal/messaging"
	"github.com/dpfarias/leadline-backend/pkg/logger"
)

const (
	defaultDispatchBatch = 20
	// maxDrainPasses bounds how much backlog one cycle may chew through so a
	// flood of due rows cannot monopolize the worker.
	maxDrainPasses = 5
)

// messageDispatcher drains due queue rows.
type messageDispatcher interface {
	ProcessDue(ctx context.Context, now time.Time, limit int) (messaging.Summary, error)
}

// MessageDispatchJobParams configure the queue dispatch job.
type MessageDispatchJobParams struct {
	Logger     *logger.Logger
	Dispatcher messageDispatcher
	Batch      int
}

type messageDispatchJob struct {
	logg       *logger.Logger
	dispatcher messageDispatcher
	batch      int
	now        func() time.Time
}

// NewMessageDispatchJob builds the cron job that sends due queued messages.
func NewMessageDispatchJob(params MessageDispatchJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultDispatchBatch
	}
	return &messageDispatchJob{
		logg:       params.Logger,
		dispatcher: params.Dispatcher,
		batch:      batch,
		now:        time.Now,
	}, nil
}

func (j *messageDispatchJob) Name() string { return "message-dispatch" }

// Run drains due messages batch by batch until the queue is caught up or the
// pass budget is spent.
func (j *messageDispatchJob) Run(ctx context.Context) error {
	var (
		total messaging.Summary
		errs  []error
	)

	for pass := 0; pass < maxDrainPasses; pass++ {
		summary, err := j.dispatcher.ProcessDue(ctx, j.now().UTC(), j.batch)
		if err != nil {
			errs = append(errs, fmt.Errorf("process due messages: %w", err))
			break
		}
		total.Processed += summary.Processed
		total.Sent += summary.Sent
		total.Failed += summary.Failed
		total.Cancelled += summary.Cancelled
		if summary.Processed < j.batch {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"processed": total.Processed,
		"sent":      total.Sent,
		"failed":    total.Failed,
		"cancelled": total.Cancelled,
	})
	j.logg.Info(logCtx, "message dispatch loop complete")
	return multierr.Combine(errs...)
}
