package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dpfarias/leadline-backend/internal/payments"
	"github.com/dpfarias/leadline-backend/pkg/logger"
)

type fakeSweeper struct {
	summary payments.SweepSummary
	err     error
	calls   int
}

func (f *fakeSweeper) SweepExpiredPix(ctx context.Context, now time.Time, limit int) (payments.SweepSummary, error) {
	f.calls++
	return f.summary, f.err
}

func newExpiryJob(t *testing.T, sweeper pixSweeper, every int) Job {
	t.Helper()
	job, err := NewPixExpiryJob(PixExpiryJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Sweeper: sweeper,
		Every:   every,
	})
	if err != nil {
		t.Fatalf("NewPixExpiryJob: %v", err)
	}
	return job
}

func TestPixExpiryRunsOnFirstCycle(t *testing.T) {
	sweeper := &fakeSweeper{summary: payments.SweepSummary{Checked: 2, Expired: 2, Queued: 2}}
	job := newExpiryJob(t, sweeper, 5)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sweeper.calls != 1 {
		t.Fatalf("calls = %d, want 1", sweeper.calls)
	}
}

func TestPixExpirySkipsCyclesBetweenSweeps(t *testing.T) {
	sweeper := &fakeSweeper{}
	job := newExpiryJob(t, sweeper, 3)

	for i := 0; i < 7; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
	}
	// Cycles 1, 4 and 7 sweep; the rest skip.
	if sweeper.calls != 3 {
		t.Fatalf("calls = %d, want 3", sweeper.calls)
	}
}

func TestPixExpiryReportsPartialFailures(t *testing.T) {
	sweeper := &fakeSweeper{summary: payments.SweepSummary{Checked: 4, Expired: 3, Errors: 1}}
	job := newExpiryJob(t, sweeper, 1)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error when some charges could not be expired")
	}
}

func TestPixExpiryPropagatesSweepError(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("db down")}
	job := newExpiryJob(t, sweeper, 1)

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
