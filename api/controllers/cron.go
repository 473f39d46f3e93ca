package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/dpfarias/leadline-backend/api/responses"
	"github.com/dpfarias/leadline-backend/internal/messaging"
	"github.com/dpfarias/leadline-backend/internal/payments"
	pkgerrors "github.com/dpfarias/leadline-backend/pkg/errors"
	"github.com/dpfarias/leadline-backend/pkg/logger"
)

// queueDispatcher drains due queue rows on demand.
type queueDispatcher interface {
	ProcessDue(ctx context.Context, now time.Time, limit int) (messaging.Summary, error)
}

// pixSweeper expires stale PIX charges on demand.
type pixSweeper interface {
	SweepExpiredPix(ctx context.Context, now time.Time, limit int) (payments.SweepSummary, error)
}

// ProcessMessages triggers one queue dispatch batch over HTTP. Platform
// schedulers that cannot host a long-running worker hit this instead.
func ProcessMessages(dispatcher queueDispatcher, batch int, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if dispatcher == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispatcher unavailable"))
			return
		}

		now := time.Now().UTC()
		summary, err := dispatcher.ProcessDue(r.Context(), now, batch)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue dispatch failed"))
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"processed": summary.Processed,
			"sent":      summary.Sent,
			"failed":    summary.Failed,
			"cancelled": summary.Cancelled,
			"ranAt":     now.Format(time.RFC3339),
		})
	}
}

// SweepPix triggers one PIX expiry sweep over HTTP.
func SweepPix(sweeper pixSweeper, batch int, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sweeper == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sweeper unavailable"))
			return
		}

		now := time.Now().UTC()
		summary, err := sweeper.SweepExpiredPix(r.Context(), now, batch)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "pix sweep failed"))
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"checked": summary.Checked,
			"expired": summary.Expired,
			"queued":  summary.Queued,
			"errors":  summary.Errors,
			"ranAt":   now.Format(time.RFC3339),
		})
	}
}
