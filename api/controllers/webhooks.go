package controllers

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/dpfarias/leadline-backend/api/responses"
	"github.com/dpfarias/leadline-backend/api/validators"
	"github.com/dpfarias/leadline-backend/internal/payments"
	pkgerrors "github.com/dpfarias/leadline-backend/pkg/errors"
	"github.com/dpfarias/leadline-backend/pkg/logger"
)

const (
	eventChargeCompleted = "OPENPIX:CHARGE_COMPLETED"
	eventChargeExpired   = "OPENPIX:CHARGE_EXPIRED"
)

// OpenPixWebhookRequest is the provider callback payload, reduced to the
// fields the payment flow consumes.
type OpenPixWebhookRequest struct {
	Event  string `json:"event" validate:"required"`
	Charge struct {
		CorrelationID string `json:"correlationID" validate:"required"`
		Status        string `json:"status"`
	} `json:"charge"`
}

// OpenPixWebhook receives charge lifecycle callbacks. Unknown correlations and
// unhandled events are acknowledged with 200 so the provider stops retrying;
// only transport and store failures earn an error status.
func OpenPixWebhook(svc payments.Service, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		if secret != "" {
			provided := strings.TrimSpace(r.Header.Get("Authorization"))
			if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook credential"))
				return
			}
		}

		var body OpenPixWebhookRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"webhook_event":  body.Event,
				"correlation_id": body.Charge.CorrelationID,
			})
		}

		now := time.Now().UTC()
		var err error
		switch body.Event {
		case eventChargeCompleted:
			err = svc.HandleChargePaid(ctx, body.Charge.CorrelationID, now)
		case eventChargeExpired:
			err = svc.HandleChargeExpired(ctx, body.Charge.CorrelationID, now)
		default:
			if logg != nil {
				logg.Info(ctx, "webhook event ignored")
			}
			responses.WriteSuccess(w, map[string]bool{"ignored": true})
			return
		}

		if err != nil {
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
				if logg != nil {
					logg.Warn(ctx, "webhook for unknown correlation id")
				}
				responses.WriteSuccess(w, map[string]bool{"ignored": true})
				return
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}
