package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dpfarias/leadline-backend/api/responses"
	"github.com/dpfarias/leadline-backend/api/validators"
	"github.com/dpfarias/leadline-backend/internal/leads"
	"github.com/dpfarias/leadline-backend/internal/payments"
	"github.com/dpfarias/leadline-backend/pkg/enums"
	pkgerrors "github.com/dpfarias/leadline-backend/pkg/errors"
	"github.com/dpfarias/leadline-backend/pkg/logger"
)

// CreateChargeRequest starts a payment attempt for a registered lead.
type CreateChargeRequest struct {
	LeadID      string     `json:"leadId" validate:"required,uuid4"`
	AmountCents int64      `json:"amountCents" validate:"required,gt=0"`
	Method      string     `json:"method" validate:"required,oneof=pix card"`
	MeetingAt   *time.Time `json:"meetingAt" validate:"omitempty"`
}

// ChargeDTO is the public shape of a created charge.
type ChargeDTO struct {
	TransactionID string `json:"transactionId"`
	CorrelationID string `json:"correlationId"`
	Status        string `json:"status"`
	BRCode        string `json:"brCode,omitempty"`
	QRCodeImage   string `json:"qrCodeImage,omitempty"`
}

// CreateCharge handles checkout: it loads the lead and opens a charge with
// the payment provider.
func CreateCharge(leadsSvc leads.Service, paymentsSvc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if leadsSvc == nil || paymentsSvc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		var body CreateChargeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		leadID, err := uuid.Parse(body.LeadID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid lead id"))
			return
		}
		method, err := enums.ParsePaymentMethod(body.Method)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		lead, err := leadsSvc.FindByID(r.Context(), leadID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := paymentsSvc.CreateCharge(r.Context(), payments.ChargeParams{
			Lead:        *lead,
			AmountCents: body.AmountCents,
			Method:      method,
			MeetingAt:   body.MeetingAt,
		}, time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]ChargeDTO{
			"charge": {
				TransactionID: result.Transaction.ID.String(),
				CorrelationID: result.Transaction.CorrelationID,
				Status:        result.Transaction.Status.String(),
				BRCode:        result.BRCode,
				QRCodeImage:   result.QRCodeImage,
			},
		})
	}
}
