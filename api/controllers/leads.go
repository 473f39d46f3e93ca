package controllers

import (
	"net/http"
	"time"

	"github.com/dpfarias/leadline-backend/api/responses"
	"github.com/dpfarias/leadline-backend/api/validators"
	"github.com/dpfarias/leadline-backend/internal/leads"
	"github.com/dpfarias/leadline-backend/pkg/db/models"
	pkgerrors "github.com/dpfarias/leadline-backend/pkg/errors"
	"github.com/dpfarias/leadline-backend/pkg/logger"
)

// RegisterLeadRequest is the landing-page signup payload.
type RegisterLeadRequest struct {
	Name       string `json:"name" validate:"required,min=2,max=120"`
	Phone      string `json:"phone" validate:"required,min=10,max=20"`
	ReferredBy string `json:"referredBy" validate:"omitempty,max=16"`
}

// LeadDTO is the public shape of a lead.
type LeadDTO struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Phone        string  `json:"phone"`
	ReferralCode *string `json:"referralCode"`
	Stage        string  `json:"stage"`
}

func leadToDTO(lead *models.Lead) LeadDTO {
	return LeadDTO{
		ID:           lead.ID.String(),
		Name:         lead.Name,
		Phone:        lead.Phone,
		ReferralCode: lead.ReferralCode,
		Stage:        lead.Stage.String(),
	}
}

// RegisterLead handles the landing-page signup.
func RegisterLead(svc leads.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "leads service unavailable"))
			return
		}

		var body RegisterLeadRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		lead, err := svc.Register(r.Context(), leads.RegisterParams{
			Name:       body.Name,
			Phone:      body.Phone,
			ReferredBy: body.ReferredBy,
		}, time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]LeadDTO{
			"lead": leadToDTO(lead),
		})
	}
}
